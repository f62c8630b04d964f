// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は外部（生成AIやユーザー入力）から来たタイトル文字列から
// マークアップを取り除き、表示用のプレーンテキストに正規化する。
// bluemondayの StrictPolicy を使用し、すべてのタグを除去する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxTitleRunes はタイトルの最大文字数。
const DefaultMaxTitleRunes = 200

// TextSanitizer はプレーンテキスト化のインターフェース。
type TextSanitizer interface {
	// Sanitize はタグを除去し、空白を1つにまとめ、前後の空白を取り除いた文字列を返す。
	// 最大文字数を超える部分は切り捨てる。同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	policy   *bluemonday.Policy
	maxRunes int
}

// NewTextSanitizer はTextSanitizerを生成する。maxRunes が0以下の場合は既定値を使う。
func NewTextSanitizer(maxRunes int) TextSanitizer {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxTitleRunes
	}
	return &textSanitizer{
		policy:   bluemonday.StrictPolicy(),
		maxRunes: maxRunes,
	}
}

// Sanitize はプレーンテキストに正規化する。
func (s *textSanitizer) Sanitize(raw string) string {
	// StrictPolicy は & や引用符をエスケープするため、表示用に戻す
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > s.maxRunes {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:s.maxRunes]))
	}
	return text
}
