package model

import "strings"

// Language はUIおよびAIプロンプトの言語。
type Language string

// 対応言語
const (
	LanguageUz Language = "uz"
	LanguageRu Language = "ru"
)

// ParseLanguage は言語コードを解釈する。未対応の場合は fallback を返す。
// "ru-RU" のような地域付きコードも受け付ける。
func ParseLanguage(s string, fallback Language) Language {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(s, "-_,;"); i >= 0 {
		s = s[:i]
	}
	switch Language(s) {
	case LanguageUz:
		return LanguageUz
	case LanguageRu:
		return LanguageRu
	default:
		return fallback
	}
}

// Pick は言語に応じて uz / ru の文字列を選ぶ。
func (l Language) Pick(uz, ru string) string {
	if l == LanguageRu {
		return ru
	}
	return uz
}
