// Package voice は音声入力（音声認識）の状態管理を提供する。
//
// Capture は Idle → Listening → Idle の状態機械で、
// 認識中は部分的な認識結果でテキストバッファを置き換え続ける。
// 明示的な停止、発話の終了、エラーのいずれでも Idle に戻る。
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/planify/internal/model"
)

// State は音声入力の状態。
type State string

// 状態の定義
const (
	StateIdle      State = "idle"
	StateListening State = "listening"
)

// EventKind は認識イベントの種類。
type EventKind int

// 認識イベントの種類
const (
	EventPartial EventKind = iota // 途中結果（これまでの認識結果全体）
	EventEnd                      // 発話の終了
	EventError                    // 認識エラー
)

// 認識エラーのコード
const (
	CodeNotAllowed = "not-allowed"
	CodeNoSpeech   = "no-speech"
	CodeNetwork    = "network"
)

// Event はRecognizerから届く認識イベント。
type Event struct {
	Kind       EventKind
	Transcript string
	Code       string
}

// ErrVoiceUnsupported はプラットフォームが音声認識に対応していないことを示す。
var ErrVoiceUnsupported = errors.New("voice: speech recognition is not supported")

// RecognitionError は認識中に発生したエラー。
type RecognitionError struct {
	Code string
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("voice: recognition failed: %s", e.Code)
}

// Recognizer はプラットフォームの音声認識機能。
// Start はイベントチャネルを返し、認識が終わるとチャネルを閉じる。
type Recognizer interface {
	Start(ctx context.Context, locale string) (<-chan Event, error)
	Stop() error
}

// Locale は言語に対応する認識ロケールを返す。
func Locale(lang model.Language) string {
	return lang.Pick("uz-UZ", "ru-RU")
}

// Capture は音声入力の状態機械。
type Capture struct {
	rec    Recognizer
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	text    string
	lastErr error
	session uint64
	done    chan struct{}
}

// NewCapture はCaptureを生成する。rec が nil の場合は非対応として扱う。
func NewCapture(rec Recognizer, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	done := make(chan struct{})
	close(done)
	return &Capture{rec: rec, logger: logger, state: StateIdle, done: done}
}

// Start は認識を開始する。すでに認識中の場合は何もしない。
func (c *Capture) Start(ctx context.Context, lang model.Language) error {
	if c.rec == nil {
		return ErrVoiceUnsupported
	}

	c.mu.Lock()
	if c.state == StateListening {
		c.mu.Unlock()
		return nil
	}
	c.session++
	session := c.session
	c.state = StateListening
	c.lastErr = nil
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	events, err := c.rec.Start(ctx, Locale(lang))
	if err != nil {
		c.finish(session, err)
		close(done)
		return err
	}

	go c.consume(session, events, done)
	return nil
}

// consume はイベントを読み、部分結果でバッファを更新する。
func (c *Capture) consume(session uint64, events <-chan Event, done chan struct{}) {
	defer close(done)

	for ev := range events {
		switch ev.Kind {
		case EventPartial:
			c.mu.Lock()
			if c.session == session && c.state == StateListening {
				c.text = ev.Transcript
			}
			c.mu.Unlock()
		case EventEnd:
			c.finish(session, nil)
		case EventError:
			c.logger.Warn("speech recognition error", slog.String("code", ev.Code))
			c.finish(session, &RecognitionError{Code: ev.Code})
		}
	}
	c.finish(session, nil)
}

// finish は指定セッションが現在のものであれば Idle に戻す。
func (c *Capture) finish(session uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != session || c.state != StateListening {
		return
	}
	c.state = StateIdle
	if err != nil {
		c.lastErr = err
	}
}

// Stop は認識を停止し、Idle に戻す。バッファは保持する。
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.state != StateListening {
		c.mu.Unlock()
		return nil
	}
	c.state = StateIdle
	c.mu.Unlock()

	if err := c.rec.Stop(); err != nil {
		// 停止失敗でも状態は Idle のまま
		c.logger.Warn("failed to stop speech recognition", slog.String("error", err.Error()))
	}
	return nil
}

// Toggle は認識中なら停止し、そうでなければ開始する。
func (c *Capture) Toggle(ctx context.Context, lang model.Language) error {
	if c.State() == StateListening {
		return c.Stop()
	}
	return c.Start(ctx, lang)
}

// State は現在の状態を返す。
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Text は最新の認識結果を返す。
func (c *Capture) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// SetText はバッファを置き換える（手入力での編集）。
func (c *Capture) SetText(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = s
}

// Err は直近の認識エラーを返す。
func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Done は現在のセッションのイベント処理が終わると閉じるチャネルを返す。
func (c *Capture) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// ErrorMessage は音声入力エラーの表示用メッセージを返す。
func ErrorMessage(err error, lang model.Language) string {
	if errors.Is(err, ErrVoiceUnsupported) {
		return lang.Pick("Sizning brauzeringiz ovozni qo'llab-quvvatlamaydi.", "Ваш браузер не поддерживает голосовой ввод.")
	}
	var re *RecognitionError
	if errors.As(err, &re) {
		switch re.Code {
		case CodeNotAllowed:
			return lang.Pick("Mikrofonga ruxsat berilmagan.", "Нет доступа к микрофону.")
		case CodeNoSpeech:
			return lang.Pick("Ovoz eshitilmadi. Qaytadan urinib ko'ring.", "Голос не распознан. Попробуйте еще раз.")
		case CodeNetwork:
			return lang.Pick("Internet bilan muammo.", "Проблема с интернетом.")
		default:
			return fmt.Sprintf(lang.Pick("Xatolik: %s", "Ошибка: %s"), re.Code)
		}
	}
	return lang.Pick("Mikrofonni ishga tushirishda xatolik.", "Ошибка запуска микрофона.")
}
