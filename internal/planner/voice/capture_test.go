package voice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/planify/internal/model"
)

// mockRecognizer はテスト用のRecognizerモック。
type mockRecognizer struct {
	events    chan Event
	startErr  error
	locale    string
	stopCalls int
}

func newMockRecognizer() *mockRecognizer {
	return &mockRecognizer{events: make(chan Event, 8)}
}

func (m *mockRecognizer) Start(_ context.Context, locale string) (<-chan Event, error) {
	m.locale = locale
	if m.startErr != nil {
		return nil, m.startErr
	}
	return m.events, nil
}

func (m *mockRecognizer) Stop() error {
	m.stopCalls++
	return nil
}

func waitDone(t *testing.T, c *Capture) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("イベント処理が終了しない")
	}
}

func TestCapture_Unsupported(t *testing.T) {
	c := NewCapture(nil, nil)
	if err := c.Start(context.Background(), model.LanguageUz); !errors.Is(err, ErrVoiceUnsupported) {
		t.Errorf("ErrVoiceUnsupported が返されるべき: %v", err)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
}

func TestCapture_PartialsThenEnd(t *testing.T) {
	rec := newMockRecognizer()
	c := NewCapture(rec, nil)

	if err := c.Start(context.Background(), model.LanguageRu); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if c.State() != StateListening {
		t.Fatalf("state = %s, want listening", c.State())
	}
	if rec.locale != "ru-RU" {
		t.Errorf("locale = %q, want ru-RU", rec.locale)
	}

	rec.events <- Event{Kind: EventPartial, Transcript: "купить"}
	rec.events <- Event{Kind: EventPartial, Transcript: "купить молоко"}
	rec.events <- Event{Kind: EventEnd}
	close(rec.events)
	waitDone(t, c)

	if c.State() != StateIdle {
		t.Errorf("発話終了後は idle: got %s", c.State())
	}
	if c.Text() != "купить молоко" {
		t.Errorf("最新の認識結果が保持されていない: %q", c.Text())
	}
	if c.Err() != nil {
		t.Errorf("unexpected error: %v", c.Err())
	}
}

func TestCapture_ErrorReturnsToIdle(t *testing.T) {
	rec := newMockRecognizer()
	c := NewCapture(rec, nil)

	if err := c.Start(context.Background(), model.LanguageUz); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	rec.events <- Event{Kind: EventPartial, Transcript: "non"}
	rec.events <- Event{Kind: EventError, Code: CodeNoSpeech}
	close(rec.events)
	waitDone(t, c)

	if c.State() != StateIdle {
		t.Errorf("エラー後は idle: got %s", c.State())
	}
	var re *RecognitionError
	if !errors.As(c.Err(), &re) || re.Code != CodeNoSpeech {
		t.Errorf("Err() = %v", c.Err())
	}
	if c.Text() != "non" {
		t.Errorf("エラー前のテキストは保持される: %q", c.Text())
	}
	if msg := ErrorMessage(c.Err(), model.LanguageUz); msg != "Ovoz eshitilmadi. Qaytadan urinib ko'ring." {
		t.Errorf("ErrorMessage() = %q", msg)
	}
}

func TestCapture_StopIgnoresLateEvents(t *testing.T) {
	rec := newMockRecognizer()
	c := NewCapture(rec, nil)

	if err := c.Toggle(context.Background(), model.LanguageUz); err != nil {
		t.Fatalf("Toggle(start) failed: %v", err)
	}
	if err := c.Toggle(context.Background(), model.LanguageUz); err != nil {
		t.Fatalf("Toggle(stop) failed: %v", err)
	}
	if c.State() != StateIdle {
		t.Fatalf("停止後は idle: got %s", c.State())
	}
	if rec.stopCalls != 1 {
		t.Errorf("Stop calls = %d, want 1", rec.stopCalls)
	}

	rec.events <- Event{Kind: EventPartial, Transcript: "late"}
	close(rec.events)
	waitDone(t, c)

	if c.Text() != "" {
		t.Errorf("停止後のイベントは無視されるべき: %q", c.Text())
	}
}

func TestCapture_StartWhileListeningIsNoop(t *testing.T) {
	rec := newMockRecognizer()
	c := NewCapture(rec, nil)

	if err := c.Start(context.Background(), model.LanguageUz); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	done := c.Done()
	if err := c.Start(context.Background(), model.LanguageUz); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if c.Done() != done {
		t.Error("認識中の再開始で新しいセッションが作られた")
	}
	close(rec.events)
	waitDone(t, c)
}

func TestCapture_StartFailure(t *testing.T) {
	rec := newMockRecognizer()
	rec.startErr = errors.New("microphone busy")
	c := NewCapture(rec, nil)

	if err := c.Start(context.Background(), model.LanguageUz); err == nil {
		t.Fatal("開始失敗はエラーを返すべき")
	}
	if c.State() != StateIdle {
		t.Errorf("開始失敗後は idle: got %s", c.State())
	}
	waitDone(t, c)
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		lang model.Language
		want string
	}{
		{ErrVoiceUnsupported, model.LanguageRu, "Ваш браузер не поддерживает голосовой ввод."},
		{&RecognitionError{Code: CodeNotAllowed}, model.LanguageUz, "Mikrofonga ruxsat berilmagan."},
		{&RecognitionError{Code: CodeNetwork}, model.LanguageRu, "Проблема с интернетом."},
		{&RecognitionError{Code: "aborted"}, model.LanguageUz, "Xatolik: aborted"},
		{errors.New("boom"), model.LanguageRu, "Ошибка запуска микрофона."},
	}
	for _, tt := range tests {
		if got := ErrorMessage(tt.err, tt.lang); got != tt.want {
			t.Errorf("ErrorMessage(%v, %s) = %q, want %q", tt.err, tt.lang, got, tt.want)
		}
	}
}
