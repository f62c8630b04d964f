package voice

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
)

// CodeAudioCapture は音声入力の読み取りに失敗したことを示す。
const CodeAudioCapture = "audio-capture"

// LineRecognizer は外部の音声認識プロセスが1行ずつ書き出す認識結果を読むRecognizer。
// 読んだ行を連結したものを途中結果として通知し、空行かEOFで発話の終了とする。
type LineRecognizer struct {
	r io.Reader

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewLineRecognizer はrから認識結果を読むLineRecognizerを生成する。
func NewLineRecognizer(r io.Reader) *LineRecognizer {
	return &LineRecognizer{r: r}
}

// Start は読み取りを開始する。localeは外部プロセス側で決まるため使わない。
func (l *LineRecognizer) Start(ctx context.Context, _ string) (<-chan Event, error) {
	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.cancel = cancel
	l.mu.Unlock()

	events := make(chan Event)
	go func() {
		defer close(events)
		send := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var words []string
		scanner := bufio.NewScanner(l.r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				break
			}
			words = append(words, line)
			if !send(Event{Kind: EventPartial, Transcript: strings.Join(words, " ")}) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			send(Event{Kind: EventError, Code: CodeAudioCapture})
			return
		}
		send(Event{Kind: EventEnd})
	}()
	return events, nil
}

// Stop は読み取りを打ち切る。読み取り中の行はそのまま破棄される。
func (l *LineRecognizer) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	return nil
}

// compile-time interface check
var _ Recognizer = (*LineRecognizer)(nil)
