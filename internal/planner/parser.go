// Package planner は自由記述のテキスト（と任意の画像1枚）からタスク案を生成する。
//
// 生成AIの呼び出しは Generator インターフェースの背後に隠し、
// Parser は結果の正規化と失敗時の扱いを担当する。
// 「何も理解できなかった」は空スライスで返し、エラーにはしない。
// サービスに到達できなかった場合だけ ErrServiceUnavailable を返す。
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/planify/internal/metrics"
	"github.com/hitoshi/planify/internal/model"
	"github.com/hitoshi/planify/internal/security"
)

// ErrServiceUnavailable は生成AIサービスに到達できなかった、
// または解釈できない応答が返ったことを示す。model.ErrParseService をラップする。
var ErrServiceUnavailable = fmt.Errorf("planner: %w", model.ErrParseService)

// 呼び出し結果（メトリクスのラベル）
const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// Image は添付画像。
type Image struct {
	Data     []byte
	MIMEType string
}

// Request はタスク案生成のリクエスト。
type Request struct {
	Text        string
	CurrentDate string
	Language    model.Language
	Image       *Image
}

// Draft はユーザーの確認待ちのタスク案。
type Draft struct {
	Title     string         `json:"title"`
	Priority  model.Priority `json:"priority"`
	Date      string         `json:"date"`
	TimeBlock *string        `json:"timeBlock,omitempty"`
}

// RawDraft は生成AIが返した1件分の未検証データ。
type RawDraft struct {
	Title     string `json:"title"`
	Priority  string `json:"priority"`
	Date      string `json:"date"`
	TimeBlock string `json:"timeBlock"`
}

// Generator は生成AIサービスとの境界。
// エラーを返すのは到達不能・応答不正の場合のみ。
type Generator interface {
	GenerateDrafts(ctx context.Context, req Request) ([]RawDraft, error)
	GenerateText(ctx context.Context, prompt, instruction string) (string, error)
}

// Parser はタスク案生成の窓口。
type Parser struct {
	gen       Generator
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	timeout   time.Duration
	logger    *slog.Logger
}

// Option はParserの任意設定。
type Option func(*Parser)

// WithMetrics はメトリクス収集を設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(p *Parser) { p.metrics = m }
}

// WithTimeout は1回の呼び出しのタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(p *Parser) { p.timeout = d }
}

// WithLogger はロガーを設定する。
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) { p.logger = l }
}

// NewParser はParserを生成する。gen が nil の場合、生成は常に ErrServiceUnavailable になる。
func NewParser(gen Generator, opts ...Option) *Parser {
	p := &Parser{
		gen:       gen,
		sanitizer: security.NewTextSanitizer(security.DefaultMaxTitleRunes),
		metrics:   metrics.Nop{},
		timeout:   30 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse はリクエストからタスク案を生成する。
// 入力が空の場合はサービスを呼ばずに空の結果を返す。
func (p *Parser) Parse(ctx context.Context, req Request) ([]Draft, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Image != nil && len(req.Image.Data) == 0 {
		req.Image = nil
	}
	if req.Text == "" && req.Image == nil {
		p.metrics.RecordPlannerCall(OutcomeSkipped)
		return []Draft{}, nil
	}
	if !model.ValidDate(req.CurrentDate) {
		return nil, &model.ValidationError{Field: "current_date", Reason: fmt.Sprintf("not an ISO date: %q", req.CurrentDate)}
	}
	if p.gen == nil {
		p.metrics.RecordPlannerCall(OutcomeError)
		return nil, ErrServiceUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	raw, err := p.gen.GenerateDrafts(ctx, req)
	p.metrics.RecordPlannerLatency(time.Since(start))
	if err != nil {
		p.metrics.RecordPlannerCall(OutcomeError)
		p.logger.Warn("planner call failed",
			slog.Bool("has_image", req.Image != nil),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	drafts := p.normalize(raw, req)
	if len(drafts) == 0 {
		p.metrics.RecordPlannerCall(OutcomeEmpty)
	} else {
		p.metrics.RecordPlannerCall(OutcomeOK)
	}
	p.logger.Info("planner drafts generated",
		slog.Int("raw", len(raw)),
		slog.Int("drafts", len(drafts)),
	)
	return drafts, nil
}

// normalize は生成結果を検証し、欠けた値を既定値で埋め、完全な重複を取り除く。
func (p *Parser) normalize(raw []RawDraft, req Request) []Draft {
	drafts := make([]Draft, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for _, r := range raw {
		d := Draft{
			Title:     p.sanitizer.Sanitize(r.Title),
			Priority:  model.PriorityMedium,
			Date:      req.CurrentDate,
			TimeBlock: normalizeTimeBlock(r.TimeBlock),
		}
		if d.Title == "" {
			d.Title = Placeholder(req.Language)
		}
		if pr, ok := model.ParsePriority(r.Priority); ok {
			d.Priority = pr
		}
		if date := strings.TrimSpace(r.Date); model.ValidDate(date) {
			d.Date = date
		}

		key := d.Title + "\x00" + string(d.Priority) + "\x00" + d.Date
		if d.TimeBlock != nil {
			key += "\x00" + *d.TimeBlock
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		drafts = append(drafts, d)
	}
	return drafts
}

// normalizeTimeBlock は "HH:MM" をカレンダーの時間枠（"HH:00"）に丸める。
// 形式が不正、または範囲外の場合は nil を返す。
func normalizeTimeBlock(s string) *string {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return nil
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return nil
	}
	if minute, err := strconv.Atoi(mm); err != nil || minute < 0 || minute > 59 {
		return nil
	}
	slot := fmt.Sprintf("%02d:00", hour)
	if !model.ValidTimeBlock(slot) {
		return nil
	}
	return &slot
}

// Placeholder はタイトルが無いタスク案の既定タイトルを返す。
func Placeholder(lang model.Language) string {
	return lang.Pick("Vazifa", "Задача")
}

// Advice はタスク数と習慣数から1文の助言を返す。失敗した場合は空文字を返す。
func (p *Parser) Advice(ctx context.Context, taskCount, habitCount int, lang model.Language) string {
	prompt := fmt.Sprintf("User has %d tasks and %d habits. Language: %s. Give 1 sentence advice.",
		taskCount, habitCount, languageName(lang))
	return p.text(ctx, prompt, "Productivity coach. Be brief.")
}

// DailyBriefing はタスク名の一覧を短く要約する。失敗した場合は空文字を返す。
func (p *Parser) DailyBriefing(ctx context.Context, titles []string, lang model.Language) string {
	if len(titles) == 0 {
		return ""
	}
	prompt := fmt.Sprintf("Briefly summarize tasks: %s. Language: %s.",
		strings.Join(titles, ", "), languageName(lang))
	return p.text(ctx, prompt, "Brief daily assistant.")
}

// text はテキスト生成を呼び出し、失敗を空文字に落とす。
func (p *Parser) text(ctx context.Context, prompt, instruction string) string {
	if p.gen == nil {
		p.metrics.RecordPlannerCall(OutcomeSkipped)
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	out, err := p.gen.GenerateText(ctx, prompt, instruction)
	p.metrics.RecordPlannerLatency(time.Since(start))
	if err != nil {
		p.metrics.RecordPlannerCall(OutcomeError)
		if !errors.Is(err, context.Canceled) {
			p.logger.Warn("planner text call failed", slog.String("error", err.Error()))
		}
		return ""
	}

	p.metrics.RecordPlannerCall(OutcomeOK)
	return strings.TrimSpace(out)
}

// Confirm はタスク案を新しいIDの未完了タスクに変換する。
func Confirm(drafts []Draft) []model.Task {
	tasks := make([]model.Task, 0, len(drafts))
	for _, d := range drafts {
		t := model.Task{
			ID:       uuid.NewString(),
			Title:    d.Title,
			Priority: d.Priority,
			Date:     d.Date,
			Tags:     []string{},
			Subtasks: []model.Subtask{},
		}
		if d.TimeBlock != nil {
			tb := *d.TimeBlock
			t.TimeBlock = &tb
		}
		tasks = append(tasks, t)
	}
	return tasks
}

func languageName(lang model.Language) string {
	return lang.Pick("Uzbek", "Russian")
}
