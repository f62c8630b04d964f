package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel は既定のGeminiモデル。
const DefaultModel = "gemini-3-flash-preview"

// 温度設定
const (
	draftTemperature float32 = 0.1
	textTemperature  float32 = 0.7
)

// draftFields はタスク案オブジェクトのフィールド順。
var draftFields = []string{"title", "priority", "date", "timeBlock"}

// draftSchema はタスク案配列の応答スキーマ。
var draftSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":     {Type: genai.TypeString},
			"priority":  {Type: genai.TypeString, Enum: []string{"low", "medium", "high"}},
			"date":      {Type: genai.TypeString, Description: "YYYY-MM-DD"},
			"timeBlock": {Type: genai.TypeString, Description: "HH:MM"},
		},
		Required:         []string{"title", "priority", "date"},
		PropertyOrdering: draftFields,
	},
}

// GeminiOption はGeminiGeneratorの接続先を変更する。
type GeminiOption func(*genai.ClientConfig)

// WithBaseURL はAPIのベースURLを差し替える。
func WithBaseURL(url string) GeminiOption {
	return func(c *genai.ClientConfig) { c.HTTPOptions.BaseURL = url }
}

// WithHTTPClient は通信に使うHTTPクライアントを差し替える。
func WithHTTPClient(client *http.Client) GeminiOption {
	return func(c *genai.ClientConfig) { c.HTTPClient = client }
}

// GeminiGenerator はGemini APIによるGenerator実装。
type GeminiGenerator struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiGenerator はGeminiGeneratorを生成する。
func NewGeminiGenerator(ctx context.Context, apiKey, model string, logger *slog.Logger, opts ...GeminiOption) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model, logger: logger}, nil
}

// GenerateDrafts はテキストと画像からタスク案を生成する。
func (g *GeminiGenerator) GenerateDrafts(ctx context.Context, req Request) ([]RawDraft, error) {
	text := req.Text
	if text == "" {
		text = "(see attached image)"
	}
	parts := []*genai.Part{
		genai.NewPartFromText(fmt.Sprintf("Generate distinct tasks from this input: %q", text)),
	}
	if req.Image != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Image.Data, req.Image.MIMEType))
	}

	instruction := fmt.Sprintf("You are a professional AI planner. Convert user input into a unique JSON array of tasks. "+
		"Current Date: %s. Language: %s. "+
		"CRITICAL: If the user provides multiple tasks, ensure EACH object in the array has its OWN unique title, priority, and date based on the input. "+
		"DO NOT duplicate data across items. Return [] if the input contains no tasks.",
		req.CurrentDate, languageName(req.Language))

	out, err := g.generate(ctx, parts, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
		Temperature:       genai.Ptr(draftTemperature),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    draftSchema,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out) == "" {
		return []RawDraft{}, nil
	}

	drafts, skipped, err := decodeDrafts(out)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		g.logger.Warn("解釈できないタスク案を読み飛ばしました",
			slog.Int("skipped", skipped),
			slog.Int("accepted", len(drafts)),
		)
	}
	return drafts, nil
}

// GenerateText は短い自然文を生成する。
func (g *GeminiGenerator) GenerateText(ctx context.Context, prompt, instruction string) (string, error) {
	return g.generate(ctx, []*genai.Part{genai.NewPartFromText(prompt)}, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
		Temperature:       genai.Ptr(textTemperature),
	})
}

// generate はGenerateContentを呼び出し、先頭候補のテキストを返す。
func (g *GeminiGenerator) generate(ctx context.Context, parts []*genai.Part, cfg *genai.GenerateContentConfig) (string, error) {
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		g.logger.Warn("Geminiの呼び出しに失敗しました",
			slog.String("model", g.model),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return resp.Text(), nil
}

// decodeDrafts は応答テキストをタスク案の配列として解釈する。
// コードフェンスで囲まれた応答や、単一オブジェクトの応答も受け付ける。
// 配列の要素はオブジェクト以外を読み飛ばし、その数を skipped で返す。
func decodeDrafts(out string) (drafts []RawDraft, skipped int, err error) {
	out = stripFence(out)

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		var single map[string]any
		if err := json.Unmarshal([]byte(out), &single); err != nil || single == nil {
			return nil, 0, errors.New("failed to parse drafts: response is not a JSON array")
		}
		return []RawDraft{draftFromFields(single)}, 0, nil
	}

	drafts = make([]RawDraft, 0, len(items))
	for _, item := range items {
		var fields map[string]any
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			skipped++
			continue
		}
		drafts = append(drafts, draftFromFields(fields))
	}
	return drafts, skipped, nil
}

// draftFromFields は型の揃っていないフィールドを文字列に寄せてRawDraftにする。
// 文字列にできない値は空として扱い、Parserの既定値に任せる。
func draftFromFields(fields map[string]any) RawDraft {
	return RawDraft{
		Title:     coerceString(fields["title"]),
		Priority:  coerceString(fields["priority"]),
		Date:      coerceString(fields["date"]),
		TimeBlock: coerceString(fields["timeBlock"]),
	}
}

func coerceString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// compile-time interface check
var _ Generator = (*GeminiGenerator)(nil)
