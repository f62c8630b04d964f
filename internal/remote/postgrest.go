package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/planify/internal/model"
)

// PostgRESTStore はSupabase PostgREST（/rest/v1）によるデータバックエンド。
// httpClient はセッションのBearerトークンと apikey を付与するものを渡す。
type PostgRESTStore struct {
	endpoint   string // テスト用にエンドポイントを差し替え可能
	httpClient *http.Client
	logger     *slog.Logger
}

// NewPostgRESTStore はPostgRESTStoreを生成する。
func NewPostgRESTStore(baseURL string, httpClient *http.Client, logger *slog.Logger) *PostgRESTStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgRESTStore{
		endpoint:   strings.TrimRight(baseURL, "/") + "/rest/v1",
		httpClient: httpClient,
		logger:     logger,
	}
}

// Tasks はタスクテーブルを返す。
func (s *PostgRESTStore) Tasks() Collection[model.Task] {
	return &restTable[model.Task]{store: s, name: "tasks", order: "date.asc,created_at.asc", nullable: []string{"time_block"}, id: func(t model.Task) string { return t.ID }}
}

// Habits は習慣テーブルを返す。
func (s *PostgRESTStore) Habits() Collection[model.Habit] {
	return &restTable[model.Habit]{store: s, name: "habits", order: "created_at.asc", id: func(h model.Habit) string { return h.ID }}
}

// Transactions は取引テーブルを返す。
func (s *PostgRESTStore) Transactions() Collection[model.Transaction] {
	return &restTable[model.Transaction]{store: s, name: "transactions", order: "date.desc,created_at.desc", id: func(t model.Transaction) string { return t.ID }}
}

// Goals は貯蓄目標テーブルを返す。
func (s *PostgRESTStore) Goals() Collection[model.SavingGoal] {
	return &restTable[model.SavingGoal]{store: s, name: "saving_goals", order: "created_at.asc", nullable: []string{"deadline"}, id: func(g model.SavingGoal) string { return g.ID }}
}

// Debts は借入テーブルを返す。
func (s *PostgRESTStore) Debts() Collection[model.Debt] {
	return &restTable[model.Debt]{store: s, name: "debts", order: "created_at.asc", id: func(d model.Debt) string { return d.ID }}
}

// profileRow は profiles テーブルの行。
type profileRow struct {
	Level                 int        `json:"level"`
	XP                    int        `json:"xp"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at"`
}

// Profile はプロフィールを取得する。行が無い場合は初期値を返す。
func (s *PostgRESTStore) Profile(ctx context.Context, userID string) (model.UserProfile, error) {
	q := url.Values{
		"select": {"level,xp,subscription_expires_at"},
		"id":     {"eq." + userID},
	}
	var rows []profileRow
	if err := s.do(ctx, http.MethodGet, "profiles", q, nil, "", &rows); err != nil {
		return model.UserProfile{}, err
	}
	if len(rows) == 0 {
		return model.DefaultProfile(), nil
	}
	return model.UserProfile{
		Level:                 rows[0].Level,
		XP:                    rows[0].XP,
		SubscriptionExpiresAt: rows[0].SubscriptionExpiresAt,
	}, nil
}

// postgrestError はPostgRESTのエラーレスポンス。
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// do はPostgRESTにリクエストを送信し、成功時に out へデコードする。
func (s *PostgRESTStore) do(ctx context.Context, method, table string, query url.Values, in any, prefer string, out any) error {
	reqURL := s.endpoint + "/" + table
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return remoteErr("failed to encode row", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return remoteErr("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("データサービスの呼び出しに失敗しました",
			slog.String("table", table),
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		return remoteErr("data service unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return remoteErr("failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e postgrestError
		_ = json.Unmarshal(respBody, &e)
		msg := e.Message
		if msg == "" {
			msg = fmt.Sprintf("data service returned status %d", resp.StatusCode)
		}
		s.logger.Warn("データサービスがエラーを返しました",
			slog.String("table", table),
			slog.String("method", method),
			slog.Int("http_status", resp.StatusCode),
			slog.String("code", e.Code),
		)
		return remoteErr(msg, nil)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return remoteErr("failed to parse response", err)
	}
	return nil
}

// restTable はPostgRESTのテーブル1つに対するCollection実装。
type restTable[T any] struct {
	store *PostgRESTStore
	name  string
	order string
	// nullable は省略時にNULLで上書きする列。PATCHで値を外せるようにする。
	nullable []string
	id       func(T) string
}

// List はユーザーの行を返す。
func (t *restTable[T]) List(ctx context.Context, userID string) ([]T, error) {
	q := url.Values{
		"select":  {"*"},
		"user_id": {"eq." + userID},
		"order":   {t.order},
	}
	var rows []T
	if err := t.store.do(ctx, http.MethodGet, t.name, q, nil, "", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Insert は行を追加する。同じIDがあれば上書きする。
func (t *restTable[T]) Insert(ctx context.Context, userID string, v T) error {
	row, err := withUserID(userID, v, t.nullable)
	if err != nil {
		return err
	}
	return t.store.do(ctx, http.MethodPost, t.name, nil, row,
		"return=minimal,resolution=merge-duplicates", nil)
}

// Update は行を更新する。対象が無い場合は RemoteError を返す。
func (t *restTable[T]) Update(ctx context.Context, userID string, v T) error {
	row, err := withUserID(userID, v, t.nullable)
	if err != nil {
		return err
	}
	q := url.Values{
		"id":      {"eq." + t.id(v)},
		"user_id": {"eq." + userID},
	}
	var updated []json.RawMessage
	if err := t.store.do(ctx, http.MethodPatch, t.name, q, row, "return=representation", &updated); err != nil {
		return err
	}
	if len(updated) == 0 {
		return remoteErr("row not found", nil)
	}
	return nil
}

// Delete は行を削除する。存在しなくてもエラーにしない。
func (t *restTable[T]) Delete(ctx context.Context, userID, id string) error {
	q := url.Values{
		"id":      {"eq." + id},
		"user_id": {"eq." + userID},
	}
	return t.store.do(ctx, http.MethodDelete, t.name, q, nil, "return=minimal", nil)
}

// withUserID はエンティティのJSON表現に user_id 列を加える。
func withUserID(userID string, v any, nullable []string) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, remoteErr("failed to encode row", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	row := make(map[string]any)
	if err := dec.Decode(&row); err != nil {
		return nil, remoteErr("failed to encode row", err)
	}
	row["user_id"] = userID
	for _, col := range nullable {
		if _, ok := row[col]; !ok {
			row[col] = nil
		}
	}
	return row, nil
}

// compile-time interface check
var _ DataStore = (*PostgRESTStore)(nil)
