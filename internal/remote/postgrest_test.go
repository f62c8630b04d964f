package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/planify/internal/model"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
)

func newTestPostgREST(t *testing.T, handler http.Handler) *PostgRESTStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	client := NewBearerClient(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "at-1"}), "anon-key", 5*time.Second)
	return NewPostgRESTStore(server.URL, client, newTestLogger(&buf))
}

func TestPostgRESTStore_ListTasks(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/tasks" {
			t.Errorf("パス = %s", r.URL.Path)
		}
		if r.URL.Query().Get("user_id") != "eq.user-1" {
			t.Errorf("user_id = %s", r.URL.Query().Get("user_id"))
		}
		if r.Header.Get("Authorization") != "Bearer at-1" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("apikey") != "anon-key" {
			t.Errorf("apikey = %q", r.Header.Get("apikey"))
		}
		w.Write([]byte(`[{"id":"t1","user_id":"user-1","title":"Gym","completed":false,"priority":"high",
			"date":"2024-01-02","tags":["health"],"subtasks":[],"time_block":"09:00","created_at":"2024-01-01T00:00:00Z"}]`))
	})
	s := newTestPostgREST(t, handler)

	tasks, err := s.Tasks().List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("List がエラーを返した: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "Gym" || tasks[0].TimeBlock == nil || *tasks[0].TimeBlock != "09:00" {
		t.Errorf("unexpected tasks: %+v", tasks)
	}
}

func TestPostgRESTStore_InsertTransaction_AddsUserID(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		var row map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		dec.Decode(&row)
		if row["user_id"] != "user-1" {
			t.Errorf("user_id = %v", row["user_id"])
		}
		if row["amount"] != "45000.5" {
			t.Errorf("amount = %v", row["amount"])
		}
		w.WriteHeader(http.StatusCreated)
	})
	s := newTestPostgREST(t, handler)

	tx := model.Transaction{
		ID: "tx1", Title: "Lunch", Amount: decimal.RequireFromString("45000.5"),
		Type: model.TransactionExpense, Category: model.CategoryFood, Date: "2024-01-02",
	}
	if err := s.Transactions().Insert(context.Background(), "user-1", tx); err != nil {
		t.Fatalf("Insert がエラーを返した: %v", err)
	}
}

func TestPostgRESTStore_UpdateTask_ClearsTimeBlock(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("HTTPメソッド = %s, want PATCH", r.Method)
		}
		if r.URL.Query().Get("id") != "eq.t1" {
			t.Errorf("id = %s", r.URL.Query().Get("id"))
		}
		var row map[string]any
		json.NewDecoder(r.Body).Decode(&row)
		v, ok := row["time_block"]
		if !ok || v != nil {
			t.Errorf("time_block = %v (present=%v), want null", v, ok)
		}
		w.Write([]byte(`[{"id":"t1"}]`))
	})
	s := newTestPostgREST(t, handler)

	task := model.Task{ID: "t1", Title: "Gym", Priority: model.PriorityHigh, Date: "2024-01-02"}
	if err := s.Tasks().Update(context.Background(), "user-1", task); err != nil {
		t.Fatalf("Update がエラーを返した: %v", err)
	}
}

func TestPostgRESTStore_UpdateMissingRow(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	s := newTestPostgREST(t, handler)

	err := s.Habits().Update(context.Background(), "user-1", model.Habit{ID: "h1", Title: "Read"})
	var remoteErr *model.RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("エラー = %v, want *model.RemoteError", err)
	}
}

func TestPostgRESTStore_ErrorBody(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code":"42501","message":"permission denied for table debts"}`))
	})
	s := newTestPostgREST(t, handler)

	err := s.Debts().Delete(context.Background(), "user-1", "d1")
	var remoteErr *model.RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("エラー = %v, want *model.RemoteError", err)
	}
	if remoteErr.Message != "permission denied for table debts" {
		t.Errorf("Message = %q", remoteErr.Message)
	}
}

func TestPostgRESTStore_Profile_DefaultWhenMissing(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/profiles" {
			t.Errorf("パス = %s", r.URL.Path)
		}
		w.Write([]byte(`[]`))
	})
	s := newTestPostgREST(t, handler)

	p, err := s.Profile(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Profile がエラーを返した: %v", err)
	}
	if p.Level != 1 || p.XP != 0 || !p.IsUnlimited() {
		t.Errorf("unexpected profile: %+v", p)
	}
}

func TestPostgRESTStore_Profile_WithSubscription(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"level":3,"xp":120,"subscription_expires_at":"2024-02-01T00:00:00Z"}]`))
	})
	s := newTestPostgREST(t, handler)

	p, err := s.Profile(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Profile がエラーを返した: %v", err)
	}
	if p.Level != 3 || p.SubscriptionExpiresAt == nil {
		t.Errorf("unexpected profile: %+v", p)
	}
}

func TestNotConfigured_NoIO(t *testing.T) {
	var nc NotConfigured
	ctx := context.Background()

	if _, err := nc.SignIn(ctx, "a@example.com", "secret1"); !errors.Is(err, model.ErrNotConfigured) {
		t.Errorf("SignIn error = %v", err)
	}
	if err := nc.Tasks().Insert(ctx, "user-1", model.Task{}); !errors.Is(err, model.ErrNotConfigured) {
		t.Errorf("Insert error = %v", err)
	}
	if _, err := nc.Profile(ctx, "user-1"); !errors.Is(err, model.ErrNotConfigured) {
		t.Errorf("Profile error = %v", err)
	}
	if model.ErrNotConfigured.Error() != "Supabase not configured." {
		t.Errorf("メッセージ = %q", model.ErrNotConfigured.Error())
	}
	nc.OnAuthEvent(func(model.AuthEvent) {})()
}
