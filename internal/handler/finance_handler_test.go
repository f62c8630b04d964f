package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/planify/internal/finance"
	"github.com/hitoshi/planify/internal/model"
	"github.com/hitoshi/planify/internal/store"
	"github.com/shopspring/decimal"
)

func sampleTransactions(n int) []model.Transaction {
	txs := make([]model.Transaction, 0, n)
	for i := 0; i < n; i++ {
		txs = append(txs, model.Transaction{
			ID:       fmt.Sprintf("tx-%d", i),
			Title:    "Lunch",
			Amount:   decimal.NewFromInt(int64(1000 * (i + 1))),
			Type:     model.TransactionExpense,
			Category: model.CategoryFood,
			Date:     "2024-03-10",
		})
	}
	return txs
}

func TestFinanceHandler_ListTransactions_Paginates(t *testing.T) {
	h := NewFinanceHandler(&mockStore{transactions: sampleTransactions(7)})

	w := httptest.NewRecorder()
	h.ListTransactions(w, httptest.NewRequest(http.MethodGet, "/api/finance/transactions?page=2", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	page := decodeBody[finance.Page](t, w)
	if page.Page != 2 || page.TotalPages != 2 || page.Total != 7 || len(page.Items) != 2 {
		t.Errorf("page = %+v", page)
	}
	if page.Items[0].ID != "tx-5" {
		t.Errorf("first item = %s, want tx-5", page.Items[0].ID)
	}
}

func TestFinanceHandler_ListTransactions_InvalidPage(t *testing.T) {
	h := NewFinanceHandler(&mockStore{})

	w := httptest.NewRecorder()
	h.ListTransactions(w, httptest.NewRequest(http.MethodGet, "/api/finance/transactions?page=two", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestFinanceHandler_QuickExpense(t *testing.T) {
	t.Run("成功", func(t *testing.T) {
		var gotText string
		var gotLang model.Language
		ms := &mockStore{quickExpenseFn: func(_ context.Context, text string, lang model.Language) (model.Transaction, error) {
			gotText, gotLang = text, lang
			return model.Transaction{ID: "q1", Title: "taxi", Amount: decimal.NewFromInt(25000), Category: model.CategoryTransport}, nil
		}}
		h := NewFinanceHandler(ms)

		w := httptest.NewRecorder()
		req := withLanguage(jsonRequest(t, http.MethodPost, "/api/finance/quick", quickExpenseRequest{Text: "taxi 25000"}), model.LanguageRu)
		h.QuickExpense(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201", w.Code)
		}
		if gotText != "taxi 25000" || gotLang != model.LanguageRu {
			t.Errorf("QuickExpense(%q, %s)", gotText, gotLang)
		}
	})

	t.Run("金額なし", func(t *testing.T) {
		ms := &mockStore{quickExpenseFn: func(context.Context, string, model.Language) (model.Transaction, error) {
			return model.Transaction{}, fmt.Errorf("failed to parse quick expense: %w", model.ErrNoAmount)
		}}
		h := NewFinanceHandler(ms)

		w := httptest.NewRecorder()
		h.QuickExpense(w, jsonRequest(t, http.MethodPost, "/api/finance/quick", quickExpenseRequest{Text: "taxi"}))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeNoAmount {
			t.Errorf("code = %s", body.Code)
		}
	})
}

func TestFinanceHandler_Summary(t *testing.T) {
	txs := []model.Transaction{
		{ID: "1", Title: "Salary", Amount: decimal.NewFromInt(5000000), Type: model.TransactionIncome, Date: "2024-03-01"},
		{ID: "2", Title: "Lunch", Amount: decimal.NewFromInt(40000), Type: model.TransactionExpense, Date: "2024-03-10"},
		{ID: "3", Title: "Old", Amount: decimal.NewFromInt(99), Type: model.TransactionExpense, Date: "2024-02-28"},
	}
	h := NewFinanceHandler(&mockStore{transactions: txs})

	w := httptest.NewRecorder()
	h.Summary(w, httptest.NewRequest(http.MethodGet, "/api/finance/summary", nil))

	resp := decodeBody[summaryResponse](t, w)
	if !resp.Month.Income.Equal(decimal.NewFromInt(5000000)) || !resp.Month.Expense.Equal(decimal.NewFromInt(40000)) {
		t.Errorf("month = %+v", resp.Month)
	}
	if len(resp.Trend) != finance.DefaultTrendDays {
		t.Fatalf("trend = %d days", len(resp.Trend))
	}
	if last := resp.Trend[len(resp.Trend)-1]; last.Date != "2024-03-10" || !last.Amount.Equal(decimal.NewFromInt(40000)) {
		t.Errorf("today = %+v", last)
	}
}

func TestFinanceHandler_Export(t *testing.T) {
	h := NewFinanceHandler(&mockStore{transactions: sampleTransactions(2)})

	w := httptest.NewRecorder()
	h.Export(w, httptest.NewRequest(http.MethodGet, "/api/finance/export.csv", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="Planify_Finance_2024-03-10.csv"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv") {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 3 || lines[0] != "ID,Sana,Nomi,Kategoriya,Turi,Summa" {
		t.Errorf("csv = %q", w.Body.String())
	}
}

func TestFinanceHandler_Deposit(t *testing.T) {
	var gotAmount decimal.Decimal
	ms := &mockStore{depositFn: func(_ context.Context, id string, amount decimal.Decimal) (store.DepositResult[model.SavingGoal], error) {
		gotAmount = amount
		tx := model.Transaction{ID: "tx-1", Title: "Saving: Car", Amount: amount, Type: model.TransactionExpense}
		return store.DepositResult[model.SavingGoal]{
			Entity:      model.SavingGoal{ID: id, Title: "Car", CurrentAmount: amount},
			Transaction: &tx,
		}, nil
	}}
	h := NewFinanceHandler(ms)

	req := withChiURLParam(jsonRequest(t, http.MethodPost, "/api/finance/goals/g1/deposit", map[string]string{"amount": "150000"}), "id", "g1")
	w := httptest.NewRecorder()
	h.Deposit(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !gotAmount.Equal(decimal.NewFromInt(150000)) {
		t.Errorf("amount = %s", gotAmount)
	}
	resp := decodeBody[struct {
		Data store.DepositResult[model.SavingGoal] `json:"data"`
	}](t, w)
	if resp.Data.Entity.ID != "g1" || resp.Data.Transaction == nil || resp.Data.Transaction.Title != "Saving: Car" {
		t.Errorf("data = %+v", resp.Data)
	}
}

func TestFinanceHandler_Deposit_PartialPersistFailure(t *testing.T) {
	ms := &mockStore{depositFn: func(_ context.Context, id string, amount decimal.Decimal) (store.DepositResult[model.SavingGoal], error) {
		tx := model.Transaction{ID: "tx-1", Amount: amount}
		return store.DepositResult[model.SavingGoal]{Entity: model.SavingGoal{ID: id}, Transaction: &tx},
			errors.Join(nil, persistFailure(store.KindTransaction, "tx-1", &model.RemoteError{Message: "timeout"}))
	}}
	h := NewFinanceHandler(ms)

	req := withChiURLParam(jsonRequest(t, http.MethodPost, "/api/finance/goals/g1/deposit", map[string]string{"amount": "100"}), "id", "g1")
	w := httptest.NewRecorder()
	h.Deposit(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}
}

func TestFinanceHandler_PayDebt_NotFound(t *testing.T) {
	ms := &mockStore{payDebtFn: func(_ context.Context, id string, _ decimal.Decimal) (store.DepositResult[model.Debt], error) {
		return store.DepositResult[model.Debt]{}, &model.NotFoundError{Kind: "debt", ID: id}
	}}
	h := NewFinanceHandler(ms)

	req := withChiURLParam(jsonRequest(t, http.MethodPost, "/api/finance/debts/d1/pay", map[string]string{"amount": "100"}), "id", "d1")
	w := httptest.NewRecorder()
	h.PayDebt(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestFinanceHandler_ListDebts_SortedByRemaining(t *testing.T) {
	ms := &mockStore{debts: []model.Debt{
		{ID: "big", TotalAmount: decimal.NewFromInt(1000), PaidAmount: decimal.Zero},
		{ID: "small", TotalAmount: decimal.NewFromInt(100), PaidAmount: decimal.NewFromInt(90)},
	}}
	h := NewFinanceHandler(ms)

	w := httptest.NewRecorder()
	h.ListDebts(w, httptest.NewRequest(http.MethodGet, "/api/finance/debts", nil))

	debts := decodeBody[[]model.Debt](t, w)
	if len(debts) != 2 || debts[0].ID != "small" || debts[1].ID != "big" {
		t.Errorf("完済に近い順に並ぶべき: %+v", debts)
	}
}

func TestFinanceHandler_DeleteTransaction(t *testing.T) {
	var got string
	ms := &mockStore{deleteTransactionFn: func(_ context.Context, id string) error {
		got = id
		return nil
	}}
	h := NewFinanceHandler(ms)

	w := httptest.NewRecorder()
	h.DeleteTransaction(w, withChiURLParam(httptest.NewRequest(http.MethodDelete, "/api/finance/transactions/tx-1", nil), "id", "tx-1"))

	if w.Code != http.StatusNoContent || got != "tx-1" {
		t.Errorf("status = %d, id = %q", w.Code, got)
	}
}
