package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/planify/internal/finance"
	"github.com/hitoshi/planify/internal/model"
	"github.com/hitoshi/planify/internal/store"
	"github.com/shopspring/decimal"
)

// FinanceServiceInterface は家計ハンドラーが必要とするサービスインターフェース。
type FinanceServiceInterface interface {
	Transactions() []model.Transaction
	AddTransaction(ctx context.Context, t model.Transaction) (model.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, patch model.TransactionPatch) (model.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	QuickExpense(ctx context.Context, text string, lang model.Language) (model.Transaction, error)

	Goals() []model.SavingGoal
	AddGoal(ctx context.Context, g model.SavingGoal) (model.SavingGoal, error)
	UpdateGoal(ctx context.Context, id string, patch model.GoalPatch) (model.SavingGoal, error)
	DeleteGoal(ctx context.Context, id string) error
	DepositToGoal(ctx context.Context, id string, amount decimal.Decimal) (store.DepositResult[model.SavingGoal], error)

	Debts() []model.Debt
	AddDebt(ctx context.Context, d model.Debt) (model.Debt, error)
	UpdateDebt(ctx context.Context, id string, patch model.DebtPatch) (model.Debt, error)
	DeleteDebt(ctx context.Context, id string) error
	PayDebt(ctx context.Context, id string, amount decimal.Decimal) (store.DepositResult[model.Debt], error)

	Now() time.Time
}

// FinanceHandler は取引・貯蓄目標・借入のHTTPハンドラー。
type FinanceHandler struct {
	service FinanceServiceInterface
}

// NewFinanceHandler はFinanceHandlerを生成する。
func NewFinanceHandler(service FinanceServiceInterface) *FinanceHandler {
	return &FinanceHandler{service: service}
}

type quickExpenseRequest struct {
	Text string `json:"text"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// summaryResponse は家計サマリーのAPIレスポンス。
type summaryResponse struct {
	Month finance.Summary       `json:"month"`
	Trend []finance.DailyAmount `json:"trend"`
}

// ListTransactions はページ分割した取引一覧を返す。
// GET /api/finance/transactions?page=1&per_page=5
func (h *FinanceHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(w, r, "page", 1)
	if !ok {
		return
	}
	perPage, ok := queryInt(w, r, "per_page", finance.DefaultPerPage)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, finance.Paginate(h.service.Transactions(), page, perPage))
}

// CreateTransaction は取引を追加する。
// POST /api/finance/transactions
func (h *FinanceHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req model.Transaction
	if !decodeJSON(w, r, &req) {
		return
	}

	tx, err := h.service.AddTransaction(r.Context(), req)
	writeMutation(w, r, http.StatusCreated, tx, err)
}

// UpdateTransaction は取引を部分更新する。
// PATCH /api/finance/transactions/{id}
func (h *FinanceHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var patch model.TransactionPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	tx, err := h.service.UpdateTransaction(r.Context(), chi.URLParam(r, "id"), patch)
	writeMutation(w, r, http.StatusOK, tx, err)
}

// DeleteTransaction は取引を削除する。
// DELETE /api/finance/transactions/{id}
func (h *FinanceHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	writeDeletion(w, r, h.service.DeleteTransaction(r.Context(), chi.URLParam(r, "id")))
}

// QuickExpense は「taxi 25000」のような一行入力から支出を記録する。
// POST /api/finance/quick
func (h *FinanceHandler) QuickExpense(w http.ResponseWriter, r *http.Request) {
	var req quickExpenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tx, err := h.service.QuickExpense(r.Context(), req.Text, langOf(r))
	writeMutation(w, r, http.StatusCreated, tx, err)
}

// Summary は今月の収支と直近7日の支出推移を返す。
// GET /api/finance/summary
func (h *FinanceHandler) Summary(w http.ResponseWriter, r *http.Request) {
	txs := h.service.Transactions()
	now := h.service.Now()

	writeJSON(w, http.StatusOK, summaryResponse{
		Month: finance.MonthlySummary(txs, now),
		Trend: finance.ExpenseTrend(txs, now, finance.DefaultTrendDays),
	})
}

// Export は全取引をCSVとしてダウンロードさせる。
// GET /api/finance/export.csv
func (h *FinanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	name := finance.ExportFileName(model.FormatDate(h.service.Now()))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if err := finance.ExportCSV(w, h.service.Transactions()); err != nil {
		// ヘッダー送信後のためステータスは変更できない
		slog.Error("failed to write csv export", slog.String("error", err.Error()))
	}
}

// ListGoals は貯蓄目標の一覧を返す。
// GET /api/finance/goals
func (h *FinanceHandler) ListGoals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Goals())
}

// CreateGoal は貯蓄目標を追加する。
// POST /api/finance/goals
func (h *FinanceHandler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req model.SavingGoal
	if !decodeJSON(w, r, &req) {
		return
	}

	goal, err := h.service.AddGoal(r.Context(), req)
	writeMutation(w, r, http.StatusCreated, goal, err)
}

// UpdateGoal は貯蓄目標を部分更新する。
// PATCH /api/finance/goals/{id}
func (h *FinanceHandler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	var patch model.GoalPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	goal, err := h.service.UpdateGoal(r.Context(), chi.URLParam(r, "id"), patch)
	writeMutation(w, r, http.StatusOK, goal, err)
}

// DeleteGoal は貯蓄目標を削除する。
// DELETE /api/finance/goals/{id}
func (h *FinanceHandler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	writeDeletion(w, r, h.service.DeleteGoal(r.Context(), chi.URLParam(r, "id")))
}

// Deposit は貯蓄目標に入金し、同額の支出を記録する。
// POST /api/finance/goals/{id}/deposit
func (h *FinanceHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.DepositToGoal(r.Context(), chi.URLParam(r, "id"), req.Amount)
	writeMutation(w, r, http.StatusOK, result, err)
}

// ListDebts は完済に近い順に借入を返す。
// GET /api/finance/debts
func (h *FinanceHandler) ListDebts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, finance.SortDebtsByRemaining(h.service.Debts()))
}

// CreateDebt は借入を追加する。
// POST /api/finance/debts
func (h *FinanceHandler) CreateDebt(w http.ResponseWriter, r *http.Request) {
	var req model.Debt
	if !decodeJSON(w, r, &req) {
		return
	}

	debt, err := h.service.AddDebt(r.Context(), req)
	writeMutation(w, r, http.StatusCreated, debt, err)
}

// UpdateDebt は借入を部分更新する。
// PATCH /api/finance/debts/{id}
func (h *FinanceHandler) UpdateDebt(w http.ResponseWriter, r *http.Request) {
	var patch model.DebtPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	debt, err := h.service.UpdateDebt(r.Context(), chi.URLParam(r, "id"), patch)
	writeMutation(w, r, http.StatusOK, debt, err)
}

// DeleteDebt は借入を削除する。
// DELETE /api/finance/debts/{id}
func (h *FinanceHandler) DeleteDebt(w http.ResponseWriter, r *http.Request) {
	writeDeletion(w, r, h.service.DeleteDebt(r.Context(), chi.URLParam(r, "id")))
}

// PayDebt は借入を返済し、実際に充当された額を支出として記録する。
// POST /api/finance/debts/{id}/pay
func (h *FinanceHandler) PayDebt(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.PayDebt(r.Context(), chi.URLParam(r, "id"), req.Amount)
	writeMutation(w, r, http.StatusOK, result, err)
}

// writeDeletion は削除操作の結果を書き込む。成功時は204。
func writeDeletion(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeMutation(w, r, http.StatusNoContent, nil, err)
}

// queryInt は整数のクエリパラメータを読み取る。不正な値の場合は400を書き込みfalseを返す。
func queryInt(w http.ResponseWriter, r *http.Request, key string, fallback int) (int, bool) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(langOf(r), key))
		return 0, false
	}
	return n, true
}
