package store

import (
	"context"
	"errors"

	"github.com/hitoshi/planify/internal/finance"
	"github.com/hitoshi/planify/internal/model"
	"github.com/shopspring/decimal"
)

func transactionID(t model.Transaction) string { return t.ID }
func goalID(g model.SavingGoal) string         { return g.ID }
func debtID(d model.Debt) string               { return d.ID }

func cloneGoals(goals []model.SavingGoal) []model.SavingGoal {
	out := make([]model.SavingGoal, len(goals))
	for i, g := range goals {
		out[i] = g
		if g.Deadline != nil {
			d := *g.Deadline
			out[i].Deadline = &d
		}
	}
	return out
}

// Transactions は取引一覧のコピーを返す。
func (s *Store) Transactions() []model.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Transaction{}, s.transactions...)
}

// Transaction はIDに一致する取引を返す。
func (s *Store) Transaction(id string) (model.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.transactions, id, transactionID); i >= 0 {
		return s.transactions[i], true
	}
	return model.Transaction{}, false
}

// Goals は貯蓄目標一覧のコピーを返す。
func (s *Store) Goals() []model.SavingGoal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneGoals(s.goals)
}

// Goal はIDに一致する貯蓄目標を返す。
func (s *Store) Goal(id string) (model.SavingGoal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.goals, id, goalID); i >= 0 {
		return cloneGoals(s.goals[i : i+1])[0], true
	}
	return model.SavingGoal{}, false
}

// Debts は借入一覧のコピーを返す。
func (s *Store) Debts() []model.Debt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Debt{}, s.debts...)
}

// Debt はIDに一致する借入を返す。
func (s *Store) Debt(id string) (model.Debt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.debts, id, debtID); i >= 0 {
		return s.debts[i], true
	}
	return model.Debt{}, false
}

// AddTransaction は取引を追加して永続化する。金額は絶対値で保持する。
func (s *Store) AddTransaction(ctx context.Context, t model.Transaction) (model.Transaction, error) {
	if t.ID == "" {
		t.ID = s.newID()
	}
	t.Amount = t.Amount.Abs()
	if t.Date == "" {
		t.Date = s.today()
	}
	if t.Category == "" {
		t.Category = model.CategoryOther
	}
	if err := t.Validate(); err != nil {
		return model.Transaction{}, err
	}

	userID, gen, err := s.mutate(func() error {
		if indexOf(s.transactions, t.ID, transactionID) >= 0 {
			return &model.ValidationError{Field: "id", Reason: "duplicate"}
		}
		s.transactions = append(s.transactions, t)
		return nil
	})
	if err != nil {
		return model.Transaction{}, err
	}
	s.record(KindTransaction, OpAdd, t.ID)

	return t, persistLatest(s, ctx, KindTransaction, OpAdd, t.ID, userID, gen, s.Transaction, s.remote.Transactions().Insert)
}

// UpdateTransaction は部分更新をマージして永続化する。
func (s *Store) UpdateTransaction(ctx context.Context, id string, patch model.TransactionPatch) (model.Transaction, error) {
	var updated model.Transaction
	userID, gen, err := s.mutate(func() error {
		i := indexOf(s.transactions, id, transactionID)
		if i < 0 {
			return &model.NotFoundError{Kind: string(KindTransaction), ID: id}
		}
		next := s.transactions[i]
		patch.Apply(&next)
		if err := next.Validate(); err != nil {
			return err
		}
		s.transactions[i] = next
		updated = next
		return nil
	})
	if err != nil {
		return model.Transaction{}, err
	}
	s.record(KindTransaction, OpUpdate, id)

	return updated, persistLatest(s, ctx, KindTransaction, OpUpdate, id, userID, gen, s.Transaction, s.remote.Transactions().Update)
}

// DeleteTransaction は取引を削除する。存在しない場合は何もしない。
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	removed := false
	userID, gen, err := s.mutate(func() error {
		if i := indexOf(s.transactions, id, transactionID); i >= 0 {
			s.transactions = removeAt(s.transactions, i)
			removed = true
		}
		return nil
	})
	if err != nil || !removed {
		return err
	}
	s.record(KindTransaction, OpDelete, id)

	return s.persist(ctx, KindTransaction, OpDelete, id, gen, func(ctx context.Context) error {
		return s.remote.Transactions().Delete(ctx, userID, id)
	})
}

// QuickExpense は「45000 tushlik」のような一行入力から支出を記録する。
func (s *Store) QuickExpense(ctx context.Context, text string, lang model.Language) (model.Transaction, error) {
	t, err := finance.ParseQuickExpense(text, lang, s.today())
	if err != nil {
		return model.Transaction{}, err
	}
	return s.AddTransaction(ctx, t)
}

// AddGoal は貯蓄目標を追加して永続化する。
func (s *Store) AddGoal(ctx context.Context, g model.SavingGoal) (model.SavingGoal, error) {
	if g.ID == "" {
		g.ID = s.newID()
	}
	if g.Color == "" {
		g.Color = model.HabitColors[0]
	}
	if err := g.Validate(); err != nil {
		return model.SavingGoal{}, err
	}

	userID, gen, err := s.mutate(func() error {
		if indexOf(s.goals, g.ID, goalID) >= 0 {
			return &model.ValidationError{Field: "id", Reason: "duplicate"}
		}
		s.goals = append(s.goals, cloneGoals([]model.SavingGoal{g})[0])
		return nil
	})
	if err != nil {
		return model.SavingGoal{}, err
	}
	s.record(KindGoal, OpAdd, g.ID)

	return g, persistLatest(s, ctx, KindGoal, OpAdd, g.ID, userID, gen, s.Goal, s.remote.Goals().Insert)
}

// UpdateGoal は部分更新をマージして永続化する。
func (s *Store) UpdateGoal(ctx context.Context, id string, patch model.GoalPatch) (model.SavingGoal, error) {
	return s.updateGoal(ctx, id, OpUpdate, func(g *model.SavingGoal) { patch.Apply(g) })
}

func (s *Store) updateGoal(ctx context.Context, id string, op Op, apply func(*model.SavingGoal)) (model.SavingGoal, error) {
	var updated model.SavingGoal
	userID, gen, err := s.mutate(func() error {
		i := indexOf(s.goals, id, goalID)
		if i < 0 {
			return &model.NotFoundError{Kind: string(KindGoal), ID: id}
		}
		next := cloneGoals(s.goals[i : i+1])[0]
		apply(&next)
		if err := next.Validate(); err != nil {
			return err
		}
		s.goals[i] = next
		updated = cloneGoals([]model.SavingGoal{next})[0]
		return nil
	})
	if err != nil {
		return model.SavingGoal{}, err
	}
	s.record(KindGoal, op, id)

	return updated, persistLatest(s, ctx, KindGoal, op, id, userID, gen, s.Goal, s.remote.Goals().Update)
}

// DeleteGoal は貯蓄目標を削除する。存在しない場合は何もしない。
func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	removed := false
	userID, gen, err := s.mutate(func() error {
		if i := indexOf(s.goals, id, goalID); i >= 0 {
			s.goals = removeAt(s.goals, i)
			removed = true
		}
		return nil
	})
	if err != nil || !removed {
		return err
	}
	s.record(KindGoal, OpDelete, id)

	return s.persist(ctx, KindGoal, OpDelete, id, gen, func(ctx context.Context) error {
		return s.remote.Goals().Delete(ctx, userID, id)
	})
}

// DepositResult は入金・返済操作の結果。
type DepositResult[T any] struct {
	Entity T `json:"entity"`
	// Transaction は記録した支出。充当額が0の場合はnil。
	Transaction *model.Transaction `json:"transaction,omitempty"`
}

// DepositToGoal は目標に入金し、同額を支出「Saving: <目標名>」として記録する。
func (s *Store) DepositToGoal(ctx context.Context, id string, amount decimal.Decimal) (DepositResult[model.SavingGoal], error) {
	if !amount.IsPositive() {
		return DepositResult[model.SavingGoal]{}, &model.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	goal, goalErr := s.updateGoal(ctx, id, OpUpdate, func(g *model.SavingGoal) {
		g.CurrentAmount = g.CurrentAmount.Add(amount)
	})
	var pe *PersistError
	if goalErr != nil && !errors.As(goalErr, &pe) {
		return DepositResult[model.SavingGoal]{}, goalErr
	}

	tx, txErr := s.AddTransaction(ctx, model.Transaction{
		Title:    "Saving: " + goal.Title,
		Amount:   amount,
		Type:     model.TransactionExpense,
		Category: model.CategoryOther,
	})
	result := DepositResult[model.SavingGoal]{Entity: goal}
	if txErr == nil || errors.As(txErr, &pe) {
		result.Transaction = &tx
	}
	return result, errors.Join(goalErr, txErr)
}

// AddDebt は借入を追加して永続化する。
func (s *Store) AddDebt(ctx context.Context, d model.Debt) (model.Debt, error) {
	if d.ID == "" {
		d.ID = s.newID()
	}
	if err := d.Validate(); err != nil {
		return model.Debt{}, err
	}

	userID, gen, err := s.mutate(func() error {
		if indexOf(s.debts, d.ID, debtID) >= 0 {
			return &model.ValidationError{Field: "id", Reason: "duplicate"}
		}
		s.debts = append(s.debts, d)
		return nil
	})
	if err != nil {
		return model.Debt{}, err
	}
	s.record(KindDebt, OpAdd, d.ID)

	return d, persistLatest(s, ctx, KindDebt, OpAdd, d.ID, userID, gen, s.Debt, s.remote.Debts().Insert)
}

// UpdateDebt は部分更新をマージして永続化する。返済額は [0, 総額] に収める。
func (s *Store) UpdateDebt(ctx context.Context, id string, patch model.DebtPatch) (model.Debt, error) {
	d, _, err := s.updateDebt(ctx, id, func(d *model.Debt) decimal.Decimal {
		patch.Apply(d)
		return decimal.Zero
	})
	return d, err
}

func (s *Store) updateDebt(ctx context.Context, id string, apply func(*model.Debt) decimal.Decimal) (model.Debt, decimal.Decimal, error) {
	var (
		updated model.Debt
		applied decimal.Decimal
	)
	userID, gen, err := s.mutate(func() error {
		i := indexOf(s.debts, id, debtID)
		if i < 0 {
			return &model.NotFoundError{Kind: string(KindDebt), ID: id}
		}
		next := s.debts[i]
		applied = apply(&next)
		if err := next.Validate(); err != nil {
			return err
		}
		s.debts[i] = next
		updated = next
		return nil
	})
	if err != nil {
		return model.Debt{}, decimal.Zero, err
	}
	s.record(KindDebt, OpUpdate, id)

	return updated, applied, persistLatest(s, ctx, KindDebt, OpUpdate, id, userID, gen, s.Debt, s.remote.Debts().Update)
}

// PayDebt は返済を記録する。返済額は残債を上限とし、超過分は切り捨てる。
// 実際に充当した額を支出「Debt: <借入名>」として記録する。
func (s *Store) PayDebt(ctx context.Context, id string, amount decimal.Decimal) (DepositResult[model.Debt], error) {
	if !amount.IsPositive() {
		return DepositResult[model.Debt]{}, &model.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	debt, applied, debtErr := s.updateDebt(ctx, id, func(d *model.Debt) decimal.Decimal {
		return d.ApplyPayment(amount)
	})
	var pe *PersistError
	if debtErr != nil && !errors.As(debtErr, &pe) {
		return DepositResult[model.Debt]{}, debtErr
	}

	result := DepositResult[model.Debt]{Entity: debt}
	if !applied.IsPositive() {
		return result, debtErr
	}

	tx, txErr := s.AddTransaction(ctx, model.Transaction{
		Title:    "Debt: " + debt.Title,
		Amount:   applied,
		Type:     model.TransactionExpense,
		Category: model.CategoryBills,
	})
	if txErr == nil || errors.As(txErr, &pe) {
		result.Transaction = &tx
	}
	return result, errors.Join(debtErr, txErr)
}

// DeleteDebt は借入を削除する。存在しない場合は何もしない。
func (s *Store) DeleteDebt(ctx context.Context, id string) error {
	removed := false
	userID, gen, err := s.mutate(func() error {
		if i := indexOf(s.debts, id, debtID); i >= 0 {
			s.debts = removeAt(s.debts, i)
			removed = true
		}
		return nil
	})
	if err != nil || !removed {
		return err
	}
	s.record(KindDebt, OpDelete, id)

	return s.persist(ctx, KindDebt, OpDelete, id, gen, func(ctx context.Context) error {
		return s.remote.Debts().Delete(ctx, userID, id)
	})
}
