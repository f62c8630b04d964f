package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TransactionType は取引の種別。金額の符号は種別で表す。
type TransactionType string

// 取引種別の定義
const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// 支出カテゴリ
const (
	CategoryFood          = "food"
	CategoryTransport     = "transport"
	CategoryBills         = "bills"
	CategoryShopping      = "shopping"
	CategoryHealth        = "health"
	CategoryEntertainment = "entertainment"
	CategoryEducation     = "education"
	CategoryOther         = "other"
)

// 収入カテゴリ
const (
	CategorySalary     = "salary"
	CategoryFreelance  = "freelance"
	CategoryGift       = "gift"
	CategoryInvestment = "investment"
)

// ExpenseCategories は支出として選択可能なカテゴリ。
var ExpenseCategories = []string{
	CategoryFood, CategoryTransport, CategoryBills, CategoryShopping,
	CategoryHealth, CategoryEntertainment, CategoryEducation, CategoryOther,
}

// IncomeCategories は収入として選択可能なカテゴリ。
var IncomeCategories = []string{
	CategorySalary, CategoryFreelance, CategoryGift, CategoryInvestment, CategoryOther,
}

// Transaction は家計簿の1件の取引。Amount は常に正の値で保持する。
type Transaction struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Amount   decimal.Decimal `json:"amount"`
	Type     TransactionType `json:"type"`
	Category string          `json:"category"`
	Date     string          `json:"date"`
}

// Validate は取引の不変条件を検証する。
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return &ValidationError{Field: "title", Reason: "empty"}
	}
	if !t.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if t.Type != TransactionIncome && t.Type != TransactionExpense {
		return &ValidationError{Field: "type", Reason: "unknown type " + string(t.Type)}
	}
	if !ValidDate(t.Date) {
		return &ValidationError{Field: "date", Reason: "not an ISO day: " + t.Date}
	}
	return nil
}

// Signed は収入を正、支出を負とした金額を返す。
func (t *Transaction) Signed() decimal.Decimal {
	if t.Type == TransactionExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// TransactionPatch は取引の部分更新。
type TransactionPatch struct {
	Title    *string          `json:"title,omitempty"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Type     *TransactionType `json:"type,omitempty"`
	Category *string          `json:"category,omitempty"`
	Date     *string          `json:"date,omitempty"`
}

// Apply はパッチを取引にマージする。負の金額は絶対値に揃える。
func (p TransactionPatch) Apply(t *Transaction) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Amount != nil {
		t.Amount = p.Amount.Abs()
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
}

// SavingGoal は貯蓄目標。CurrentAmount が TargetAmount を超えても表示上は100%。
type SavingGoal struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Deadline      *string         `json:"deadline,omitempty"`
	Color         string          `json:"color,omitempty"`
}

// Validate は目標の不変条件を検証する。
func (g *SavingGoal) Validate() error {
	if strings.TrimSpace(g.Title) == "" {
		return &ValidationError{Field: "title", Reason: "empty"}
	}
	if !g.TargetAmount.IsPositive() {
		return &ValidationError{Field: "target_amount", Reason: "must be positive"}
	}
	if g.CurrentAmount.IsNegative() {
		return &ValidationError{Field: "current_amount", Reason: "must not be negative"}
	}
	if g.Deadline != nil && !ValidDate(*g.Deadline) {
		return &ValidationError{Field: "deadline", Reason: "not an ISO day: " + *g.Deadline}
	}
	return nil
}

// Percent は達成率（0〜100）を返す。
func (g *SavingGoal) Percent() int {
	if !g.TargetAmount.IsPositive() {
		return 0
	}
	p := g.CurrentAmount.Div(g.TargetAmount).Mul(decimal.NewFromInt(100)).IntPart()
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return int(p)
}

// IsCompleted は目標額に到達したかどうかを返す。
func (g *SavingGoal) IsCompleted() bool {
	return g.CurrentAmount.GreaterThanOrEqual(g.TargetAmount)
}

// GoalPatch は目標の部分更新。
type GoalPatch struct {
	Title         *string          `json:"title,omitempty"`
	TargetAmount  *decimal.Decimal `json:"target_amount,omitempty"`
	CurrentAmount *decimal.Decimal `json:"current_amount,omitempty"`
	Deadline      *string          `json:"deadline,omitempty"`
	Color         *string          `json:"color,omitempty"`
}

// Apply はパッチを目標にマージする。
func (p GoalPatch) Apply(g *SavingGoal) {
	if p.Title != nil {
		g.Title = *p.Title
	}
	if p.TargetAmount != nil {
		g.TargetAmount = *p.TargetAmount
	}
	if p.CurrentAmount != nil {
		g.CurrentAmount = *p.CurrentAmount
	}
	if p.Deadline != nil {
		d := *p.Deadline
		g.Deadline = &d
	}
	if p.Color != nil {
		g.Color = *p.Color
	}
}

// Debt は借入。PaidAmount は常に [0, TotalAmount] に収める。
type Debt struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	InterestRate decimal.Decimal `json:"interest_rate"`
}

// Validate は借入の不変条件を検証する。
func (d *Debt) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return &ValidationError{Field: "title", Reason: "empty"}
	}
	if !d.TotalAmount.IsPositive() {
		return &ValidationError{Field: "total_amount", Reason: "must be positive"}
	}
	if d.PaidAmount.IsNegative() || d.PaidAmount.GreaterThan(d.TotalAmount) {
		return &ValidationError{Field: "paid_amount", Reason: "out of range"}
	}
	if d.InterestRate.IsNegative() {
		return &ValidationError{Field: "interest_rate", Reason: "must not be negative"}
	}
	return nil
}

// Remaining は残債を返す。
func (d *Debt) Remaining() decimal.Decimal {
	return d.TotalAmount.Sub(d.PaidAmount)
}

// Progress は返済率（0〜100）を返す。
func (d *Debt) Progress() int {
	if !d.TotalAmount.IsPositive() {
		return 0
	}
	return int(d.PaidAmount.Div(d.TotalAmount).Mul(decimal.NewFromInt(100)).IntPart())
}

// ClampPaid は PaidAmount を [0, TotalAmount] に収める。
func (d *Debt) ClampPaid() {
	if d.PaidAmount.IsNegative() {
		d.PaidAmount = decimal.Zero
	}
	if d.PaidAmount.GreaterThan(d.TotalAmount) {
		d.PaidAmount = d.TotalAmount
	}
}

// ApplyPayment は返済額を加算し、実際に充当された額を返す。
// 残債を超えた分は切り捨てる。
func (d *Debt) ApplyPayment(amount decimal.Decimal) decimal.Decimal {
	before := d.PaidAmount
	d.PaidAmount = d.PaidAmount.Add(amount.Abs())
	d.ClampPaid()
	return d.PaidAmount.Sub(before)
}

// DebtPatch は借入の部分更新。
type DebtPatch struct {
	Title        *string          `json:"title,omitempty"`
	TotalAmount  *decimal.Decimal `json:"total_amount,omitempty"`
	PaidAmount   *decimal.Decimal `json:"paid_amount,omitempty"`
	InterestRate *decimal.Decimal `json:"interest_rate,omitempty"`
}

// Apply はパッチを借入にマージし、返済額をクランプする。
func (p DebtPatch) Apply(d *Debt) {
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.TotalAmount != nil {
		d.TotalAmount = *p.TotalAmount
	}
	if p.PaidAmount != nil {
		d.PaidAmount = *p.PaidAmount
	}
	if p.InterestRate != nil {
		d.InterestRate = *p.InterestRate
	}
	d.ClampPaid()
}
