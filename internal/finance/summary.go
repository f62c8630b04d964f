package finance

import (
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/planify/internal/model"
	"github.com/shopspring/decimal"
)

// DefaultPerPage は取引一覧の1ページあたりの件数。
const DefaultPerPage = 5

// DefaultTrendDays は支出推移の日数。
const DefaultTrendDays = 7

// Summary は期間内の収支。
type Summary struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`
}

// MonthlySummary は now と同じ月の収入・支出・差引を返す。
func MonthlySummary(transactions []model.Transaction, now time.Time) Summary {
	month := now.Format("2006-01")
	s := Summary{Income: decimal.Zero, Expense: decimal.Zero}
	for _, t := range transactions {
		if !strings.HasPrefix(t.Date, month) {
			continue
		}
		if t.Type == model.TransactionIncome {
			s.Income = s.Income.Add(t.Amount.Abs())
		} else {
			s.Expense = s.Expense.Add(t.Amount.Abs())
		}
	}
	s.Balance = s.Income.Sub(s.Expense)
	return s
}

// DailyAmount は1日分の集計値。
type DailyAmount struct {
	Date   string          `json:"date"`
	Day    int             `json:"day"`
	Amount decimal.Decimal `json:"amount"`
}

// ExpenseTrend は now を含む直近 days 日の日別支出を古い順に返す。
func ExpenseTrend(transactions []model.Transaction, now time.Time, days int) []DailyAmount {
	if days <= 0 {
		days = DefaultTrendDays
	}
	totals := make(map[string]decimal.Decimal)
	for _, t := range transactions {
		if t.Type == model.TransactionExpense {
			totals[t.Date] = totals[t.Date].Add(t.Amount.Abs())
		}
	}

	out := make([]DailyAmount, 0, days)
	for i := days - 1; i >= 0; i-- {
		d := now.AddDate(0, 0, -i)
		key := model.FormatDate(d)
		out = append(out, DailyAmount{Date: key, Day: d.Day(), Amount: totals[key]})
	}
	return out
}

// Page はページ分割の結果。
type Page struct {
	Items      []model.Transaction `json:"items"`
	Page       int                 `json:"page"`
	TotalPages int                 `json:"total_pages"`
	Total      int                 `json:"total"`
}

// Paginate は1始まりの page 番目を返す。範囲外のページは最も近い有効ページに丸める。
func Paginate(transactions []model.Transaction, page, perPage int) Page {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	total := len(transactions)
	totalPages := (total + perPage - 1) / perPage
	if page < 1 {
		page = 1
	}
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}

	start := (page - 1) * perPage
	end := start + perPage
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	return Page{
		Items:      append([]model.Transaction{}, transactions[start:end]...),
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	}
}

// SortDebtsByRemaining は完済に近い順（残債の少ない順）に並べたコピーを返す。
func SortDebtsByRemaining(debts []model.Debt) []model.Debt {
	out := append([]model.Debt{}, debts...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Remaining().LessThan(out[j].Remaining())
	})
	return out
}
