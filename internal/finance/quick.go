// Package finance は家計簿の入力補助・集計・エクスポートを提供する。
package finance

import (
	"regexp"
	"strings"

	"github.com/hitoshi/planify/internal/model"
	"github.com/shopspring/decimal"
)

var amountPattern = regexp.MustCompile(`[\d\.\,]+`)

// categoryKeywords はタイトルに含まれるキーワードとカテゴリの対応。先頭から評価する。
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{model.CategoryTransport, []string{"taxi", "yandex", "bus", "metro"}},
	{model.CategoryFood, []string{"osh", "non", "lunch", "ovqat", "coffee", "tushlik"}},
	{model.CategoryBills, []string{"payme", "click", "internet", "telefon"}},
}

// ParseQuickExpense は「45000 tushlik」のような一行入力を支出に変換する。
// 最初の数値を金額（","は小数点として扱う）、残りをタイトルとする。
// 数値が無い場合は model.ErrNoAmount を返す。IDは付与しない。
func ParseQuickExpense(text string, lang model.Language, today string) (model.Transaction, error) {
	text = strings.TrimSpace(text)

	var (
		amount decimal.Decimal
		loc    []int
	)
	for _, m := range amountPattern.FindAllStringIndex(text, -1) {
		v, err := decimal.NewFromString(strings.ReplaceAll(text[m[0]:m[1]], ",", "."))
		if err == nil && !v.IsZero() {
			amount, loc = v, m
			break
		}
	}
	if loc == nil {
		return model.Transaction{}, model.ErrNoAmount
	}

	title := strings.Join(strings.Fields(text[:loc[0]]+" "+text[loc[1]:]), " ")
	if title == "" {
		title = lang.Pick("Xarajat", "Расход")
	}

	return model.Transaction{
		Title:    title,
		Amount:   amount.Abs(),
		Type:     model.TransactionExpense,
		Category: CategorizeTitle(title),
		Date:     today,
	}, nil
}

// CategorizeTitle はキーワードからカテゴリを推定する。該当なしは other。
func CategorizeTitle(title string) string {
	lower := strings.ToLower(title)
	for _, ck := range categoryKeywords {
		for _, k := range ck.keywords {
			if strings.Contains(lower, k) {
				return ck.category
			}
		}
	}
	return model.CategoryOther
}
