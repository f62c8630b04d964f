package finance

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/hitoshi/planify/internal/model"
)

// csvHeader はエクスポートのヘッダー行。
var csvHeader = []string{"ID", "Sana", "Nomi", "Kategoriya", "Turi", "Summa"}

// ExportFileName はエクスポートファイル名を返す。
func ExportFileName(today string) string {
	return "Planify_Finance_" + today + ".csv"
}

// ExportCSV は取引を入力順にCSVとして書き出す。
// タイトルは常に引用符で囲み、その他の文字列は区切り文字等を含む場合のみ囲む。金額は囲まない。
func ExportCSV(w io.Writer, transactions []model.Transaction) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(csvHeader, ",") + "\n"); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, t := range transactions {
		fields := []string{
			quoteIfNeeded(t.ID),
			quoteIfNeeded(t.Date),
			quote(t.Title),
			quoteIfNeeded(t.Category),
			quoteIfNeeded(string(t.Type)),
			t.Amount.String(),
		}
		if _, err := bw.WriteString(strings.Join(fields, ",") + "\n"); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, ",\"\r\n") {
		return quote(s)
	}
	return s
}
