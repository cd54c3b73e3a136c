package ledger

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rongwang/salary-bot/internal/models"
)

// Format renders a snapshot as a Markdown message body
func Format(s *models.SalarySnapshot) string {
	lines := []string{
		fmt.Sprintf("👤 *Name:* %s", escapeMarkdown(s.Name)),
		fmt.Sprintf("📊 *Share:* %s", escapeMarkdown(s.Share)),
		fmt.Sprintf("💰 *Salary:* %s", GroupThousands(s.Salary)),
		fmt.Sprintf("💸 *Advance:* %s", GroupThousands(s.Advance)),
		fmt.Sprintf("🎁 *Bonus:* %s", GroupThousands(s.Bonus)),
		fmt.Sprintf("⚠️ *Penalty:* %s", GroupThousands(s.Penalty)),
		fmt.Sprintf("➖ *Cover Minus:* %s", GroupThousands(s.CoverMinus)),
		fmt.Sprintf("➕ *Cover Plus:* %s", GroupThousands(s.CoverPlus)),
		fmt.Sprintf("🏦 *TAX:* %s", GroupThousands(s.Tax)),
		fmt.Sprintf("🏁 *Net Remains:* %s", GroupThousands(s.Remains)),
	}
	return strings.Join(lines, "\n")
}

// GroupThousands drops the fractional part of v and groups the digits in
// threes separated by spaces, e.g. 1234567.8 -> "1 234 567".
func GroupThousands(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}

	digits := strconv.FormatInt(int64(v), 10)
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}

	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(c)
	}
	return sign + b.String()
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
