package textutil

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var inrPrinter = message.NewPrinter(language.MustParse("en-IN"))

// FormatINR renders a whole-rupee amount with locale grouping, e.g. ₹1,298.
func FormatINR(amount int64) string {
	return inrPrinter.Sprintf("₹%d", amount)
}
