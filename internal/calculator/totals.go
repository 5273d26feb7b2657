package calculator

import (
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mmynk/storefront/internal/models"
)

// RecomputeTotals derives line subtotals and the grand total from scratch.
// Callers run it after every mutation; totals are never patched in place.
func RecomputeTotals(lines []models.CartLine) models.CartTotals {
	totals := models.CartTotals{
		Lines: make([]models.LineTotal, 0, len(lines)),
	}
	for _, line := range lines {
		subtotal := line.Subtotal()
		totals.Lines = append(totals.Lines, models.LineTotal{
			ProductID: line.ProductID,
			Subtotal:  subtotal,
		})
		totals.Total += subtotal
	}
	return totals
}

// FormatPrice renders an amount with "." as the thousands separator,
// e.g. 1234567 -> "1.234.567". Display only.
func FormatPrice(amount int64) string {
	return strings.ReplaceAll(humanize.Comma(amount), ",", ".")
}
