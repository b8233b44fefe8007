package extract

import (
	"regexp"
	"strconv"

	"github.com/jimbolo/convtrack/pkg/models"
)

var (
	orderIDPattern  = regexp.MustCompile(`(?i)(?:order|transaction)[\s#:]*([a-z0-9\-_]+)`)
	pricePattern    = regexp.MustCompile(`\$?(\d+(?:\.\d{2})?)`)
	currencyPattern = regexp.MustCompile(`[A-Z]{3}`)
)

// FromFreeText extracts purchase fields from unstructured text using the
// first order label token, the first price-like number and the first run of
// three uppercase letters. The result is not checked for completeness.
func FromFreeText(text string) *models.PurchaseData {
	data := &models.PurchaseData{}
	if m := orderIDPattern.FindStringSubmatch(text); m != nil {
		data.OrderID = m[1]
	}
	if m := pricePattern.FindStringSubmatch(text); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			data.Value = &f
		}
	}
	if m := currencyPattern.FindString(text); m != "" {
		data.Currency = m
	}
	return data
}
