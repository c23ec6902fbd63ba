// Package normalize converts raw field sets into canonical records:
// cleaning text, coercing prices, and deriving the unique key and
// content hash used for deduplicated storage.
package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shelfscan/shelfscan/internal/parser"
	"github.com/shelfscan/shelfscan/internal/pipeline"
)

// Normalizer implements pipeline.Normalizer.
type Normalizer struct {
	hasher pipeline.Hasher
}

// New builds a Normalizer around the given hasher.
func New(hasher pipeline.Hasher) *Normalizer {
	return &Normalizer{hasher: hasher}
}

// Normalize validates and canonicalizes one raw field set. Title and a
// parseable, non-negative price are required; every other field is
// optional. The unique key depends only on the normalized title and
// source URL, so it is stable across runs regardless of incidental
// whitespace or case drift in the page.
func (n *Normalizer) Normalize(raw pipeline.RawFieldSet) (pipeline.Record, error) {
	title := cleanText(raw.Fields[parser.FieldTitle])
	if title == "" {
		return pipeline.Record{}, &pipeline.ValidationError{Field: parser.FieldTitle, Reason: "missing or empty"}
	}
	if strings.TrimSpace(raw.SourceURL) == "" {
		return pipeline.Record{}, &pipeline.ValidationError{Field: "source_url", Reason: "missing"}
	}

	price, currency, err := ParsePrice(raw.Fields[parser.FieldPrice])
	if err != nil {
		return pipeline.Record{}, &pipeline.ValidationError{Field: parser.FieldPrice, Reason: err.Error()}
	}
	if price.IsNegative() {
		return pipeline.Record{}, &pipeline.ValidationError{Field: parser.FieldPrice, Reason: "negative price"}
	}

	rec := pipeline.Record{
		Title:        title,
		Price:        price,
		Currency:     currency,
		Category:     cleanText(raw.Fields[parser.FieldCategory]),
		Rating:       cleanText(raw.Fields[parser.FieldRating]),
		Availability: cleanText(raw.Fields[parser.FieldAvailability]),
		Description:  cleanText(raw.Fields[parser.FieldDescription]),
		SourceURL:    strings.TrimSpace(raw.SourceURL),
	}

	key, err := n.hasher.Hash([]byte(keyNormalize(rec.Title) + "|" + rec.SourceURL))
	if err != nil {
		return pipeline.Record{}, fmt.Errorf("derive key: %w", err)
	}
	rec.Key = key

	hash, err := n.contentHash(rec)
	if err != nil {
		return pipeline.Record{}, fmt.Errorf("content hash: %w", err)
	}
	rec.ContentHash = hash
	return rec, nil
}

// contentHash digests all canonical field values. Fields are hashed as
// sorted name=value lines, so the digest does not depend on struct
// field order and changes iff any value changes.
func (n *Normalizer) contentHash(rec pipeline.Record) (string, error) {
	fields := map[string]string{
		"availability": rec.Availability,
		"category":     rec.Category,
		"currency":     rec.Currency,
		"description":  rec.Description,
		"price":        rec.Price.String(),
		"rating":       rec.Rating,
		"source_url":   rec.SourceURL,
		"title":        rec.Title,
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(fields[name])
		b.WriteByte('\n')
	}
	return n.hasher.Hash([]byte(b.String()))
}

var currencySymbols = map[string]string{
	"£": "GBP",
	"$": "USD",
	"€": "EUR",
}

// ParsePrice coerces a currency string to a decimal amount plus an ISO
// currency code. Format assumption (en locale): optional leading
// currency symbol, optional comma thousands separators, dot decimal
// separator, e.g. "£51.77" or "$1,099.00".
func ParsePrice(s string) (decimal.Decimal, string, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return decimal.Decimal{}, "", fmt.Errorf("missing price")
	}

	currency := ""
	for symbol, code := range currencySymbols {
		if strings.HasPrefix(cleaned, symbol) {
			currency = code
			cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, symbol))
			break
		}
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, "", fmt.Errorf("malformed price %q", s)
	}
	return amount, currency, nil
}

// keyNormalize lowercases and collapses runs of whitespace so the
// derived key ignores incidental formatting differences.
func keyNormalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// cleanText trims and collapses internal whitespace runs to single
// spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
