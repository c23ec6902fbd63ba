package normalize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shelfscan/shelfscan/internal/hash/sha256"
	"github.com/shelfscan/shelfscan/internal/pipeline"
)

func newNormalizer() *Normalizer {
	return New(sha256.New())
}

func rawGatsby() pipeline.RawFieldSet {
	return pipeline.RawFieldSet{
		SourceURL: "http://books.example/catalogue/the-great-gatsby_1/index.html",
		Fields: map[string]string{
			"title":    " The Great Gatsby ",
			"price":    "$12.99",
			"category": "Fiction",
		},
	}
}

func TestNormalizeCanonicalizesFields(t *testing.T) {
	t.Parallel()

	rec, err := newNormalizer().Normalize(rawGatsby())
	require.NoError(t, err)

	require.Equal(t, "The Great Gatsby", rec.Title)
	require.True(t, rec.Price.Equal(decimal.RequireFromString("12.99")), "price = %s", rec.Price)
	require.Equal(t, "USD", rec.Currency)
	require.Equal(t, "Fiction", rec.Category)
	require.NotEmpty(t, rec.Key)
	require.NotEmpty(t, rec.ContentHash)
}

func TestNormalizeKeyStableAcrossIncidentalDifferences(t *testing.T) {
	t.Parallel()

	n := newNormalizer()
	a, err := n.Normalize(rawGatsby())
	require.NoError(t, err)

	messy := rawGatsby()
	messy.Fields["title"] = "THE  GREAT\tGATSBY"
	b, err := n.Normalize(messy)
	require.NoError(t, err)

	require.Equal(t, a.Key, b.Key)
}

func TestNormalizeContentHashChangesWithAnyField(t *testing.T) {
	t.Parallel()

	n := newNormalizer()
	a, err := n.Normalize(rawGatsby())
	require.NoError(t, err)

	same, err := n.Normalize(rawGatsby())
	require.NoError(t, err)
	require.Equal(t, a.ContentHash, same.ContentHash)

	repriced := rawGatsby()
	repriced.Fields["price"] = "$9.99"
	b, err := n.Normalize(repriced)
	require.NoError(t, err)
	require.Equal(t, a.Key, b.Key, "price change must not move the key")
	require.NotEqual(t, a.ContentHash, b.ContentHash)

	recategorized := rawGatsby()
	recategorized.Fields["category"] = "Classics"
	c, err := n.Normalize(recategorized)
	require.NoError(t, err)
	require.NotEqual(t, a.ContentHash, c.ContentHash)
}

func TestNormalizeValidationFailures(t *testing.T) {
	t.Parallel()

	n := newNormalizer()
	cases := []struct {
		name   string
		mutate func(*pipeline.RawFieldSet)
		field  string
	}{
		{"empty title", func(r *pipeline.RawFieldSet) { r.Fields["title"] = "   " }, "title"},
		{"missing title", func(r *pipeline.RawFieldSet) { delete(r.Fields, "title") }, "title"},
		{"missing price", func(r *pipeline.RawFieldSet) { delete(r.Fields, "price") }, "price"},
		{"malformed price", func(r *pipeline.RawFieldSet) { r.Fields["price"] = "twelve dollars" }, "price"},
		{"negative price", func(r *pipeline.RawFieldSet) { r.Fields["price"] = "$-3.50" }, "price"},
		{"missing source url", func(r *pipeline.RawFieldSet) { r.SourceURL = "" }, "source_url"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			raw := rawGatsby()
			tc.mutate(&raw)
			_, err := n.Normalize(raw)
			var valErr *pipeline.ValidationError
			require.ErrorAs(t, err, &valErr)
			require.Equal(t, tc.field, valErr.Field)
		})
	}
}

func TestParsePrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		amount   string
		currency string
	}{
		{"£51.77", "51.77", "GBP"},
		{"$1,099.00", "1099", "USD"},
		{"€7.50", "7.5", "EUR"},
		{"12.99", "12.99", ""},
		{"  $ 12.99 ", "12.99", "USD"},
	}
	for _, tc := range cases {
		amount, currency, err := ParsePrice(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		require.True(t, amount.Equal(decimal.RequireFromString(tc.amount)), "input %q: got %s", tc.in, amount)
		require.Equal(t, tc.currency, currency, "input %q", tc.in)
	}

	_, _, err := ParsePrice("")
	require.Error(t, err)
	_, _, err = ParsePrice("$12..99")
	require.Error(t, err)
}
