package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shelfscan/shelfscan/internal/pipeline"
)

const booksPage = `
<html><body>
<ol class="row">
  <li>
    <article class="product_pod">
      <h3><a href="../../../light-in-the-attic_1000/index.html" title="A Light in the Attic">A Light in the ...</a></h3>
      <p class="star-rating Three"></p>
      <div class="product_price">
        <p class="price_color">£51.77</p>
        <p class="instock availability">
          In stock
        </p>
      </div>
    </article>
  </li>
  <li>
    <article class="product_pod">
      <h3><a href="../../../tipping-the-velvet_999/index.html" title="Tipping the Velvet">Tipping the Velvet</a></h3>
      <p class="star-rating One"></p>
      <div class="product_price">
        <p class="price_color">£53.74</p>
        <p class="instock availability">
          In stock
        </p>
      </div>
    </article>
  </li>
</ol>
</body></html>`

const productsPage = `
<html><body><div class="container">
<div class="row">
  <div class="col-sm-4">
    <div class="thumbnail">
      <div class="caption">
        <h4 class="price">$1099.00</h4>
        <h4><a href="/test-sites/e-commerce/allinone/product/545" class="title" title="Asus ROG Strix G15">Asus ROG Str...</a></h4>
        <p class="description">15.6&quot;, Ryzen 7, 16GB, 512GB SSD</p>
      </div>
      <div class="ratings">
        <p class="review-count">12 reviews</p>
        <p data-rating="4"></p>
      </div>
    </div>
  </div>
  <div class="col-sm-4">
    <div class="thumbnail">
      <div class="caption">
        <h4 class="price">$295.99</h4>
        <h4><a href="/test-sites/e-commerce/allinone/product/31" class="title">Acer Aspire 3</a></h4>
        <p class="description">15.6&quot;, AMD E2, 4GB, 500GB HDD</p>
      </div>
      <div class="ratings">
        <p class="review-count">2 reviews</p>
      </div>
    </div>
  </div>
</div>
</div></body></html>`

func collect(t *testing.T, p pipeline.Parser, body, pageURL string) []pipeline.RawFieldSet {
	t.Helper()
	var out []pipeline.RawFieldSet
	err := p.Parse([]byte(body), pageURL, func(raw pipeline.RawFieldSet) bool {
		out = append(out, raw)
		return true
	})
	require.NoError(t, err)
	return out
}

func TestBooksParserExtractsItems(t *testing.T) {
	t.Parallel()

	pageURL := "http://books.example/catalogue/category/books/travel_2/index.html"
	items := collect(t, BooksParser{}, booksPage, pageURL)
	require.Len(t, items, 2)

	first := items[0]
	require.Equal(t, "A Light in the Attic", first.Fields[FieldTitle])
	require.Equal(t, "£51.77", first.Fields[FieldPrice])
	require.Equal(t, "Three", first.Fields[FieldRating])
	require.Equal(t, "In stock", first.Fields[FieldAvailability])
	require.Equal(t, "travel_2", first.Fields[FieldCategory])
	require.Equal(t, "http://books.example/catalogue/light-in-the-attic_1000/index.html", first.SourceURL)

	require.Equal(t, "Tipping the Velvet", items[1].Fields[FieldTitle])
}

func TestBooksParserMissingAnchorIsParseError(t *testing.T) {
	t.Parallel()

	err := BooksParser{}.Parse([]byte("<html><body><p>redesigned page</p></body></html>"), "http://books.example/", func(pipeline.RawFieldSet) bool {
		t.Fatal("no items expected")
		return false
	})
	var parseErr *pipeline.ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, TypeBooks, parseErr.TargetType)
	require.Equal(t, booksItemSelector, parseErr.Anchor)
}

func TestBooksParserYieldStopsEarly(t *testing.T) {
	t.Parallel()

	var seen int
	err := BooksParser{}.Parse([]byte(booksPage), "http://books.example/", func(pipeline.RawFieldSet) bool {
		seen++
		return false
	})
	require.NoError(t, err)
	require.Equal(t, 1, seen)
}

func TestProductsParserExtractsItems(t *testing.T) {
	t.Parallel()

	pageURL := "https://shop.example/test-sites/e-commerce/allinone"
	items := collect(t, ProductsParser{}, productsPage, pageURL)
	require.Len(t, items, 2)

	first := items[0]
	require.Equal(t, "Asus ROG Strix G15", first.Fields[FieldTitle])
	require.Equal(t, "$1099.00", first.Fields[FieldPrice])
	require.Equal(t, "4", first.Fields[FieldRating])
	require.Equal(t, "allinone", first.Fields[FieldCategory])
	require.Equal(t, `15.6", Ryzen 7, 16GB, 512GB SSD`, first.Fields[FieldDescription])
	require.Equal(t, "https://shop.example/test-sites/e-commerce/allinone/product/545", first.SourceURL)

	// Second card has no title attribute and no rating; partial field
	// sets are still yielded.
	second := items[1]
	require.Equal(t, "Acer Aspire 3", second.Fields[FieldTitle])
	_, hasRating := second.Fields[FieldRating]
	require.False(t, hasRating)
}

func TestProductsParserMissingAnchorIsParseError(t *testing.T) {
	t.Parallel()

	err := ProductsParser{}.Parse([]byte("<html><body></body></html>"), "https://shop.example/", nil)
	var parseErr *pipeline.ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, productsItemSelector, parseErr.Anchor)
}

func TestForType(t *testing.T) {
	t.Parallel()

	for _, typ := range Types() {
		p, err := ForType(typ)
		require.NoError(t, err)
		require.Equal(t, typ, p.Type())
	}
	_, err := ForType("auctions")
	require.Error(t, err)
	require.Contains(t, err.Error(), "auctions")
}
