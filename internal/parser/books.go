package parser

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shelfscan/shelfscan/internal/pipeline"
)

// TypeBooks tags the bookstore-catalogue target variant.
const TypeBooks = "books"

const booksItemSelector = "article.product_pod"

// BooksParser extracts book listings from catalogue pages laid out as
// a grid of product_pod articles (books.toscrape.com markup).
type BooksParser struct{}

// Type returns the target-type tag.
func (BooksParser) Type() string { return TypeBooks }

// Parse walks the catalogue page once, yielding one raw field set per
// book. Zero product_pod matches means the catalogue structure moved
// and is reported as a ParseError.
func (p BooksParser) Parse(body []byte, pageURL string, yield func(pipeline.RawFieldSet) bool) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return &pipeline.ParseError{TargetType: TypeBooks, URL: pageURL, Anchor: "html document"}
	}
	items := doc.Find(booksItemSelector)
	if items.Length() == 0 {
		return &pipeline.ParseError{TargetType: TypeBooks, URL: pageURL, Anchor: booksItemSelector}
	}

	category := pathSegment(pageURL, 2)
	items.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		fields := map[string]string{
			FieldPrice:        strings.TrimSpace(s.Find("p.price_color").Text()),
			FieldAvailability: strings.TrimSpace(s.Find("p.instock.availability").Text()),
			FieldCategory:     category,
		}
		anchor := s.Find("h3 a")
		if title, ok := anchor.Attr("title"); ok {
			fields[FieldTitle] = title
		}
		if rating, ok := s.Find("p.star-rating").Attr("class"); ok {
			fields[FieldRating] = strings.TrimSpace(strings.TrimPrefix(rating, "star-rating"))
		}

		src := pageURL
		if href, ok := anchor.Attr("href"); ok {
			src = resolveRef(pageURL, href)
		}
		return yield(pipeline.RawFieldSet{SourceURL: src, Fields: fields})
	})
	return nil
}
