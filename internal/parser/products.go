package parser

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shelfscan/shelfscan/internal/pipeline"
)

// TypeProducts tags the e-commerce demo target variant.
const TypeProducts = "products"

const productsItemSelector = "div.thumbnail"

// ProductsParser extracts product listings from pages laid out as a
// grid of thumbnail cards (webscraper.io test-site markup).
type ProductsParser struct{}

// Type returns the target-type tag.
func (ProductsParser) Type() string { return TypeProducts }

// Parse walks the listing page once, yielding one raw field set per
// product card. Zero thumbnail matches is a ParseError.
func (p ProductsParser) Parse(body []byte, pageURL string, yield func(pipeline.RawFieldSet) bool) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return &pipeline.ParseError{TargetType: TypeProducts, URL: pageURL, Anchor: "html document"}
	}
	items := doc.Find(productsItemSelector)
	if items.Length() == 0 {
		return &pipeline.ParseError{TargetType: TypeProducts, URL: pageURL, Anchor: productsItemSelector}
	}

	category := pathSegment(pageURL, 1)
	items.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		fields := map[string]string{
			FieldPrice:       strings.TrimSpace(s.Find("h4.price").Text()),
			FieldDescription: strings.TrimSpace(s.Find("p.description").Text()),
			FieldCategory:    category,
		}
		anchor := s.Find("a.title")
		// The card truncates long names in the anchor text; the title
		// attribute carries the full name when present.
		if title, ok := anchor.Attr("title"); ok && strings.TrimSpace(title) != "" {
			fields[FieldTitle] = title
		} else {
			fields[FieldTitle] = strings.TrimSpace(anchor.Text())
		}
		if rating, ok := s.Find("p[data-rating]").Attr("data-rating"); ok {
			fields[FieldRating] = rating
		}

		src := pageURL
		if href, ok := anchor.Attr("href"); ok {
			src = resolveRef(pageURL, href)
		}
		return yield(pipeline.RawFieldSet{SourceURL: src, Fields: fields})
	})
	return nil
}
