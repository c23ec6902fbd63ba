// Package parser holds the per-target page parsers. Each target type
// has its own selector set; all variants extract raw field sets in a
// single pass over the page and leave validation to the normalizer.
package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shelfscan/shelfscan/internal/pipeline"
)

// Raw field names emitted by the parser variants.
const (
	FieldTitle        = "title"
	FieldPrice        = "price"
	FieldRating       = "rating"
	FieldAvailability = "availability"
	FieldCategory     = "category"
	FieldDescription  = "description"
)

// ForType returns the parser variant for a target-type tag. The set of
// variants is closed; configuration selects among them.
func ForType(targetType string) (pipeline.Parser, error) {
	switch targetType {
	case TypeBooks:
		return BooksParser{}, nil
	case TypeProducts:
		return ProductsParser{}, nil
	default:
		return nil, fmt.Errorf("unknown target type %q", targetType)
	}
}

// Types lists the supported target-type tags.
func Types() []string {
	return []string{TypeBooks, TypeProducts}
}

// pathSegment returns the nth path segment counted from the end
// (1 = last). Used to recover a category label from listing URLs.
func pathSegment(rawURL string, fromEnd int) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) < fromEnd {
		return ""
	}
	return segs[len(segs)-fromEnd]
}

// resolveRef resolves a possibly relative href against the page URL.
func resolveRef(pageURL, href string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
