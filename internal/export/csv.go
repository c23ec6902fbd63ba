// Package export writes store contents to flat files for offline
// analysis.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/shelfscan/shelfscan/internal/pipeline"
)

var csvHeader = []string{
	"unique_key",
	"title",
	"price",
	"currency",
	"category",
	"rating",
	"availability",
	"description",
	"source_url",
	"content_hash",
	"first_seen",
	"last_updated",
}

// WriteCSV streams every stored record to w as CSV, one row per
// record, preceded by a header row. Returns the number of rows
// written.
func WriteCSV(ctx context.Context, store pipeline.Store, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	rows := 0
	err := store.List(ctx, func(rec pipeline.Record) error {
		if err := cw.Write(csvRow(rec)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
		rows++
		return nil
	})
	if err != nil {
		return rows, fmt.Errorf("export records: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, fmt.Errorf("flush csv: %w", err)
	}
	return rows, nil
}

func csvRow(rec pipeline.Record) []string {
	return []string{
		rec.Key,
		rec.Title,
		rec.Price.String(),
		rec.Currency,
		rec.Category,
		rec.Rating,
		rec.Availability,
		rec.Description,
		rec.SourceURL,
		rec.ContentHash,
		rec.FirstSeen.Format(time.RFC3339),
		rec.LastUpdated.Format(time.RFC3339),
	}
}
