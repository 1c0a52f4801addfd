// Package export writes per-batch ROC-AUC tables to disk.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/TobiSchelling/activelabel/internal/experiment"
)

// WriteCSV writes one row per training-set size with a column per strategy,
// e.g. train_size,random,uncertainty. A strategy without a score at that
// size leaves its cell empty.
func WriteCSV(w io.Writer, strategies []string, table []experiment.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"train_size"}, strategies...)); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, row := range table {
		rec := make([]string, 0, len(strategies)+1)
		rec = append(rec, strconv.Itoa(row.TrainSize))
		for _, s := range strategies {
			auc, ok := row.AUC[s]
			if !ok {
				rec = append(rec, "")
				continue
			}
			rec = append(rec, strconv.FormatFloat(auc, 'f', 6, 64))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing row %d: %w", row.TrainSize, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ResultRow is the long-format Parquet schema.
type ResultRow struct {
	RunID     string  `parquet:"run_id"`
	Strategy  string  `parquet:"strategy"`
	Round     int32   `parquet:"round"`
	TrainSize int32   `parquet:"train_size"`
	ROCAUC    float64 `parquet:"roc_auc"`
}

// WriteParquet writes every record as one row.
func WriteParquet(path, runID string, records []experiment.Record) error {
	rows := make([]ResultRow, len(records))
	for i, r := range records {
		rows[i] = ResultRow{
			RunID:     runID,
			Strategy:  r.Strategy,
			Round:     int32(r.Round),
			TrainSize: int32(r.TrainSize),
			ROCAUC:    r.ROCAUC,
		}
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("writing parquet %s: %w", path, err)
	}
	return nil
}

// WriteFiles writes <dir>/<base>_results.<ext> for each format and returns
// the paths written.
func WriteFiles(dir, base, runID string, res *experiment.Result, formats []string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	var paths []string
	for _, format := range formats {
		path := filepath.Join(dir, base+"_results."+format)
		switch format {
		case "csv":
			f, err := os.Create(path)
			if err != nil {
				return paths, fmt.Errorf("creating %s: %w", path, err)
			}
			err = WriteCSV(f, res.Strategies, res.Table())
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return paths, fmt.Errorf("writing %s: %w", path, err)
			}
		case "parquet":
			if err := WriteParquet(path, runID, res.Records); err != nil {
				return paths, err
			}
		default:
			return paths, fmt.Errorf("unknown export format %q", format)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
