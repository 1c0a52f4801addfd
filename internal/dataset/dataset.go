package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Column order of the sentiment140 CSV. The file has no header row.
const (
	colTarget = iota
	colID
	colDate
	colFlag
	colUser
	colText
	numColumns
)

// Record is one labeled tweet from the CSV.
type Record struct {
	Target     int // raw polarity: 0 negative, 4 positive
	ExternalID string
	Date       string
	Flag       string
	User       string
	Text       string
	Label      int // 0 negative, 1 positive
}

// ReadOptions controls CSV decoding.
type ReadOptions struct {
	Encoding string // "latin1" (default) or "utf8"
	// SkipUnlabeled drops rows whose target is neither negative nor
	// positive (sentiment140 test data has neutral rows with target 2).
	SkipUnlabeled bool
}

// ErrUnlabeled is returned for rows whose target is not a binary polarity.
var ErrUnlabeled = errors.New("target is not a binary sentiment label")

// LoadFile reads records from a CSV file on disk.
func LoadFile(path string, opts ReadOptions) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, opts)
}

// ReadCSV parses sentiment140-formatted rows:
// target, ids, date, flag, user, text.
func ReadCSV(r io.Reader, opts ReadOptions) ([]Record, error) {
	switch strings.ToLower(opts.Encoding) {
	case "", "latin1":
		r = charmap.ISO8859_1.NewDecoder().Reader(r)
	case "utf8":
	default:
		return nil, fmt.Errorf("unsupported encoding %q", opts.Encoding)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numColumns
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		line, _ := cr.FieldPos(0)

		rec, err := parseRow(row)
		if errors.Is(err, ErrUnlabeled) && opts.SkipUnlabeled {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string) (Record, error) {
	rec := Record{
		ExternalID: strings.TrimSpace(row[colID]),
		Date:       row[colDate],
		Flag:       row[colFlag],
		User:       row[colUser],
		Text:       row[colText],
	}
	if rec.ExternalID == "" {
		return Record{}, fmt.Errorf("empty tweet id")
	}

	switch strings.TrimSpace(row[colTarget]) {
	case "0":
		rec.Target, rec.Label = 0, 0
	case "1":
		rec.Target, rec.Label = 1, 1
	case "4":
		rec.Target, rec.Label = 4, 1
	default:
		return Record{}, fmt.Errorf("target %q: %w", row[colTarget], ErrUnlabeled)
	}
	return rec, nil
}

// Sample returns n records drawn without replacement using seed. n <= 0 or
// n >= len(records) returns all records in shuffled order.
func Sample(records []Record, n int, seed int64) []Record {
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(records))
	if n <= 0 || n > len(records) {
		n = len(records)
	}
	out := make([]Record, n)
	for i := 0; i < n; i++ {
		out[i] = records[perm[i]]
	}
	return out
}

// Split shuffles records with seed and holds out testFraction of them.
// A non-zero fraction always holds out at least one record and leaves at
// least one for training.
func Split(records []Record, testFraction float64, seed int64) (train, test []Record, err error) {
	if testFraction < 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in [0, 1), got %v", testFraction)
	}

	shuffled := Sample(records, 0, seed)
	nTest := int(math.Round(float64(len(shuffled)) * testFraction))
	if testFraction > 0 && nTest == 0 && len(shuffled) > 1 {
		nTest = 1
	}
	if nTest >= len(shuffled) && len(shuffled) > 0 {
		nTest = len(shuffled) - 1
	}

	return shuffled[nTest:], shuffled[:nTest], nil
}

// LabelCounts returns the number of negative and positive records.
func LabelCounts(records []Record) (negative, positive int) {
	for _, r := range records {
		if r.Label == 1 {
			positive++
		} else {
			negative++
		}
	}
	return negative, positive
}
