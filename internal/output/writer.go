package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gustycube/certwatch/internal/check"
	"github.com/gustycube/certwatch/internal/types"
)

// Format represents the output format
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

// Row is the flattened outcome of one domain
type Row struct {
	Domain         string `json:"domain"`
	Status         string `json:"status"`
	DaysRemaining  *int   `json:"daysRemaining,omitempty"`
	ExpirationDate string `json:"expirationDate,omitempty"`
	ValidFrom      string `json:"validFrom,omitempty"`
	Issuer         string `json:"issuer,omitempty"`
	Error          string `json:"error,omitempty"`
}

// NewRow flattens an outcome
func NewRow(o check.Outcome) Row {
	r := Row{Domain: o.Domain, Status: o.Status.String()}
	if o.Info != nil {
		days := o.Info.DaysRemaining
		r.DaysRemaining = &days
		r.ExpirationDate = o.Info.ExpirationDate
		r.ValidFrom = o.Info.ValidFrom
		r.Issuer = o.Info.Issuer
	}
	if o.Err != nil {
		r.Error = o.Err.Error()
	}
	return r
}

var csvHeader = []string{"domain", "status", "days_remaining", "expiration_date", "valid_from", "issuer", "error"}

// Writer handles formatted output
type Writer struct {
	format    Format
	w         io.Writer
	csvWriter *csv.Writer
	mu        sync.Mutex
	hasHeader bool
}

// NewWriter creates a new output writer
func NewWriter(format string, w io.Writer) (*Writer, error) {
	var f Format
	switch strings.ToLower(format) {
	case "json":
		f = FormatJSON
	case "jsonl", "ndjson":
		f = FormatJSONL
	case "csv":
		f = FormatCSV
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	writer := &Writer{
		format: f,
		w:      w,
	}
	if f == FormatCSV {
		writer.csvWriter = csv.NewWriter(w)
	}
	return writer, nil
}

// NewStdoutWriter creates a writer for stdout
func NewStdoutWriter(format string) (*Writer, error) {
	return NewWriter(format, os.Stdout)
}

// WriteBatch writes every outcome of res. JSON wraps the rows together with
// the summary; JSONL and CSV emit one row per domain.
func (w *Writer) WriteBatch(res *check.BatchResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows := make([]Row, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		rows = append(rows, NewRow(o))
	}

	switch w.format {
	case FormatJSON:
		encoder := json.NewEncoder(w.w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(struct {
			Summary types.Event `json:"summary"`
			Results []Row       `json:"results"`
		}{types.NewSummaryEvent(res.Summary), rows})

	case FormatJSONL:
		encoder := json.NewEncoder(w.w)
		for _, r := range rows {
			if err := encoder.Encode(r); err != nil {
				return err
			}
		}
		return nil

	case FormatCSV:
		return w.writeCSV(rows)

	default:
		return fmt.Errorf("unsupported format: %s", w.format)
	}
}

func (w *Writer) writeCSV(rows []Row) error {
	if !w.hasHeader {
		w.csvWriter.Write(csvHeader)
		w.hasHeader = true
	}
	for _, r := range rows {
		days := ""
		if r.DaysRemaining != nil {
			days = strconv.Itoa(*r.DaysRemaining)
		}
		w.csvWriter.Write([]string{r.Domain, r.Status, days, r.ExpirationDate, r.ValidFrom, r.Issuer, r.Error})
	}
	return w.csvWriter.Error()
}

// Flush flushes any buffered data
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.csvWriter != nil {
		w.csvWriter.Flush()
		return w.csvWriter.Error()
	}
	return nil
}
