// Package activitylog keeps an append-only CSV audit trail of bill builds,
// bill deletions and budget edits.
package activitylog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Action names what happened.
type Action string

const (
	ActionBillBuilt     Action = "bill_built"
	ActionBillDeleted   Action = "bill_deleted"
	ActionBudgetImport  Action = "budget_import"
	ActionBudgetEdit    Action = "budget_edit"
	ActionReportCreated Action = "report_created"
)

// Entry is one row in the activity log.
type Entry struct {
	Timestamp time.Time
	Action    Action
	ProjectID string
	Subject   string // bill id or cost code
	Amount    decimal.NullDecimal
	Details   string
}

// Header is the CSV header for activity-log.csv.
const Header = "timestamp,action,project_id,subject,amount,details"

const (
	numFields    = 6
	logDir       = "logs"
	logFile      = "logs/activity-log.csv"
	colTimestamp = 0
	colAction    = 1
	colProject   = 2
	colSubject   = 3
	colAmount    = 4
	colDetails   = 5
)

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.UTC().Format(time.RFC3339)
	row[colAction] = string(e.Action)
	row[colProject] = e.ProjectID
	row[colSubject] = e.Subject
	if e.Amount.Valid {
		row[colAmount] = e.Amount.Decimal.StringFixed(2)
	}
	row[colDetails] = e.Details
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	var amount decimal.NullDecimal
	if s := record[colAmount]; s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Entry{}, fmt.Errorf("parsing amount %q: %w", s, err)
		}
		amount = decimal.NewNullDecimal(d)
	}

	return Entry{
		Timestamp: ts,
		Action:    Action(record[colAction]),
		ProjectID: record[colProject],
		Subject:   record[colSubject],
		Amount:    amount,
		Details:   record[colDetails],
	}, nil
}

// Append adds entries to <root>/logs/activity-log.csv. The header is
// written when the file is created.
func Append(root string, entries ...Entry) error {
	if err := os.MkdirAll(filepath.Join(root, logDir), 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(root, logFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening activity log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat activity log: %w", err)
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		_ = cw.Write(strings.Split(Header, ","))
	}
	for _, e := range entries {
		_ = cw.Write(MarshalEntry(e))
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("writing activity log: %w", err)
	}
	return f.Close()
}

// Read returns every entry of <root>/logs/activity-log.csv, oldest first. A
// missing log reads as empty.
func Read(root string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(root, logFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields
	cr.ReuseRecord = true

	var entries []Entry
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading activity log: %w", err)
		}
		if line == 1 {
			continue
		}
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
}

// Query selects entries. Zero fields match everything.
type Query struct {
	Action  Action
	Subject string
	Since   time.Time
}

// Match reports whether e satisfies q.
func (q Query) Match(e Entry) bool {
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if q.Subject != "" && e.Subject != q.Subject {
		return false
	}
	return q.Since.IsZero() || !e.Timestamp.Before(q.Since)
}

// Filter returns the entries matching q, in order.
func Filter(entries []Entry, q Query) []Entry {
	var out []Entry
	for _, e := range entries {
		if q.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionBillBuilt, ActionBillDeleted, ActionBudgetImport, ActionBudgetEdit, ActionReportCreated:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}
