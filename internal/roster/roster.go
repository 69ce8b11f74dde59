package roster

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Table columns 0..2 are synthesized by the store; sheet columns follow.
const (
	ColumnID = iota
	ColumnChecked
	ColumnCheckedAt
	SyntheticColumns
)

const timestampLayout = "2006-01-02 15:04:05"

var syntheticHeaders = []string{"ID", "Checked", "Checked At"}

var (
	ErrNoRoster    = errors.New("no roster loaded")
	ErrNoMatch     = errors.New("no matching row")
	ErrColumnRange = errors.New("column out of range")
	ErrTooLarge    = errors.New("roster too large")
)

type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load roster: %v", e.Err)
	}
	return fmt.Sprintf("load roster %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("save roster: %v", e.Err)
	}
	return fmt.Sprintf("save roster %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// Row is one registrant. Cells holds the sheet's own columns only.
type Row struct {
	ID        int
	Cells     []string
	Checked   bool
	CheckedAt time.Time
	Deadline  time.Time
}

// Cell returns the value shown in table column idx.
func (r Row) Cell(idx int) string {
	switch idx {
	case ColumnID:
		return strconv.Itoa(r.ID)
	case ColumnChecked:
		if r.Checked {
			return "Y"
		}
		return ""
	case ColumnCheckedAt:
		if r.CheckedAt.IsZero() {
			return ""
		}
		return r.CheckedAt.Format(timestampLayout)
	}
	idx -= SyntheticColumns
	if idx < 0 || idx >= len(r.Cells) {
		return ""
	}
	return strings.TrimSpace(r.Cells[idx])
}

// LateMinutes is the whole minutes between the row's deadline and its
// check-in, truncated toward zero. ok is false when either is unset.
func (r Row) LateMinutes() (int, bool) {
	if r.CheckedAt.IsZero() || r.Deadline.IsZero() {
		return 0, false
	}
	return int(r.CheckedAt.Sub(r.Deadline) / time.Minute), true
}

func (r Row) clone() Row {
	out := r
	out.Cells = append([]string(nil), r.Cells...)
	return out
}

// Store holds one loaded roster in memory. It has no locking of its own;
// callers serialise access.
type Store struct {
	name    string
	headers []string
	rows    []Row
	width   int
}

func New() *Store {
	return &Store{}
}

func (s *Store) Loaded() bool {
	return s.headers != nil
}

// Name is the file name the roster was loaded from.
func (s *Store) Name() string {
	return s.name
}

func (s *Store) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &LoadError{Path: path, Err: err}
	}
	defer f.Close()
	return s.LoadReader(f, path)
}

// LoadReader replaces the roster with the sheet read from r. name selects the
// decoder by extension (.xlsx, .xls, optionally followed by .xz).
func (s *Store) LoadReader(r io.Reader, name string) error {
	records, err := readRows(r, name)
	if err != nil {
		return &LoadError{Path: name, Err: err}
	}
	if err := s.populate(filepath.Base(name), records); err != nil {
		return &LoadError{Path: name, Err: err}
	}
	return nil
}

func (s *Store) populate(name string, records [][]string) error {
	if len(records) == 0 {
		return errors.New("worksheet is empty")
	}
	header := trimTrailingEmpty(records[0])
	if len(header) == 0 {
		return errors.New("missing header row")
	}

	restore := isExportHeader(header)
	if restore {
		header = header[len(exportHeaders):]
	}

	width := len(header)
	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		row := Row{ID: len(rows) + 1}
		if restore {
			if err := restoreState(&row, record); err != nil {
				return fmt.Errorf("row %d: %w", len(rows)+2, err)
			}
			record = cellsAfter(record, len(exportHeaders))
		}
		row.Cells = append([]string(nil), record...)
		if len(row.Cells) > width {
			width = len(row.Cells)
		}
		rows = append(rows, row)
	}

	for len(header) < width {
		header = append(header, columnLetter(len(header)))
	}

	s.name = name
	s.headers = append([]string(nil), header...)
	s.rows = rows
	s.width = width
	return nil
}

// RowCount is the number of registrant rows; the header is not counted.
func (s *Store) RowCount() int {
	return len(s.rows)
}

// ColumnCount is the number of table columns, synthetic columns included.
func (s *Store) ColumnCount() int {
	if !s.Loaded() {
		return 0
	}
	return SyntheticColumns + s.width
}

// Headers returns the table header labels.
func (s *Store) Headers() []string {
	if !s.Loaded() {
		return nil
	}
	out := make([]string, 0, s.ColumnCount())
	out = append(out, syntheticHeaders...)
	return append(out, s.headers...)
}

func (s *Store) Rows() []Row {
	out := make([]Row, len(s.rows))
	for i, row := range s.rows {
		out[i] = row.clone()
	}
	return out
}

func (s *Store) Row(id int) (Row, bool) {
	if id < 1 || id > len(s.rows) {
		return Row{}, false
	}
	return s.rows[id-1].clone(), true
}

// CheckIn marks the first row whose table column equals code. A row already
// checked in keeps its first timestamp.
func (s *Store) CheckIn(column int, code string, deadline, now time.Time) (Row, error) {
	idx, err := s.find(column, code)
	if err != nil {
		return Row{}, err
	}
	row := &s.rows[idx]
	if !row.Checked {
		row.Checked = true
		row.CheckedAt = now
		row.Deadline = deadline
	}
	return row.clone(), nil
}

// FillCard overwrites a sheet cell of row id. It never touches the check-in
// state.
func (s *Store) FillCard(id, column int, code string) (Row, error) {
	if !s.Loaded() {
		return Row{}, ErrNoRoster
	}
	if column < SyntheticColumns || column >= s.ColumnCount() {
		return Row{}, fmt.Errorf("%w: %d", ErrColumnRange, column)
	}
	if id < 1 || id > len(s.rows) {
		return Row{}, fmt.Errorf("%w: row %d", ErrNoMatch, id)
	}
	row := &s.rows[id-1]
	cell := column - SyntheticColumns
	for len(row.Cells) <= cell {
		row.Cells = append(row.Cells, "")
	}
	row.Cells[cell] = code
	return row.clone(), nil
}

// Latest returns the row with the most recent check-in time.
func (s *Store) Latest() (Row, bool) {
	var latest *Row
	for i := range s.rows {
		row := &s.rows[i]
		if !row.Checked {
			continue
		}
		if latest == nil || row.CheckedAt.After(latest.CheckedAt) {
			latest = row
		}
	}
	if latest == nil {
		return Row{}, false
	}
	return latest.clone(), true
}

func (s *Store) CheckedCount() int {
	count := 0
	for _, row := range s.rows {
		if row.Checked {
			count++
		}
	}
	return count
}

func (s *Store) find(column int, code string) (int, error) {
	if !s.Loaded() {
		return -1, ErrNoRoster
	}
	if column < 0 || column >= s.ColumnCount() {
		return -1, fmt.Errorf("%w: %d", ErrColumnRange, column)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return -1, ErrNoMatch
	}
	for i, row := range s.rows {
		if strings.EqualFold(row.Cell(column), code) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q in column %d", ErrNoMatch, code, column)
}

func trimTrailingEmpty(record []string) []string {
	end := len(record)
	for end > 0 && strings.TrimSpace(record[end-1]) == "" {
		end--
	}
	out := make([]string, end)
	for i := range out {
		out[i] = strings.TrimSpace(record[i])
	}
	return out
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func cellsAfter(record []string, n int) []string {
	if n >= len(record) {
		return nil
	}
	return record[n:]
}

func columnLetter(idx int) string {
	name := ""
	for idx >= 0 {
		name = string(rune('A'+idx%26)) + name
		idx = idx/26 - 1
	}
	return name
}
