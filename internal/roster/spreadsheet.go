package roster

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"
)

const (
	exportSheet  = "Roster"
	maxXLSRows   = 100000
	checkedFill  = "8ABEB7"
	latestFill   = "F0C674"
	xzExt        = ".xz"
	xlsxExt      = ".xlsx"
	deadlineHead = "Deadline"
	lateHead     = "Late (min)"
)

// maxUnzippedBytes bounds the parts excelize inflates from an xlsx.
const maxUnzippedBytes = 1 << 30

// maxRosterBytes bounds a roster file after any xz decompression.
var maxRosterBytes int64 = 64 << 20

// exportHeaders prefix every exported sheet; a sheet starting with them is
// read back with its check-in state.
var exportHeaders = append(append([]string(nil), syntheticHeaders...), deadlineHead, lateHead)

func readRows(reader io.Reader, name string) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == xzExt {
		unpacked, err := xz.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("open xz stream: %w", err)
		}
		reader = unpacked
		name = strings.TrimSuffix(name, filepath.Ext(name))
		ext = strings.ToLower(filepath.Ext(name))
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxRosterBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxRosterBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxRosterBytes)
	}

	switch ext {
	case ".xls":
		workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, err
		}
		if workbook == nil || workbook.NumSheets() == 0 {
			return nil, errors.New("no worksheet found")
		}
		rows := workbook.ReadAllCells(maxXLSRows)
		if len(rows) == 0 {
			return nil, errors.New("worksheet is empty")
		}
		return rows, nil
	case xlsxExt, ".xlsm", "":
		file, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{UnzipSizeLimit: maxUnzippedBytes})
		if err != nil {
			return nil, err
		}
		defer func() { _ = file.Close() }()

		sheetName := file.GetSheetName(0)
		if sheetName == "" {
			return nil, errors.New("no worksheet found")
		}
		rows, err := file.GetRows(sheetName)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, errors.New("worksheet is empty")
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unsupported spreadsheet type %q", ext)
	}
}

func isExportHeader(header []string) bool {
	if len(header) < len(exportHeaders) {
		return false
	}
	for i, want := range exportHeaders {
		if !strings.EqualFold(header[i], want) {
			return false
		}
	}
	return true
}

func restoreState(row *Row, record []string) error {
	if !parseChecked(cellValue(record, ColumnChecked)) {
		return nil
	}
	row.Checked = true
	if raw := cellValue(record, ColumnCheckedAt); raw != "" {
		at, ok := parseTimestamp(raw)
		if !ok {
			return fmt.Errorf("invalid check-in time %q", raw)
		}
		row.CheckedAt = at
	}
	if raw := cellValue(record, SyntheticColumns); raw != "" {
		if deadline, ok := parseTimestamp(raw); ok {
			row.Deadline = deadline
		}
	}
	return nil
}

func parseChecked(value string) bool {
	switch strings.ToLower(value) {
	case "y", "yes", "true", "1", "x":
		return true
	default:
		return false
	}
}

func parseTimestamp(value string) (time.Time, bool) {
	if parsed, err := time.ParseInLocation(timestampLayout, value, time.Local); err == nil {
		return parsed, true
	}
	// Sheets re-saved by a spreadsheet program may carry a date serial.
	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		if parsed, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), parsed.Hour(), parsed.Minute(), parsed.Second(), 0, time.Local), true
		}
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, true
	}
	return time.Time{}, false
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// ExportPath appends .xlsx unless path already names an xlsx or xz file.
func ExportPath(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, xlsxExt+xzExt), strings.HasSuffix(lower, xlsxExt):
		return path
	case strings.HasSuffix(lower, xzExt):
		return path[:len(path)-len(xzExt)] + xlsxExt + xzExt
	default:
		return path + xlsxExt
	}
}

// Export writes the roster to path and returns the path actually written.
func (s *Store) Export(path string) (string, error) {
	path = ExportPath(path)
	if !s.Loaded() {
		return path, &SaveError{Path: path, Err: ErrNoRoster}
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return path, &SaveError{Path: path, Err: err}
		}
	}

	tmpPath := path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, &SaveError{Path: path, Err: err}
	}
	if err := s.write(file, strings.HasSuffix(strings.ToLower(path), xzExt)); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return path, &SaveError{Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return path, &SaveError{Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return path, &SaveError{Path: path, Err: err}
	}
	return path, nil
}

// WriteTo writes the roster as an uncompressed xlsx workbook.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	if !s.Loaded() {
		return 0, &SaveError{Err: ErrNoRoster}
	}
	counter := &countingWriter{w: w}
	if err := s.write(counter, false); err != nil {
		return counter.n, &SaveError{Err: err}
	}
	return counter.n, nil
}

func (s *Store) write(w io.Writer, compress bool) error {
	book, err := s.workbook()
	if err != nil {
		return err
	}
	defer func() { _ = book.Close() }()

	if !compress {
		_, err := book.WriteTo(w)
		return err
	}

	packed, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("open xz stream: %w", err)
	}
	if _, err := book.WriteTo(packed); err != nil {
		_ = packed.Close()
		return err
	}
	return packed.Close()
}

func (s *Store) workbook() (*excelize.File, error) {
	book := excelize.NewFile()
	if err := book.SetSheetName(book.GetSheetName(0), exportSheet); err != nil {
		_ = book.Close()
		return nil, err
	}
	fail := func(err error) (*excelize.File, error) {
		_ = book.Close()
		return nil, err
	}

	header := make([]interface{}, 0, len(exportHeaders)+len(s.headers))
	for _, h := range exportHeaders {
		header = append(header, h)
	}
	for _, h := range s.headers {
		header = append(header, h)
	}
	if err := book.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return fail(err)
	}

	boldStyle, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fail(err)
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fail(err)
	}
	if err := book.SetCellStyle(exportSheet, "A1", lastHeader, boldStyle); err != nil {
		return fail(err)
	}

	checkedStyle, err := fillStyle(book, checkedFill)
	if err != nil {
		return fail(err)
	}
	latestStyle, err := fillStyle(book, latestFill)
	if err != nil {
		return fail(err)
	}
	latest, hasLatest := s.Latest()

	for i, row := range s.rows {
		values := make([]interface{}, 0, len(header))
		values = append(values, row.ID, row.Cell(ColumnChecked), row.Cell(ColumnCheckedAt), formatTimestamp(row.Deadline))
		if minutes, ok := row.LateMinutes(); ok {
			values = append(values, minutes)
		} else {
			values = append(values, "")
		}
		for _, cell := range row.Cells {
			values = append(values, cell)
		}

		start, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fail(err)
		}
		if err := book.SetSheetRow(exportSheet, start, &values); err != nil {
			return fail(err)
		}
		if !row.Checked {
			continue
		}
		style := checkedStyle
		if hasLatest && row.ID == latest.ID {
			style = latestStyle
		}
		end, err := excelize.CoordinatesToCellName(len(exportHeaders), i+2)
		if err != nil {
			return fail(err)
		}
		if err := book.SetCellStyle(exportSheet, start, end, style); err != nil {
			return fail(err)
		}
	}
	return book, nil
}

func fillStyle(book *excelize.File, color string) (int, error) {
	return book.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
	})
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timestampLayout)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
