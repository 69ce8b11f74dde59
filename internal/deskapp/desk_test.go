package deskapp

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/phillip-england/checkdesk/internal/checkin"
	"github.com/phillip-england/checkdesk/internal/roster"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xuri/excelize/v2"
)

var deskRows = [][]string{
	{"Interviewee", "Name", "Card", "Slot"},
	{"A12B34567", "Ada Lovelace", "", "09:00"},
	{"B34C56789", "Alan Turing", "1234567890", "09:15"},
	{"C56D78901", "Grace Hopper", "", "09:30"},
}

func rosterBytes(t *testing.T, rows [][]string) []byte {
	t.Helper()
	book := excelize.NewFile()
	defer book.Close()
	sheet := book.GetSheetName(0)
	for i, row := range rows {
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := book.SetSheetRow(sheet, cell, &values); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if _, err := book.WriteTo(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func fixedClock(hour, minute int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, time.October, 18, hour, minute, 30, 0, time.Local)
	}
}

func newTestDesk(t *testing.T, now func() time.Time) (*Desk, *prometheus.Registry) {
	t.Helper()
	profile := DefaultProfile()
	profile.Deadline = "09:00"
	registry := prometheus.NewRegistry()
	desk := NewDesk(profile, registry, now)
	if _, err := desk.LoadRoster(bytes.NewReader(rosterBytes(t, deskRows)), "day.xlsx"); err != nil {
		t.Fatalf("load roster: %v", err)
	}
	return desk, registry
}

func TestDeskScanWithoutRoster(t *testing.T) {
	desk := NewDesk(DefaultProfile(), nil, fixedClock(9, 0))
	if _, err := desk.Scan("A12B34567"); !errors.Is(err, roster.ErrNoRoster) {
		t.Fatalf("expected ErrNoRoster, got %v", err)
	}
	if err := desk.WriteRoster(&bytes.Buffer{}); !errors.Is(err, roster.ErrNoRoster) {
		t.Fatalf("expected ErrNoRoster on export, got %v", err)
	}
}

func TestDeskScanChecksInAndLocksDeadline(t *testing.T) {
	desk, _ := newTestDesk(t, fixedClock(9, 3))

	entry, err := desk.Scan("  a12b34567 ")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !entry.OK || entry.RowID != 1 || entry.Kind != "interviewee" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Minutes != 3 || !entry.OnTime || entry.Label != "Late by 3 minutes" {
		t.Fatalf("unexpected lateness %+v", entry)
	}
	if entry.ID == "" || !strings.Contains(string(entry.Message), "Ada Lovelace") {
		t.Fatalf("expected id and rendered message, got %+v", entry)
	}

	snap := desk.Snapshot()
	if !snap.Settings.DeadlineLocked {
		t.Fatalf("expected deadline to lock after scan")
	}
	if snap.Progress.Checked != 1 || snap.Progress.Total != 3 {
		t.Fatalf("unexpected progress %+v", snap.Progress)
	}
	if snap.Rows[0].Cells[roster.ColumnChecked].Class != checkin.RangeLatest {
		t.Fatalf("expected latest highlight on row 1, got %+v", snap.Rows[0].Cells[roster.ColumnChecked])
	}

	deadline := "10:00"
	if _, err := desk.UpdateSettings(SettingsUpdate{Deadline: &deadline}); !errors.Is(err, ErrDeadlineLocked) {
		t.Fatalf("expected ErrDeadlineLocked, got %v", err)
	}
}

func TestDeskMalformedScanKeepsDeadlineOpen(t *testing.T) {
	desk, _ := newTestDesk(t, fixedClock(9, 0))

	entry, err := desk.Scan("hello")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if entry.OK || entry.Reason != string(checkin.ReasonFormat) {
		t.Fatalf("expected format failure, got %+v", entry)
	}
	if desk.Snapshot().Settings.DeadlineLocked {
		t.Fatalf("malformed scan must not lock the deadline")
	}

	deadline := "09:30"
	settings, err := desk.UpdateSettings(SettingsUpdate{Deadline: &deadline})
	if err != nil {
		t.Fatalf("update deadline: %v", err)
	}
	if settings.Deadline != "09:30" {
		t.Fatalf("unexpected deadline %q", settings.Deadline)
	}
}

func TestDeskOverwriteCardTargetsLatest(t *testing.T) {
	desk, _ := newTestDesk(t, fixedClock(9, 10))
	overwrite := true
	if _, err := desk.UpdateSettings(SettingsUpdate{Overwrite: &overwrite}); err != nil {
		t.Fatalf("enable overwrite: %v", err)
	}

	entry, err := desk.Scan("5550001111")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if entry.OK || entry.Reason != string(checkin.ReasonNotFound) {
		t.Fatalf("expected not found without a latest row, got %+v", entry)
	}

	if _, err := desk.Scan("C56D78901"); err != nil {
		t.Fatalf("scan interviewee: %v", err)
	}
	entry, err = desk.Scan("5550001111")
	if err != nil {
		t.Fatalf("scan card: %v", err)
	}
	if !entry.OK || entry.RowID != 3 {
		t.Fatalf("expected card bound to row 3, got %+v", entry)
	}
	snap := desk.Snapshot()
	if got := snap.Rows[2].Cells[5].Value; got != "5550001111" {
		t.Fatalf("expected card in row 3, got %q", got)
	}
}

func TestDeskFailedScanClearsLatest(t *testing.T) {
	desk, _ := newTestDesk(t, fixedClock(9, 0))
	if _, err := desk.Scan("B34C56789"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if _, err := desk.Scan("Z99Z99999"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	for _, r := range desk.Snapshot().View.Ranges {
		if r.Name == checkin.RangeLatest {
			t.Fatalf("latest range survived a failed scan: %+v", r)
		}
	}
}

func TestDeskUpdateSettingsValidation(t *testing.T) {
	desk, _ := newTestDesk(t, fixedClock(9, 0))
	before := desk.Snapshot().Settings

	tooFar := 99
	if _, err := desk.UpdateSettings(SettingsUpdate{CardColumn: &tooFar}); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
	negative := -1
	if _, err := desk.UpdateSettings(SettingsUpdate{Total: &negative}); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
	bad := "9am"
	if _, err := desk.UpdateSettings(SettingsUpdate{Deadline: &bad}); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
	if after := desk.Snapshot().Settings; after != before {
		t.Fatalf("failed updates changed settings: %+v -> %+v", before, after)
	}

	column := 4
	settings, err := desk.UpdateSettings(SettingsUpdate{IdentifierColumn: &column})
	if err != nil {
		t.Fatalf("update column: %v", err)
	}
	if settings.IdentifierColumn != 4 {
		t.Fatalf("unexpected identifier column %d", settings.IdentifierColumn)
	}
	for _, r := range desk.Snapshot().View.Ranges {
		if r.Name == checkin.RangeInterviewee && r.FirstColumn != 4 {
			t.Fatalf("interviewee range not moved: %+v", r)
		}
	}
}

func TestDeskReloadResetsSession(t *testing.T) {
	desk, _ := newTestDesk(t, fixedClock(9, 0))
	if _, err := desk.Scan("A12B34567"); err != nil {
		t.Fatalf("scan: %v", err)
	}

	var exported bytes.Buffer
	if err := desk.WriteRoster(&exported); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	count, err := desk.LoadRoster(bytes.NewReader(exported.Bytes()), "day-checkin.xlsx")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows, got %d", count)
	}

	snap := desk.Snapshot()
	if snap.Last != nil || snap.Settings.DeadlineLocked {
		t.Fatalf("expected a fresh session, got %+v", snap)
	}
	if snap.Progress.Checked != 1 {
		t.Fatalf("expected restored check-in, got %+v", snap.Progress)
	}

	if _, err := desk.LoadRoster(strings.NewReader("not a workbook"), "broken.xlsx"); err == nil {
		t.Fatalf("expected load error")
	}
	if desk.RosterName() != "day-checkin.xlsx" {
		t.Fatalf("failed load replaced roster: %q", desk.RosterName())
	}
}
