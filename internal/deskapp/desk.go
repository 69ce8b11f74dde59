package deskapp

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phillip-england/checkdesk/internal/checkin"
	"github.com/phillip-england/checkdesk/internal/roster"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrDeadlineLocked  = errors.New("deadline is locked after the first scan")
	ErrInvalidSettings = errors.New("invalid settings")
)

type Settings struct {
	IdentifierColumn int    `json:"identifierColumn"`
	CardColumn       int    `json:"cardColumn"`
	Overwrite        bool   `json:"overwrite"`
	Deadline         string `json:"deadline"`
	DeadlineLocked   bool   `json:"deadlineLocked"`
	Total            int    `json:"total"`
}

// SettingsUpdate carries the operator's changes; nil fields are untouched.
type SettingsUpdate struct {
	IdentifierColumn *int    `json:"identifierColumn"`
	CardColumn       *int    `json:"cardColumn"`
	Overwrite        *bool   `json:"overwrite"`
	Deadline         *string `json:"deadline"`
	Total            *int    `json:"total"`
}

// Entry is the desk's record of the last scan.
type Entry struct {
	ID      string          `json:"id"`
	At      time.Time       `json:"at"`
	OK      bool            `json:"ok"`
	Kind    string          `json:"kind"`
	Scan    string          `json:"scan"`
	Reason  string          `json:"reason,omitempty"`
	RowID   int             `json:"rowId,omitempty"`
	Info    []checkin.Field `json:"info,omitempty"`
	Minutes int             `json:"minutes"`
	OnTime  bool            `json:"onTime"`
	Label   string          `json:"label,omitempty"`
	Message template.HTML   `json:"message"`
}

type Progress struct {
	Checked int `json:"checked"`
	Total   int `json:"total"`
}

type CellView struct {
	Value string
	Class string
	Color string
}

type RowView struct {
	ID    int
	Cells []CellView
}

type Snapshot struct {
	Loaded     bool         `json:"loaded"`
	RosterName string       `json:"rosterName"`
	Settings   Settings     `json:"settings"`
	Progress   Progress     `json:"progress"`
	View       checkin.View `json:"view"`
	Last       *Entry       `json:"last"`
	Rows       []RowView    `json:"-"`
}

// Desk is one operator's session. Every method takes the lock for its whole
// duration so operator actions never interleave.
type Desk struct {
	mu         sync.Mutex
	store      *roster.Store
	controller *checkin.Controller
	profile    Profile
	settings   Settings
	view       checkin.View
	latest     *roster.Row
	last       *Entry
	metrics    *deskMetrics
	now        func() time.Time
}

func NewDesk(profile Profile, reg prometheus.Registerer, now func() time.Time) *Desk {
	if now == nil {
		now = time.Now
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	deadline := profile.Deadline
	if deadline == "" {
		deadline = now().Format(clockLayout)
	}
	store := roster.New()
	return &Desk{
		store:      store,
		controller: checkin.NewController(store, now),
		profile:    profile,
		settings: Settings{
			IdentifierColumn: profile.IdentifierColumn,
			CardColumn:       profile.CardColumn,
			Overwrite:        profile.Overwrite,
			Deadline:         deadline,
			Total:            profile.Total,
		},
		metrics: newDeskMetrics(reg),
		now:     now,
	}
}

// LoadRoster replaces the roster. On error the previous roster stays loaded.
func (d *Desk) LoadRoster(r io.Reader, name string) (int, error) {
	store := roster.New()
	if err := store.LoadReader(r, name); err != nil {
		return 0, err
	}
	return d.install(store), nil
}

func (d *Desk) LoadRosterFile(path string) (int, error) {
	store := roster.New()
	if err := store.Load(path); err != nil {
		return 0, err
	}
	return d.install(store), nil
}

func (d *Desk) install(store *roster.Store) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.store = store
	d.controller = checkin.NewController(store, d.now)
	d.last = nil
	d.latest = nil
	if latest, ok := store.Latest(); ok {
		d.latest = &latest
	}
	d.settings.DeadlineLocked = false

	d.view = checkin.View{}
	d.view.Merge(d.controller.View(checkin.Refresh{Shape: true, Headers: true}, d.columns(), nil))
	d.settings.IdentifierColumn = clampColumn(d.settings.IdentifierColumn, d.view.Shape.MaxColumn)
	d.settings.CardColumn = clampColumn(d.settings.CardColumn, d.view.Shape.MaxColumn)
	d.view.Merge(d.controller.View(checkin.Refresh{Ranges: true}, d.columns(), d.latest))

	d.settings.Total = d.view.Shape.Total
	if d.profile.Total > 0 {
		d.settings.Total = d.profile.Total
	}
	d.metrics.setProgress(d.progress(), store.RowCount())

	log.Printf("loaded %d rows from %s", store.RowCount(), store.Name())
	return store.RowCount()
}

// Scan runs one classify-and-check-in decision.
func (d *Desk) Scan(raw string) (Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.store.Loaded() {
		return Entry{}, roster.ErrNoRoster
	}
	now := d.now()
	deadline, err := deadlineOn(now, d.settings.Deadline)
	if err != nil {
		return Entry{}, err
	}

	out := d.controller.Scan(checkin.Request{
		Scan:             strings.TrimSpace(raw),
		IdentifierColumn: d.settings.IdentifierColumn,
		CardColumn:       d.settings.CardColumn,
		Overwrite:        d.settings.Overwrite,
		Deadline:         deadline,
		Latest:           d.latest,
	})
	if out.Kind != checkin.KindMalformed {
		d.settings.DeadlineLocked = true
	}
	d.latest = out.Latest()
	d.view.Merge(d.controller.View(checkin.Refresh{Ranges: true}, d.columns(), d.latest))

	if out.Err != nil {
		log.Printf("scan %q not matched: %v", out.Scan, out.Err)
	}
	message, err := checkin.RenderStatus(out)
	if err != nil {
		log.Printf("status render failed: %v", err)
	}

	entry := Entry{
		ID:      uuid.NewString(),
		At:      now,
		OK:      out.OK,
		Kind:    out.Kind.String(),
		Scan:    out.Scan,
		Reason:  string(out.Reason),
		Info:    out.Info,
		Message: message,
	}
	if out.OK {
		entry.RowID = out.Row.ID
		entry.Minutes = out.Lateness.Minutes
		entry.OnTime = out.Lateness.OnTime()
		entry.Label = out.Lateness.Label()
	}
	d.last = &entry

	d.metrics.observeScan(out)
	d.metrics.setProgress(d.progress(), d.store.RowCount())
	return entry, nil
}

// UpdateSettings applies u and refreshes only the view parts it affects.
func (d *Desk) UpdateSettings(u SettingsUpdate) (Settings, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := d.settings
	refresh := checkin.Refresh{}
	loaded := d.store.Loaded()

	if u.IdentifierColumn != nil && *u.IdentifierColumn != next.IdentifierColumn {
		if err := d.checkColumn(*u.IdentifierColumn); err != nil {
			return d.settings, err
		}
		next.IdentifierColumn = *u.IdentifierColumn
		refresh.Ranges = true
	}
	if u.CardColumn != nil && *u.CardColumn != next.CardColumn {
		if err := d.checkColumn(*u.CardColumn); err != nil {
			return d.settings, err
		}
		next.CardColumn = *u.CardColumn
		refresh.Ranges = true
	}
	if u.Deadline != nil && strings.TrimSpace(*u.Deadline) != next.Deadline {
		if next.DeadlineLocked {
			return d.settings, ErrDeadlineLocked
		}
		clock, err := parseClock(*u.Deadline)
		if err != nil {
			return d.settings, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
		next.Deadline = clock.Format(clockLayout)
	}
	if u.Total != nil {
		if *u.Total < 0 {
			return d.settings, fmt.Errorf("%w: total must not be negative", ErrInvalidSettings)
		}
		next.Total = *u.Total
	}
	if u.Overwrite != nil {
		next.Overwrite = *u.Overwrite
	}

	d.settings = next
	if loaded && refresh.Any() {
		d.view.Merge(d.controller.View(refresh, d.columns(), d.latest))
	}
	d.metrics.setProgress(d.progress(), d.store.RowCount())
	return d.settings, nil
}

func (d *Desk) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := Snapshot{
		Loaded:     d.store.Loaded(),
		RosterName: d.store.Name(),
		Settings:   d.settings,
		Progress:   d.progress(),
		View:       d.view,
	}
	if d.last != nil {
		last := *d.last
		snap.Last = &last
	}
	if !snap.Loaded {
		return snap
	}

	columns := d.store.ColumnCount()
	for _, row := range d.store.Rows() {
		view := RowView{ID: row.ID, Cells: make([]CellView, columns)}
		for col := 0; col < columns; col++ {
			cell := CellView{Value: row.Cell(col)}
			if r, ok := rangeAt(d.view.Ranges, row.ID, col); ok {
				cell.Class = r.Name
				cell.Color = r.Color
			}
			view.Cells[col] = cell
		}
		snap.Rows = append(snap.Rows, view)
	}
	return snap
}

// Last returns the most recent scan entry, if any.
func (d *Desk) Last() *Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return nil
	}
	last := *d.last
	return &last
}

func (d *Desk) RosterName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.Name()
}

func (d *Desk) WriteRoster(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.store.WriteTo(w)
	return err
}

func (d *Desk) ExportRoster(path string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.Export(path)
}

func (d *Desk) columns() checkin.Columns {
	return checkin.Columns{Identifier: d.settings.IdentifierColumn, Card: d.settings.CardColumn}
}

func (d *Desk) progress() Progress {
	return Progress{Checked: d.store.CheckedCount(), Total: d.settings.Total}
}

func (d *Desk) checkColumn(column int) error {
	if column < 0 {
		return fmt.Errorf("%w: column must not be negative", ErrInvalidSettings)
	}
	if d.store.Loaded() && column > d.view.Shape.MaxColumn {
		return fmt.Errorf("%w: column %d exceeds %d", ErrInvalidSettings, column, d.view.Shape.MaxColumn)
	}
	return nil
}

func clampColumn(column, maxColumn int) int {
	if column < 0 {
		return 0
	}
	if column > maxColumn {
		return maxColumn
	}
	return column
}

// rangeAt picks the range shown for a cell; the latest row wins over column
// ranges.
func rangeAt(ranges []checkin.Range, rowID, column int) (checkin.Range, bool) {
	var found checkin.Range
	ok := false
	for _, r := range ranges {
		if !r.Contains(rowID, column) {
			continue
		}
		if r.Name == checkin.RangeLatest {
			return r, true
		}
		if !ok {
			found, ok = r, true
		}
	}
	return found, ok
}
