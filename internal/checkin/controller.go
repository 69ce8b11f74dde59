package checkin

import (
	"errors"
	"fmt"
	"time"

	"github.com/phillip-england/checkdesk/internal/roster"
)

type Reason string

const (
	ReasonFormat   Reason = "format error"
	ReasonNotFound Reason = "number does not exist"
)

// DisplayColumns is how many table columns, starting at the first sheet
// column, are shown to the attendee on success.
const DisplayColumns = 3

// lateThreshold is the first elapsed minute styled as late.
const lateThreshold = 5

// Store is the part of the roster the controller drives.
type Store interface {
	CheckIn(column int, code string, deadline, now time.Time) (roster.Row, error)
	FillCard(id, column int, code string) (roster.Row, error)
	Headers() []string
	RowCount() int
	ColumnCount() int
}

type Request struct {
	Scan             string
	IdentifierColumn int
	CardColumn       int
	Overwrite        bool
	Deadline         time.Time
	// Latest is the row from the previous successful outcome, if any. It is
	// the target of a card overwrite.
	Latest *roster.Row
}

type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Lateness struct {
	Minutes int `json:"minutes"`
}

func (l Lateness) OnTime() bool {
	return l.Minutes < lateThreshold
}

func (l Lateness) Label() string {
	if l.Minutes <= 0 {
		return "On time"
	}
	if l.Minutes == 1 {
		return "Late by 1 minute"
	}
	return fmt.Sprintf("Late by %d minutes", l.Minutes)
}

func (l Lateness) Color() string {
	if l.OnTime() {
		return "#4E9A06"
	}
	return "#A40000"
}

// Outcome is either a success carrying the matched row or a failure carrying
// a reason. A failure always means there is no latest row.
type Outcome struct {
	OK       bool
	Kind     Kind
	Scan     string
	Reason   Reason
	Row      *roster.Row
	Info     []Field
	Lateness Lateness
	// Err is the store error behind a not-found failure, for logging.
	Err error
}

// Latest is the row that should be highlighted after this outcome.
func (o Outcome) Latest() *roster.Row {
	if !o.OK {
		return nil
	}
	return o.Row
}

type Controller struct {
	store Store
	now   func() time.Time
}

func NewController(store Store, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{store: store, now: now}
}

// Scan classifies req.Scan and applies it to the store. Every call either
// updates exactly one row or none.
func (c *Controller) Scan(req Request) Outcome {
	class := Classify(req.Scan)
	out := Outcome{Kind: class.Kind, Scan: class.Code}

	var (
		row roster.Row
		err error
	)
	switch class.Kind {
	case KindInterviewee, KindIntervieweeBarcode:
		row, err = c.store.CheckIn(req.IdentifierColumn, class.Code, req.Deadline, c.now())
	case KindCard:
		if req.Overwrite {
			if req.Latest == nil {
				err = fmt.Errorf("%w: no checked-in row to receive card", roster.ErrNoMatch)
			} else {
				row, err = c.store.FillCard(req.Latest.ID, req.CardColumn, class.Code)
			}
		} else {
			row, err = c.store.CheckIn(req.CardColumn, class.Code, req.Deadline, c.now())
		}
	default:
		out.Reason = ReasonFormat
		return out
	}

	if err != nil {
		out.Reason = ReasonNotFound
		out.Err = err
		return out
	}
	if !row.Checked {
		out.Reason = ReasonNotFound
		out.Err = errors.New("row is not checked in")
		return out
	}

	out.OK = true
	out.Row = &row
	out.Info = c.info(row)
	out.Lateness = Lateness{Minutes: ElapsedMinutes(row.CheckedAt, req.Deadline)}
	return out
}

// ElapsedMinutes is at - deadline in whole minutes, truncated toward zero.
func ElapsedMinutes(at, deadline time.Time) int {
	return int(at.Sub(deadline) / time.Minute)
}

func (c *Controller) info(row roster.Row) []Field {
	headers := c.store.Headers()
	fields := make([]Field, 0, DisplayColumns)
	for col := roster.SyntheticColumns; col < roster.SyntheticColumns+DisplayColumns && col < len(headers); col++ {
		fields = append(fields, Field{Label: headers[col], Value: row.Cell(col)})
	}
	return fields
}
