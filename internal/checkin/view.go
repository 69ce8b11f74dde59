package checkin

import "github.com/phillip-england/checkdesk/internal/roster"

const (
	RangeInterviewee = "interviewee"
	RangeTimeslot    = "timeslot"
	RangeLatest      = "latest"
)

var rangeColors = map[string]string{
	RangeInterviewee: "#B294BB",
	RangeTimeslot:    "#8ABEB7",
	RangeLatest:      "#F0C674",
}

// Refresh names the parts of the view to recompute.
type Refresh struct {
	Shape   bool
	Headers bool
	Ranges  bool
}

var RefreshAll = Refresh{Shape: true, Headers: true, Ranges: true}

func (r Refresh) Any() bool {
	return r.Shape || r.Headers || r.Ranges
}

type Shape struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
	// MaxColumn bounds the column selectors.
	MaxColumn int `json:"maxColumn"`
	// Total is the default expected attendance.
	Total int `json:"total"`
}

// Range is a highlighted block of table cells. Rows are row IDs, columns are
// table column indices; both bounds are inclusive.
type Range struct {
	Name        string `json:"name"`
	FirstRow    int    `json:"firstRow"`
	LastRow     int    `json:"lastRow"`
	FirstColumn int    `json:"firstColumn"`
	LastColumn  int    `json:"lastColumn"`
	Color       string `json:"color"`
}

func (r Range) Contains(rowID, column int) bool {
	return rowID >= r.FirstRow && rowID <= r.LastRow && column >= r.FirstColumn && column <= r.LastColumn
}

type Columns struct {
	Identifier int
	Card       int
}

// View is the UI-facing state. Only the parts named by Refresh are set.
type View struct {
	Refresh Refresh  `json:"-"`
	Shape   Shape    `json:"shape"`
	Headers []string `json:"headers"`
	Ranges  []Range  `json:"ranges"`
}

// Merge copies the refreshed parts of u into v.
func (v *View) Merge(u View) {
	if u.Refresh.Shape {
		v.Shape = u.Shape
	}
	if u.Refresh.Headers {
		v.Headers = u.Headers
	}
	if u.Refresh.Ranges {
		v.Ranges = u.Ranges
	}
	v.Refresh = RefreshAll
}

// View computes the parts of the view named by refresh.
func (c *Controller) View(refresh Refresh, cols Columns, latest *roster.Row) View {
	view := View{Refresh: refresh}
	rows := c.store.RowCount()
	columns := c.store.ColumnCount()

	if refresh.Shape {
		view.Shape = Shape{
			Rows:      rows,
			Columns:   columns,
			MaxColumn: max(columns-1, 0),
			Total:     rows,
		}
	}
	if refresh.Headers {
		view.Headers = c.store.Headers()
	}
	if refresh.Ranges {
		view.Ranges = ranges(rows, columns, cols, latest)
	}
	return view
}

func ranges(rows, columns int, cols Columns, latest *roster.Row) []Range {
	out := make([]Range, 0, 3)
	if rows > 0 {
		if cols.Identifier >= 0 && cols.Identifier < columns {
			out = append(out, columnRange(RangeInterviewee, rows, cols.Identifier))
		}
		if cols.Card >= 0 && cols.Card < columns {
			out = append(out, columnRange(RangeTimeslot, rows, cols.Card))
		}
	}
	if latest != nil && latest.ID >= 1 && latest.ID <= rows {
		out = append(out, Range{
			Name:        RangeLatest,
			FirstRow:    latest.ID,
			LastRow:     latest.ID,
			FirstColumn: 0,
			LastColumn:  columns - 1,
			Color:       rangeColors[RangeLatest],
		})
	}
	return out
}

func columnRange(name string, rows, column int) Range {
	return Range{
		Name:        name,
		FirstRow:    1,
		LastRow:     rows,
		FirstColumn: column,
		LastColumn:  column,
		Color:       rangeColors[name],
	}
}
