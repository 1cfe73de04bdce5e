package conversation

import "time"

const (
	displayTimeLayout = "15:04"
	dayLabelLayout    = "Monday, Jan 2"
)

// Item is one row of a rendered timeline: either a day separator or a
// message.
type Item struct {
	Separator bool     `json:"separator,omitempty" yaml:"separator,omitempty"`
	Day       string   `json:"day,omitempty" yaml:"day,omitempty"`
	Time      string   `json:"time,omitempty" yaml:"time,omitempty"`
	Message   *Message `json:"message,omitempty" yaml:"message,omitempty"`
}

// Timeline renders msgs in order, inserting a separator before every
// message whose calendar date in loc differs from the last dated message
// before it. Messages without a timestamp never start a new day and have
// an empty display time.
func Timeline(msgs []Message, loc *time.Location) []Item {
	if loc == nil {
		loc = time.Local
	}

	items := make([]Item, 0, len(msgs)+1)

	var lastY, lastD int
	var lastM time.Month
	haveDay := false

	for i := range msgs {
		m := msgs[i]

		if !m.Timestamp.IsZero() {
			local := m.Timestamp.In(loc)
			y, mo, d := local.Date()
			if !haveDay || y != lastY || mo != lastM || d != lastD {
				items = append(items, Item{Separator: true, Day: local.Format(dayLabelLayout)})
				lastY, lastM, lastD = y, mo, d
				haveDay = true
			}
		}

		item := Item{Message: &m}
		if !m.Timestamp.IsZero() {
			item.Time = m.Timestamp.In(loc).Format(displayTimeLayout)
		}
		items = append(items, item)
	}

	return items
}
