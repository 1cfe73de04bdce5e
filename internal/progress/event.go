// Package progress folds push progress events onto the polled job
// collection. REST snapshots replace the collection wholesale; events
// refine individual fields of the jobs they match.
package progress

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/alexjbarnes/relaydeck/upstream"
)

// Upstream subsystems label the same job under different keys.
var (
	primaryIDPaths   = []string{"automationId", "primaryId", "id"}
	secondaryIDPaths = []string{"executionId", "secondaryId", "jobId"}
)

// Event is a progress push event. Nil fields were absent from the
// payload and leave the matching job's value untouched.
type Event struct {
	PrimaryID   string
	SecondaryID string
	Progress    *float64
	Status      *upstream.JobStatus
	Message     *string
	Current     *int
	Total       *int
}

// Valid reports whether the event carries at least one identifier.
func (e Event) Valid() bool {
	return e.PrimaryID != "" || e.SecondaryID != ""
}

// ParseEvent decodes a push payload. It never fails: unrecognised
// shapes yield an invalid Event, and fields of the wrong type are
// treated as absent.
func ParseEvent(data []byte) Event {
	if !gjson.ValidBytes(data) {
		return Event{}
	}

	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return Event{}
	}

	ev := Event{
		PrimaryID:   firstID(doc, primaryIDPaths),
		SecondaryID: firstID(doc, secondaryIDPaths),
	}

	if p, ok := number(doc.Get("progress")); ok {
		p = min(max(p, 0), 100)
		ev.Progress = &p
	}

	if s := doc.Get("status"); s.Type == gjson.String && s.Str != "" {
		status := upstream.JobStatus(strings.ToLower(s.Str))
		ev.Status = &status
	}

	if m := doc.Get("message"); m.Type == gjson.String {
		msg := m.Str
		ev.Message = &msg
	}

	if n, ok := number(doc.Get("current")); ok {
		c := int(n)
		ev.Current = &c
	}

	if n, ok := number(doc.Get("total")); ok {
		t := int(n)
		ev.Total = &t
	}

	return ev
}

func firstID(doc gjson.Result, paths []string) string {
	for _, p := range paths {
		v := doc.Get(p)
		switch v.Type {
		case gjson.String:
			if s := strings.TrimSpace(v.Str); s != "" {
				return s
			}
		case gjson.Number:
			return v.Raw
		}
	}
	return ""
}

// number accepts finite JSON numbers and numeric strings.
func number(v gjson.Result) (float64, bool) {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
