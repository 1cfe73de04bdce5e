package upstream

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Rows from list endpoints are decoded field by field. A field with an
// unexpected type is treated as absent so one bad value never drops the
// row or the page it arrived in.

// decodeAutomation reads one row of GET /automations.
func decodeAutomation(v gjson.Result) Automation {
	job := Automation{
		ID:          lenientString(v.Get("id")),
		ExecutionID: lenientString(v.Get("executionId")),
		Name:        lenientString(v.Get("name")),
		Status:      JobStatus(strings.ToLower(lenientString(v.Get("status")))),
		Message:     lenientString(v.Get("message")),
		Interval:    lenientString(v.Get("interval")),
	}

	if p, ok := lenientNumber(v.Get("progress")); ok {
		p = min(max(p, 0), 100)
		job.Progress = &p
	}
	if n, ok := lenientNumber(v.Get("current")); ok {
		c := int(n)
		job.Current = &c
	}
	if n, ok := lenientNumber(v.Get("total")); ok {
		t := int(n)
		job.Total = &t
	}

	job.CreatedAt.Time, _ = ParseTimestamp(v.Get("createdAt"))
	job.LastRunAt.Time, _ = ParseTimestamp(v.Get("lastRunAt"))
	job.NextRunAt.Time, _ = ParseTimestamp(v.Get("nextRunAt"))

	return job
}

// decodeConversation reads one row of POST /messages.
func decodeConversation(v gjson.Result) ConversationSummary {
	sum := ConversationSummary{
		ID:           lenientString(v.Get("id")),
		Title:        lenientString(v.Get("title")),
		LastMessage:  lenientString(v.Get("lastMessage")),
		Important:    lenientBool(v.Get("important")),
		Participants: []Participant{},
	}

	if n, ok := lenientNumber(v.Get("unreadCount")); ok && n > 0 {
		sum.UnreadCount = int(n)
	}
	sum.LastActivityAt.Time, _ = ParseTimestamp(v.Get("lastActivityAt"))

	v.Get("participants").ForEach(func(_, p gjson.Result) bool {
		if p.IsObject() {
			sum.Participants = append(sum.Participants, Participant{
				ID:         lenientString(p.Get("id")),
				Name:       lenientString(p.Get("name")),
				Headline:   lenientString(p.Get("headline")),
				ProfileURL: lenientString(p.Get("profileUrl")),
			})
		}
		return true
	})

	return sum
}

// decodeSentMessage reads the confirmed message of POST /messages/send.
func decodeSentMessage(v gjson.Result) SentMessage {
	sent := SentMessage{
		ID:   lenientString(v.Get("id")),
		Text: lenientString(v.Get("text")),
	}
	if sent.ID == "" {
		sent.ID = lenientString(v.Get("messageId"))
	}
	sent.CreatedAt.Time, _ = FirstTimestamp(v, "createdAt", "created_at", "timestamp")
	return sent
}

// decodeRows applies decode to every object element of arr.
func decodeRows[T any](arr gjson.Result, decode func(gjson.Result) T) []T {
	out := []T{}
	arr.ForEach(func(_, v gjson.Result) bool {
		if v.IsObject() {
			out = append(out, decode(v))
		}
		return true
	})
	return out
}

// lenientString accepts strings and numbers. Numbers keep their JSON
// spelling so a numeric id reads the same as its quoted form.
func lenientString(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return strings.TrimSpace(v.Str)
	case gjson.Number:
		return v.Raw
	}
	return ""
}

// lenientNumber accepts finite JSON numbers and numeric strings.
func lenientNumber(v gjson.Result) (float64, bool) {
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

// lenientBool accepts JSON booleans and the strings "true" and "1".
func lenientBool(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.String:
		s := strings.ToLower(strings.TrimSpace(v.Str))
		return s == "true" || s == "1"
	case gjson.Number:
		return v.Num != 0
	}
	return false
}
