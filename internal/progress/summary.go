package progress

import "github.com/alexjbarnes/relaydeck/upstream"

// Summary counts jobs by lifecycle status.
type Summary struct {
	Total    int                        `json:"total" yaml:"total"`
	ByStatus map[upstream.JobStatus]int `json:"by_status" yaml:"by_status"`
}

// Summarize counts jobs by status. Unknown statuses are counted under
// their own key.
func Summarize(jobs []upstream.Automation) Summary {
	s := Summary{
		Total:    len(jobs),
		ByStatus: make(map[upstream.JobStatus]int),
	}
	for _, job := range jobs {
		s.ByStatus[job.Status]++
	}
	return s
}

// Count returns the number of jobs in any of the given statuses.
func (s Summary) Count(statuses ...upstream.JobStatus) int {
	n := 0
	for _, st := range statuses {
		n += s.ByStatus[st]
	}
	return n
}
