package progress

import "github.com/alexjbarnes/relaydeck/upstream"

// Matches reports whether ev targets job. The event and the job each
// carry a primary and a secondary id; any equal cross pair is a match.
// Empty ids never match anything.
func Matches(ev Event, job upstream.Automation) bool {
	jobIDs := [2]string{job.ID, job.ExecutionID}

	for _, id := range [2]string{ev.PrimaryID, ev.SecondaryID} {
		if id == "" {
			continue
		}
		for _, candidate := range jobIDs {
			if id == candidate {
				return true
			}
		}
	}

	return false
}
