package pipeline

import (
	"github.com/diku-dk/staffeli-go/internal/canvas"
)

// Reduce is phase 2: a sequential fold of the mapped results into the
// deduplicated fingerprint-to-handin mapping plus the list of students
// with empty handins.
//
// On a fingerprint collision the student joins the existing group; the
// files and comments of the first-seen contributor are retained. Group
// members' comments are assumed redundant, since they attach to the
// same upload.
func Reduce(results []ProcessResult) (map[string]*HandinGroup, []canvas.User) {
	handins := make(map[string]*HandinGroup)
	var empty []canvas.User

	for _, res := range results {
		if res.Group == nil {
			empty = append(empty, res.Student)
			continue
		}
		if existing, ok := handins[res.Fingerprint]; ok {
			existing.Students = append(existing.Students, res.Student)
			continue
		}
		handins[res.Fingerprint] = res.Group
	}
	return handins, empty
}
