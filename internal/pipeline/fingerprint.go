package pipeline

import (
	"sort"
	"strings"

	"github.com/diku-dk/staffeli-go/internal/canvas"
)

// Fingerprint derives the content-addressed key of a set of submitted
// files: the attachment UUIDs sorted lexicographically and joined with
// "-". Group submissions show up as separate per-student submission
// records carrying the same attachment set, so an order-independent
// key lets the reducer merge them into one handin.
func Fingerprint(files []canvas.Attachment) string {
	uuids := make([]string, 0, len(files))
	for _, f := range files {
		uuids = append(uuids, f.UUID)
	}
	sort.Strings(uuids)
	return strings.Join(uuids, "-")
}
