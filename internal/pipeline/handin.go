package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/diku-dk/staffeli-go/internal/canvas"
	"github.com/diku-dk/staffeli-go/internal/sheet"
)

// Remote is the slice of the course platform the pipeline needs:
// per-student submission and user lookups plus raw byte transfer.
// Implemented by *canvas.Client.
type Remote interface {
	GetSubmission(ctx context.Context, courseID, assignmentID, userID int) (canvas.Submission, error)
	GetUser(ctx context.Context, id int) (canvas.User, error)
	Download(ctx context.Context, url string) ([]byte, error)
	PostHandin(ctx context.Context, helperURL, filename string, zipData []byte) (string, error)
}

// HandinGroup is one logical handin: the attachment set identified by
// a fingerprint, every student who submitted it, and the submission
// comments of the first-seen contributor. Mutated only by the reducer;
// frozen once materialization starts.
type HandinGroup struct {
	Fingerprint string
	Files       []canvas.Attachment
	Students    []canvas.User
	Comments    string
}

// DirName is the deterministic on-disk directory name of a handin:
// the contributing students' short login handles, sorted and joined
// with "-". Repeated runs against unchanged remote state produce
// identical names.
func (h *HandinGroup) DirName() string {
	handles := make([]string, 0, len(h.Students))
	for _, s := range h.Students {
		handles = append(handles, sheet.KUID(s.LoginID))
	}
	sort.Strings(handles)
	return strings.Join(handles, "-")
}

// SheetStudents converts the contributors to grading-sheet students,
// sorted by login.
func (h *HandinGroup) SheetStudents() []sheet.Student {
	students := make([]sheet.Student, 0, len(h.Students))
	for _, u := range h.Students {
		students = append(students, sheet.Student{ID: u.ID, Name: u.Name, Login: u.LoginID})
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Login < students[j].Login })
	return students
}

// ProcessResult is the per-student outcome of the map phase. Group is
// nil for an empty handin.
type ProcessResult struct {
	Student     canvas.User
	Fingerprint string
	Group       *HandinGroup
}

// FormatComments renders submission comments as one sorted block of
// "{timestamp} - {author}: {text}" lines. Empty string when there are
// no comments.
func FormatComments(comments []canvas.SubmissionComment) string {
	lines := make([]string, 0, len(comments))
	for _, c := range comments {
		lines = append(lines, fmt.Sprintf("%s - %s: %s", c.CreatedAt, c.AuthorName, c.Comment))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
