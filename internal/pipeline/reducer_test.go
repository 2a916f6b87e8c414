package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diku-dk/staffeli-go/internal/canvas"
)

func result(student canvas.User, files ...canvas.Attachment) ProcessResult {
	if len(files) == 0 {
		return ProcessResult{Student: student}
	}
	fp := Fingerprint(files)
	return ProcessResult{
		Student:     student,
		Fingerprint: fp,
		Group: &HandinGroup{
			Fingerprint: fp,
			Files:       files,
			Students:    []canvas.User{student},
		},
	}
}

func TestReduceMergesSharedFingerprints(t *testing.T) {
	shared := []canvas.Attachment{{Filename: "code.zip", UUID: "aaa"}, {Filename: "report.pdf", UUID: "bbb"}}
	alice := canvas.User{ID: 1, Name: "Alice", LoginID: "abc123@ku.dk"}
	bob := canvas.User{ID: 2, Name: "Bob", LoginID: "xyz789@ku.dk"}
	carol := canvas.User{ID: 3, Name: "Carol", LoginID: "qrs456@ku.dk"}

	handins, empty := Reduce([]ProcessResult{
		result(alice, shared...),
		result(bob, shared[1], shared[0]),
		result(carol, canvas.Attachment{Filename: "solo.zip", UUID: "ccc"}),
	})

	assert.Empty(t, empty)
	require.Len(t, handins, 2)

	group := handins[Fingerprint(shared)]
	require.NotNil(t, group)
	assert.Len(t, group.Students, 2)
	assert.Equal(t, "abc123-xyz789", group.DirName())

	solo := handins["ccc"]
	require.NotNil(t, solo)
	assert.Equal(t, []canvas.User{carol}, solo.Students)
}

func TestReduceKeepsFirstSeenFilesAndComments(t *testing.T) {
	files := []canvas.Attachment{{Filename: "a.zip", UUID: "aaa"}}
	first := result(canvas.User{ID: 1, LoginID: "a@ku.dk"}, files...)
	first.Group.Comments = "first comment"
	second := result(canvas.User{ID: 2, LoginID: "b@ku.dk"}, files...)
	second.Group.Comments = "second comment"

	handins, _ := Reduce([]ProcessResult{first, second})
	require.Len(t, handins, 1)
	assert.Equal(t, "first comment", handins["aaa"].Comments)
	assert.Equal(t, files, handins["aaa"].Files)
}

func TestReduceCollectsEmptyHandins(t *testing.T) {
	alice := canvas.User{ID: 1, Name: "Alice"}
	bob := canvas.User{ID: 2, Name: "Bob", LoginID: "xyz789@ku.dk"}

	handins, empty := Reduce([]ProcessResult{
		result(alice),
		result(bob, canvas.Attachment{UUID: "aaa"}),
	})

	assert.Equal(t, []canvas.User{alice}, empty)
	assert.Len(t, handins, 1)
}

func TestReduceOrderIndependent(t *testing.T) {
	shared := []canvas.Attachment{{UUID: "s1"}, {UUID: "s2"}}
	results := []ProcessResult{
		result(canvas.User{ID: 1, LoginID: "a@x"}, shared...),
		result(canvas.User{ID: 2, LoginID: "b@x"}, shared[1], shared[0]),
		result(canvas.User{ID: 3, LoginID: "c@x"}),
		result(canvas.User{ID: 4, LoginID: "d@x"}, canvas.Attachment{UUID: "t"}),
	}
	permuted := []ProcessResult{results[3], results[1], results[0], results[2]}

	handins, empty := Reduce(results)
	handinsPerm, emptyPerm := Reduce(permuted)

	assert.ElementsMatch(t, empty, emptyPerm)
	require.Len(t, handinsPerm, len(handins))
	for fp, group := range handins {
		other, ok := handinsPerm[fp]
		require.True(t, ok, "fingerprint %s missing after permutation", fp)
		assert.ElementsMatch(t, group.Students, other.Students)
	}
}

func TestReduceEveryStudentAccountedForOnce(t *testing.T) {
	shared := []canvas.Attachment{{UUID: "s"}}
	results := []ProcessResult{
		result(canvas.User{ID: 1, LoginID: "a@x"}, shared...),
		result(canvas.User{ID: 2, LoginID: "b@x"}, shared...),
		result(canvas.User{ID: 3, LoginID: "c@x"}),
		result(canvas.User{ID: 4, LoginID: "d@x"}, canvas.Attachment{UUID: "t"}),
	}

	handins, empty := Reduce(results)
	total := len(empty)
	for _, g := range handins {
		total += len(g.Students)
	}
	assert.Equal(t, len(results), total)
}
