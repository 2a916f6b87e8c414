package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diku-dk/staffeli-go/internal/canvas"
	"github.com/diku-dk/staffeli-go/internal/config"
)

// fakeRemote serves canned submissions and users, and records downloads
// and helper posts. Safe for concurrent use.
type fakeRemote struct {
	mu          sync.Mutex
	submissions map[int]canvas.Submission
	users       map[int]canvas.User
	files       map[string][]byte
	subErrs     map[int]error
	downloads   []string
	posts       []string
	postReply   string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		submissions: make(map[int]canvas.Submission),
		users:       make(map[int]canvas.User),
		files:       make(map[string][]byte),
		subErrs:     make(map[int]error),
	}
}

func (f *fakeRemote) GetSubmission(ctx context.Context, courseID, assignmentID, userID int) (canvas.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.subErrs[userID]; err != nil {
		return canvas.Submission{}, err
	}
	s, ok := f.submissions[userID]
	if !ok {
		return canvas.Submission{}, fmt.Errorf("no submission for user %d", userID)
	}
	return s, nil
}

func (f *fakeRemote) GetUser(ctx context.Context, id int) (canvas.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return canvas.User{}, fmt.Errorf("no user %d", id)
	}
	return u, nil
}

func (f *fakeRemote) Download(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, url)
	data, ok := f.files[url]
	if !ok {
		return nil, &canvas.APIError{StatusCode: 404, URL: url, Body: "not found"}
	}
	return data, nil
}

func (f *fakeRemote) PostHandin(ctx context.Context, helperURL, filename string, zipData []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, helperURL)
	return f.postReply, nil
}

func (f *fakeRemote) addStudent(id int, name, login string, sub canvas.Submission) {
	sub.UserID = id
	f.submissions[id] = sub
	f.users[id] = canvas.User{ID: id, Name: name, LoginID: login}
}

func testConfig() *config.Config {
	return &config.Config{
		Workers:    4,
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Jitter:     time.Millisecond,
	}
}

func testPipeline(remote Remote) *Pipeline {
	return New(remote, testConfig(), testLogger())
}

func ptr(v float64) *float64 { return &v }

func TestMapSubmissionsClassifies(t *testing.T) {
	remote := newFakeRemote()
	remote.addStudent(1, "Alice", "abc123@ku.dk", canvas.Submission{
		Attachments: []canvas.Attachment{{Filename: "code.zip", UUID: "aaa"}},
	})
	remote.addStudent(2, "Bob", "xyz789@ku.dk", canvas.Submission{})

	p := testPipeline(remote)
	results, err := p.MapSubmissions(context.Background(), 10, 20, []int{1, 2}, false)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := make(map[int]ProcessResult)
	for _, r := range results {
		byID[r.Student.ID] = r
	}
	require.NotNil(t, byID[1].Group)
	assert.Equal(t, "aaa", byID[1].Fingerprint)
	assert.Nil(t, byID[2].Group)
}

func TestMapSubmissionsResubmissionsOnly(t *testing.T) {
	remote := newFakeRemote()
	files := []canvas.Attachment{{Filename: "code.zip", UUID: "aaa"}}
	remote.addStudent(1, "Passed", "a@ku.dk", canvas.Submission{Attachments: files, Score: ptr(1.0)})
	remote.addStudent(2, "Failed", "b@ku.dk", canvas.Submission{Attachments: files, Score: ptr(0.5)})
	remote.addStudent(3, "Ungraded", "c@ku.dk", canvas.Submission{Attachments: files})

	p := testPipeline(remote)
	results, err := p.MapSubmissions(context.Background(), 10, 20, []int{1, 2, 3}, true)
	require.NoError(t, err)

	byID := make(map[int]ProcessResult)
	for _, r := range results {
		byID[r.Student.ID] = r
	}
	// A score at the pass threshold counts as done.
	assert.Nil(t, byID[1].Group)
	assert.NotNil(t, byID[2].Group)
	assert.NotNil(t, byID[3].Group)
}

func TestMapSubmissionsFetchFailureCancelsRun(t *testing.T) {
	remote := newFakeRemote()
	for id := 1; id <= 20; id++ {
		remote.addStudent(id, fmt.Sprintf("Student %d", id), fmt.Sprintf("s%d@ku.dk", id), canvas.Submission{
			Attachments: []canvas.Attachment{{UUID: fmt.Sprintf("u%d", id)}},
		})
	}
	remote.subErrs[7] = &canvas.APIError{StatusCode: 500, URL: "http://x", Body: "boom"}

	ids := make([]int, 0, 20)
	for id := 1; id <= 20; id++ {
		ids = append(ids, id)
	}

	p := testPipeline(remote)
	_, err := p.MapSubmissions(context.Background(), 10, 20, ids, false)
	require.Error(t, err)
	assert.ErrorContains(t, err, "student 7")
	assert.True(t, p.Canceller().Signalled())
}

func TestMapSubmissionsRetriesRateLimits(t *testing.T) {
	remote := newFakeRemote()
	remote.addStudent(1, "Alice", "abc123@ku.dk", canvas.Submission{
		Attachments: []canvas.Attachment{{UUID: "aaa"}},
	})

	var calls int
	flaky := &flakyRemote{fakeRemote: remote, failFirst: 2, calls: &calls}
	p := testPipeline(flaky)
	results, err := p.MapSubmissions(context.Background(), 10, 20, []int{1}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 3, calls)
}

// flakyRemote rate-limits the first failFirst GetSubmission calls.
type flakyRemote struct {
	*fakeRemote
	failFirst int
	calls     *int
}

func (f *flakyRemote) GetSubmission(ctx context.Context, courseID, assignmentID, userID int) (canvas.Submission, error) {
	f.mu.Lock()
	*f.calls++
	n := *f.calls
	f.mu.Unlock()
	if n <= f.failFirst {
		return canvas.Submission{}, &canvas.RateLimitError{StatusCode: 429, URL: "http://x"}
	}
	return f.fakeRemote.GetSubmission(ctx, courseID, assignmentID, userID)
}

func TestFormatCommentsSortedBlock(t *testing.T) {
	got := FormatComments([]canvas.SubmissionComment{
		{CreatedAt: "2026-02-01T10:00:00Z", AuthorName: "TA", Comment: "second"},
		{CreatedAt: "2026-01-01T10:00:00Z", AuthorName: "Alice", Comment: "first"},
	})
	assert.Equal(t,
		"2026-01-01T10:00:00Z - Alice: first\n2026-02-01T10:00:00Z - TA: second",
		got)
	assert.Equal(t, "", FormatComments(nil))
}
