package canvas

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradeSubmission(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/courses/10/assignments/20/submissions/1", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "37.5", r.PostForm.Get("submission[posted_grade]"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	require.NoError(t, c.GradeSubmission(context.Background(), 10, 20, 1, 37.5))
}

func TestCommentWithFileThreeStepUpload(t *testing.T) {
	var steps []string
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/courses/10/assignments/20/submissions/1/comments/files":
			steps = append(steps, "declare")
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "feedback.txt", r.PostForm.Get("name"))
			assert.Equal(t, "8", r.PostForm.Get("size"))
			fmt.Fprintf(w, `{"upload_url": "%s/upload", "upload_params": {"key": "abc"}}`, srv.URL)
		case r.URL.Path == "/upload":
			steps = append(steps, "upload")
			f, _, err := r.FormFile("file")
			require.NoError(t, err)
			defer f.Close()
			assert.Equal(t, "abc", r.FormValue("key"))
			fmt.Fprint(w, `{"id": 555}`)
		case r.Method == http.MethodPut:
			steps = append(steps, "comment")
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "555", r.PostForm.Get("comment[file_ids][]"))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	require.NoError(t, c.CommentWithFile(context.Background(), 10, 20, 1, "feedback.txt", []byte("feedback")))
	assert.Equal(t, []string{"declare", "upload", "comment"}, steps)
}
