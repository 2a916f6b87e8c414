package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diku-dk/staffeli-go/internal/canvas"
	"github.com/diku-dk/staffeli-go/internal/sheet"
)

func makeZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testTemplate() *sheet.Template {
	points := 10.0
	return &sheet.Template{
		Name: "Assignment 1",
		Tasks: []sheet.Task{
			{Name: "task1", Title: "Task 1", Points: &points},
		},
	}
}

func TestMaterializeSingleArchive(t *testing.T) {
	dest := t.TempDir()
	remote := newFakeRemote()
	remote.files["http://files/code.zip"] = makeZip(t, map[string]string{
		"src/main.hs": "main = return ()",
	})

	group := &HandinGroup{
		Fingerprint: "aaa",
		Files: []canvas.Attachment{
			{Filename: "code.zip", URL: "http://files/code.zip", MimeClass: "zip", UUID: "aaa"},
		},
		Students: []canvas.User{
			{ID: 2, Name: "Bob", LoginID: "xyz789@ku.dk"},
			{ID: 1, Name: "Alice", LoginID: "abc123@ku.dk"},
		},
		Comments: "2026-01-01T10:00:00Z - TA: looks good",
	}

	p := testPipeline(remote)
	require.NoError(t, p.Materialize(context.Background(), testLogger(), group, dest, testTemplate()))

	base := filepath.Join(dest, "abc123-xyz789")
	assert.FileExists(t, filepath.Join(base, "code.zip"))
	assert.FileExists(t, filepath.Join(base, "unpacked", "src", "main.hs"))

	data, err := os.ReadFile(filepath.Join(base, sheet.SheetFilename))
	require.NoError(t, err)
	s, err := sheet.ParseSheet(data)
	require.NoError(t, err)
	assert.Equal(t, "Assignment 1", s.Name)
	require.Len(t, s.Students, 2)
	assert.Equal(t, "abc123@ku.dk", s.Students[0].Login)

	comments, err := os.ReadFile(filepath.Join(base, "submission_comments.txt"))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(comments, []byte{0xEF, 0xBB, 0xBF}))
	assert.Equal(t, group.Comments, string(bytes.TrimPrefix(comments, []byte{0xEF, 0xBB, 0xBF})))
}

func TestMaterializeTwoArchivesGetSuffixedDirs(t *testing.T) {
	dest := t.TempDir()
	remote := newFakeRemote()
	remote.files["http://files/a.zip"] = makeZip(t, map[string]string{"a.txt": "a"})
	remote.files["http://files/b.zip"] = makeZip(t, map[string]string{"b.txt": "b"})

	group := &HandinGroup{
		Fingerprint: "aaa-bbb",
		Files: []canvas.Attachment{
			{Filename: "a.zip", URL: "http://files/a.zip", MimeClass: "zip", UUID: "aaa"},
			{Filename: "b.zip", URL: "http://files/b.zip", MimeClass: "zip", UUID: "bbb"},
		},
		Students: []canvas.User{{ID: 1, Name: "Alice", LoginID: "abc123@ku.dk"}},
	}

	tmpl := testTemplate()
	tmpl.OnlineTA = "http://helper/upload"
	p := testPipeline(remote)
	require.NoError(t, p.Materialize(context.Background(), testLogger(), group, dest, tmpl))

	base := filepath.Join(dest, "abc123")
	assert.FileExists(t, filepath.Join(base, "a.zip_unpacked", "a.txt"))
	assert.FileExists(t, filepath.Join(base, "b.zip_unpacked", "b.txt"))
	assert.NoDirExists(t, filepath.Join(base, "unpacked"))

	// More than one archive means the helper cannot tell which one to
	// grade, so nothing is posted.
	assert.Empty(t, remote.posts)
	assert.NoFileExists(t, filepath.Join(base, "onlineTA_results.txt"))
}

func TestMaterializePostsToGradingHelper(t *testing.T) {
	dest := t.TempDir()
	remote := newFakeRemote()
	remote.postReply = "all tests passed\n"
	remote.files["http://files/code.zip"] = makeZip(t, map[string]string{
		"handin/README.md": "how to run",
		"handin/main.py":   "print('hi')",
	})

	group := &HandinGroup{
		Fingerprint: "aaa",
		Files: []canvas.Attachment{
			{Filename: "code.zip", URL: "http://files/code.zip", MimeClass: "zip", UUID: "aaa"},
		},
		Students: []canvas.User{{ID: 1, Name: "Alice", LoginID: "abc123@ku.dk"}},
	}

	tmpl := testTemplate()
	tmpl.OnlineTA = "http://helper/upload"
	p := testPipeline(remote)
	require.NoError(t, p.Materialize(context.Background(), testLogger(), group, dest, tmpl))

	require.Equal(t, []string{"http://helper/upload"}, remote.posts)
	result, err := os.ReadFile(filepath.Join(dest, "abc123", "onlineTA_results.txt"))
	require.NoError(t, err)
	assert.Equal(t, remote.postReply, string(result))
}

func TestMaterializeRemovesJunk(t *testing.T) {
	dest := t.TempDir()
	remote := newFakeRemote()
	remote.files["http://files/code.zip"] = makeZip(t, map[string]string{
		"src/main.hs":           "main = return ()",
		"src/.DS_Store":         "junk",
		"__MACOSX/._main.hs":    "junk",
		".stack-work/cache.bin": "junk",
	})

	group := &HandinGroup{
		Fingerprint: "aaa",
		Files: []canvas.Attachment{
			{Filename: "code.zip", URL: "http://files/code.zip", MimeClass: "zip", UUID: "aaa"},
		},
		Students: []canvas.User{{ID: 1, Name: "Alice", LoginID: "abc123@ku.dk"}},
	}

	p := testPipeline(remote)
	require.NoError(t, p.Materialize(context.Background(), testLogger(), group, dest, testTemplate()))

	unpacked := filepath.Join(dest, "abc123", "unpacked")
	assert.FileExists(t, filepath.Join(unpacked, "src", "main.hs"))
	assert.NoFileExists(t, filepath.Join(unpacked, "src", ".DS_Store"))
	assert.NoDirExists(t, filepath.Join(unpacked, "__MACOSX"))
	assert.NoDirExists(t, filepath.Join(unpacked, ".stack-work"))
}

func TestMaterializeCommentsNameCollision(t *testing.T) {
	dest := t.TempDir()
	remote := newFakeRemote()
	remote.files["http://files/submission_comments.txt"] = []byte("a student file with an awkward name")

	group := &HandinGroup{
		Fingerprint: "aaa",
		Files: []canvas.Attachment{
			{Filename: "submission_comments.txt", URL: "http://files/submission_comments.txt", UUID: "aaa"},
		},
		Students: []canvas.User{{ID: 1, Name: "Alice", LoginID: "abc123@ku.dk"}},
		Comments: "2026-01-01T10:00:00Z - TA: hello",
	}

	p := testPipeline(remote)
	require.NoError(t, p.Materialize(context.Background(), testLogger(), group, dest, testTemplate()))

	base := filepath.Join(dest, "abc123")
	original, err := os.ReadFile(filepath.Join(base, "submission_comments.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a student file with an awkward name", string(original))

	probed, err := os.ReadFile(filepath.Join(base, "submission_comments(1).txt"))
	require.NoError(t, err)
	assert.Contains(t, string(probed), "TA: hello")
}

func TestMaterializeRefusesExistingDirectory(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dest, "abc123"), 0o755))

	group := &HandinGroup{
		Fingerprint: "aaa",
		Files:       []canvas.Attachment{{Filename: "a.txt", URL: "http://files/a.txt", UUID: "aaa"}},
		Students:    []canvas.User{{ID: 1, Name: "Alice", LoginID: "abc123@ku.dk"}},
	}

	p := testPipeline(newFakeRemote())
	err := p.Materialize(context.Background(), testLogger(), group, dest, testTemplate())
	require.Error(t, err)
	var merr *MaterializeError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "create directory", merr.Step)
}

func TestMaterializeAllSurfacesCancellation(t *testing.T) {
	dest := t.TempDir()
	remote := newFakeRemote()
	remote.files["http://files/code.zip"] = makeZip(t, map[string]string{"a.txt": "a"})

	handins := map[string]*HandinGroup{
		"aaa": {
			Fingerprint: "aaa",
			Files: []canvas.Attachment{
				{Filename: "code.zip", URL: "http://files/code.zip", MimeClass: "zip", UUID: "aaa"},
			},
			Students: []canvas.User{{ID: 1, Name: "Alice", LoginID: "abc123@ku.dk"}},
		},
	}

	p := testPipeline(remote)
	p.Canceller().Signal()
	err := p.MaterializeAll(context.Background(), handins, dest, testTemplate())
	// Every group was skipped, so success would hide a partial tree.
	assert.ErrorIs(t, err, ErrCancelled)
	assert.NoDirExists(t, filepath.Join(dest, "abc123"))
}

func TestMaterializeSkipsMalformedArchive(t *testing.T) {
	dest := t.TempDir()
	remote := newFakeRemote()
	remote.files["http://files/broken.zip"] = []byte("this is not a zip")

	group := &HandinGroup{
		Fingerprint: "aaa",
		Files: []canvas.Attachment{
			{Filename: "broken.zip", URL: "http://files/broken.zip", MimeClass: "zip", UUID: "aaa"},
		},
		Students: []canvas.User{{ID: 1, Name: "Alice", LoginID: "abc123@ku.dk"}},
	}

	p := testPipeline(remote)
	require.NoError(t, p.Materialize(context.Background(), testLogger(), group, dest, testTemplate()))

	base := filepath.Join(dest, "abc123")
	assert.FileExists(t, filepath.Join(base, "broken.zip"))
	assert.NoDirExists(t, filepath.Join(base, "unpacked"))
	assert.FileExists(t, filepath.Join(base, sheet.SheetFilename))
}
