package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/diku-dk/staffeli-go/internal/canvas"
	"github.com/diku-dk/staffeli-go/internal/sheet"
)

// junkNames are removed recursively from every materialized handin
// directory.
var junkNames = map[string]bool{
	".git":        true,
	"__MACOSX":    true,
	".stack-work": true,
	".DS_Store":   true,
}

const (
	unpackedDirName  = "unpacked"
	commentsBasename = "submission_comments"
	helperResultFile = "onlineTA_results.txt"
)

// MaterializeError is the unrecoverable failure of one handin group's
// materialization. Files already written stay on disk; there is no
// rollback.
type MaterializeError struct {
	Handin string
	Step   string
	Err    error
}

func (e *MaterializeError) Error() string {
	return fmt.Sprintf("materialize %s: %s: %v", e.Handin, e.Step, e.Err)
}

func (e *MaterializeError) Unwrap() error { return e.Err }

// MaterializeAll is phase 3: one task per handin group over a bounded
// worker pool. Groups are fully independent: the
// directory-must-not-preexist check guarantees no two tasks ever write
// the same path.
//
// Failure policy: a group's MaterializeError signals the shared
// canceller; in-flight groups drain, pending groups are skipped, and
// the aggregated error is returned.
func (p *Pipeline) MaterializeAll(ctx context.Context, handins map[string]*HandinGroup, destRoot string, tmpl *sheet.Template) error {
	workers := p.workerCount(len(handins))
	p.logger.Info("materializing handins",
		slog.Int("handins", len(handins)),
		slog.Int("workers", workers))

	jobs := make(chan *HandinGroup)
	var mu sync.Mutex
	var errs []error

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			logger := p.logger.With(slog.Int("worker_id", workerID), slog.String("component", "materializer"))
			for group := range jobs {
				if p.cancel.Signalled() {
					continue
				}
				if err := p.Materialize(ctx, logger, group, destRoot, tmpl); err != nil {
					if !errors.Is(err, ErrCancelled) {
						logger.Error("handin materialization failed", slog.String("handin", group.DirName()), "error", err)
						mu.Lock()
						errs = append(errs, err)
						mu.Unlock()
					}
					p.cancel.Signal()
				}
			}
		}(i)
	}

	for _, group := range handins {
		jobs <- group
	}
	close(jobs)
	wg.Wait()

	if err := joinErrors(errs); err != nil {
		return err
	}
	// An external cancellation skips pending groups without adding an
	// error of its own; it must still surface instead of letting the
	// run report success over a partial tree.
	if p.cancel.Signalled() {
		return ErrCancelled
	}
	return nil
}

// Materialize writes one handin group to disk: the submission
// directory, the downloaded attachments, extracted archives, junk
// removal, the grading-sheet stub, and the comments artifact.
func (p *Pipeline) Materialize(ctx context.Context, logger *slog.Logger, group *HandinGroup, destRoot string, tmpl *sheet.Template) error {
	name := group.DirName()
	base := filepath.Join(destRoot, name)
	logger = logger.With(slog.String("handin", name))
	logger.Info("materializing handin", slog.Int("files", len(group.Files)))

	// The directory must not pre-exist: a collision here means a
	// fingerprint bug or a duplicate run against the same destination.
	if err := os.Mkdir(base, 0o755); err != nil {
		return &MaterializeError{Handin: name, Step: "create directory", Err: err}
	}

	archives := 0
	for _, att := range group.Files {
		if isArchive(att) {
			archives++
		}
	}

	extractedOK := 0
	var singleUnpackDir string
	for _, att := range group.Files {
		if p.cancel.Signalled() {
			return ErrCancelled
		}

		data, err := withRetry(ctx, p.cancel, p.retry, logger, func(ctx context.Context) ([]byte, error) {
			return p.remote.Download(ctx, att.URL)
		})
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				return err
			}
			return &MaterializeError{Handin: name, Step: fmt.Sprintf("download %s", att.Filename), Err: err}
		}
		path := filepath.Join(base, filepath.Base(att.Filename))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return &MaterializeError{Handin: name, Step: fmt.Sprintf("write %s", att.Filename), Err: err}
		}

		if !isArchive(att) {
			continue
		}
		target := filepath.Join(base, filepath.Base(att.Filename)+"_unpacked")
		if archives <= 1 {
			if _, err := os.Stat(filepath.Join(base, unpackedDirName)); os.IsNotExist(err) {
				target = filepath.Join(base, unpackedDirName)
			}
		}
		// Malformed archives are reported and skipped; the rest of the
		// handin still materializes.
		if err := extractZip(data, target); err != nil {
			logger.Warn("archive extraction failed, skipping",
				slog.String("file", att.Filename), "error", err)
			continue
		}
		extractedOK++
		singleUnpackDir = target
	}

	if tmpl.OnlineTA != "" {
		switch {
		case archives > 1:
			logger.Warn("multiple archives in handin, skipping online grading helper",
				slog.Int("archives", archives))
		case archives == 1 && extractedOK == 1:
			if err := p.runOnlineTA(ctx, logger, base, singleUnpackDir, tmpl.OnlineTA); err != nil {
				// Best effort: the helper post-back never fails the handin.
				logger.Warn("online grading helper failed", "error", err)
			}
		}
	}

	if err := removeJunk(base); err != nil {
		return &MaterializeError{Handin: name, Step: "remove junk", Err: err}
	}

	gradeSheet := tmpl.NewSheet(group.SheetStudents())
	if err := sheet.WriteYAML(filepath.Join(base, sheet.SheetFilename), gradeSheet); err != nil {
		return &MaterializeError{Handin: name, Step: "write grading sheet", Err: err}
	}

	if group.Comments != "" {
		if err := writeComments(base, group.Comments); err != nil {
			return &MaterializeError{Handin: name, Step: "write comments", Err: err}
		}
	}

	logger.Info("handin materialized", slog.Int("archives_extracted", extractedOK))
	return nil
}

// runOnlineTA hands the extracted code off to the external analysis
// service: find the README-like file, zip the directory containing it,
// POST the zip, and append the raw response to onlineTA_results.txt.
func (p *Pipeline) runOnlineTA(ctx context.Context, logger *slog.Logger, base, unpackDir, helperURL string) error {
	readme, err := findReadme(unpackDir)
	if err != nil {
		return err
	}
	if readme == "" {
		logger.Warn("no README found in extracted tree, skipping online grading helper")
		return nil
	}
	codeDir := filepath.Dir(readme)
	zipped, err := zipDir(codeDir)
	if err != nil {
		return fmt.Errorf("zip %s: %w", codeDir, err)
	}

	logger.Info("posting handin to online grading helper", slog.String("url", helperURL))
	resp, err := p.remote.PostHandin(ctx, helperURL, fmt.Sprintf("handin-%s.zip", uuid.NewString()), zipped)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(base, helperResultFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, writeErr := f.WriteString(resp)
	if err := f.Close(); err != nil && writeErr == nil {
		writeErr = err
	}
	return writeErr
}

// isArchive reports whether an attachment should be unpacked: either
// the platform classified it as a zip or the filename says so.
func isArchive(att canvas.Attachment) bool {
	return att.MimeClass == "zip" || strings.HasSuffix(strings.ToLower(att.Filename), ".zip")
}

// findReadme returns the lexicographically first file under root whose
// name starts with "README" (case-insensitive), or "" when none exist.
func findReadme(root string) (string, error) {
	var matches []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasPrefix(strings.ToUpper(d.Name()), "README") {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	return matches[0], nil
}

// zipDir packs a directory tree into an in-memory zip with paths
// relative to dir.
func zipDir(dir string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, copyErr := io.Copy(w, f)
		if err := f.Close(); err != nil && copyErr == nil {
			copyErr = err
		}
		return copyErr
	})
	if err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
