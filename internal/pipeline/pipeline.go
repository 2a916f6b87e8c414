// Package pipeline implements the parallel submission-fetch pipeline:
// a concurrent map over per-student submission fetches, a sequential
// reduce into fingerprint-deduplicated handin groups, and a concurrent
// materialization of each group into an on-disk submissions tree.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/diku-dk/staffeli-go/internal/canvas"
	"github.com/diku-dk/staffeli-go/internal/config"
	"github.com/diku-dk/staffeli-go/internal/sheet"
)

// Pipeline drives the three fetch phases against one assignment.
type Pipeline struct {
	remote Remote
	cfg    *config.Config
	logger *slog.Logger
	cancel *Canceller
	retry  RetryState
}

// New creates a pipeline with a fresh cancellation latch.
func New(remote Remote, cfg *config.Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		remote: remote,
		cfg:    cfg,
		logger: logger,
		cancel: NewCanceller(),
		retry:  NewRetryState(cfg),
	}
}

// Canceller exposes the shared latch, mainly for tests and for wiring
// external interrupts into the pipeline.
func (p *Pipeline) Canceller() *Canceller { return p.cancel }

func (p *Pipeline) workerCount(items int) int {
	workers := p.cfg.Workers
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	if items < workers {
		workers = items
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// Request describes one full download run.
type Request struct {
	Course            canvas.Course
	Assignment        canvas.Assignment
	SectionID         int // 0 when not scoped to a section
	StudentIDs        []int
	ResubmissionsOnly bool
	Destination       string
	Template          *sheet.Template
}

// Summary reports what a completed run produced.
type Summary struct {
	Handins int
	Empty   int
}

// Run executes the full pipeline: map, reduce, materialize, then the
// empty.yml and meta.yml artifacts at the destination root. There is a
// hard barrier between each phase. Partial output is left in place on
// failure; operators delete and re-run.
func (p *Pipeline) Run(ctx context.Context, req Request) (Summary, error) {
	if err := mkdirFresh(req.Destination); err != nil {
		return Summary{}, err
	}

	// An external interrupt trips the shared latch so that workers
	// stuck in backoff waits stop immediately too.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			p.cancel.Signal()
		case <-watchDone:
		}
	}()

	results, err := p.MapSubmissions(ctx, req.Course.ID, req.Assignment.ID, req.StudentIDs, req.ResubmissionsOnly)
	if err != nil {
		return Summary{}, describeFailure(err)
	}

	handins, empty := Reduce(results)
	p.logger.Info("reduced submissions",
		slog.Int("handins", len(handins)),
		slog.Int("empty", len(empty)))

	if err := p.MaterializeAll(ctx, handins, req.Destination, req.Template); err != nil {
		return Summary{}, describeFailure(err)
	}

	emptyStudents := make([]sheet.Student, 0, len(empty))
	for _, u := range empty {
		emptyStudents = append(emptyStudents, sheet.Student{ID: u.ID, Name: u.Name, Login: u.LoginID})
	}
	if err := sheet.WriteYAML(filepath.Join(req.Destination, "empty.yml"), emptyStudents); err != nil {
		return Summary{}, fmt.Errorf("write empty.yml: %w", err)
	}

	meta := sheet.Meta{
		Course: sheet.MetaCourse{ID: req.Course.ID, Name: req.Course.Name},
		Assignment: sheet.MetaAssignment{
			ID:      req.Assignment.ID,
			Name:    req.Assignment.Name,
			Section: req.SectionID,
		},
	}
	if err := sheet.WriteYAML(filepath.Join(req.Destination, "meta.yml"), meta); err != nil {
		return Summary{}, fmt.Errorf("write meta.yml: %w", err)
	}

	return Summary{Handins: len(handins), Empty: len(empty)}, nil
}

// mkdirFresh creates the destination root, refusing to reuse an
// existing directory from a previous run.
func mkdirFresh(path string) error {
	if err := os.Mkdir(path, 0o755); err != nil {
		return fmt.Errorf("destination %s: %w (delete it and re-run, or pick another)", path, err)
	}
	return nil
}

// describeFailure makes the terminal error actionable: rate-limit
// exhaustion points at concurrency, everything else surfaces its cause
// chain as-is.
func describeFailure(err error) error {
	var rle *RateLimitExhaustedError
	if errors.As(err, &rle) {
		return fmt.Errorf("%w (the platform kept rate limiting; re-run with fewer workers)", err)
	}
	return err
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
