package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/diku-dk/staffeli-go/internal/canvas"
)

// MapSubmissions is phase 1: it fans the student id list out over a
// bounded worker pool, fetches each student's submission and user
// record through the rate-limited fetcher, and classifies the result
// as an empty or non-empty handin.
//
// Failure policy: a fetch failure (retry exhaustion or a non-retriable
// remote error) escalates to process-wide cancellation. Remaining
// workers observe the signal and exit promptly; the phase returns the
// aggregated error after the pool drains.
func (p *Pipeline) MapSubmissions(ctx context.Context, courseID, assignmentID int, studentIDs []int, resubmissionsOnly bool) ([]ProcessResult, error) {
	workers := p.workerCount(len(studentIDs))
	p.logger.Info("mapping submissions",
		slog.Int("students", len(studentIDs)),
		slog.Int("workers", workers),
		slog.Bool("resubmissions_only", resubmissionsOnly))

	jobs := make(chan int)
	results := make(chan ProcessResult, len(studentIDs))

	var mu sync.Mutex
	var errs []error

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			logger := p.logger.With(slog.Int("worker_id", workerID), slog.String("component", "mapper"))
			for id := range jobs {
				if p.cancel.Signalled() {
					continue
				}
				res, err := p.processStudent(ctx, logger, courseID, assignmentID, id, resubmissionsOnly)
				if err != nil {
					if !errors.Is(err, ErrCancelled) {
						logger.Error("submission fetch failed", slog.Int("student_id", id), "error", err)
						mu.Lock()
						errs = append(errs, fmt.Errorf("student %d: %w", id, err))
						mu.Unlock()
					}
					p.cancel.Signal()
					continue
				}
				results <- res
			}
		}(i)
	}

	for _, id := range studentIDs {
		jobs <- id
	}
	close(jobs)
	wg.Wait()
	close(results)

	collected := make([]ProcessResult, 0, len(studentIDs))
	for res := range results {
		collected = append(collected, res)
	}
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	if p.cancel.Signalled() {
		return nil, ErrCancelled
	}
	return collected, nil
}

// processStudent runs the rate-limited fetch for one student and
// extracts the handin-relevant data.
func (p *Pipeline) processStudent(ctx context.Context, logger *slog.Logger, courseID, assignmentID, studentID int, resubmissionsOnly bool) (ProcessResult, error) {
	sub, err := withRetry(ctx, p.cancel, p.retry, logger, func(ctx context.Context) (submissionAndUser, error) {
		s, err := p.remote.GetSubmission(ctx, courseID, assignmentID, studentID)
		if err != nil {
			return submissionAndUser{}, err
		}
		u, err := p.remote.GetUser(ctx, studentID)
		if err != nil {
			return submissionAndUser{}, err
		}
		return submissionAndUser{submission: s, user: u}, nil
	})
	if err != nil {
		return ProcessResult{}, err
	}

	student := sub.user
	empty := len(sub.submission.Attachments) == 0
	if !empty && resubmissionsOnly {
		// Only handins that still need another look: ungraded, or
		// scored strictly below the pass threshold.
		if score := sub.submission.Score; score != nil && *score >= resubmissionThreshold {
			empty = true
		}
	}
	if empty {
		logger.Debug("empty handin", slog.String("student", student.Name))
		return ProcessResult{Student: student}, nil
	}

	files := sub.submission.Attachments
	fp := Fingerprint(files)
	logger.Debug("handin received",
		slog.String("student", student.Name),
		slog.Int("files", len(files)),
		slog.String("fingerprint", fp))
	return ProcessResult{
		Student:     student,
		Fingerprint: fp,
		Group: &HandinGroup{
			Fingerprint: fp,
			Files:       files,
			Students:    []canvas.User{student},
			Comments:    FormatComments(sub.submission.Comments),
		},
	}, nil
}

// resubmissionThreshold is the strict upper bound below which a scored
// submission still counts as needing grading.
const resubmissionThreshold = 1.0

type submissionAndUser struct {
	submission canvas.Submission
	user       canvas.User
}
