package cmd

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/diku-dk/staffeli-go/internal/canvas"
	"github.com/diku-dk/staffeli-go/internal/sheet"
)

var (
	uploadLive bool
	uploadStep bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload TEMPLATE_PATH SUBMISSIONS_PATH",
	Short: "Upload grades and feedback for a graded submissions tree",
	Long: `Reads every grade.yml under the submissions tree and pushes the total
grade and rendered feedback to the platform. Dry-run by default; pass --live
to actually upload. Feedback identical to an already-uploaded comment
attachment is not uploaded again.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		templatePath, submissionsPath := args[0], args[1]
		ctx := cmd.Context()

		data, err := os.ReadFile(templatePath)
		if err != nil {
			return fmt.Errorf("read template: %w", err)
		}
		tmpl, err := sheet.ParseTemplate(data)
		if err != nil {
			return err
		}

		metaData, err := os.ReadFile(filepath.Join(submissionsPath, "meta.yml"))
		if err != nil {
			return fmt.Errorf("read meta.yml: %w", err)
		}
		meta, err := sheet.ParseMeta(metaData)
		if err != nil {
			return err
		}

		sheets, err := sheet.CollectSheets(submissionsPath)
		if err != nil {
			return err
		}
		for _, found := range sheets {
			if !found.Sheet.Graded(tmpl) {
				term.Warningf("Sheet not graded: %s", found.Path)
			}
		}

		// Reverse map: student id -> grading sheet. A student on two
		// sheets is a distribution bug, not something to recover from.
		handins := make(map[int]*sheet.GradingSheet)
		for _, found := range sheets {
			for _, student := range found.Sheet.Students {
				if _, dup := handins[student.ID]; dup {
					return fmt.Errorf("student %d (%s) assigned multiple sheets", student.ID, student.Name)
				}
				handins[student.ID] = found.Sheet
			}
		}

		course, err := client.GetCourse(ctx, meta.Course.ID)
		if err != nil {
			return err
		}
		assignment, err := client.GetAssignment(ctx, course.ID, meta.Assignment.ID)
		if err != nil {
			return err
		}

		var submissions []canvas.Submission
		var section *canvas.Section
		if meta.Assignment.Section != 0 {
			s, err := client.GetSection(ctx, course.ID, meta.Assignment.Section)
			if err != nil {
				return err
			}
			section = &s
			term.Infof("Prepare upload for section %s", s.Name)
			submissions, err = client.GetMultipleSubmissions(ctx, course.ID, []int{assignment.ID}, s.ActiveStudentIDs())
			if err != nil {
				return err
			}
		} else {
			submissions, err = client.ListSubmissions(ctx, course.ID, assignment.ID)
			if err != nil {
				return err
			}
		}

		if uploadLive {
			term.Infof("Uploading feedback to: %s", assignment.Name)
			ok, err := term.Confirm("Sure?")
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		} else {
			term.Infof("Doing a dry-run...")
		}

		for _, submission := range submissions {
			gradeSheet, ok := handins[submission.UserID]
			if !ok {
				term.Infof("No handin for: %d", submission.UserID)
				continue
			}
			delete(handins, submission.UserID)

			feedback := tmpl.FormatMD(gradeSheet)
			if uploadStep {
				term.Printf("Feedback for %d:", submission.UserID)
				term.Printf("%s", feedback)
				term.Printf("-----------------------------------")
				if err := term.Pause(); err != nil {
					return err
				}
			}

			total := gradeSheet.Grade(tmpl)
			if total == nil && uploadLive {
				continue
			}
			if err := gradeOne(ctx, course, assignment, submission, total, feedback, !uploadLive); err != nil {
				return err
			}
		}

		// Whatever is left never matched a submission.
		warned := make(map[*sheet.GradingSheet]bool)
		for _, leftover := range handins {
			if warned[leftover] {
				continue
			}
			warned[leftover] = true
			names := make([]string, 0, len(leftover.Students))
			for _, s := range leftover.Students {
				names = append(names, s.Name)
			}
			term.Warningf("The grade and feedback for %s is not uploaded.", strings.Join(names, ", "))
			if section != nil {
				term.Warningf("Most likely because they are not in section '%s' (anymore?).", section.Name)
			}
		}
		return nil
	},
}

// gradeOne uploads the feedback (unless an identical comment
// attachment already exists) and sets the posted grade when it
// changed.
func gradeOne(ctx context.Context, course canvas.Course, assignment canvas.Assignment, submission canvas.Submission, total *float64, feedback string, dryRun bool) error {
	term.Printf("Submit: user_id=%d, grade=%v", submission.UserID, gradeString(total))
	if dryRun {
		return nil
	}

	duplicate := false
	for _, comment := range submission.Comments {
		for _, att := range comment.Attachments {
			if duplicate {
				break
			}
			contents, err := client.Download(ctx, att.URL)
			if err != nil {
				rootLogger.Warn("could not fetch existing feedback attachment", "error", err)
				continue
			}
			duplicate = strings.TrimSpace(string(contents)) == strings.TrimSpace(feedback)
		}
	}

	if duplicate {
		term.Infof("Feedback already uploaded: %d", submission.UserID)
	} else {
		term.Infof("Uploading new feedback: %d", submission.UserID)
		if err := client.CommentWithFile(ctx, course.ID, assignment.ID, submission.UserID, "feedback.txt", []byte(feedback)); err != nil {
			return err
		}
	}

	if total == nil {
		return nil
	}
	if submission.Score == nil || math.Abs(*submission.Score-*total) > 0.001 {
		return client.GradeSubmission(ctx, course.ID, assignment.ID, submission.UserID, *total)
	}
	return nil
}

func gradeString(total *float64) string {
	if total == nil {
		return "?"
	}
	return fmt.Sprintf("%v", *total)
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadLive, "live", false, "actually upload instead of a dry-run")
	uploadCmd.Flags().BoolVar(&uploadStep, "step", false, "show each feedback text and wait before continuing")
}
