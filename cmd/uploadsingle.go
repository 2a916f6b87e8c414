package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/diku-dk/staffeli-go/internal/sheet"
)

var uploadSingleLive bool

var uploadSingleCmd = &cobra.Command{
	Use:   "upload-single POINTS META_PATH GRADE_PATH FEEDBACK_PATH",
	Short: "Upload feedback for a single submission",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		points, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("points %q is not a number", args[0])
		}
		ctx := cmd.Context()

		metaData, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read meta: %w", err)
		}
		meta, err := sheet.ParseMeta(metaData)
		if err != nil {
			return err
		}

		sheetData, err := os.ReadFile(args[2])
		if err != nil {
			return fmt.Errorf("read grade sheet: %w", err)
		}
		gradeSheet, err := sheet.ParseSheet(sheetData)
		if err != nil {
			return err
		}

		feedback, err := os.ReadFile(args[3])
		if err != nil {
			return fmt.Errorf("read feedback: %w", err)
		}

		course, err := client.GetCourse(ctx, meta.Course.ID)
		if err != nil {
			return err
		}
		assignment, err := client.GetAssignment(ctx, course.ID, meta.Assignment.ID)
		if err != nil {
			return err
		}

		if uploadSingleLive {
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

		for _, student := range gradeSheet.Students {
			if !uploadSingleLive {
				term.Printf("Would set grade to %v for user_id: %d", points, student.ID)
				continue
			}
			term.Infof("Uploading new feedback for user_id: %d", student.ID)
			if err := client.CommentWithFile(ctx, course.ID, assignment.ID, student.ID, "feedback.txt", feedback); err != nil {
				return err
			}
			term.Infof("Setting grade to %v for user_id: %d", points, student.ID)
			if err := client.GradeSubmission(ctx, course.ID, assignment.ID, student.ID, points); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	uploadSingleCmd.Flags().BoolVar(&uploadSingleLive, "live", false, "actually upload instead of a dry-run")
}
