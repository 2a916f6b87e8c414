package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/diku-dk/staffeli-go/internal/sheet"
)

var scanCmd = &cobra.Command{
	Use:   "scan TEMPLATE_PATH SUBMISSIONS_PATH",
	Short: "Check if grading is fully done",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read template: %w", err)
		}
		tmpl, err := sheet.ParseTemplate(data)
		if err != nil {
			return err
		}

		sheets, err := sheet.CollectSheets(args[1])
		if err != nil {
			return err
		}

		done, missing := 0, 0
		for _, found := range sheets {
			if total := found.Sheet.Grade(tmpl); total != nil {
				term.Mark(true, "%s/%s points for %s",
					strconv.FormatFloat(*total, 'f', -1, 64),
					strconv.FormatFloat(tmpl.TotalPoints(), 'f', -1, 64),
					found.Path)
				done++
			} else {
				term.Mark(false, "%s is not graded", found.Path)
				missing++
			}
		}

		if missing > 0 {
			term.Warningf("Grading is not complete, %d done, %d missing", done, missing)
			return nil
		}
		term.Successf("Yay, time to upload")
		return nil
	},
}
