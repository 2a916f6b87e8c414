package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/diku-dk/staffeli-go/internal/sheet"
)

var infoCmd = &cobra.Command{
	Use:   "info COURSE_ID",
	Short: "Print the roster of a section as kuid,name lines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		courseID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("course id %q is not a number", args[0])
		}
		ctx := cmd.Context()

		section, err := chooseSection(ctx, courseID)
		if err != nil {
			return err
		}
		term.Infof("Fetching: %s", section.Name)

		term.Printf("kuid,name")
		for _, id := range section.ActiveStudentIDs() {
			user, err := client.GetUser(ctx, id)
			if err != nil {
				return err
			}
			term.Printf("%6s, %s", sheet.KUID(user.LoginID), user.Name)
		}
		return nil
	},
}
