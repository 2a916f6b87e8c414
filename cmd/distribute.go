package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/diku-dk/staffeli-go/internal/canvas"
	"github.com/diku-dk/staffeli-go/internal/distribute"
	"github.com/diku-dk/staffeli-go/internal/sheet"
)

var (
	distributeTAs       int
	distributeBySection bool
	distributeBalance   bool
)

var distributeCmd = &cobra.Command{
	Use:   "distribute COURSE_ID DESTINATION_PATH",
	Short: "Split an assignment's handins among teaching assistants",
	Long: `Writes a YAML list assigning each non-empty handin to a TA, either as
near-equal chunks (--tas N) or one group per section (--by-section).
With --balance, uneven groups are evened out by moving handins from the
largest group to the smallest until they differ by at most one.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		courseID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("course id %q is not a number", args[0])
		}
		destination := args[1]
		if !distributeBySection && distributeTAs < 1 {
			return fmt.Errorf("need --tas N or --by-section")
		}
		ctx := cmd.Context()

		course, err := client.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		assignments, err := client.ListAssignments(ctx, course.ID)
		if err != nil {
			return err
		}
		sort.Slice(assignments, func(i, j int) bool { return assignments[i].Name < assignments[j].Name })
		names := make([]string, 0, len(assignments))
		for _, a := range assignments {
			names = append(names, a.Name)
		}
		idx, err := term.Choose("Select assignment:", names)
		if err != nil {
			return err
		}
		assignment := assignments[idx]
		term.Infof("Getting submissions for: %s", assignment.Name)

		var bags []distribute.Bag
		if distributeBySection {
			bags, err = sectionBags(ctx, course.ID, assignment)
		} else {
			bags, err = chunkBags(ctx, course.ID, assignment, distributeTAs)
		}
		if err != nil {
			return err
		}

		if distributeBalance {
			bags = distribute.Balance(bags)
		}

		data, err := distribute.Encode(bags)
		if err != nil {
			return err
		}
		path := filepath.Join(destination, fmt.Sprintf("%s_ta_list.yml", assignment.Name))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write distribution list: %w", err)
		}
		term.Successf("Wrote %s", path)
		return nil
	},
}

// submitterHandles resolves the short login handles of the students
// behind a submission list, keeping only submissions with attachments.
func submitterHandles(ctx context.Context, submissions []canvas.Submission) ([]string, error) {
	var handles []string
	for _, sub := range submissions {
		if len(sub.Attachments) == 0 {
			continue
		}
		user, err := client.GetUser(ctx, sub.UserID)
		if err != nil {
			return nil, err
		}
		handles = append(handles, sheet.KUID(user.LoginID))
	}
	return handles, nil
}

func chunkBags(ctx context.Context, courseID int, assignment canvas.Assignment, tas int) ([]distribute.Bag, error) {
	submissions, err := client.ListSubmissions(ctx, courseID, assignment.ID)
	if err != nil {
		return nil, err
	}
	handles, err := submitterHandles(ctx, submissions)
	if err != nil {
		return nil, err
	}
	return distribute.Chunks(handles, tas), nil
}

func sectionBags(ctx context.Context, courseID int, assignment canvas.Assignment) ([]distribute.Bag, error) {
	sections, err := client.ListSections(ctx, courseID)
	if err != nil {
		return nil, err
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].Name < sections[j].Name })
	if len(sections) > 0 {
		// The first section is the course-wide default roster; the
		// real class sections follow it.
		sections = sections[1:]
	}

	var bags []distribute.Bag
	for _, s := range sections {
		section, err := client.GetSection(ctx, courseID, s.ID)
		if err != nil {
			return nil, err
		}
		ids := section.ActiveStudentIDs()
		if len(ids) == 0 {
			continue
		}
		submissions, err := client.GetMultipleSubmissions(ctx, courseID, []int{assignment.ID}, ids)
		if err != nil {
			return nil, err
		}
		handles, err := submitterHandles(ctx, submissions)
		if err != nil {
			return nil, err
		}
		bags = append(bags, distribute.Bag{Name: section.Name, Items: handles})
	}
	return bags, nil
}

func init() {
	distributeCmd.Flags().IntVar(&distributeTAs, "tas", 0, "number of TAs to split between")
	distributeCmd.Flags().BoolVar(&distributeBySection, "by-section", false, "one group per course section instead of equal chunks")
	distributeCmd.Flags().BoolVar(&distributeBalance, "balance", false, "even out unequal groups")
}
