package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/diku-dk/staffeli-go/internal/canvas"
	"github.com/diku-dk/staffeli-go/internal/pipeline"
	"github.com/diku-dk/staffeli-go/internal/sheet"
)

var (
	downloadSection       bool
	downloadResubmissions bool
)

var downloadCmd = &cobra.Command{
	Use:   "download COURSE_ID TEMPLATE_PATH DESTINATION_PATH",
	Short: "Fetch an assignment's submissions into a gradable directory tree",
	Long: `Fetches every student's submission for an assignment, merges group
handins by attachment fingerprint, downloads and unpacks the files, and
writes one directory per handin containing the submitted files, a grade.yml
stub from the template, and any submission comments.

The destination directory must not exist yet. Group members' comments beyond
the first-seen submission are not retained.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		courseID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("course id %q is not a number", args[0])
		}
		templatePath, destination := args[1], args[2]

		data, err := os.ReadFile(templatePath)
		if err != nil {
			return fmt.Errorf("read template: %w", err)
		}
		tmpl, err := sheet.ParseTemplate(data)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

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
		idx, err := term.Choose("Which assignment:", names)
		if err != nil {
			return err
		}
		assignment := assignments[idx]
		term.Infof("Fetching: %s", assignment.Name)

		var studentIDs []int
		sectionID := 0
		if downloadSection {
			section, err := chooseSection(ctx, course.ID)
			if err != nil {
				return err
			}
			sectionID = section.ID
			studentIDs = section.ActiveStudentIDs()
		} else {
			studentIDs, err = client.EnrolledStudentIDs(ctx, course.ID)
			if err != nil {
				return err
			}
		}

		p := pipeline.New(client, appConfig, rootLogger)
		summary, err := p.Run(ctx, pipeline.Request{
			Course:            course,
			Assignment:        assignment,
			SectionID:         sectionID,
			StudentIDs:        studentIDs,
			ResubmissionsOnly: downloadResubmissions,
			Destination:       destination,
			Template:          tmpl,
		})
		if err != nil {
			return err
		}
		term.Successf("Downloaded %d handins (%d empty) into %s", summary.Handins, summary.Empty, destination)
		return nil
	},
}

// chooseSection lists a course's sections and fetches the chosen one
// with its roster included.
func chooseSection(ctx context.Context, courseID int) (canvas.Section, error) {
	sections, err := client.ListSections(ctx, courseID)
	if err != nil {
		return canvas.Section{}, err
	}
	if len(sections) == 0 {
		return canvas.Section{}, fmt.Errorf("course %d has no sections", courseID)
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].Name < sections[j].Name })
	names := make([]string, 0, len(sections))
	for _, s := range sections {
		names = append(names, s.Name)
	}
	idx, err := term.Choose("Which section:", names)
	if err != nil {
		return canvas.Section{}, err
	}
	return client.GetSection(ctx, courseID, sections[idx].ID)
}

func init() {
	downloadCmd.Flags().BoolVar(&downloadSection, "section", false, "pick a section and fetch only its students")
	downloadCmd.Flags().BoolVar(&downloadResubmissions, "resubmissions-only", false, "only fetch handins that are ungraded or scored below 1.0")
}
