package sheet

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Task is one gradable item of an assignment template.
type Task struct {
	Name    string
	Title   string
	Points  *float64 // maximum points, nil if the task is unscored
	Default *float64 // points granted when the grader leaves the field blank
	Rubric  string   // pre-filled feedback text
}

type taskBody struct {
	Title   string   `yaml:"title"`
	Points  *float64 `yaml:"points"`
	Default *float64 `yaml:"default"`
	Rubric  string   `yaml:"rubric"`
}

func (t *Task) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]taskBody
	if err := node.Decode(&m); err != nil {
		return err
	}
	if len(m) != 1 {
		return fmt.Errorf("task entry must have exactly one name key, got %d", len(m))
	}
	for name, body := range m {
		t.Name = name
		t.Title = body.Title
		t.Points = body.Points
		t.Default = body.Default
		t.Rubric = body.Rubric
	}
	if t.Points != nil && *t.Points < 0 {
		return fmt.Errorf("task %s: points must be non-negative", t.Name)
	}
	if t.Default != nil && *t.Default < 0 {
		return fmt.Errorf("task %s: default must be non-negative", t.Name)
	}
	if t.Points != nil && t.Default != nil && *t.Default > *t.Points {
		return fmt.Errorf("task %s: default %v exceeds points %v", t.Name, *t.Default, *t.Points)
	}
	return nil
}

// Template is an assignment grading template: an ordered task list
// plus the optional URL of the online grading helper.
type Template struct {
	Name     string `yaml:"name"`
	OnlineTA string `yaml:"onlineTA,omitempty"`
	Tasks    []Task `yaml:"tasks"`
}

// ParseTemplate reads a template definition.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if t.Name == "" {
		return nil, fmt.Errorf("parse template: missing name")
	}
	return &t, nil
}

// TotalPoints sums the maximum points over all scored tasks.
func (t *Template) TotalPoints() float64 {
	var total float64
	for _, task := range t.Tasks {
		if task.Points != nil {
			total += *task.Points
		}
	}
	return total
}

// NewSheet creates an ungraded grading sheet for the given students,
// one solution stub per task with the rubric as pre-filled feedback.
func (t *Template) NewSheet(students []Student) *GradingSheet {
	solutions := make([]Solution, 0, len(t.Tasks))
	for _, task := range t.Tasks {
		solutions = append(solutions, Solution{
			Name:     task.Name,
			Points:   task.Points,
			Feedback: task.Rubric,
		})
	}
	return &GradingSheet{
		Name:      t.Name,
		Students:  students,
		Solutions: solutions,
	}
}

// FormatMD renders a graded sheet as the markdown feedback text that
// gets uploaded with the grade. Tasks without a matching solution are
// skipped.
func (t *Template) FormatMD(sheet *GradingSheet) string {
	solutions := make(map[string]Solution, len(sheet.Solutions))
	for _, s := range sheet.Solutions {
		solutions[s.Name] = s
	}

	var b strings.Builder
	for _, task := range t.Tasks {
		sol, ok := solutions[task.Name]
		if !ok {
			continue
		}
		grade := sol.GradeFor(task)
		b.WriteString("# " + task.Title + "\n\n")
		if sol.Bonus != nil {
			fmt.Fprintf(&b, "%s / %s points (+%s bonus)", formatPoints(grade), formatPoints(sol.Points), formatPoints(sol.Bonus))
		} else {
			fmt.Fprintf(&b, "%s / %s points", formatPoints(grade), formatPoints(sol.Points))
		}
		if feedback := strings.TrimSpace(sol.Feedback); feedback != "" {
			b.WriteString("\n\n" + feedback)
		}
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func formatPoints(v *float64) string {
	if v == nil {
		return "?"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
