package sheet

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SheetFilename is the name of the grading sheet inside every handin
// directory.
const SheetFilename = "grade.yml"

// Solution records the grading of a single task: points given,
// feedback text, and an optional bonus.
type Solution struct {
	Name     string
	Grade    *float64 // nil while ungraded
	Feedback string
	Points   *float64 // copied from the task for the grader's reference
	Bonus    *float64
}

type solutionBody struct {
	Grade    *float64 `yaml:"grade"`
	Feedback string   `yaml:"feedback"`
	Points   *float64 `yaml:"points,omitempty"`
	Bonus    *float64 `yaml:"bonus,omitempty"`
}

func (s Solution) MarshalYAML() (any, error) {
	return map[string]solutionBody{s.Name: {
		Grade:    s.Grade,
		Feedback: s.Feedback,
		Points:   s.Points,
		Bonus:    s.Bonus,
	}}, nil
}

func (s *Solution) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]solutionBody
	if err := node.Decode(&m); err != nil {
		return err
	}
	if len(m) != 1 {
		return fmt.Errorf("solution entry must have exactly one name key, got %d", len(m))
	}
	for name, body := range m {
		s.Name = name
		s.Grade = body.Grade
		s.Feedback = body.Feedback
		s.Points = body.Points
		s.Bonus = body.Bonus
	}
	if s.Grade != nil && s.Points != nil && *s.Grade > *s.Points {
		return fmt.Errorf("solution %s: grade %v exceeds points %v", s.Name, *s.Grade, *s.Points)
	}
	return nil
}

// GradeFor resolves the effective grade of this solution against its
// task: the explicit grade if set, otherwise the task default, plus
// any bonus. Nil when neither grade nor default exists.
func (s Solution) GradeFor(task Task) *float64 {
	var base *float64
	switch {
	case s.Grade != nil:
		base = s.Grade
	case task.Default != nil:
		base = task.Default
	default:
		return nil
	}
	v := *base
	if s.Bonus != nil {
		v += *s.Bonus
	}
	return &v
}

// GradingSheet is the per-handin grading record, serialized as
// grade.yml next to the submission files.
type GradingSheet struct {
	Name      string     `yaml:"name"`
	Students  []Student  `yaml:"students"`
	Solutions []Solution `yaml:"solutions"`
}

// ParseSheet reads a grading sheet.
func ParseSheet(data []byte) (*GradingSheet, error) {
	var s GradingSheet
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse sheet: %w", err)
	}
	return &s, nil
}

// Grade resolves the sheet's total against the template. Nil if any
// solution is still ungraded.
func (g *GradingSheet) Grade(t *Template) *float64 {
	tasks := make(map[string]Task, len(t.Tasks))
	for _, task := range t.Tasks {
		tasks[task.Name] = task
	}
	var total float64
	for _, sol := range g.Solutions {
		grade := sol.GradeFor(tasks[sol.Name])
		if grade == nil {
			return nil
		}
		total += *grade
	}
	return &total
}

// Graded reports whether every solution has an effective grade.
func (g *GradingSheet) Graded(t *Template) bool {
	return g.Grade(t) != nil
}

// FoundSheet pairs a parsed grading sheet with its on-disk location.
type FoundSheet struct {
	Path  string
	Sheet *GradingSheet
}

// CollectSheets walks a submissions tree and parses every grade.yml it
// finds.
func CollectSheets(root string) ([]FoundSheet, error) {
	var found []FoundSheet
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != SheetFilename {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		s, err := ParseSheet(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		found = append(found, FoundSheet{Path: path, Sheet: s})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// WriteYAML serializes v to path with the sheet indentation style. A
// fresh encoder is created per call, so concurrent writers never share
// serializer state.
func WriteYAML(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(4)
	encErr := enc.Encode(v)
	closeErr := enc.Close()
	if err := f.Close(); err != nil && encErr == nil && closeErr == nil {
		return err
	}
	if encErr != nil {
		return fmt.Errorf("encode %s: %w", path, encErr)
	}
	if closeErr != nil {
		return fmt.Errorf("finish %s: %w", path, closeErr)
	}
	return nil
}
