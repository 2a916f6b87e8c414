package sheet

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// MetaCourse identifies the course a submissions tree was fetched from.
type MetaCourse struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

// MetaAssignment identifies the assignment, and the section when the
// fetch was scoped to one.
type MetaAssignment struct {
	ID      int    `yaml:"id"`
	Name    string `yaml:"name"`
	Section int    `yaml:"section,omitempty"`
}

// Meta is the meta.yml written at the root of a submissions tree. The
// upload stage reads it to find its way back to the right assignment.
type Meta struct {
	Course     MetaCourse     `yaml:"course"`
	Assignment MetaAssignment `yaml:"assignment"`
}

// ParseMeta reads a meta.yml.
func ParseMeta(data []byte) (*Meta, error) {
	var m Meta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse meta: %w", err)
	}
	if m.Course.ID == 0 || m.Assignment.ID == 0 {
		return nil, fmt.Errorf("parse meta: missing course or assignment id")
	}
	return &m, nil
}
