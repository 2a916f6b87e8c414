package sheet

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Student identifies a course participant on a grading sheet.
type Student struct {
	ID    int
	Name  string
	Login string
}

type studentBody struct {
	Name  string `yaml:"name"`
	Login string `yaml:"login"`
}

// Students serialize as a single-key mapping from id to the record, so
// the sheet reads naturally and ids stay greppable:
//
//	- 123456:
//	      name: Grace Hopper
//	      login: ghopper@ku.dk
func (s Student) MarshalYAML() (any, error) {
	return map[int]studentBody{s.ID: {Name: s.Name, Login: s.Login}}, nil
}

func (s *Student) UnmarshalYAML(node *yaml.Node) error {
	var m map[int]studentBody
	if err := node.Decode(&m); err != nil {
		return err
	}
	if len(m) != 1 {
		return fmt.Errorf("student entry must have exactly one id key, got %d", len(m))
	}
	for id, body := range m {
		s.ID = id
		s.Name = body.Name
		s.Login = body.Login
	}
	return nil
}

// KUID returns the short login handle, the part of the login id before
// the mail domain.
func (s Student) KUID() string {
	return KUID(s.Login)
}

// KUID strips the mail domain from a login id ("abc123@ku.dk" ->
// "abc123").
func KUID(login string) string {
	handle, _, _ := strings.Cut(login, "@")
	return handle
}
