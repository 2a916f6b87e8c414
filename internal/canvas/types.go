package canvas

// Course is a Canvas course, as returned by the courses endpoint.
type Course struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Assignment is a Canvas assignment within a course.
type Assignment struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	CourseID int    `json:"course_id"`
}

// User is a Canvas user record. LoginID is the full login handle
// (typically "abc123@ku.dk"); see KUID for the short form.
type User struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	LoginID string `json:"login_id"`
}

// Attachment is a single file attached to a submission. UUID is the
// content-addressed identifier Canvas assigns to the uploaded file.
type Attachment struct {
	Filename  string `json:"filename"`
	URL       string `json:"url"`
	MimeClass string `json:"mime_class"`
	UUID      string `json:"uuid"`
}

// SubmissionComment is a free-text comment left on a submission,
// optionally carrying file attachments.
type SubmissionComment struct {
	AuthorName  string       `json:"author_name"`
	Comment     string       `json:"comment"`
	CreatedAt   string       `json:"created_at"`
	Attachments []Attachment `json:"attachments"`
}

// Submission is one student's submission for an assignment.
// Score is nil while the submission is ungraded.
type Submission struct {
	UserID        int                 `json:"user_id"`
	Score         *float64            `json:"score"`
	WorkflowState string              `json:"workflow_state"`
	Attachments   []Attachment        `json:"attachments"`
	Comments      []SubmissionComment `json:"submission_comments"`
}

// Enrollment describes a user's membership in a section.
type Enrollment struct {
	EnrollmentState string `json:"enrollment_state"`
	CourseSectionID int    `json:"course_section_id"`
}

// SectionStudent is the abbreviated student record embedded in a
// section response when students are included.
type SectionStudent struct {
	ID          int          `json:"id"`
	Name        string       `json:"name"`
	Enrollments []Enrollment `json:"enrollments"`
}

// Section is a sub-roster of a course. Students is only populated when
// the section was fetched with the students include.
type Section struct {
	ID       int              `json:"id"`
	Name     string           `json:"name"`
	Students []SectionStudent `json:"students"`
}

// ActiveStudentIDs returns the ids of section students whose
// enrollments are all active.
func (s Section) ActiveStudentIDs() []int {
	var ids []int
	for _, st := range s.Students {
		active := true
		for _, e := range st.Enrollments {
			if e.EnrollmentState != "active" {
				active = false
				break
			}
		}
		if active {
			ids = append(ids, st.ID)
		}
	}
	return ids
}
