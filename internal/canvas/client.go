package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const perPage = 100

// Client is a minimal Canvas REST client covering the endpoints the
// grading workflow needs. Safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the given Canvas instance. baseURL is
// the root of the instance, e.g. "https://absalon.ku.dk/".
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// BaseURL returns the configured instance root.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) apiURL(path string, query url.Values) string {
	u := c.baseURL + "/api/v1" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// get performs a single authenticated GET and decodes the JSON body
// into out. Returns the Link header for pagination.
func (c *Client) get(ctx context.Context, rawURL string, out any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", errors.Wrapf(err, "build request for %s", rawURL)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "GET %s", rawURL)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrapf(err, "read body from %s", rawURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", classifyStatus(resp.StatusCode, rawURL, truncate(string(body), 512))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return "", errors.Wrapf(err, "decode response from %s", rawURL)
		}
	}
	return resp.Header.Get("Link"), nil
}

var nextLinkRe = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// nextPage extracts the rel="next" URL from a Link header, or "".
func nextPage(link string) string {
	m := nextLinkRe.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	return m[1]
}

// getPaginated follows rel="next" links, appending each page into a
// slice of T until the collection is exhausted.
func getPaginated[T any](ctx context.Context, c *Client, first string) ([]T, error) {
	var all []T
	next := first
	for next != "" {
		var page []T
		link, err := c.get(ctx, next, &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		next = nextPage(link)
	}
	return all, nil
}

// GetCourse fetches a course by id.
func (c *Client) GetCourse(ctx context.Context, id int) (Course, error) {
	var course Course
	_, err := c.get(ctx, c.apiURL(fmt.Sprintf("/courses/%d", id), nil), &course)
	return course, err
}

// ListAssignments returns all assignments of a course.
func (c *Client) ListAssignments(ctx context.Context, courseID int) ([]Assignment, error) {
	q := url.Values{"per_page": {strconv.Itoa(perPage)}}
	return getPaginated[Assignment](ctx, c, c.apiURL(fmt.Sprintf("/courses/%d/assignments", courseID), q))
}

// GetAssignment fetches one assignment.
func (c *Client) GetAssignment(ctx context.Context, courseID, assignmentID int) (Assignment, error) {
	var a Assignment
	_, err := c.get(ctx, c.apiURL(fmt.Sprintf("/courses/%d/assignments/%d", courseID, assignmentID), nil), &a)
	return a, err
}

// GetUser fetches a user record.
func (c *Client) GetUser(ctx context.Context, id int) (User, error) {
	var u User
	_, err := c.get(ctx, c.apiURL(fmt.Sprintf("/users/%d", id), nil), &u)
	return u, err
}

// GetSubmission fetches a single student's submission for an
// assignment, with submission comments included.
func (c *Client) GetSubmission(ctx context.Context, courseID, assignmentID, userID int) (Submission, error) {
	var s Submission
	q := url.Values{"include[]": {"submission_comments"}}
	_, err := c.get(ctx, c.apiURL(fmt.Sprintf("/courses/%d/assignments/%d/submissions/%d", courseID, assignmentID, userID), q), &s)
	return s, err
}

// ListSubmissions returns all submissions for an assignment, with
// comments included.
func (c *Client) ListSubmissions(ctx context.Context, courseID, assignmentID int) ([]Submission, error) {
	q := url.Values{
		"include[]": {"submission_comments"},
		"per_page":  {strconv.Itoa(perPage)},
	}
	return getPaginated[Submission](ctx, c, c.apiURL(fmt.Sprintf("/courses/%d/assignments/%d/submissions", courseID, assignmentID), q))
}

// ListSections returns the sections of a course, without rosters.
func (c *Client) ListSections(ctx context.Context, courseID int) ([]Section, error) {
	q := url.Values{"per_page": {strconv.Itoa(perPage)}}
	return getPaginated[Section](ctx, c, c.apiURL(fmt.Sprintf("/courses/%d/sections", courseID), q))
}

// GetSection fetches one section including its student roster and
// their enrollment states.
func (c *Client) GetSection(ctx context.Context, courseID, sectionID int) (Section, error) {
	var s Section
	q := url.Values{"include[]": {"students", "enrollments"}}
	_, err := c.get(ctx, c.apiURL(fmt.Sprintf("/courses/%d/sections/%d", courseID, sectionID), q), &s)
	return s, err
}

// GetMultipleSubmissions fetches submissions for several students and
// assignments at once, comments included.
func (c *Client) GetMultipleSubmissions(ctx context.Context, courseID int, assignmentIDs, studentIDs []int) ([]Submission, error) {
	q := url.Values{
		"include[]": {"submission_comments"},
		"per_page":  {strconv.Itoa(perPage)},
	}
	for _, id := range assignmentIDs {
		q.Add("assignment_ids[]", strconv.Itoa(id))
	}
	for _, id := range studentIDs {
		q.Add("student_ids[]", strconv.Itoa(id))
	}
	return getPaginated[Submission](ctx, c, c.apiURL(fmt.Sprintf("/courses/%d/students/submissions", courseID), q))
}

// Download fetches raw bytes from an attachment URL. Attachment URLs
// carry their own verifier token, so no Authorization header is set.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build request for %s", rawURL)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		limited, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, classifyStatus(resp.StatusCode, rawURL, string(limited))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read body from %s", rawURL)
	}
	return data, nil
}

// PostHandin POSTs zip bytes as a multipart form to an external
// analysis service and returns the raw response text. Best effort: the
// response text is returned even on non-2xx status.
func (c *Client) PostHandin(ctx context.Context, helperURL, filename string, zipData []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("handin", filename)
	if err != nil {
		return "", errors.Wrap(err, "create multipart field")
	}
	if _, err := part.Write(zipData); err != nil {
		return "", errors.Wrap(err, "write zip payload")
	}
	if err := mw.Close(); err != nil {
		return "", errors.Wrap(err, "finish multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, helperURL, &buf)
	if err != nil {
		return "", errors.Wrapf(err, "build request for %s", helperURL)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "POST %s", helperURL)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrapf(err, "read response from %s", helperURL)
	}
	return string(body), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
