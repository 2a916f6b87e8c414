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
	"strconv"

	"github.com/pkg/errors"
)

// GradeSubmission sets the posted grade on a student's submission.
func (c *Client) GradeSubmission(ctx context.Context, courseID, assignmentID, userID int, grade float64) error {
	form := url.Values{"submission[posted_grade]": {strconv.FormatFloat(grade, 'f', -1, 64)}}
	return c.putForm(ctx, fmt.Sprintf("/courses/%d/assignments/%d/submissions/%d", courseID, assignmentID, userID), form)
}

// CommentWithFile attaches a feedback file to a submission as a
// comment, using the Canvas three-step file upload flow: declare the
// upload, send the bytes to the returned upload URL, then reference
// the stored file id from a new comment.
func (c *Client) CommentWithFile(ctx context.Context, courseID, assignmentID, userID int, filename string, content []byte) error {
	declareURL := c.apiURL(fmt.Sprintf("/courses/%d/assignments/%d/submissions/%d/comments/files", courseID, assignmentID, userID), nil)
	form := url.Values{
		"name": {filename},
		"size": {strconv.Itoa(len(content))},
	}

	var target struct {
		UploadURL    string            `json:"upload_url"`
		UploadParams map[string]string `json:"upload_params"`
	}
	if err := c.postForm(ctx, declareURL, form, &target); err != nil {
		return errors.Wrap(err, "declare comment file upload")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range target.UploadParams {
		if err := mw.WriteField(k, v); err != nil {
			return errors.Wrap(err, "write upload param")
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return errors.Wrap(err, "create file field")
	}
	if _, err := part.Write(content); err != nil {
		return errors.Wrap(err, "write file content")
	}
	if err := mw.Close(); err != nil {
		return errors.Wrap(err, "finish multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.UploadURL, &buf)
	if err != nil {
		return errors.Wrapf(err, "build request for %s", target.UploadURL)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "POST %s", target.UploadURL)
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return errors.Wrap(readErr, "read upload response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return classifyStatus(resp.StatusCode, target.UploadURL, truncate(string(body), 512))
	}
	var stored struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(body, &stored); err != nil {
		return errors.Wrap(err, "decode stored file id")
	}

	attach := url.Values{"comment[file_ids][]": {strconv.Itoa(stored.ID)}}
	return c.putForm(ctx, fmt.Sprintf("/courses/%d/assignments/%d/submissions/%d", courseID, assignmentID, userID), attach)
}

func (c *Client) putForm(ctx context.Context, path string, form url.Values) error {
	return c.sendForm(ctx, http.MethodPut, c.apiURL(path, nil), form, nil)
}

func (c *Client) postForm(ctx context.Context, rawURL string, form url.Values, out any) error {
	return c.sendForm(ctx, http.MethodPost, rawURL, form, out)
}

func (c *Client) sendForm(ctx context.Context, method, rawURL string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return errors.Wrapf(err, "build request for %s", rawURL)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, rawURL)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read body from %s", rawURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(resp.StatusCode, rawURL, truncate(string(body), 512))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return errors.Wrapf(err, "decode response from %s", rawURL)
		}
	}
	return nil
}
