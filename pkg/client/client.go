package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrNotFound is returned by GetJob when the job does not exist in the queue.
var ErrNotFound = errors.New("job not found")

// Client for acknowledging and inspecting jobs
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new client for the server at baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Job as returned by the inspect endpoint
type Job struct {
	Queue          string         `json:"queue"`
	ID             string         `json:"id"`
	Acknowledgment map[string]any `json:"acknowledgment"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Acknowledged reports whether the job carries an acknowledgment.
func (j *Job) Acknowledged() bool {
	return j.Acknowledgment != nil
}

// Acknowledge marks a job as done. It returns false, with a nil error, when
// the server refused the transition: the job was already acknowledged, lives
// in another queue or does not exist.
func (c *Client) Acknowledge(ctx context.Context, queue, jobID string, ack map[string]any) (bool, error) {
	if queue == "" || jobID == "" {
		return false, errors.New("queue and job id are required")
	}
	reqBody, err := json.Marshal(map[string]any{
		"acknowledgment": ack,
	})
	if err != nil {
		return false, fmt.Errorf("marshal acknowledgment: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.jobURL(queue, jobID)+":ack", bytes.NewReader(reqBody))
	if err != nil {
		return false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusConflict:
		return false, nil
	default:
		bodyBytes, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("ack failed: %s - %s", resp.Status, string(bodyBytes))
	}
}

// GetJob fetches the stored job
func (c *Client) GetJob(ctx context.Context, queue, jobID string) (*Job, error) {
	if queue == "" || jobID == "" {
		return nil, errors.New("queue and job id are required")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jobURL(queue, jobID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get job failed: %s - %s", resp.Status, string(bodyBytes))
	}

	var job Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) jobURL(queue, jobID string) string {
	return fmt.Sprintf("%s/v1/queues/%s/jobs/%s", c.baseURL, url.PathEscape(queue), url.PathEscape(jobID))
}
