package syncclient

import (
	"context"
	"net/url"
)

// StartRequest is the body of a `start` control call, carrying signed
// storage manifests rather than decoded objects since the client and
// the sync daemon are different processes.
type StartRequest struct {
	ContainerName  string `json:"container_name"`
	JobID          string `json:"job_id"`
	Continuous     bool   `json:"continuous"`
	Unidirectional bool   `json:"unidirectional"`
	SourceManifest []byte `json:"source_manifest"`
	TargetManifest []byte `json:"target_manifest"`
	Signer         string `json:"signer,omitempty"`
}

// Start asks the daemon to start a sync job, returning its human
// readable acknowledgement message.
func (c *Client) Start(ctx context.Context, req StartRequest) (string, error) {
	var result struct {
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/control/start", req, &result); err != nil {
		return "", err
	}
	return result.Message, nil
}

// Stop asks the daemon to stop jobID.
func (c *Client) Stop(ctx context.Context, jobID string) (string, error) {
	var result struct {
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/control/stop", map[string]string{"job_id": jobID}, &result); err != nil {
		return "", err
	}
	return result.Message, nil
}

// StopAll asks the daemon to stop every running job.
func (c *Client) StopAll(ctx context.Context) error {
	return c.post(ctx, "/control/stop-all", nil, nil)
}

// Status returns one human-readable status line per running job.
func (c *Client) Status(ctx context.Context) ([]string, error) {
	var result []string
	if err := c.get(ctx, "/control/status", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// JobStatus is the structured counterpart of a single job's status.
type JobStatus struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
}

// JobStatus reports jobID's state and formatted status.
func (c *Client) JobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	var result JobStatus
	q := url.Values{"job_id": {jobID}}
	if err := c.get(ctx, "/control/job-status", q, &result); err != nil {
		return JobStatus{}, err
	}
	return result, nil
}

// Shutdown asks the daemon to stop every job and exit.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.post(ctx, "/control/shutdown", nil, nil)
}
