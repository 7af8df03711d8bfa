package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tierkreisgo/tierkreis/controller"
)

// httpJobResponse is the worker service's reply to a launch POST: either the
// job already finished synchronously ("done"/"error"), or it was accepted
// and must be polled by JobID.
type httpJobResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
	Error  string `json:"error"`
}

// HTTP launches a worker by POSTing its call-args file to a remote worker
// service, the out-of-process analogue of Subprocess for a launcher that is
// an RPC endpoint rather than a local binary — grounded on the teacher's
// HTTPTool, repurposed from an LLM tool-calling client into a worker-launch
// client: same request/response/header handling, different payload and a
// polling loop instead of a one-shot round trip.
type HTTP struct {
	// BaseURL is the worker service root; a launch POSTs to
	// BaseURL/<launcherName> and a poll GETs BaseURL/jobs/<job_id>.
	BaseURL string

	Client *http.Client

	// PollInterval governs how often an accepted (pending) job is polled.
	PollInterval time.Duration
}

// NewHTTP builds an HTTP executor targeting baseURL.
func NewHTTP(baseURL string) *HTTP {
	return &HTTP{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Client:       &http.Client{},
		PollInterval: 200 * time.Millisecond,
	}
}

func (h *HTTP) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

// Run posts the call-args file's raw bytes to the worker service and
// returns once the launch is acknowledged. A synchronous "done"/"error"
// response is reflected immediately; a "pending" response starts a
// background poll that records a failure to the call-args' error_path if
// the job later reports one — success is assumed to be visible to the
// controller already, since a well-behaved worker service writes to the
// same Storage the controller reads from.
func (h *HTTP) Run(ctx context.Context, launcherName string, argsPath string) error {
	raw, err := os.ReadFile(argsPath)
	if err != nil {
		return fmt.Errorf("executor: reading call args at %s: %w", argsPath, err)
	}
	callArgs, err := readWorkerCallArgs(argsPath)
	if err != nil {
		return fmt.Errorf("executor: reading call args at %s: %w", argsPath, err)
	}

	url := h.BaseURL + "/" + launcherName
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("executor: building launch request for %s: %w", launcherName, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client().Do(req)
	if err != nil {
		return fmt.Errorf("executor: launching %s via %s: %w", launcherName, url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("executor: reading launch response for %s: %w", launcherName, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("executor: worker service rejected launch of %s: %s: %s", launcherName, resp.Status, string(body))
	}

	var job httpJobResponse
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("executor: parsing launch response for %s: %w", launcherName, err)
	}

	switch job.Status {
	case "done":
		return nil
	case "error":
		if werr := os.WriteFile(callArgs.ErrorPath, []byte(job.Error), 0o644); werr != nil {
			return fmt.Errorf("executor: %s reported error (%s) and recording it also failed: %w", launcherName, job.Error, werr)
		}
		return nil
	default:
		go h.poll(ctx, job.JobID, callArgs.ErrorPath)
		return nil
	}
}

func (h *HTTP) poll(ctx context.Context, jobID string, errorPath string) {
	ticker := time.NewTicker(h.PollInterval)
	defer ticker.Stop()
	url := h.BaseURL + "/jobs/" + jobID
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return
		}
		resp, err := h.client().Do(req)
		if err != nil {
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			continue
		}

		var job httpJobResponse
		if err := json.Unmarshal(body, &job); err != nil {
			continue
		}
		switch job.Status {
		case "done":
			return
		case "error":
			_ = os.WriteFile(errorPath, []byte(job.Error), 0o644)
			return
		}
	}
}

var _ controller.Executor = (*HTTP)(nil)
