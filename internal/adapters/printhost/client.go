// Package printhost speaks the REST dialect of the printer host controller
// running next to each machine (OctoPrint wire format).
package printhost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	retry "github.com/avast/retry-go"
	"golang.org/x/time/rate"

	"github.com/polyforge/printfarm-go/internal/domain/printing"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultMaxRetries     = 3
	defaultBackoffBase    = 500 * time.Millisecond
)

// Options tunes one client. Zero values fall back to the defaults above.
type Options struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxRetries     uint
	BackoffBase    time.Duration
}

// Client drives one printer host endpoint. One client per device controller;
// the rate limiter keeps status polling and command traffic from flooding
// the host's single-core board.
type Client struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
	apiKey      string
	maxRetries  uint
	backoffBase time.Duration
}

// NewClient builds a client for the given host endpoint and API key.
func NewClient(baseURL, apiKey string, opts Options) *Client {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	return &Client{
		httpClient: &http.Client{
			Timeout: opts.ReadTimeout,
			Transport: &http.Transport{
				DialContext: dialer.DialContext,
			},
		},
		rateLimiter: rate.NewLimiter(rate.Limit(4), 4),
		baseURL:     baseURL,
		apiKey:      apiKey,
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
	}
}

// Ping reports whether the host answers its version endpoint.
func (c *Client) Ping(ctx context.Context) bool {
	resp, err := c.do(ctx, http.MethodGet, "/api/version", nil, "")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// IssueCommands fires a command script at the printer. The host acknowledges
// with 204 before the commands complete; this call never blocks on motion.
func (c *Client) IssueCommands(ctx context.Context, lines []string) error {
	body, err := json.Marshal(map[string]any{"commands": lines})
	if err != nil {
		return fmt.Errorf("marshal command script: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/printer/command", bytes.NewReader(body), "application/json")
	if err != nil {
		return fmt.Errorf("issue commands: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("issue commands: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// UploadAndStart streams a program file to the host's local storage with
// print=true and returns the filename the host assigned. The caller is
// expected to have appended the end-of-file sentinel to the stream so job
// completion is detectable without ambiguity.
func (c *Client) UploadAndStart(ctx context.Context, file io.Reader, filename string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("print", "true"); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("read program file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/files/local", bytes.NewReader(buf.Bytes()), writer.FormDataContentType())
	if err != nil {
		return "", fmt.Errorf("upload program: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	var result struct {
		Done  bool `json:"done"`
		Files struct {
			Local struct {
				Name string `json:"name"`
			} `json:"local"`
		} `json:"files"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	if !result.Done {
		return "", fmt.Errorf("upload program: host did not accept %q (status %d)", filename, resp.StatusCode)
	}
	assigned := result.Files.Local.Name
	if assigned == "" {
		assigned = filename
	}
	return assigned, nil
}

// FetchPrinterState polls the printer flags and temperatures.
func (c *Client) FetchPrinterState(ctx context.Context) (printing.PrinterFlags, printing.Temperatures, error) {
	var response struct {
		State struct {
			Flags struct {
				Operational   bool `json:"operational"`
				Printing      bool `json:"printing"`
				Paused        bool `json:"paused"`
				Ready         bool `json:"ready"`
				ClosedOrError bool `json:"closedOrError"`
			} `json:"flags"`
		} `json:"state"`
		Temperature struct {
			Tool0 struct {
				Actual float64 `json:"actual"`
			} `json:"tool0"`
			Bed struct {
				Actual float64 `json:"actual"`
			} `json:"bed"`
		} `json:"temperature"`
	}
	if err := c.getJSON(ctx, "/api/printer", &response); err != nil {
		return printing.PrinterFlags{}, printing.Temperatures{}, fmt.Errorf("fetch printer state: %w", err)
	}
	flags := printing.PrinterFlags{
		Operational:   response.State.Flags.Operational,
		Printing:      response.State.Flags.Printing,
		Paused:        response.State.Flags.Paused,
		Ready:         response.State.Flags.Ready,
		ClosedOrError: response.State.Flags.ClosedOrError,
	}
	temps := printing.Temperatures{
		Tool: response.Temperature.Tool0.Actual,
		Bed:  response.Temperature.Bed.Actual,
	}
	return flags, temps, nil
}

// FetchJobState polls the current job name and time estimates. EstimatedLeft
// is nil when the host reports null printTimeLeft.
func (c *Client) FetchJobState(ctx context.Context) (printing.JobStatus, error) {
	var response struct {
		Job struct {
			File struct {
				Name string `json:"name"`
			} `json:"file"`
			EstimatedPrintTime *float64 `json:"estimatedPrintTime"`
		} `json:"job"`
		Progress struct {
			PrintTimeLeft *float64 `json:"printTimeLeft"`
		} `json:"progress"`
	}
	if err := c.getJSON(ctx, "/api/job", &response); err != nil {
		return printing.JobStatus{}, fmt.Errorf("fetch job state: %w", err)
	}
	job := printing.JobStatus{FileName: response.Job.File.Name}
	if response.Job.EstimatedPrintTime != nil {
		job.EstimatedTotal = time.Duration(*response.Job.EstimatedPrintTime * float64(time.Second))
	}
	if response.Progress.PrintTimeLeft != nil {
		left := time.Duration(*response.Progress.PrintTimeLeft * float64(time.Second))
		job.EstimatedLeft = &left
	}
	return job, nil
}

// Cancel aborts the running job on the host.
func (c *Client) Cancel(ctx context.Context) error {
	body := []byte(`{"command":"cancel"}`)
	resp, err := c.do(ctx, http.MethodPost, "/api/job", bytes.NewReader(body), "application/json")
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cancel job: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, result any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// retryableStatusError marks HTTP statuses worth another attempt: the host's
// web layer answers 405 while the serial subsystem reconnects and 5xx while
// it restarts.
type retryableStatusError struct {
	status int
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("retryable host status %d", e.status)
}

// do executes one HTTP call with rate limiting and bounded retries. Network
// errors and HTTP 405-500 are retried with exponential backoff; everything
// else surfaces to the caller on the first attempt.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = io.ReadAll(body); err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}

	var resp *http.Response
	err := retry.Do(
		func() error {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			var reqBody io.Reader
			if payload != nil {
				reqBody = bytes.NewReader(payload)
			}
			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("x-api-key", c.apiKey)
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}
			r, err := c.httpClient.Do(req)
			if err != nil {
				return err // network error, retryable
			}
			if r.StatusCode >= 405 && r.StatusCode <= 500 {
				r.Body.Close()
				return &retryableStatusError{status: r.StatusCode}
			}
			resp = r
			return nil
		},
		retry.Attempts(c.maxRetries),
		retry.Delay(c.backoffBase),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && retry.IsRecoverable(err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
