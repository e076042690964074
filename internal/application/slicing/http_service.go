package slicing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/polyforge/printfarm-go/internal/domain/shared"
)

// pollPeriod is how often a remote job handle refreshes its state while the
// slicer is working.
const pollPeriod = 2 * time.Second

// HTTPService talks to the external slicer daemon. Submitted jobs refresh
// themselves in the background until terminal; the farm core only ever reads
// the cached handle state.
type HTTPService struct {
	baseURL    string
	workDir    string
	httpClient *http.Client
	clock      shared.Clock
	log        *zap.SugaredLogger
}

// NewHTTPService builds a slicer client. Downloaded programs land in workDir.
func NewHTTPService(baseURL, workDir string, clock shared.Clock, log *zap.SugaredLogger) *HTTPService {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &HTTPService{
		baseURL:    baseURL,
		workDir:    workDir,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		clock:      clock,
		log:        log,
	}
}

// Submit uploads the geometry and starts tracking the remote job.
func (s *HTTPService) Submit(req Request) (Job, error) {
	file, err := os.Open(req.GeometryPath)
	if err != nil {
		return nil, fmt.Errorf("open geometry: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(req.GeometryPath))
	if err != nil {
		return nil, fmt.Errorf("build slice form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("read geometry: %w", err)
	}
	fields := map[string]string{
		"scale":        fmt.Sprintf("%g", req.Scale),
		"save_program": fmt.Sprintf("%t", req.SaveProgram),
	}
	if req.Config != nil {
		fields["printer_profile"] = req.Config.PrinterProfile.Name
		fields["material_profile"] = req.Config.MaterialProfile.Name
		if req.Config.PrintProfile != nil {
			fields["print_profile"] = req.Config.PrintProfile.Name
		}
		fields["auto_print_profile"] = fmt.Sprintf("%t", req.Config.AutoPrintProfile)
		fields["auto_support"] = fmt.Sprintf("%t", req.Config.AutoSupport)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("build slice form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build slice form: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, s.baseURL+"/jobs", &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submit slice job: %w", err)
	}
	defer resp.Body.Close()
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("parse slice response: %w", err)
	}

	job := &remoteJob{service: s, remoteID: created.ID}
	go job.track()
	return job, nil
}

// remoteJob caches the state of one job on the slicer daemon.
type remoteJob struct {
	service  *HTTPService
	remoteID string

	mu          sync.Mutex
	ready       bool
	err         error
	buildTime   time.Duration
	weight      float64
	programPath string
	estimate    time.Duration
}

func (j *remoteJob) Ready() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.ready
}

func (j *remoteJob) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *remoteJob) BuildTime() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.buildTime
}

func (j *remoteJob) Weight() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.weight
}

func (j *remoteJob) ProgramPath() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.programPath
}

// EstimatedBuildTime is the slicer's running estimate while the job is still
// slicing, falling back to the final build time once known.
func (j *remoteJob) EstimatedBuildTime() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.buildTime > 0 {
		return j.buildTime
	}
	return j.estimate
}

// track polls the slicer until the job is terminal.
func (j *remoteJob) track() {
	for {
		done, err := j.refresh()
		if err != nil {
			j.mu.Lock()
			j.err = err
			j.ready = false
			j.mu.Unlock()
			j.service.log.Warnw("slice job failed", "job", j.remoteID, "error", err)
			return
		}
		if done {
			return
		}
		j.service.clock.Sleep(pollPeriod)
	}
}

func (j *remoteJob) refresh() (bool, error) {
	resp, err := j.service.httpClient.Get(j.service.baseURL + "/jobs/" + j.remoteID)
	if err != nil {
		return false, fmt.Errorf("poll slice job: %w", err)
	}
	defer resp.Body.Close()
	var status struct {
		Ready      bool    `json:"ready"`
		Error      string  `json:"error"`
		BuildTimeS float64 `json:"build_time_s"`
		EstimateS  float64 `json:"estimate_s"`
		WeightG    float64 `json:"weight_g"`
		ProgramURL string  `json:"program_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("parse slice status: %w", err)
	}
	if status.Error != "" {
		return false, fmt.Errorf("slicer error: %s", status.Error)
	}

	j.mu.Lock()
	j.estimate = time.Duration(status.EstimateS * float64(time.Second))
	j.mu.Unlock()

	if !status.Ready {
		return false, nil
	}

	programPath := ""
	if status.ProgramURL != "" {
		programPath, err = j.service.download(status.ProgramURL)
		if err != nil {
			return false, err
		}
	}

	j.mu.Lock()
	j.buildTime = time.Duration(status.BuildTimeS * float64(time.Second))
	j.weight = status.WeightG
	j.programPath = programPath
	j.ready = true
	j.mu.Unlock()
	return true, nil
}

// download fetches the sliced program into the work directory.
func (s *HTTPService) download(url string) (string, error) {
	resp, err := s.httpClient.Get(url)
	if err != nil {
		return "", fmt.Errorf("download program: %w", err)
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	out, err := os.CreateTemp(s.workDir, "sliced-*.gcode")
	if err != nil {
		return "", fmt.Errorf("create program file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("write program file: %w", err)
	}
	return out.Name(), nil
}

var _ Service = (*HTTPService)(nil)
