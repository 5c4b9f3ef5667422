package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/promptinfra/internal/ir"
)

const (
	// DefaultBaseURL is the Terraform Cloud API host.
	DefaultBaseURL = "https://app.terraform.io"

	// DefaultPhaseTimeout bounds each protocol phase.
	DefaultPhaseTimeout = 30 * time.Second

	jsonAPIContentType = "application/vnd.api+json"
	archiveContentType = "application/octet-stream"

	// maxErrorBody caps how much of a failing response is kept.
	maxErrorBody = 512
)

// Config configures a Publisher.
type Config struct {
	BaseURL       string
	Token         string
	Organization  string
	CreateTimeout time.Duration
	UploadTimeout time.Duration
}

// Publisher runs publish jobs. It is safe for concurrent use; each job
// carries its own state.
type Publisher struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	clock  func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithHTTPClient sets the HTTP client. Per-phase deadlines come from the
// request context, not the client timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Publisher) { p.client = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// WithClock sets the clock stamped on transitions and archive entries.
func WithClock(clock func() time.Time) Option {
	return func(p *Publisher) { p.clock = clock }
}

// New builds a Publisher. Missing timeouts and base URL take defaults. A
// missing token is not an error here: jobs fail with KindCredential.
func New(cfg Config, opts ...Option) *Publisher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CreateTimeout <= 0 {
		cfg.CreateTimeout = DefaultPhaseTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = DefaultPhaseTimeout
	}
	p := &Publisher{
		cfg:    cfg,
		client: http.DefaultClient,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkspaceURL is the browser URL for a workspace.
func (p *Publisher) WorkspaceURL(workspace string) string {
	return fmt.Sprintf("%s/app/%s/workspaces/%s",
		p.cfg.BaseURL, url.PathEscape(p.cfg.Organization), url.PathEscape(workspace))
}

// Publish creates a job for artifact and runs it.
func (p *Publisher) Publish(ctx context.Context, workspace string, artifact ir.Artifact) (*Job, error) {
	job := NewJob(workspace, artifact)
	return job, p.Run(ctx, job)
}

// Run drives job to a terminal state. The returned error is nil exactly
// when the job ends Verified; otherwise it is the job's *Error, or
// ErrJobUsed for a job that was already run.
func (p *Publisher) Run(ctx context.Context, job *Job) error {
	if err := job.begin(); err != nil {
		return err
	}
	log := p.logger.With("workspace", job.Workspace)

	if p.cfg.Token == "" {
		return p.failJob(job, &Error{
			Phase: PhaseCreateVersion,
			Kind:  KindCredential,
			Err:   errors.New("no API token configured"),
		}, log)
	}

	versionID, uploadURL, perr := p.createVersion(ctx, job.Workspace)
	if perr != nil {
		return p.failJob(job, perr, log)
	}
	job.setVersion(versionID, uploadURL)
	if err := job.advance(StateConfigVersionCreated, p.clock()); err != nil {
		return err
	}
	log.Debug("configuration version created", "config_version", versionID)

	archive, err := BuildArchive(job.Artifact.Text, p.clock())
	if err != nil {
		return p.failJob(job, &Error{Phase: PhaseUpload, Kind: KindMalformed, Err: err}, log)
	}

	status, body, perr := p.upload(ctx, uploadURL, archive)
	if perr != nil {
		return p.failJob(job, perr, log)
	}
	if status < 200 || status > 299 {
		return p.failJob(job, &Error{
			Phase:      PhaseUpload,
			Kind:       KindStatus,
			StatusCode: status,
			Body:       body,
		}, log)
	}

	if err := job.advance(StateArchiveUploaded, p.clock()); err != nil {
		return err
	}
	if err := job.advance(StateVerified, p.clock()); err != nil {
		return err
	}
	log.Info("artifact published", "config_version", versionID, "bytes", len(archive))
	return nil
}

func (p *Publisher) failJob(job *Job, perr *Error, log *slog.Logger) error {
	if err := job.fail(perr, p.clock()); err != nil {
		return err
	}
	log.Warn("publish failed", "phase", perr.Phase, "kind", perr.Kind, "status", perr.StatusCode, "error", perr)
	return perr
}

type createVersionRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			AutoQueueRuns bool `json:"auto-queue-runs"`
			Speculative   bool `json:"speculative"`
		} `json:"attributes"`
	} `json:"data"`
}

type createVersionResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			UploadURL string `json:"upload-url"`
		} `json:"attributes"`
	} `json:"data"`
}

// createVersion runs phase 1 and returns the configuration version id and
// upload URL.
func (p *Publisher) createVersion(ctx context.Context, workspace string) (string, string, *Error) {
	fail := func(kind Kind, status int, body string, err error) (string, string, *Error) {
		return "", "", &Error{Phase: PhaseCreateVersion, Kind: kind, StatusCode: status, Body: body, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.CreateTimeout)
	defer cancel()

	var reqBody createVersionRequest
	reqBody.Data.Type = "configuration-versions"
	reqBody.Data.Attributes.AutoQueueRuns = true
	reqBody.Data.Attributes.Speculative = false
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fail(KindMalformed, 0, "", err)
	}

	endpoint := fmt.Sprintf("%s/api/v2/workspaces/%s/configuration-versions", p.cfg.BaseURL, url.PathEscape(workspace))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fail(KindNetwork, 0, "", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	req.Header.Set("Content-Type", jsonAPIContentType)
	req.Header.Set("Accept", jsonAPIContentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return fail(transportKind(ctx, err), 0, "", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(transportKind(ctx, err), 0, "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(KindStatus, resp.StatusCode, truncate(data), nil)
	}

	var out createVersionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return fail(KindMalformed, 0, truncate(data), fmt.Errorf("decoding response: %w", err))
	}
	uploadURL := out.Data.Attributes.UploadURL
	if uploadURL == "" {
		return fail(KindMalformed, 0, truncate(data), errors.New("response has no upload-url"))
	}
	if _, err := url.ParseRequestURI(uploadURL); err != nil {
		return fail(KindMalformed, 0, "", fmt.Errorf("invalid upload-url: %w", err))
	}
	return out.Data.ID, uploadURL, nil
}

// upload runs phase 2. A transport failure is returned as *Error; any HTTP
// response is returned as its status for the caller to judge.
func (p *Publisher) upload(ctx context.Context, uploadURL string, archive []byte) (int, string, *Error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.UploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(archive))
	if err != nil {
		return 0, "", &Error{Phase: PhaseUpload, Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Content-Type", archiveContentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, "", &Error{Phase: PhaseUpload, Kind: transportKind(ctx, err), Err: err}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return resp.StatusCode, string(data), nil
}

// transportKind separates phase timeouts from other transport failures.
func transportKind(ctx context.Context, err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindNetwork
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
