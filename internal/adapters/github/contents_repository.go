package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tripboard/core/internal/domain/entities"
	"github.com/tripboard/core/internal/infrastructure/logger"
	"github.com/tripboard/core/internal/infrastructure/metrics"
)

const (
	defaultAPIURL  = "https://api.github.com"
	defaultTimeout = 15 * time.Second
	apiVersion     = "2022-11-28"
	maxErrorBody   = 512
)

// Options configures a ContentsRepository
type Options struct {
	Token      string
	Owner      string
	Repo       string
	Path       string
	Branch     string
	APIURL     string
	Timeout    time.Duration
	MaxRetries int

	HTTPClient *http.Client
}

// RemoteError is a non-success response from the contents API
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("github %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// Unwrap maps status codes onto the store's sentinel errors
func (e *RemoteError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return entities.ErrDocumentNotFound
	case http.StatusConflict:
		return entities.ErrRevisionConflict
	}
	return nil
}

// contentsResponse is the subset of the contents API file payload we use
type contentsResponse struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

type putContentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

type putContentsResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// ContentsRepository stores the document as one file in a GitHub repository.
// Every write carries the blob sha read just before it, so a concurrent
// writer produces a 409 instead of a blind overwrite.
type ContentsRepository struct {
	client     *http.Client
	baseURL    string
	token      string
	owner      string
	repo       string
	path       string
	branch     string
	timeout    time.Duration
	maxRetries int
	logger     *logger.Logger
	metrics    *metrics.StoreMetrics
}

// NewContentsRepository creates a new GitHub contents API repository
func NewContentsRepository(opts Options, appLogger *logger.Logger, storeMetrics *metrics.StoreMetrics) (*ContentsRepository, error) {
	if opts.Token == "" {
		return nil, entities.ErrRemoteNotConfigured
	}
	if opts.Owner == "" || opts.Repo == "" || opts.Path == "" {
		return nil, fmt.Errorf("owner, repo and path are required")
	}
	if opts.APIURL == "" {
		opts.APIURL = defaultAPIURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if appLogger == nil {
		appLogger = logger.NewNop()
	}

	return &ContentsRepository{
		client:     opts.HTTPClient,
		baseURL:    strings.TrimRight(opts.APIURL, "/"),
		token:      opts.Token,
		owner:      opts.Owner,
		repo:       opts.Repo,
		path:       strings.TrimLeft(opts.Path, "/"),
		branch:     opts.Branch,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		logger:     appLogger.WithComponent("github_store"),
		metrics:    storeMetrics,
	}, nil
}

// Backend implements ports.DocumentRepository
func (r *ContentsRepository) Backend() entities.Backend {
	return entities.BackendGitHub
}

// Describe implements ports.DocumentRepository
func (r *ContentsRepository) Describe() string {
	return fmt.Sprintf("github:%s/%s/%s@%s", r.owner, r.repo, r.path, r.branch)
}

// Load fetches and parses the document file
func (r *ContentsRepository) Load(ctx context.Context) (*entities.Document, error) {
	file, err := r.getContents(ctx)
	if err != nil {
		return nil, err
	}

	data, err := decodeContent(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrDocumentCorrupted, err)
	}

	doc, err := entities.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.path, err)
	}

	return doc, nil
}

// Save writes the document keyed to the current revision. A 409 re-fetches
// the revision and resubmits, at most MaxRetries times.
func (r *ContentsRepository) Save(ctx context.Context, doc *entities.Document, reason string) (*entities.SaveResult, error) {
	data, err := doc.Encode()
	if err != nil {
		return nil, err
	}
	content := base64.StdEncoding.EncodeToString(data)

	var lastErr error
	for attempt := 1; attempt <= r.maxRetries+1; attempt++ {
		if attempt > 1 {
			r.metrics.ObserveConflictRetry()
			r.logger.Warnw("Revision conflict, retrying with fresh revision", "attempt", attempt, "path", r.path)
		}

		sha, err := r.currentRevision(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch revision: %w", err)
		}

		revision, err := r.putContents(ctx, putContentsRequest{
			Message: reason,
			Content: content,
			Branch:  r.branch,
			SHA:     sha,
		})
		if err == nil {
			return &entities.SaveResult{
				Backend:     entities.BackendGitHub,
				LastUpdated: doc.LastUpdated,
				Revision:    revision,
				Attempts:    attempt,
			}, nil
		}

		lastErr = err
		if !errors.Is(err, entities.ErrRevisionConflict) {
			return nil, err
		}
	}

	return nil, lastErr
}

// currentRevision returns the blob sha of the remote file, or "" when it does not exist yet
func (r *ContentsRepository) currentRevision(ctx context.Context) (string, error) {
	file, err := r.getContents(ctx)
	if err != nil {
		if errors.Is(err, entities.ErrDocumentNotFound) {
			return "", nil
		}
		return "", err
	}
	return file.SHA, nil
}

func (r *ContentsRepository) getContents(ctx context.Context) (*contentsResponse, error) {
	endpoint := r.contentsURL()
	if r.branch != "" {
		endpoint += "?ref=" + url.QueryEscape(r.branch)
	}

	body, err := r.do(ctx, http.MethodGet, endpoint, nil, "get contents", http.StatusOK)
	if err != nil {
		return nil, err
	}

	var file contentsResponse
	if err := json.Unmarshal(body, &file); err != nil {
		return nil, fmt.Errorf("%w: decode contents response: %v", entities.ErrDocumentCorrupted, err)
	}
	if file.Type != "" && file.Type != "file" {
		return nil, fmt.Errorf("%w: %s is a %s, not a file", entities.ErrDocumentCorrupted, r.path, file.Type)
	}

	return &file, nil
}

func (r *ContentsRepository) putContents(ctx context.Context, req putContentsRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	body, err := r.do(ctx, http.MethodPut, r.contentsURL(), payload, "put contents", http.StatusOK, http.StatusCreated)
	if err != nil {
		return "", err
	}

	var resp putContentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		// The write landed; only the response is unreadable
		r.logger.Warnw("Could not decode put response", "error", err)
		return "", nil
	}
	return resp.Content.SHA, nil
}

func (r *ContentsRepository) do(ctx context.Context, method, endpoint string, payload []byte, op string, accepted ...int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("github %s: read body: %w", op, err)
	}

	r.logger.Debugw("GitHub request",
		"method", method,
		"op", op,
		"status", resp.StatusCode,
		"duration_ms", float64(time.Since(start).Nanoseconds())/1000000,
	)

	for _, code := range accepted {
		if resp.StatusCode == code {
			return body, nil
		}
	}

	return nil, &RemoteError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    errorMessage(body),
	}
}

func (r *ContentsRepository) contentsURL() string {
	segments := strings.Split(r.path, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		r.baseURL,
		url.PathEscape(r.owner),
		url.PathEscape(r.repo),
		strings.Join(segments, "/"),
	)
}

func decodeContent(file *contentsResponse) ([]byte, error) {
	if file.Encoding != "" && file.Encoding != "base64" {
		return nil, fmt.Errorf("unsupported content encoding %q", file.Encoding)
	}

	// The API wraps base64 content at 60 columns
	cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(file.Content)
	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("decode base64 content: %w", err)
	}
	return data, nil
}

func errorMessage(body []byte) string {
	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if msg == "" {
		msg = "empty response"
	}
	return msg
}
