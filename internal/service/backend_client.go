package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"launchpad/internal/config"
	"launchpad/internal/logger"
	"launchpad/internal/model"
)

// DocumentUpload is one file posted to a project's document store
type DocumentUpload struct {
	QuestionID  string
	FieldKey    string
	Name        string
	Section     string
	SubSection  string
	FileName    string
	ContentType string
	Content     io.Reader
}

// BackendClient calls the funding platform API on behalf of a founder.
// Every call forwards the founder's bearer token.
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration
	log        logger.Logger
}

func NewBackendClient(cfg config.BackendConfig, log logger.Logger) *BackendClient {
	if log == nil {
		log = logger.Default()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &BackendClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		maxRetries: maxRetries,
		retryBase:  500 * time.Millisecond,
		log:        log,
	}
}

type request struct {
	method      string
	path        string
	token       string
	contentType string
	body        []byte
	wantStatus  int
	// retry is only set for idempotent reads
	retry bool
}

// do performs the request, retrying GETs on transport errors and 429
func (c *BackendClient) do(ctx context.Context, r request) ([]byte, error) {
	attempts := 1
	if r.retry {
		attempts = c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.retryBase
			c.log.Debugw("backend retry", "method", r.method, "path", r.path, "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		var body io.Reader
		if r.body != nil {
			body = bytes.NewReader(r.body)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if r.token != "" {
			req.Header.Set("Authorization", "Bearer "+r.token)
		}
		if r.contentType != "" {
			req.Header.Set("Content-Type", r.contentType)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warnw("backend request failed", "method", r.method, "path", r.path, "attempt", attempt+1, "error", err)
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests && r.retry {
			c.log.Warnw("backend rate limited", "method", r.method, "path", r.path, "attempt", attempt+1)
			lastErr = &BackendError{Status: resp.StatusCode, Message: "rate limited"}
			continue
		}

		if resp.StatusCode != r.wantStatus {
			berr := &BackendError{Status: resp.StatusCode}
			var msg messageResponse
			if json.Unmarshal(respBody, &msg) == nil {
				berr.Message = msg.Message
			}
			c.log.Warnw("backend returned error", "method", r.method, "path", r.path, "status", resp.StatusCode, "message", berr.Message)
			return nil, berr
		}

		c.log.Debugw("backend request completed", "method", r.method, "path", r.path, "status", resp.StatusCode)
		return respBody, nil
	}

	return nil, fmt.Errorf("backend %s %s: max retries exceeded: %w", r.method, r.path, lastErr)
}

// FetchQuestions loads a project's questions with any uploaded documents and
// team roster merged into their fields.
func (c *BackendClient) FetchQuestions(ctx context.Context, token, projectID string) (*model.ProjectQuestions, error) {
	respBody, err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/project/questions?project_id=" + url.QueryEscape(projectID),
		token:      token,
		wantStatus: http.StatusOK,
		retry:      true,
	})
	if err != nil {
		return nil, err
	}

	var resp questionsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse questions response: %w", err)
	}
	return resp.toModel()
}

// SaveDraft writes one batch of drafts. Only 200 counts as success.
func (c *BackendClient) SaveDraft(ctx context.Context, token, projectID string, drafts []model.ProjectDraft) error {
	body, err := json.Marshal(toDraftRequest(drafts))
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	_, err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/project/" + url.PathEscape(projectID) + "/draft",
		token:       token,
		contentType: "application/json",
		body:        body,
		wantStatus:  http.StatusOK,
	})
	return err
}

func (c *BackendClient) UploadDocument(ctx context.Context, token, projectID string, up DocumentUpload) (*model.ProjectDocument, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fileName := up.FileName
	if fileName == "" {
		fileName = up.Name
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, up.Content); err != nil {
		return nil, fmt.Errorf("copy file part: %w", err)
	}
	fields := [][2]string{
		{"question_id", up.QuestionID},
		{"name", up.Name},
		{"section", up.Section},
		{"sub_section", up.SubSection},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	respBody, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/project/" + url.PathEscape(projectID) + "/documents",
		token:       token,
		contentType: mw.FormDataContentType(),
		body:        buf.Bytes(),
		wantStatus:  http.StatusCreated,
	})
	if err != nil {
		return nil, err
	}

	var dto documentDTO
	if err := json.Unmarshal(respBody, &dto); err != nil {
		return nil, fmt.Errorf("parse document response: %w", err)
	}
	doc := dto.toModel()
	if doc.QuestionID == "" {
		doc.QuestionID = up.QuestionID
	}
	if doc.FieldKey == "" {
		doc.FieldKey = up.FieldKey
	}
	return &doc, nil
}

func (c *BackendClient) DeleteDocument(ctx context.Context, token, projectID, documentID string) error {
	_, err := c.do(ctx, request{
		method:     http.MethodDelete,
		path:       "/project/" + url.PathEscape(projectID) + "/documents/" + url.PathEscape(documentID),
		token:      token,
		wantStatus: http.StatusOK,
	})
	return err
}

// SubmitProject hands the application over for review. A rejection carries
// the platform's message in a *BackendError.
func (c *BackendClient) SubmitProject(ctx context.Context, token, projectID string) error {
	_, err := c.do(ctx, request{
		method:     http.MethodPost,
		path:       "/project/" + url.PathEscape(projectID) + "/submit",
		token:      token,
		wantStatus: http.StatusOK,
	})
	return err
}

// IsBackendStatus reports whether err is a *BackendError with the given status
func IsBackendStatus(err error, status int) bool {
	var berr *BackendError
	return errors.As(err, &berr) && berr.Status == status
}
