// Package mgmt is the client for the platform's management API.
//
// The management API is the control-plane surface that works without a
// project link: it authenticates with a process-wide access token and is
// addressed by project ref. stacksync uses it to list functions, to
// deploy function files directly (the path that keeps working after a
// project moves to the container-only execution model), and to manage
// secrets.
package mgmt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"stacksync/internal/platform"
)

// AccessTokenEnv is the environment variable holding the platform access
// token. Its absence is a precondition failure for any management API
// use: there is no meaningful reconciliation without it.
const AccessTokenEnv = "STACKSYNC_ACCESS_TOKEN"

// DefaultBaseURL is the hosted management API endpoint.
const DefaultBaseURL = "https://api.stackhost.io"

// ErrNotFound is returned when the API answers 404 for a resource.
var ErrNotFound = errors.New("resource not found")

// Client talks to the management API. Safe for sequential use within a
// run; stacksync's execution model never calls it concurrently.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client with an explicit token. An empty token is a
// precondition failure (platform.ErrAccessTokenMissing).
func NewClient(baseURL, token string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: set %s", platform.ErrAccessTokenMissing, AccessTokenEnv)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// NewClientFromEnv creates a Client reading the token from the process
// environment.
func NewClientFromEnv(baseURL string) (*Client, error) {
	return NewClient(baseURL, os.Getenv(AccessTokenEnv))
}

// FunctionInfo is one deployed function as reported by the API.
type FunctionInfo struct {
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	UpdatedAt int64  `json:"updated_at"`
}

// ListFunctions returns the functions deployed on the project, in the
// order the API reports them.
func (c *Client) ListFunctions(ctx context.Context, projectRef string) ([]FunctionInfo, error) {
	var functions []FunctionInfo
	path := fmt.Sprintf("/v1/projects/%s/functions", projectRef)
	if err := c.getJSON(ctx, path, &functions); err != nil {
		return nil, fmt.Errorf("listing functions for %s: %w", projectRef, err)
	}
	return functions, nil
}

// Secret is one project secret. Values are write-only on the platform:
// List returns names only, values stay empty.
type Secret struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// ListSecrets returns the secret names configured on the project.
func (c *Client) ListSecrets(ctx context.Context, projectRef string) ([]Secret, error) {
	var secrets []Secret
	path := fmt.Sprintf("/v1/projects/%s/secrets", projectRef)
	if err := c.getJSON(ctx, path, &secrets); err != nil {
		return nil, fmt.Errorf("listing secrets for %s: %w", projectRef, err)
	}
	return secrets, nil
}

// SetSecrets creates or updates the given secrets on the project.
func (c *Client) SetSecrets(ctx context.Context, projectRef string, secrets []Secret) error {
	body, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("encoding secrets: %w", err)
	}

	path := fmt.Sprintf("/v1/projects/%s/secrets", projectRef)
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("setting secrets for %s: %w", projectRef, err)
	}
	defer resp.Body.Close()
	return c.checkStatus(resp)
}

// DeployFunction uploads the function files as a multipart payload.
// Each file is attached under its slash-separated relative path so the
// platform can reconstruct the tree.
func (c *Client) DeployFunction(ctx context.Context, projectRef, slug string, files []DeployFile) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	meta, err := json.Marshal(map[string]string{"slug": slug})
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	if err := writer.WriteField("metadata", string(meta)); err != nil {
		return fmt.Errorf("writing metadata part: %w", err)
	}

	for _, f := range files {
		part, err := writer.CreateFormFile("file", f.Path)
		if err != nil {
			return fmt.Errorf("creating part for %s: %w", f.Path, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return fmt.Errorf("writing part for %s: %w", f.Path, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing payload: %w", err)
	}

	path := fmt.Sprintf("/v1/projects/%s/functions/%s/deploy", projectRef, slug)
	req, err := c.newRequest(ctx, http.MethodPost, path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deploying %s to %s: %w", slug, projectRef, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return fmt.Errorf("deploying %s to %s: %w", slug, projectRef, err)
	}
	return nil
}

// DeployFile is one file of a function deployment payload.
type DeployFile struct {
	// Path is the slash-separated path relative to the function root.
	Path string

	// Content is the file bytes.
	Content []byte
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// checkStatus converts HTTP status codes into the error taxonomy.
func (c *Client) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", platform.ErrAuthFailed, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
}
