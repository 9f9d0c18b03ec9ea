// Package remote talks to a template server over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nitro/lazytemplate/internal/domain"
	"github.com/nitro/lazytemplate/internal/service"
)

// ErrNotFound matches any response with the status 404.
var ErrNotFound = ResponseError{Status: http.StatusNotFound}

// ResponseError is a non-2xx answer from the server.
type ResponseError struct {
	Status int
	Title  string
	Detail string
}

// Is compares by status.
func (re ResponseError) Is(target error) bool {
	var err ResponseError
	if !errors.As(target, &err) {
		return false
	}
	return re.Status == err.Status
}

func (re ResponseError) Error() string {
	message := fmt.Sprintf("server answered %d", re.Status)
	if re.Title != "" {
		message += ": " + re.Title
	}
	if re.Detail != "" {
		message += ": " + re.Detail
	}
	return message
}

// Client of the template server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	base *url.URL
}

// Init the client internal state.
func (c *Client) Init() error {
	if c.BaseURL == "" {
		return errors.New("internal/remote/Client.BaseURL can't be empty")
	}
	if c.HTTPClient == nil {
		return errors.New("internal/remote/Client.HTTPClient can't be nil")
	}
	base, err := url.Parse(strings.TrimSuffix(c.BaseURL, "/"))
	if err != nil {
		return fmt.Errorf("fail to parse the base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("invalid base url '%s'", c.BaseURL)
	}
	c.base = base
	return nil
}

// Create stores the template. It is the persistence collaborator of an annotation session.
func (c Client) Create(ctx context.Context, template domain.Template) error {
	_, err := c.Save(ctx, template)
	return err
}

// Save stores the template and returns the server answer.
func (c Client) Save(ctx context.Context, template domain.Template) (service.SaveResult, error) {
	payload, err := json.Marshal(template)
	if err != nil {
		return service.SaveResult{}, fmt.Errorf("fail to marshal the template: %w", err)
	}

	var result service.SaveResult
	if err := c.do(ctx, http.MethodPost, "/templates/save", bytes.NewReader(payload), &result); err != nil {
		return service.SaveResult{}, err
	}
	return result, nil
}

// List the stored templates.
func (c Client) List(ctx context.Context) ([]string, error) {
	var result struct {
		Templates []string `json:"templates"`
	}
	if err := c.do(ctx, http.MethodGet, "/templates", nil, &result); err != nil {
		return nil, err
	}
	return result.Templates, nil
}

// Load a stored template.
func (c Client) Load(ctx context.Context, name string) (domain.Template, error) {
	var result domain.Template
	if err := c.do(ctx, http.MethodGet, "/templates/load/"+url.PathEscape(name), nil, &result); err != nil {
		return domain.Template{}, err
	}
	return result, nil
}

// Delete a stored template.
func (c Client) Delete(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/templates/"+url.PathEscape(name), nil, nil)
}

func (c Client) do(ctx context.Context, method, path string, body io.Reader, output interface{}) error {
	endpoint := c.base.String() + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("fail to create the request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("fail to %s '%s': %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("fail to read the response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp.StatusCode, payload)
	}
	if output == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, output); err != nil {
		return fmt.Errorf("fail to unmarshal the response: %w", err)
	}
	return nil
}

func responseError(status int, payload []byte) error {
	var envelope struct {
		Error struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"error"`
	}
	err := ResponseError{Status: status}
	if json.Unmarshal(payload, &envelope) == nil && envelope.Error.Title != "" {
		err.Title = envelope.Error.Title
		err.Detail = envelope.Error.Detail
		return err
	}
	err.Detail = strings.TrimSpace(string(payload))
	if len(err.Detail) > 512 {
		err.Detail = err.Detail[:512]
	}
	return err
}
