// Package remote talks to a dspfactory HTTP API.
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
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/dspfactory/api"
	"github.com/kilianp07/dspfactory/auth"
	"github.com/kilianp07/dspfactory/core/catalog"
	"github.com/kilianp07/dspfactory/core/factory"
	"github.com/kilianp07/dspfactory/core/repository"
	"github.com/kilianp07/dspfactory/infra/logger"
)

// DefaultTimeout bounds a single request when no http.Client is supplied.
const DefaultTimeout = 30 * time.Second

// StatusError is returned for responses outside the expected status set.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.Code, e.Body)
}

// Conf locates a remote API.
type Conf struct {
	URL            string    `json:"url"`
	Auth           auth.Conf `json:"auth"`
	TimeoutSeconds int       `json:"timeout_seconds"`
}

func (c *Conf) SetDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = int(DefaultTimeout / time.Second)
	}
}

func (c Conf) Validate() error {
	if c.URL == "" {
		return nil
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid remote url %q", c.URL)
	}
	return c.Auth.Validate()
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithAuthorizer sets the credentials attached to each request.
func WithAuthorizer(a auth.Authorizer) Option { return func(c *Client) { c.auth = a } }

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option { return func(c *Client) { c.log = l } }

// Client is a typed client for the /factories API.
type Client struct {
	base string
	http *http.Client
	auth auth.Authorizer
	log  logger.Logger
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid remote url %q", baseURL)
	}
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: DefaultTimeout},
		log:  logger.NopLogger{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// FromConf builds a client from configuration.
func FromConf(conf Conf, log logger.Logger) (*Client, error) {
	conf.SetDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	opts := []Option{WithHTTPClient(&http.Client{Timeout: time.Duration(conf.TimeoutSeconds) * time.Second})}
	if a := auth.NewAuthorizer(conf.Auth); a != nil {
		opts = append(opts, WithAuthorizer(a))
	}
	if log != nil {
		opts = append(opts, WithLogger(log))
	}
	return New(conf.URL, opts...)
}

// List returns catalog entries matching q.
func (c *Client) List(ctx context.Context, q catalog.Query) ([]catalog.Entry, error) {
	v := url.Values{}
	if q.Name != "" {
		v.Set("name", q.Name)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	var out []catalog.Entry
	if err := c.getJSON(ctx, "/factories", v, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the identity of a stored factory.
func (c *Client) Get(ctx context.Context, sha string) (api.FactoryView, error) {
	var out api.FactoryView
	err := c.getJSON(ctx, "/factories/"+url.PathEscape(sha), nil, &out)
	return out, err
}

// Metadata returns the declared metadata of a stored factory.
func (c *Client) Metadata(ctx context.Context, sha string) ([]api.MetaPair, error) {
	var out []api.MetaPair
	err := c.getJSON(ctx, "/factories/"+url.PathEscape(sha)+"/metadata", nil, &out)
	return out, err
}

// Artifact downloads the serialised factory in the requested variant.
func (c *Client) Artifact(ctx context.Context, sha string, opts factory.WriteOptions) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/factories/"+url.PathEscape(sha)+"/artifact", flags(opts), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := expect(resp, http.StatusOK); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// Fetch downloads an artifact and reconstructs it with readers.
func (c *Client) Fetch(ctx context.Context, sha string, readers *factory.Readers, opts factory.WriteOptions) (factory.Factory, error) {
	data, err := c.Artifact(ctx, sha, opts)
	if err != nil {
		return nil, err
	}
	f, _, err := readers.ReadBytes(data)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, repository.ErrUnrecognized
	}
	return f, nil
}

// Push uploads an artifact. The server stores it in the variant opts names.
func (c *Client) Push(ctx context.Context, artifact io.Reader, opts factory.WriteOptions) (catalog.Entry, error) {
	body, err := io.ReadAll(artifact)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("read artifact: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/factories", flags(opts), body, "application/octet-stream")
	if err != nil {
		return catalog.Entry{}, err
	}
	defer resp.Body.Close()
	if err := expect(resp, http.StatusCreated); err != nil {
		return catalog.Entry{}, err
	}
	var entry catalog.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return catalog.Entry{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return entry, nil
}

// PushFactory serialises f and uploads it.
func (c *Client) PushFactory(ctx context.Context, f factory.Factory, opts factory.WriteOptions) (catalog.Entry, error) {
	var buf bytes.Buffer
	if err := f.Write(&buf, opts); err != nil {
		return catalog.Entry{}, fmt.Errorf("write factory: %w", err)
	}
	return c.Push(ctx, &buf, opts)
}

// Delete removes a stored factory. It reports false when nothing was stored.
func (c *Client) Delete(ctx context.Context, sha string) (bool, error) {
	resp, err := c.do(ctx, http.MethodDelete, "/factories/"+url.PathEscape(sha), nil, nil, "")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err := expect(resp, http.StatusNoContent); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, q, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expect(resp, http.StatusOK); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do sends one request. A 401 with client credentials triggers a single
// retry with a fresh token.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte, ctype string) (*http.Response, error) {
	target := c.base + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if ctype != "" {
			req.Header.Set("Content-Type", ctype)
		}
		if c.auth != nil {
			if err := c.auth.SetAuthHeader(req); err != nil {
				return nil, fmt.Errorf("failed to set auth header: %w", err)
			}
		}
		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to send request: %w", err)
		}
		c.log.Debugw("remote request", map[string]any{
			"method":   method,
			"path":     path,
			"status":   resp.StatusCode,
			"duration": time.Since(start).String(),
		})
		cc, ok := c.auth.(*auth.ClientCred)
		if resp.StatusCode != http.StatusUnauthorized || !ok || attempt > 0 {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if _, err := cc.ForceRefresh(ctx); err != nil {
			return nil, err
		}
	}
}

func expect(resp *http.Response, code int) error {
	if resp.StatusCode == code {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	se := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return errors.Join(repository.ErrNotFound, se)
	case http.StatusUnprocessableEntity:
		return errors.Join(repository.ErrUnrecognized, se)
	}
	return se
}

func flags(opts factory.WriteOptions) url.Values {
	v := url.Values{}
	if opts.Binary {
		v.Set("binary", "true")
	}
	if opts.Small {
		v.Set("small", "true")
	}
	return v
}
