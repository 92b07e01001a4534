package dropbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Default endpoints and client constants.
const (
	DefaultAPIURL     = "https://api.dropbox.com"
	DefaultContentURL = "https://api-content.dropbox.com"

	// RootDropbox and RootSandbox are the two access roots the API accepts.
	RootDropbox = "dropbox"
	RootSandbox = "sandbox"

	defaultUserAgent      = "dropbox-go/0.1"
	defaultRequestTimeout = 60 * time.Second

	// maxErrorBody bounds how much of an error response is kept for messages.
	maxErrorBody = 64 * 1024
)

// Endpoints holds the base URLs for the two API hosts. Tests point both at an
// httptest server.
type Endpoints struct {
	API     string // metadata and account calls
	Content string // file content, chunked upload, commit
}

// DefaultEndpoints returns the production base URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{API: DefaultAPIURL, Content: DefaultContentURL}
}

// Doer executes a single HTTP request. *http.Client satisfies it. Defined at
// the consumer so tests can substitute a mock transport.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is an HTTP client for the Dropbox API. Every request is signed with
// the credential in the shared CredentialStore; signing happens under the
// store lock and the network round trip happens outside it.
//
// Nothing is retried here. Callers own retry policy; resumable uploads make
// restarting from the last adopted offset safe.
type Client struct {
	endpoints  Endpoints
	httpClient Doer
	creds      *CredentialStore
	signer     Signer
	logger     *slog.Logger

	root      string
	userAgent string
	timeout   time.Duration
}

// NewClient creates an API client. A nil httpClient uses http.DefaultClient
// and a nil logger uses slog.Default().
func NewClient(endpoints Endpoints, httpClient Doer, creds *CredentialStore, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if creds == nil {
		creds = NewCredentialStore()
	}

	return &Client{
		endpoints:  endpoints,
		httpClient: httpClient,
		creds:      creds,
		signer:     NewSigner(SecurityPlaintext),
		logger:     logger,
		root:       RootDropbox,
		userAgent:  defaultUserAgent,
		timeout:    defaultRequestTimeout,
	}
}

// Credentials returns the store the client signs with.
func (c *Client) Credentials() *CredentialStore {
	return c.creds
}

// SetRoot selects the access root ("dropbox" or "sandbox").
func (c *Client) SetRoot(root string) {
	c.root = root
}

// SetSecurityMethod replaces the signing method. Unsupported methods are not
// rejected here; every subsequent request fails with ErrUnsupportedSecurityMethod.
func (c *Client) SetSecurityMethod(m SecurityMethod) {
	c.signer = NewSigner(m)
}

// SetRequestTimeout bounds each individual round trip. Streaming transfers
// (file content up and down) fail only after d passes with no bytes moving.
// Zero disables the per-request timeout (the caller's context still applies).
func (c *Client) SetRequestTimeout(d time.Duration) {
	c.timeout = d
}

// SetUserAgent overrides the User-Agent header.
func (c *Client) SetUserAgent(ua string) {
	if ua != "" {
		c.userAgent = ua
	}
}

// apiRequest describes one outbound call.
type apiRequest struct {
	method string
	url    string
	query  url.Values
	form   url.Values // POST form body; ignored when body is set
	body   io.Reader
	length int64 // content length of body, -1 if unknown
	header http.Header
	// partialOK accepts 206 as a success (ranged downloads only).
	partialOK bool
	// streaming bounds the request by idle time instead of total time, so
	// large or throttled bodies are not cut off while bytes still move.
	streaming bool
}

// do signs r with the stored credential and executes it. On success the
// caller must close the response body; closing it also releases the
// per-request timeout.
func (c *Client) do(ctx context.Context, r apiRequest) (*http.Response, error) {
	return c.doSigned(ctx, r, func(req *http.Request) error {
		return c.creds.WithCredential(func(cred Credential) error {
			return c.signer.Sign(req, cred, SignOptions{})
		})
	})
}

// doBasic signs r with the consumer key pair instead of a user credential.
func (c *Client) doBasic(ctx context.Context, r apiRequest, key, secret string) (*http.Response, error) {
	return c.doSigned(ctx, r, func(req *http.Request) error {
		return c.signer.SignBasic(req, key, secret, SignOptions{})
	})
}

func (c *Client) doSigned(ctx context.Context, r apiRequest, sign func(*http.Request) error) (*http.Response, error) {
	ctx, cancel, idle := c.requestContext(ctx, r.streaming)

	if idle != nil && r.body != nil {
		r.body = &idleReader{r: r.body, idle: idle}
	}

	req, err := c.newRequest(ctx, r)
	if err != nil {
		cancel()
		return nil, err
	}

	if err := sign(req); err != nil {
		cancel()
		return nil, err
	}

	return c.execute(req, r.partialOK, cancel, idle)
}

// requestContext applies the per-request timeout. Streaming requests get an
// idle timer instead, which the body readers push back on every transfer.
func (c *Client) requestContext(ctx context.Context, streaming bool) (context.Context, context.CancelFunc, *idleTimer) {
	if c.timeout <= 0 {
		ctx, cancel := context.WithCancel(ctx)
		return ctx, cancel, nil
	}

	if !streaming {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		return ctx, cancel, nil
	}

	ctx, cancelCause := context.WithCancelCause(ctx)
	idle := &idleTimer{ctx: ctx, d: c.timeout}
	idle.t = time.AfterFunc(c.timeout, func() { cancelCause(errIdleTimeout) })

	return ctx, func() {
		idle.t.Stop()
		cancelCause(context.Canceled)
	}, idle
}

// newRequest builds the http.Request for r without signing it.
func (c *Client) newRequest(ctx context.Context, r apiRequest) (*http.Request, error) {
	target := r.url
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	body := r.body
	length := r.length
	contentType := ""

	if body == nil && len(r.form) > 0 {
		encoded := r.form.Encode()
		body = strings.NewReader(encoded)
		length = int64(len(encoded))
		contentType = "application/x-www-form-urlencoded"
	}

	if body == nil {
		body = http.NoBody
		length = 0
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("dropbox: creating request: %w", err)
	}

	if length >= 0 {
		req.ContentLength = length
	}

	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if contentType != "" {
		req.Header.Set(headerContentType, contentType)
	}

	req.Header.Set("User-Agent", c.userAgent)

	return req, nil
}

// execute runs one round trip and classifies the result. cancel is released
// when the returned body is closed, or immediately on failure.
func (c *Client) execute(
	req *http.Request, partialOK bool, cancel context.CancelFunc, idle *idleTimer,
) (*http.Response, error) {
	path := req.URL.Path

	resp, err := c.httpClient.Do(req)
	if err != nil {
		timeout := isTimeout(req.Context(), err)
		err = idle.explain(err)
		cancel()

		c.logger.Warn("request failed before response",
			slog.String("method", req.Method),
			slog.String("path", path),
			slog.Bool("timeout", timeout),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, req.Method, path, err)
	}

	if resp.StatusCode == http.StatusOK || (partialOK && resp.StatusCode == http.StatusPartialContent) {
		c.logger.Debug("request succeeded",
			slog.String("method", req.Method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		if idle != nil {
			idle.touch()
		}

		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel, idle: idle}

		return resp, nil
	}

	defer cancel()
	defer resp.Body.Close()

	errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	c.logger.Warn("request returned error status",
		slog.String("method", req.Method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return nil, &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Dropbox-Request-Id"),
		Message:    strings.TrimSpace(string(errBody)),
		Err:        classifyStatus(resp.StatusCode),
	}
}

// readBody drains and closes a successful response. A failure here happens
// after the status arrived, so it is a transport error, not an HTTP one.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %w", ErrTransport, err)
	}

	return data, nil
}

// cancelOnClose releases a per-request context when the body is closed.
// With an idle timer, every read that moves bytes pushes the deadline back.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
	idle   *idleTimer
}

func (b *cancelOnClose) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if b.idle == nil {
		return n, err
	}

	if n > 0 {
		b.idle.touch()
	}

	if err != nil && !errors.Is(err, io.EOF) {
		err = b.idle.explain(err)
	}

	return n, err
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()

	return err
}

// isTimeout reports whether err came from a deadline rather than the caller
// canceling.
func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(context.Cause(ctx), context.DeadlineExceeded)
}

// errIdleTimeout cancels a streaming request that moved no bytes for the
// request timeout.
var errIdleTimeout = fmt.Errorf("no data transferred within request timeout: %w", context.DeadlineExceeded)

// idleTimer cancels its request context after d without a touch.
type idleTimer struct {
	ctx context.Context
	d   time.Duration
	t   *time.Timer
}

func (it *idleTimer) touch() {
	it.t.Reset(it.d)
}

// explain replaces the bare context error of an idle-cancelled request with
// errIdleTimeout. Nil-safe.
func (it *idleTimer) explain(err error) error {
	if it == nil || !errors.Is(context.Cause(it.ctx), errIdleTimeout) {
		return err
	}

	return fmt.Errorf("%w (%w)", errIdleTimeout, err)
}

// idleReader pushes the idle deadline back as the request body is sent.
type idleReader struct {
	r    io.Reader
	idle *idleTimer
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.idle.touch()
	}

	return n, err
}
