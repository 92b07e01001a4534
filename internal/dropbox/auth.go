package dropbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/oauth2"
)

// Default OAuth2 endpoints.
const (
	DefaultAuthorizeURL = "https://www.dropbox.com/oauth2/authorize"
	DefaultTokenURL     = "https://api.dropboxapi.com/oauth2/token"
)

// Owner id keys in the token response. Exactly one must be present.
const (
	ownerKeyAccount = "account_id"
	ownerKeyTeam    = "team_id"
)

// FlowState is a position in the authorization state machine.
type FlowState int

const (
	FlowUnauthenticated FlowState = iota
	FlowCodeCaptured
	FlowAuthenticated
	FlowFailed
)

func (s FlowState) String() string {
	switch s {
	case FlowUnauthenticated:
		return "unauthenticated"
	case FlowCodeCaptured:
		return "code_captured"
	case FlowAuthenticated:
		return "authenticated"
	case FlowFailed:
		return "failed"
	default:
		return fmt.Sprintf("FlowState(%d)", int(s))
	}
}

// FlowConfig holds the app credentials and endpoints for the authorization flow.
type FlowConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	Method         SecurityMethod
	AuthorizeURL   string // defaults to DefaultAuthorizeURL
	TokenURL       string // defaults to DefaultTokenURL
	RedirectURL    string // optional; empty for the copy-the-code flow
	HTTPClient     *http.Client // defaults to http.DefaultClient
}

// AuthorizationFlow drives the authorization-code → access-token exchange:
//
//	Unauthenticated → CaptureCode → CodeCaptured → Exchange → Authenticated | Failed
//
// The user-facing redirect happens out of band: the caller shows AuthCodeURL,
// the user approves the app and pastes back the code. A flow that reached
// Authenticated is not reused; rotating the token takes a fresh flow.
type AuthorizationFlow struct {
	cfg    *oauth2.Config
	method SecurityMethod
	client *http.Client
	store  *CredentialStore
	logger *slog.Logger

	mu    sync.Mutex
	state FlowState
	code  string
}

// NewAuthorizationFlow creates a flow that writes the resulting credential
// into store.
func NewAuthorizationFlow(fc FlowConfig, store *CredentialStore, logger *slog.Logger) *AuthorizationFlow {
	if logger == nil {
		logger = slog.Default()
	}

	authURL := fc.AuthorizeURL
	if authURL == "" {
		authURL = DefaultAuthorizeURL
	}

	tokenURL := fc.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	return &AuthorizationFlow{
		cfg: &oauth2.Config{
			ClientID:     fc.ConsumerKey,
			ClientSecret: fc.ConsumerSecret,
			RedirectURL:  fc.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
				// client_id and client_secret go in the form body.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		method: fc.Method,
		client: tokenClient(fc.HTTPClient),
		store:  store,
		logger: logger,
	}
}

// State returns the current position in the state machine.
func (f *AuthorizationFlow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.state
}

// AuthCodeURL returns the URL the user visits to approve the app. state is
// echoed back on redirect and may be empty.
func (f *AuthorizationFlow) AuthCodeURL(state string) string {
	return f.cfg.AuthCodeURL(state)
}

// CaptureCode records the authorization code obtained out of band. A failed
// flow may capture a new code; an authenticated one may not.
func (f *AuthorizationFlow) CaptureCode(code string) error {
	if code == "" {
		return fmt.Errorf("%w: empty code", ErrNoAuthorizationCode)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == FlowAuthenticated {
		return ErrFlowComplete
	}

	f.code = code
	f.state = FlowCodeCaptured

	f.logger.Debug("authorization code captured")

	return nil
}

// Exchange trades the captured code for an access token, stores the resulting
// credential, and returns it. The code is consumed whatever the outcome.
// Nothing is retried.
func (f *AuthorizationFlow) Exchange(ctx context.Context) (Credential, error) {
	if _, err := strategyFor(f.method); err != nil {
		return Credential{}, err
	}

	code, err := f.takeCode()
	if err != nil {
		return Credential{}, err
	}

	f.logger.Info("exchanging authorization code for token")

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client)

	tok, err := f.cfg.Exchange(ctx, code)
	if err != nil {
		return Credential{}, f.fail(classifyExchangeError(err))
	}

	cred, err := credentialFromToken(tok)
	if err != nil {
		return Credential{}, f.fail(err)
	}

	if err := f.store.Set(cred); err != nil {
		return Credential{}, f.fail(err)
	}

	f.mu.Lock()
	f.state = FlowAuthenticated
	f.mu.Unlock()

	f.logger.Info("authorization complete", slog.String("token_type", cred.TokenType))

	return cred, nil
}

// takeCode consumes the captured code, enforcing CodeCaptured.
func (f *AuthorizationFlow) takeCode() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case FlowCodeCaptured:
		code := f.code
		f.code = ""

		return code, nil
	case FlowAuthenticated:
		return "", ErrFlowComplete
	default:
		return "", ErrNoAuthorizationCode
	}
}

func (f *AuthorizationFlow) fail(err error) error {
	f.mu.Lock()
	f.state = FlowFailed
	f.mu.Unlock()

	f.logger.Warn("authorization failed", slog.String("error", err.Error()))

	return err
}

// tokenClient copies base (or http.DefaultClient) with a transport that
// rejects every token response other than 200 OK. oauth2 alone would take
// any 2xx.
func tokenClient(base *http.Client) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}

	c := *base

	rt := c.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}

	c.Transport = &okOnlyTransport{base: rt}

	return &c
}

// okOnlyTransport turns a non-200 response into an *APIError before oauth2
// parses it.
type okOnlyTransport struct {
	base http.RoundTripper
}

func (t *okOnlyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode == http.StatusOK {
		return resp, err
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		body = []byte("(failed to read response body)")
	}

	return nil, &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Dropbox-Request-Id"),
		Message:    string(body),
		Err:        classifyStatus(resp.StatusCode),
	}
}

// classifyExchangeError maps oauth2 errors onto the taxonomy: a response with
// a status other than 200 is ErrHTTPRequestFailed, no response at all is
// ErrTransport, and everything else (unparseable body, missing token) is a
// malformed response.
func classifyExchangeError(err error) error {
	// Checked before *url.Error, which wraps whatever the transport returned.
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		status := 0
		if rErr.Response != nil {
			status = rErr.Response.StatusCode
		}

		return &APIError{
			StatusCode: status,
			Message:    string(rErr.Body),
			Err:        classifyStatus(status),
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: token request: %w", ErrTransport, err)
	}

	return fmt.Errorf("%w: %w", ErrMalformedOAuthResponse, err)
}

// credentialFromToken validates the token response fields and builds the
// credential. Exactly one of account_id and team_id must be present.
func credentialFromToken(tok *oauth2.Token) (Credential, error) {
	if tok.AccessToken == "" {
		return Credential{}, fmt.Errorf("%w: missing access_token", ErrMalformedOAuthResponse)
	}

	if tok.TokenType == "" {
		return Credential{}, fmt.Errorf("%w: missing token_type", ErrMalformedOAuthResponse)
	}

	accountID, hasAccount, err := stringExtra(tok, ownerKeyAccount)
	if err != nil {
		return Credential{}, err
	}

	teamID, hasTeam, err := stringExtra(tok, ownerKeyTeam)
	if err != nil {
		return Credential{}, err
	}

	var owner string

	switch {
	case hasAccount && !hasTeam:
		owner = accountID
	case hasTeam && !hasAccount:
		owner = teamID
	case hasAccount && hasTeam:
		return Credential{}, fmt.Errorf("%w: both %s and %s present", ErrMalformedOAuthResponse, ownerKeyAccount, ownerKeyTeam)
	default:
		return Credential{}, fmt.Errorf("%w: neither %s nor %s present", ErrMalformedOAuthResponse, ownerKeyAccount, ownerKeyTeam)
	}

	return Credential{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		OwnerID:     owner,
	}, nil
}

// stringExtra reads an optional string field from the raw token response.
// A present field that is not a non-empty string is malformed.
func stringExtra(tok *oauth2.Token, key string) (string, bool, error) {
	v := tok.Extra(key)
	if v == nil {
		return "", false, nil
	}

	s, ok := v.(string)
	if !ok || s == "" {
		return "", false, fmt.Errorf("%w: %s is not a non-empty string", ErrMalformedOAuthResponse, key)
	}

	return s, true, nil
}
