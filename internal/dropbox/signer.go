package dropbox

import (
	"fmt"
	"net/http"
)

// SecurityMethod selects how outbound requests are signed. The set is closed;
// only SecurityPlaintext is implemented and every other value fails closed.
type SecurityMethod int

const (
	// SecurityUnknown is the zero value and is never accepted.
	SecurityUnknown SecurityMethod = iota
	// SecurityPlaintext sends the credential as-is in the Authorization header.
	SecurityPlaintext
)

func (m SecurityMethod) String() string {
	switch m {
	case SecurityPlaintext:
		return "plaintext"
	case SecurityUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("SecurityMethod(%d)", int(m))
	}
}

// Header names and values produced by the signer.
const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	contentTypeJSON     = "application/json"
	schemeBearer        = "Bearer "
	schemeBasic         = "Basic "
)

// SignOptions controls the optional headers added alongside Authorization.
type SignOptions struct {
	JSONContentType bool
}

// signingStrategy builds Authorization header values for one security method.
type signingStrategy interface {
	bearer(token string) string
	basic(key, secret string) string
}

type plaintextStrategy struct{}

func (plaintextStrategy) bearer(token string) string {
	return schemeBearer + token
}

func (plaintextStrategy) basic(key, secret string) string {
	return schemeBasic + key + ":" + secret
}

// strategyFor resolves the strategy for m. Unknown methods are rejected
// rather than falling back to plaintext.
func strategyFor(m SecurityMethod) (signingStrategy, error) {
	switch m {
	case SecurityPlaintext:
		return plaintextStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSecurityMethod, m)
	}
}

// Signer attaches authentication headers to requests. It performs no I/O and
// holds no mutable state, so one Signer may be shared across goroutines.
type Signer struct {
	Method SecurityMethod
}

// NewSigner returns a Signer for the given method. The method is validated at
// signing time so a misconfigured signer fails on first use, not silently.
func NewSigner(method SecurityMethod) Signer {
	return Signer{Method: method}
}

// Sign adds "Authorization: Bearer <token>" for cred and, if requested,
// "Content-Type: application/json". On error req is left unmodified.
func (s Signer) Sign(req *http.Request, cred Credential, opts SignOptions) error {
	strategy, err := strategyFor(s.Method)
	if err != nil {
		return err
	}

	if cred.AccessToken == "" {
		return ErrNotLoggedIn
	}

	apply(req, strategy.bearer(cred.AccessToken), opts)

	return nil
}

// SignBasic adds "Authorization: Basic <key>:<secret>" for the consumer key
// pair. Used for app-authenticated endpoints rather than user requests.
func (s Signer) SignBasic(req *http.Request, key, secret string, opts SignOptions) error {
	strategy, err := strategyFor(s.Method)
	if err != nil {
		return err
	}

	apply(req, strategy.basic(key, secret), opts)

	return nil
}

func apply(req *http.Request, authorization string, opts SignOptions) {
	req.Header.Set(headerAuthorization, authorization)

	if opts.JSONContentType {
		req.Header.Set(headerContentType, contentTypeJSON)
	}
}
