package dropbox

import (
	"fmt"
	"sync"
)

// defaultTokenType is assumed for pre-authenticated tokens injected without
// going through the authorization flow.
const defaultTokenType = "bearer"

// Credential is the access token plus the metadata that came with it.
// OwnerID holds either the account id or the team id from the token response;
// it is empty only for tokens injected by the caller.
type Credential struct {
	AccessToken string
	TokenType   string
	OwnerID     string
}

// valid reports whether c is fully populated. There is no partially-valid
// credential: a token without a type (or a type without a token) is rejected.
func (c Credential) valid() bool {
	return c.AccessToken != "" && c.TokenType != ""
}

// CredentialStore holds the one piece of authentication state shared by every
// request the client issues. All reads and writes go through a single mutex;
// the three fields are always replaced together.
type CredentialStore struct {
	mu   sync.Mutex
	cred *Credential
}

// NewCredentialStore returns an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{}
}

// Get returns a copy of the current credential and whether one exists.
func (s *CredentialStore) Get() (Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cred == nil {
		return Credential{}, false
	}

	return *s.cred, true
}

// Set replaces the current credential. Returns an error (leaving the store
// unchanged) if c is not fully populated.
func (s *CredentialStore) Set(c Credential) error {
	if !c.valid() {
		return fmt.Errorf("dropbox: refusing to store incomplete credential (token set: %t, type set: %t)",
			c.AccessToken != "", c.TokenType != "")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred = &c

	return nil
}

// SetAccessToken injects a pre-authenticated bearer token. An empty token
// clears the store.
func (s *CredentialStore) SetAccessToken(token string) {
	if token == "" {
		s.Clear()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred = &Credential{AccessToken: token, TokenType: defaultTokenType}
}

// Clear drops the current credential.
func (s *CredentialStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred = nil
}

// WithCredential runs fn with the current credential while holding the store
// lock, so a concurrent Set cannot interleave with the read-use. fn must not
// block on I/O. Returns ErrNotLoggedIn if the store is empty.
func (s *CredentialStore) WithCredential(fn func(Credential) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cred == nil {
		return ErrNotLoggedIn
	}

	return fn(*s.cred)
}
