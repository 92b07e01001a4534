package dropbox

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// DefaultLegacyTokenURL converts an OAuth1 token into an OAuth2 bearer token.
const DefaultLegacyTokenURL = "https://api.dropboxapi.com/1/oauth2/token_from_oauth1"

// LegacyTokenMigrator is a one-shot conversion utility for tokens issued by
// the old OAuth1 protocol. It is independent of the authorization flow: the
// response carries only the new token, so no owner id is produced and the
// credential store is never touched. Callers that want to use the result
// inject it with CredentialStore.SetAccessToken.
type LegacyTokenMigrator struct {
	url            string
	consumerKey    string
	consumerSecret string
	client         *Client
	logger         *slog.Logger
}

// NewLegacyTokenMigrator creates a migrator. An empty tokenURL uses
// DefaultLegacyTokenURL.
func NewLegacyTokenMigrator(
	tokenURL, consumerKey, consumerSecret string, method SecurityMethod,
	httpClient Doer, logger *slog.Logger,
) *LegacyTokenMigrator {
	if tokenURL == "" {
		tokenURL = DefaultLegacyTokenURL
	}

	if logger == nil {
		logger = slog.Default()
	}

	client := NewClient(DefaultEndpoints(), httpClient, nil, logger)
	client.SetSecurityMethod(method)

	return &LegacyTokenMigrator{
		url:            tokenURL,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		client:         client,
		logger:         logger,
	}
}

// Migrate exchanges an OAuth1 token and secret for an OAuth2 token. The
// request is app-authenticated with the consumer key pair.
func (m *LegacyTokenMigrator) Migrate(ctx context.Context, token, secret string) (string, error) {
	m.logger.Info("migrating legacy token")

	resp, err := m.client.doBasic(ctx, apiRequest{
		method: http.MethodPost,
		url:    m.url,
		form: url.Values{
			"oauth1_token":        {token},
			"oauth1_token_secret": {secret},
		},
	}, m.consumerKey, m.consumerSecret)
	if err != nil {
		return "", err
	}

	data, err := readBody(resp)
	if err != nil {
		return "", err
	}

	return decodeLegacyToken(data)
}

// decodeLegacyToken extracts the oauth2_token field.
func decodeLegacyToken(data []byte) (string, error) {
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("%w: legacy token response is not valid JSON", ErrMalformedOAuthResponse)
	}

	field := gjson.GetBytes(data, "oauth2_token")
	if field.Type != gjson.String || field.Str == "" {
		return "", fmt.Errorf("%w: missing oauth2_token", ErrMalformedOAuthResponse)
	}

	return field.Str, nil
}
