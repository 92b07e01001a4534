package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/dropbox-go/internal/dropbox"
	"github.com/tonimelisma/dropbox-go/internal/tokenfile"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize this app with your Dropbox account",
		Long: `Authorize this app with your Dropbox account.

Prints an authorization URL. Open it in a browser, approve the app, and
paste the code Dropbox shows back into the terminal. The resulting token
is saved to the token file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			return runLogin(cmd.Context(), cc, cmd.InOrStdin(), cmd.ErrOrStderr())
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogout(mustCLIContext(cmd.Context()))
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWhoami(cmd.Context(), mustCLIContext(cmd.Context()), cmd.OutOrStdout())
		},
	}
}

func newMigrateTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-token <oauth1-token> <oauth1-secret>",
		Short: "Convert a legacy OAuth1 token into an OAuth2 token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateToken(cmd.Context(), mustCLIContext(cmd.Context()), args[0], args[1])
		},
	}
}

func runLogin(ctx context.Context, cc *CLIContext, in io.Reader, prompt io.Writer) error {
	cfg := cc.Cfg
	logger := cc.Logger

	if err := requireAppKeys(cfg); err != nil {
		return err
	}

	store := dropbox.NewCredentialStore()
	flow := dropbox.NewAuthorizationFlow(dropbox.FlowConfig{
		ConsumerKey:    cfg.AppKey,
		ConsumerSecret: cfg.AppSecret,
		Method:         dropbox.SecurityPlaintext,
		AuthorizeURL:   authorizeURL,
		TokenURL:       tokenURL,
		HTTPClient:     &http.Client{Timeout: cfg.RequestTimeout},
	}, store, logger)

	// The prompt is always shown, even with --quiet.
	fmt.Fprintf(prompt, "1. Go to: %s\n", flow.AuthCodeURL(""))
	fmt.Fprintf(prompt, "2. Click \"Allow\" (you might have to log in first).\n")
	fmt.Fprintf(prompt, "3. Enter the authorization code: ")

	code, err := readLine(in)
	if err != nil {
		return fmt.Errorf("reading authorization code: %w", err)
	}

	if err := flow.CaptureCode(code); err != nil {
		return err
	}

	cred, err := flow.Exchange(ctx)
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}

	if err := tokenfile.SaveCredential(cfg.TokenFile, cred, nil); err != nil {
		return err
	}

	logger.Info("login successful", slog.String("owner_id", cred.OwnerID))

	// Account details are cosmetic; the login itself already succeeded.
	client := dropbox.NewClient(apiEndpoints, httpClient(), store, logger)
	client.SetRoot(cfg.Root)
	client.SetRequestTimeout(cfg.RequestTimeout)
	client.SetUserAgent(cfg.UserAgent)

	info, err := client.AccountInfo(ctx)
	if err != nil {
		logger.Warn("could not fetch account info", slog.String("error", err.Error()))
		cc.Statusf("Login successful.\n")

		return nil
	}

	if err := tokenfile.MergeMeta(cfg.TokenFile, map[string]string{
		tokenfile.MetaDisplayName: info.Name.DisplayName,
		tokenfile.MetaEmail:       info.Email,
	}); err != nil {
		logger.Warn("could not save account details", slog.String("error", err.Error()))
	}

	cc.Statusf("Logged in as %s (%s).\n", info.Name.DisplayName, info.Email)

	return nil
}

// readLine returns the first line of r with surrounding space trimmed.
func readLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}

		return "", io.ErrUnexpectedEOF
	}

	return strings.TrimSpace(sc.Text()), nil
}

func runLogout(cc *CLIContext) error {
	if err := tokenfile.Remove(cc.Cfg.TokenFile); err != nil {
		return err
	}

	cc.Logger.Info("logout successful", slog.String("token_file", cc.Cfg.TokenFile))
	cc.Statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	AccountID    string `json:"account_id"`
	DisplayName  string `json:"display_name"`
	Email        string `json:"email"`
	Verified     bool   `json:"email_verified"`
	IsTeammate   bool   `json:"is_teammate"`
	TeamMemberID string `json:"team_member_id,omitempty"`
}

func runWhoami(ctx context.Context, cc *CLIContext, out io.Writer) error {
	client, err := newAPIClient(cc)
	if err != nil {
		return err
	}

	info, err := client.AccountInfo(ctx)
	if err != nil {
		if errors.Is(err, dropbox.ErrUnauthorized) {
			return fmt.Errorf("token rejected, run 'dropbox-go login' again: %w", err)
		}

		return fmt.Errorf("fetching account info: %w", err)
	}

	if cc.Flags.JSON {
		return printJSON(out, whoamiOutput{
			AccountID:    info.AccountID,
			DisplayName:  info.Name.DisplayName,
			Email:        info.Email,
			Verified:     info.EmailVerified,
			IsTeammate:   info.IsTeammate,
			TeamMemberID: info.TeamMemberID,
		})
	}

	fmt.Fprintf(out, "User:    %s (%s)\n", info.Name.DisplayName, info.Email)
	fmt.Fprintf(out, "Account: %s\n", info.AccountID)

	if info.IsTeammate {
		fmt.Fprintf(out, "Team member: %s\n", info.TeamMemberID)
	}

	return nil
}

func runMigrateToken(ctx context.Context, cc *CLIContext, token, secret string) error {
	cfg := cc.Cfg

	if err := requireAppKeys(cfg); err != nil {
		return err
	}

	migrator := dropbox.NewLegacyTokenMigrator(
		legacyTokenURL, cfg.AppKey, cfg.AppSecret, dropbox.SecurityPlaintext, httpClient(), cc.Logger,
	)

	accessToken, err := migrator.Migrate(ctx, token, secret)
	if err != nil {
		return fmt.Errorf("migrating token: %w", err)
	}

	cred := dropbox.Credential{AccessToken: accessToken, TokenType: "bearer"}
	if err := tokenfile.SaveCredential(cfg.TokenFile, cred, nil); err != nil {
		return err
	}

	cc.Statusf("Token migrated and saved to %s.\n", cfg.TokenFile)

	return nil
}
