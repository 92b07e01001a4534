package dropbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Name holds the name variants of an account.
type Name struct {
	GivenName       string
	Surname         string
	FamiliarName    string
	DisplayName     string
	AbbreviatedName string
}

// AccountInfo describes the authenticated account.
type AccountInfo struct {
	AccountID       string
	Name            Name
	Email           string
	EmailVerified   bool
	Disabled        bool
	IsTeammate      bool
	ProfilePhotoURL string // empty if the account has none
	TeamMemberID    string // empty unless IsTeammate
}

type accountInfoResponse struct {
	AccountID string `json:"account_id"`
	Name      struct {
		GivenName       string `json:"given_name"`
		Surname         string `json:"surname"`
		FamiliarName    string `json:"familiar_name"`
		DisplayName     string `json:"display_name"`
		AbbreviatedName string `json:"abbreviated_name"`
	} `json:"name"`
	Email           string `json:"email"`
	EmailVerified   bool   `json:"email_verified"`
	Disabled        bool   `json:"disabled"`
	IsTeammate      bool   `json:"is_teammate"`
	ProfilePhotoURL string `json:"profile_photo_url"`
	TeamMemberID    string `json:"team_member_id"`
}

// AccountInfo fetches the account that owns the current credential.
func (c *Client) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	c.logger.Debug("fetching account info")

	resp, err := c.do(ctx, apiRequest{
		method: http.MethodGet,
		url:    c.endpoints.API + "/1/account/info",
		length: -1,
	})
	if err != nil {
		return nil, err
	}

	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	return decodeAccountInfo(data)
}

func decodeAccountInfo(data []byte) (*AccountInfo, error) {
	var ar accountInfoResponse
	if err := json.Unmarshal(data, &ar); err != nil {
		return nil, fmt.Errorf("%w: decoding account info: %w", ErrMalformedResponse, err)
	}

	if ar.AccountID == "" {
		return nil, fmt.Errorf("%w: account info missing account_id", ErrMalformedResponse)
	}

	return &AccountInfo{
		AccountID: ar.AccountID,
		Name: Name{
			GivenName:       ar.Name.GivenName,
			Surname:         ar.Name.Surname,
			FamiliarName:    ar.Name.FamiliarName,
			DisplayName:     ar.Name.DisplayName,
			AbbreviatedName: ar.Name.AbbreviatedName,
		},
		Email:           ar.Email,
		EmailVerified:   ar.EmailVerified,
		Disabled:        ar.Disabled,
		IsTeammate:      ar.IsTeammate,
		ProfilePhotoURL: ar.ProfilePhotoURL,
		TeamMemberID:    ar.TeamMemberID,
	}, nil
}
