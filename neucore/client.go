// Package neucore talks to the Neucore application API, the external
// group-membership service behind the role system.
package neucore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/eve-tools/pingboard/internal/errors"
)

// Group is a Neucore group.
type Group struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
	AutoAccept  bool   `json:"autoAccept,omitempty"`
}

// AppInfo describes the Neucore application the configured credentials
// belong to.
type AppInfo struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Groups []Group `json:"groups,omitempty"`
}

// Config holds the application credentials as obtained from Neucore.
type Config struct {
	// BaseURL is the base URL of the Neucore application API.
	BaseURL  string
	AppID    string
	AppToken string

	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
}

// Client performs requests against the Neucore application API.
type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
}

// NewClient creates a Neucore API client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("[neucore.NewClient] BaseURL is required")
	}
	if config.AppID == "" || config.AppToken == "" {
		return nil, errors.New("[neucore.NewClient] AppID and AppToken are required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	bearerToken := base64.StdEncoding.EncodeToString([]byte(config.AppID + ":" + config.AppToken))
	return &Client{
		// Strip trailing slashes off the baseURL, just in case
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		authHeader: "Bearer " + bearerToken,
		httpClient: httpClient,
	}, nil
}

// GetCharacterGroups queries the character's user's groups from Neucore.
// Returns a ResponseError with status 404 if Neucore does not know the
// character.
func (c *Client) GetCharacterGroups(ctx context.Context, characterID int64) ([]Group, error) {
	var groups []Group
	if err := c.get(ctx, fmt.Sprintf("/app/v2/groups/%d", characterID), &groups); err != nil {
		return nil, errors.Wrap(err, "[Client.GetCharacterGroups]")
	}
	return groups, nil
}

// GetAppInfo queries information about the configured application.
func (c *Client) GetAppInfo(ctx context.Context) (*AppInfo, error) {
	var info AppInfo
	if err := c.get(ctx, "/app/v1/show", &info); err != nil {
		return nil, errors.Wrap(err, "[Client.GetAppInfo]")
	}
	return &info, nil
}

// get performs a GET request to Neucore and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(apperrors.ErrUpstreamUnreachable, "request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apperrors.ResponseError{Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(&apperrors.ResponseError{Status: resp.StatusCode}, "failed to parse response: %v", err)
	}
	return nil
}
