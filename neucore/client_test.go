package neucore_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/eve-tools/pingboard/internal/errors"
	"github.com/eve-tools/pingboard/neucore"
)

func newTestClient(t *testing.T, baseURL string) *neucore.Client {
	t.Helper()

	client, err := neucore.NewClient(neucore.Config{
		BaseURL:  baseURL,
		AppID:    "42",
		AppToken: "app-token",
	})
	require.NoError(t, err)
	return client
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := neucore.NewClient(neucore.Config{AppID: "42", AppToken: "t"})
	require.Error(t, err)
	_, err = neucore.NewClient(neucore.Config{BaseURL: "http://core.local"})
	require.Error(t, err)
}

func TestGetCharacterGroups(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/app/v2/groups/95465499", r.URL.Path)
		expectedAuth := "Bearer " + base64.StdEncoding.EncodeToString([]byte("42:app-token"))
		require.Equal(t, expectedAuth, r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": 1, "name": "member", "visibility": "private", "autoAccept": false},
			{"id": 2, "name": "fc-team", "visibility": "private", "autoAccept": false}
		]`))
	}))
	defer ts.Close()

	groups, err := newTestClient(t, ts.URL+"/").GetCharacterGroups(context.Background(), 95465499)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, "member", groups[0].Name)
	require.Equal(t, "fc-team", groups[1].Name)
}

func TestGetCharacterGroupsUnknownCharacter(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Character not found.", http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).GetCharacterGroups(context.Background(), 1)

	// The status must stay visible so the login flow can tell "no
	// account" apart from a generic failure.
	var responseErr *apperrors.ResponseError
	require.ErrorAs(t, err, &responseErr)
	require.Equal(t, http.StatusNotFound, responseErr.Status)
}

func TestGetCharacterGroupsUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	_, err := newTestClient(t, ts.URL).GetCharacterGroups(context.Background(), 1)
	require.ErrorIs(t, err, apperrors.ErrUpstreamUnreachable)
	// The transport error stays in the message for the logs.
	require.Contains(t, err.Error(), "connection refused")
}

func TestGetCharacterGroupsMalformedResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not": "an array"`))
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).GetCharacterGroups(context.Background(), 1)
	var responseErr *apperrors.ResponseError
	require.ErrorAs(t, err, &responseErr)
}

func TestGetAppInfo(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/app/v1/show", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 42, "name": "ping-board"}`))
	}))
	defer ts.Close()

	info, err := newTestClient(t, ts.URL).GetAppInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(42), info.ID)
	require.Equal(t, "ping-board", info.Name)
}
