package sso_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	apperrors "github.com/eve-tools/pingboard/internal/errors"
	"github.com/eve-tools/pingboard/sso"
)

const (
	testClientID = "test-client-id"
	testIssuer   = "login.eveonline.com"
)

// makeToken builds a signed EVE-style access token. ParseIdentity never
// checks the signature, so any key works.
func makeToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   testIssuer,
		"azp":   testClientID,
		"sub":   "CHARACTER:EVE:95465499",
		"jti":   "token-id-1",
		"name":  "CCP Bartender",
		"owner": "8PmzCeTKb4VFUDrHLc/AeZXDSWM=",
		"exp":   float64(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).Unix()),
		"scp":   []any{"esi-location.read_location.v1", "esi-skills.read_skills.v1"},
	}
}

func TestParseIdentity(t *testing.T) {
	token := makeToken(t, validClaims())

	identity, err := sso.ParseIdentity(token, testClientID, testIssuer)
	require.NoError(t, err)
	require.Equal(t, int64(95465499), identity.CharacterID)
	require.Equal(t, "CCP Bartender", identity.Name)
	require.Equal(t, "8PmzCeTKb4VFUDrHLc/AeZXDSWM=", identity.Owner)
	require.Equal(t, "token-id-1", identity.TokenID)
	require.Equal(t, []string{"esi-location.read_location.v1", "esi-skills.read_skills.v1"}, identity.Scopes)
	require.Equal(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), identity.TokenExpiry.UTC())
	require.Equal(t, token, identity.Token)
}

func TestParseIdentityAcceptsHTTPSIssuer(t *testing.T) {
	claims := validClaims()
	claims["iss"] = "https://login.eveonline.com"

	_, err := sso.ParseIdentity(makeToken(t, claims), testClientID, testIssuer)
	require.NoError(t, err)
}

func TestParseIdentitySingleScopeString(t *testing.T) {
	claims := validClaims()
	claims["scp"] = "publicData"

	identity, err := sso.ParseIdentity(makeToken(t, claims), testClientID, testIssuer)
	require.NoError(t, err)
	require.Equal(t, []string{"publicData"}, identity.Scopes)
}

func TestParseIdentityNoScopes(t *testing.T) {
	claims := validClaims()
	delete(claims, "scp")

	identity, err := sso.ParseIdentity(makeToken(t, claims), testClientID, testIssuer)
	require.NoError(t, err)
	require.Empty(t, identity.Scopes)
}

func TestParseIdentityRejectsBadClaims(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
	}{
		{"wrong issuer", func(c jwt.MapClaims) { c["iss"] = "login.example.com" }},
		{"wrong azp", func(c jwt.MapClaims) { c["azp"] = "some-other-client" }},
		{"missing azp", func(c jwt.MapClaims) { delete(c, "azp") }},
		{"non-character subject", func(c jwt.MapClaims) { c["sub"] = "AGENT:EVE:42" }},
		{"malformed subject", func(c jwt.MapClaims) { c["sub"] = "CHARACTER:EVE:notanumber" }},
		{"missing subject", func(c jwt.MapClaims) { delete(c, "sub") }},
		{"missing name", func(c jwt.MapClaims) { delete(c, "name") }},
		{"missing owner", func(c jwt.MapClaims) { delete(c, "owner") }},
		{"missing jti", func(c jwt.MapClaims) { delete(c, "jti") }},
		{"missing expiry", func(c jwt.MapClaims) { delete(c, "exp") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validClaims()
			tt.mutate(claims)

			_, err := sso.ParseIdentity(makeToken(t, claims), testClientID, testIssuer)
			require.ErrorIs(t, err, apperrors.ErrInvalidToken)
		})
	}
}

func TestParseIdentityRejectsGarbage(t *testing.T) {
	_, err := sso.ParseIdentity("not.a.jwt", testClientID, testIssuer)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}
