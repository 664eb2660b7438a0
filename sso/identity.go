package sso

import (
	"regexp"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	apperrors "github.com/eve-tools/pingboard/internal/errors"
)

// subjectPattern matches the sub claim of EVE SSO access tokens, e.g.
// "CHARACTER:EVE:95465499".
var subjectPattern = regexp.MustCompile(`^CHARACTER:EVE:(\d+)$`)

// Identity is the validated result of an EVE SSO token exchange.
type Identity struct {
	// Token is the raw access token the identity was derived from.
	Token  string
	Scopes []string
	// TokenID is the jti claim (unique identifier for this token).
	TokenID     string
	CharacterID int64
	Name        string
	Owner       string
	TokenExpiry time.Time
}

// ParseIdentity decodes an EVE SSO access token and validates its claims:
// issuer, authorized party (the application's client ID) and the subject
// format. The token's signature is not verified; the token comes straight
// from the token-exchange response over TLS and is consumed immediately.
func ParseIdentity(rawToken, clientID, issuer string) (*Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "[ParseIdentity] malformed token")
	}

	iss, err := claims.GetIssuer()
	// EVE SSO has issued both the bare hostname and the https URL as iss.
	if err != nil || (iss != issuer && iss != "https://"+issuer) {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "[ParseIdentity] unexpected issuer")
	}

	if azp, ok := claims["azp"].(string); !ok || azp != clientID {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "[ParseIdentity] azp does not match client ID")
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "[ParseIdentity] missing subject")
	}
	match := subjectPattern.FindStringSubmatch(sub)
	if match == nil {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "[ParseIdentity] unexpected subject format")
	}
	characterID, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "[ParseIdentity] invalid character id")
	}

	tokenID, ok := claims["jti"].(string)
	if !ok {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "[ParseIdentity] missing jti")
	}
	name, ok := claims["name"].(string)
	if !ok {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "[ParseIdentity] missing name")
	}
	owner, ok := claims["owner"].(string)
	if !ok {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "[ParseIdentity] missing owner")
	}
	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "[ParseIdentity] missing expiry")
	}

	return &Identity{
		Token:       rawToken,
		Scopes:      parseScopes(claims["scp"]),
		TokenID:     tokenID,
		CharacterID: characterID,
		Name:        name,
		Owner:       owner,
		TokenExpiry: expiry.Time,
	}, nil
}

// parseScopes normalises the scp claim, which EVE SSO encodes as a single
// string for one scope and as an array for several.
func parseScopes(claim any) []string {
	switch scp := claim.(type) {
	case string:
		return []string{scp}
	case []any:
		scopes := make([]string, 0, len(scp))
		for _, s := range scp {
			if str, ok := s.(string); ok {
				scopes = append(scopes, str)
			}
		}
		return scopes
	default:
		return []string{}
	}
}
