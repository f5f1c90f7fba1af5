package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/erp-system/erp/internal/gate"
	"github.com/erp-system/erp/internal/shared"
)

// Identity sources.
const (
	SourceSession = "session"
	SourceToken   = "token"
)

// StepUpChecker reports whether a user must present a second factor.
type StepUpChecker interface {
	RequiresStepUp(ctx context.Context, userID int64) (bool, error)
}

// Provider resolves identities from bearer tokens and cookie sessions.
type Provider struct {
	tokens *TokenIssuer
	stepUp StepUpChecker
}

// NewProvider constructs a Provider. tokens may be nil when the API is disabled.
func NewProvider(tokens *TokenIssuer, stepUp StepUpChecker) *Provider {
	return &Provider{tokens: tokens, stepUp: stepUp}
}

// CurrentUser resolves the caller. A bearer token that fails verification is an
// error, never a fallback to the session.
func (p *Provider) CurrentUser(r *http.Request) (gate.Identity, bool, error) {
	if raw, ok := bearerToken(r); ok {
		claims, err := p.parse(raw)
		if err != nil {
			return gate.Identity{}, false, err
		}
		id, _ := claims.UserID()
		return gate.Identity{UserID: id, Email: claims.Email, Source: SourceToken}, true, nil
	}

	id, ok, err := shared.SessionUserID(r.Context())
	if err != nil || !ok {
		return gate.Identity{}, false, err
	}
	return gate.Identity{UserID: id, Source: SourceSession}, true, nil
}

// AssuranceLevels returns the level reached by the credential and the level
// the user's enrolled factors demand.
func (p *Provider) AssuranceLevels(r *http.Request, id gate.Identity) (gate.Levels, error) {
	var current gate.AAL
	switch id.Source {
	case SourceToken:
		raw, _ := bearerToken(r)
		claims, err := p.parse(raw)
		if err != nil {
			return gate.Levels{}, err
		}
		current = claims.AAL
	default:
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			current = gate.AAL(sess.Get(SessionKeyAAL))
		}
	}

	required := gate.AAL1
	needs, err := p.stepUp.RequiresStepUp(r.Context(), id.UserID)
	if err != nil {
		return gate.Levels{}, err
	}
	if needs {
		required = gate.AAL2
	}
	return gate.Levels{Current: current, Required: required}, nil
}

func (p *Provider) parse(raw string) (*Claims, error) {
	if p.tokens == nil {
		return nil, ErrInvalidToken
	}
	return p.tokens.Parse(raw)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

var _ gate.IdentityProvider = (*Provider)(nil)
var _ gate.ProfileLoader = (*Service)(nil)
