// Package authflow drives the two authorization-code exchanges against the
// remote identity provider: clinician login (identity token, verified) and
// patient consent (access token, stored verbatim). Both flows share one
// protocol, parameterized by scope and redirect target.
package authflow

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/accura-health/terminology/pkg/common/errs"
	"github.com/accura-health/terminology/pkg/session"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

type Config struct {
	ProviderBaseURL    string
	ClientID           string
	ClientSecret       string
	LoginRedirectURL   string
	ConsentRedirectURL string
	ExchangeTimeout    time.Duration
}

type Engine struct {
	sessions session.Store
	verifier *IdentityVerifier
	flows    map[session.Flow]*oauth2.Config
	client   *http.Client
	timeout  time.Duration
}

func NewEngine(cfg Config, sessions session.Store, verifier *IdentityVerifier, client *http.Client) *Engine {
	base := strings.TrimRight(cfg.ProviderBaseURL, "/")
	endpoint := oauth2.Endpoint{
		AuthURL:  base + "/authorize",
		TokenURL: base + "/token",
	}

	timeout := cfg.ExchangeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Engine{
		sessions: sessions,
		verifier: verifier,
		client:   client,
		timeout:  timeout,
		flows: map[session.Flow]*oauth2.Config{
			session.FlowLogin: {
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				Endpoint:     endpoint,
				RedirectURL:  cfg.LoginRedirectURL,
			},
			session.FlowConsent: {
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				Endpoint:     endpoint,
				RedirectURL:  cfg.ConsentRedirectURL,
				Scopes:       []string{"patient_consent"},
			},
		},
	}
}

// Initiate stores a fresh single-use state token for the flow and returns
// the provider authorize URL. Re-initiating overwrites a prior pending
// state without touching an established identity.
func (e *Engine) Initiate(ctx context.Context, sessionID string, flow session.Flow) (string, error) {
	cfg, ok := e.flows[flow]
	if !ok {
		return "", fmt.Errorf("unknown flow %q", flow)
	}
	state := uuid.NewString()
	if err := e.sessions.SetState(ctx, sessionID, flow, state); err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state), nil
}

// Callback validates the state echo before any network call, exchanges the
// code at the token endpoint, then records the flow's outcome in the
// session. The pending state is cleared only after a successful exchange.
func (e *Engine) Callback(ctx context.Context, sessionID string, flow session.Flow, code, state string) error {
	cfg, ok := e.flows[flow]
	if !ok {
		return fmt.Errorf("unknown flow %q", flow)
	}

	data, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	pending, hasPending := data.State(flow)
	if !hasPending || pending != state {
		return errs.Auth(errs.StateMismatch, "state does not match pending authorization")
	}

	exCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if e.client != nil {
		exCtx = context.WithValue(exCtx, oauth2.HTTPClient, e.client)
	}
	token, err := cfg.Exchange(exCtx, code)
	if err != nil {
		return errs.Auth(errs.TokenExchangeFailed, "%v", err)
	}

	switch flow {
	case session.FlowLogin:
		claims, err := e.verifier.Verify(token.AccessToken)
		if err != nil {
			return errs.Auth(errs.InvalidToken, "%v", err)
		}
		if err := e.sessions.SetIdentity(ctx, sessionID, session.Identity{
			Subject: claims.Subject,
			Name:    claims.Name,
		}); err != nil {
			return err
		}
	case session.FlowConsent:
		// The consent token is forwarded downstream as received; it is not
		// decoded or verified here.
		if err := e.sessions.SetConsentToken(ctx, sessionID, token.AccessToken); err != nil {
			return err
		}
	}

	return e.sessions.ClearState(ctx, sessionID, flow)
}
