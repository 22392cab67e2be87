package authflow

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/accura-health/terminology/pkg/common/errs"
	"github.com/accura-health/terminology/pkg/session"
)

const testSecret = "unit-test-secret"

type tokenEndpoint struct {
	server *httptest.Server
	calls  atomic.Int64
	token  string
	status int
}

func newTokenEndpoint(t *testing.T) *tokenEndpoint {
	t.Helper()
	ep := &tokenEndpoint{status: http.StatusOK}
	ep.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/token") {
			http.NotFound(w, r)
			return
		}
		ep.calls.Add(1)
		if ep.status != http.StatusOK {
			http.Error(w, "denied", ep.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"bearer"}`, ep.token)
	}))
	t.Cleanup(ep.server.Close)
	return ep
}

func newTestEngine(t *testing.T, ep *tokenEndpoint) (*Engine, *session.MemoryStore) {
	t.Helper()
	sessions := session.NewMemoryStore(time.Hour)
	engine := NewEngine(Config{
		ProviderBaseURL:    ep.server.URL,
		ClientID:           "accura_emr_client",
		ClientSecret:       "accura_emr_secret",
		LoginRedirectURL:   "http://localhost:8080/auth/callback",
		ConsentRedirectURL: "http://localhost:8080/consent/callback",
		ExchangeTimeout:    5 * time.Second,
	}, sessions, NewIdentityVerifier(testSecret), ep.server.Client())
	return engine, sessions
}

func TestInitiateStoresStateAndBuildsAuthorizeURL(t *testing.T) {
	ep := newTokenEndpoint(t)
	engine, sessions := newTestEngine(t, ep)
	ctx := context.Background()

	authorizeURL, err := engine.Initiate(ctx, "sess-1", session.FlowConsent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, err := url.Parse(authorizeURL)
	if err != nil {
		t.Fatalf("failed to parse authorize URL: %v", err)
	}
	data, _ := sessions.Get(ctx, "sess-1")
	pending, ok := data.State(session.FlowConsent)
	if !ok {
		t.Fatal("expected pending state for consent flow")
	}
	if got := parsed.Query().Get("state"); got != pending {
		t.Fatalf("state parameter %q does not match stored state %q", got, pending)
	}
	if got := parsed.Query().Get("scope"); got != "patient_consent" {
		t.Fatalf("expected patient_consent scope, got %q", got)
	}
	if got := parsed.Query().Get("client_id"); got != "accura_emr_client" {
		t.Fatalf("unexpected client_id %q", got)
	}
}

func TestCallbackStateMismatchNeverCallsTokenEndpoint(t *testing.T) {
	ep := newTokenEndpoint(t)
	engine, _ := newTestEngine(t, ep)
	ctx := context.Background()

	if _, err := engine.Initiate(ctx, "sess-1", session.FlowLogin); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	err := engine.Callback(ctx, "sess-1", session.FlowLogin, "code-1", "forged-state")
	if !errs.IsAuth(err, errs.StateMismatch) {
		t.Fatalf("expected StateMismatch, got %v", err)
	}
	if ep.calls.Load() != 0 {
		t.Fatalf("token endpoint was called %d times", ep.calls.Load())
	}
}

func TestCallbackWithoutPendingStateFails(t *testing.T) {
	ep := newTokenEndpoint(t)
	engine, _ := newTestEngine(t, ep)

	err := engine.Callback(context.Background(), "sess-1", session.FlowLogin, "code-1", "any")
	if !errs.IsAuth(err, errs.StateMismatch) {
		t.Fatalf("expected StateMismatch, got %v", err)
	}
	if ep.calls.Load() != 0 {
		t.Fatalf("token endpoint was called %d times", ep.calls.Load())
	}
}

func TestLoginCallbackSetsIdentityAndClearsState(t *testing.T) {
	ep := newTokenEndpoint(t)
	engine, sessions := newTestEngine(t, ep)
	ctx := context.Background()
	ep.token = makeToken(t, testSecret, map[string]interface{}{"sub": "D1", "name": "Dr. Rao"})

	if _, err := engine.Initiate(ctx, "sess-1", session.FlowLogin); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	data, _ := sessions.Get(ctx, "sess-1")
	state, _ := data.State(session.FlowLogin)

	if err := engine.Callback(ctx, "sess-1", session.FlowLogin, "code-1", state); err != nil {
		t.Fatalf("callback failed: %v", err)
	}

	data, _ = sessions.Get(ctx, "sess-1")
	if !data.Authenticated() {
		t.Fatal("expected authenticated session")
	}
	if data.Identity.Subject != "D1" || data.Identity.Name != "Dr. Rao" {
		t.Fatalf("unexpected identity %+v", data.Identity)
	}
	if _, ok := data.State(session.FlowLogin); ok {
		t.Fatal("expected pending state to be cleared after success")
	}

	// The state is single-use: replaying the callback must fail.
	err := engine.Callback(ctx, "sess-1", session.FlowLogin, "code-1", state)
	if !errs.IsAuth(err, errs.StateMismatch) {
		t.Fatalf("expected StateMismatch on replay, got %v", err)
	}
}

func TestLoginCallbackRejectsUnverifiableToken(t *testing.T) {
	ep := newTokenEndpoint(t)
	engine, sessions := newTestEngine(t, ep)
	ctx := context.Background()
	ep.token = makeToken(t, "wrong-secret", map[string]interface{}{"sub": "D1"})

	if _, err := engine.Initiate(ctx, "sess-1", session.FlowLogin); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	data, _ := sessions.Get(ctx, "sess-1")
	state, _ := data.State(session.FlowLogin)

	err := engine.Callback(ctx, "sess-1", session.FlowLogin, "code-1", state)
	if !errs.IsAuth(err, errs.InvalidToken) {
		t.Fatalf("expected InvalidToken, got %v", err)
	}
	data, _ = sessions.Get(ctx, "sess-1")
	if data.Authenticated() {
		t.Fatal("identity must not be set from an unverifiable token")
	}
}

func TestCallbackTokenExchangeFailure(t *testing.T) {
	ep := newTokenEndpoint(t)
	engine, sessions := newTestEngine(t, ep)
	ctx := context.Background()
	ep.status = http.StatusBadRequest

	if _, err := engine.Initiate(ctx, "sess-1", session.FlowLogin); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	data, _ := sessions.Get(ctx, "sess-1")
	state, _ := data.State(session.FlowLogin)

	err := engine.Callback(ctx, "sess-1", session.FlowLogin, "code-1", state)
	if !errs.IsAuth(err, errs.TokenExchangeFailed) {
		t.Fatalf("expected TokenExchangeFailed, got %v", err)
	}
}

func TestConsentCallbackStoresRawToken(t *testing.T) {
	ep := newTokenEndpoint(t)
	engine, sessions := newTestEngine(t, ep)
	ctx := context.Background()
	ep.token = "opaque-consent-token"

	if _, err := engine.Initiate(ctx, "sess-1", session.FlowConsent); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	data, _ := sessions.Get(ctx, "sess-1")
	state, _ := data.State(session.FlowConsent)

	if err := engine.Callback(ctx, "sess-1", session.FlowConsent, "code-1", state); err != nil {
		t.Fatalf("callback failed: %v", err)
	}

	data, _ = sessions.Get(ctx, "sess-1")
	if data.ConsentToken != "opaque-consent-token" {
		t.Fatalf("expected consent token stored verbatim, got %q", data.ConsentToken)
	}
	if data.Authenticated() {
		t.Fatal("consent flow must not set an identity")
	}
}

func TestReinitiateOverwritesPendingStateOnly(t *testing.T) {
	ep := newTokenEndpoint(t)
	engine, sessions := newTestEngine(t, ep)
	ctx := context.Background()
	ep.token = makeToken(t, testSecret, map[string]interface{}{"sub": "D1", "name": "Dr. Rao"})

	if _, err := engine.Initiate(ctx, "sess-1", session.FlowLogin); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	data, _ := sessions.Get(ctx, "sess-1")
	first, _ := data.State(session.FlowLogin)
	if err := engine.Callback(ctx, "sess-1", session.FlowLogin, "code-1", first); err != nil {
		t.Fatalf("callback failed: %v", err)
	}

	// Re-initiating keeps the existing identity until a new callback
	// succeeds.
	if _, err := engine.Initiate(ctx, "sess-1", session.FlowLogin); err != nil {
		t.Fatalf("re-initiate failed: %v", err)
	}
	data, _ = sessions.Get(ctx, "sess-1")
	if !data.Authenticated() {
		t.Fatal("re-initiating must not clear the authenticated identity")
	}
	second, ok := data.State(session.FlowLogin)
	if !ok || second == first {
		t.Fatal("expected a fresh pending state")
	}
}
