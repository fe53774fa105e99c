package token

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"aegisd.org/internal/event"
	"aegisd.org/internal/session"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newService(t *testing.T, opts ...Option) (*Service, *session.Store, *event.Log, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	log := event.NewLog(event.WithClock(clock.Now))
	sessions := session.NewStore(log, session.WithClock(clock.Now))
	opts = append([]Option{WithSecret("unit-test-secret"), WithClock(clock.Now)}, opts...)
	svc, err := NewService(sessions, log, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, sessions, log, clock
}

func TestIssueAndVerify(t *testing.T) {
	svc, sessions, log, _ := newService(t)

	raw, err := svc.Issue(Payload{UserID: "u1", Role: "Admin"}, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	res := svc.Verify(raw)
	if !res.Valid {
		t.Fatalf("expected valid token, reason %q", res.Reason)
	}
	if res.Claims.UserID != "u1" || res.Claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", res.Claims)
	}
	if res.Claims.ID == "" {
		t.Fatal("expected jti")
	}

	if n, _ := sessions.Count(); n != 1 {
		t.Fatalf("issuing a user token must register one session, got %d", n)
	}
	if n := len(log.Query(event.Filter{Type: event.TypeTokenGenerated})); n != 1 {
		t.Fatalf("expected one token_generated event, got %d", n)
	}
}

func TestVerifyFailsAfterSessionRevoked(t *testing.T) {
	svc, sessions, _, _ := newService(t)

	raw, err := svc.Issue(Payload{UserID: "u1", Role: "user"}, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	res := svc.Verify(raw)
	if !res.Valid {
		t.Fatalf("sanity: token must verify before revocation: %q", res.Reason)
	}

	if !sessions.Revoke("u1", res.Claims.ID) {
		t.Fatal("revoke must succeed")
	}

	res = svc.Verify(raw)
	if res.Valid {
		t.Fatal("cryptographically valid token must fail once its session is revoked")
	}
	if res.Reason != "session not found or expired" {
		t.Fatalf("unexpected reason: %q", res.Reason)
	}
}

func TestVerifyFailsAfterExpiry(t *testing.T) {
	svc, _, log, clock := newService(t, WithTTL(time.Hour))

	raw, err := svc.Issue(Payload{UserID: "u1", Role: "user"}, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.Advance(2 * time.Hour)
	res := svc.Verify(raw)
	if res.Valid {
		t.Fatal("expired token must fail")
	}

	evts := log.Query(event.Filter{Type: event.TypeTokenVerificationFailed})
	if len(evts) != 1 {
		t.Fatalf("expected one failure event, got %d", len(evts))
	}
	logged, _ := evts[0].Data["token"].(string)
	if logged == raw || len(logged) >= len(raw) {
		t.Fatalf("failure event must carry only a truncated token: %q", logged)
	}
}

func TestVerifyRejectsForeignIssuer(t *testing.T) {
	svc, _, _, _ := newService(t, WithIssuer("service-a"))
	other, _, _, _ := newService(t, WithIssuer("service-b"))

	raw, err := other.Issue(Payload{Role: "api"}, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if res := svc.Verify(raw); res.Valid {
		t.Fatal("token from another issuer must fail")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc, _, _, _ := newService(t)
	if res := svc.Verify("not.a.token"); res.Valid {
		t.Fatal("garbage must not verify")
	}
	if res := svc.Verify(""); res.Valid {
		t.Fatal("empty string must not verify")
	}
}

func TestServiceTokenWithoutUserSkipsSessions(t *testing.T) {
	svc, sessions, _, _ := newService(t)

	raw, err := svc.Issue(Payload{Role: "api", Custom: map[string]any{"client": "ci"}}, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	res := svc.Verify(raw)
	if !res.Valid {
		t.Fatalf("service token must verify without a session: %q", res.Reason)
	}
	if res.Claims.Custom["client"] != "ci" {
		t.Fatalf("custom claims not preserved: %v", res.Claims.Custom)
	}
	if n, _ := sessions.Count(); n != 0 {
		t.Fatalf("no session expected for user-less tokens, got %d", n)
	}
}

func TestGeneratedSecretIsStable(t *testing.T) {
	clock := newFakeClock()
	log := event.NewLog(event.WithClock(clock.Now))
	sessions := session.NewStore(log, session.WithClock(clock.Now))

	svc, err := NewService(sessions, log, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	raw, err := svc.Issue(Payload{UserID: "u1", Role: "user"}, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if res := svc.Verify(raw); !res.Valid {
		t.Fatalf("token must verify against the generated secret: %q", res.Reason)
	}
	if strings.TrimSpace(raw) == "" {
		t.Fatal("expected a signed token")
	}
}

func TestRequireSecret(t *testing.T) {
	log := event.NewLog()
	sessions := session.NewStore(log)

	_, err := NewService(sessions, log, RequireSecret())
	if !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}

	if _, err := NewService(sessions, log, WithSecret("s3cret"), RequireSecret()); err != nil {
		t.Fatalf("secret supplied, construction must succeed: %v", err)
	}
}
