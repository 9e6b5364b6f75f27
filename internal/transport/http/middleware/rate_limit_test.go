package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

type fakeRateLimitStore struct {
	trimErr   error
	count     int
	oldest    time.Time
	hasOldest bool

	recordedKey string
	recordCalls int
}

func (f *fakeRateLimitStore) TrimWindow(context.Context, string, time.Duration, time.Time) error {
	return f.trimErr
}

func (f *fakeRateLimitStore) CountAttempts(context.Context, string, time.Duration, time.Time) (int, error) {
	return f.count, nil
}

func (f *fakeRateLimitStore) RecordAttempt(_ context.Context, identifier string, _ time.Time) error {
	f.recordedKey = identifier
	f.recordCalls++
	return nil
}

func (f *fakeRateLimitStore) OldestAttempt(context.Context, string, time.Duration, time.Time) (time.Time, bool, error) {
	return f.oldest, f.hasOldest, nil
}

var rateLimitNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func serveRateLimited(t *testing.T, store *fakeRateLimitStore) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return rateLimitNow })
	router := gin.New()
	router.POST("/login", limiter.RateLimit(RateLimitRule{
		Name:       "auth_login_ip",
		Limit:      5,
		Window:     time.Minute,
		Identifier: func(*gin.Context) (string, bool) { return "192.0.2.1", true },
	}), func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))
	return rr
}

func TestRateLimiterAllowsBelowLimit(t *testing.T) {
	oldest := rateLimitNow.Add(-30 * time.Second)
	store := &fakeRateLimitStore{count: 2, oldest: oldest, hasOldest: true}

	rr := serveRateLimited(t, store)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if store.recordCalls != 1 || store.recordedKey != "auth_login_ip:192.0.2.1" {
		t.Fatalf("expected one attempt under the rule key, got %d %q", store.recordCalls, store.recordedKey)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "2" {
		t.Fatalf("expected remaining 2, got %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Reset"); got != strconv.FormatInt(oldest.Add(time.Minute).Unix(), 10) {
		t.Fatalf("unexpected reset header %q", got)
	}
	if got := rr.Header().Get("Retry-After"); got != "" {
		t.Fatalf("expected no Retry-After, got %q", got)
	}
}

func TestRateLimiterRejectsAtLimit(t *testing.T) {
	store := &fakeRateLimitStore{count: 5, oldest: rateLimitNow.Add(-30 * time.Second), hasOldest: true}

	rr := serveRateLimited(t, store)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if store.recordCalls != 0 {
		t.Fatalf("rejected requests must not be recorded, got %d", store.recordCalls)
	}
	if got := rr.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected Retry-After 30, got %q", got)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rr.Body.Bytes(), &problem); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if problem.RetryAfter != 30 || problem.Instance != "/login" {
		t.Fatalf("unexpected problem body %+v", problem)
	}
}

func TestRateLimiterFailsOpen(t *testing.T) {
	store := &fakeRateLimitStore{trimErr: errors.New("redis down")}

	rr := serveRateLimited(t, store)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 when the store fails, got %d", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Limit") != "" {
		t.Fatal("expected no rate limit headers when the store fails")
	}
}
