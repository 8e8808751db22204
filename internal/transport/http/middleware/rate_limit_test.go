package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

type fakeRateLimitStore struct {
	trimErr   error
	count     int
	countErr  error
	oldest    time.Time
	hasOldest bool
	oldestErr error
	recordErr error

	trimmedKeys []string
	recordedKey string
	recordCalls int
}

func (f *fakeRateLimitStore) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	f.trimmedKeys = append(f.trimmedKeys, identifier)
	return f.trimErr
}

func (f *fakeRateLimitStore) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	return f.count, f.countErr
}

func (f *fakeRateLimitStore) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	f.recordedKey = identifier
	f.recordCalls++
	return f.recordErr
}

func (f *fakeRateLimitStore) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	return f.oldest, f.hasOldest, f.oldestErr
}

func newRateLimitRouter(limiter *RateLimiter, rules ...RateLimitRule) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(limiter.RateLimit(rules...))
	router.POST("/v1/auth/login", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return router
}

func TestRateLimiterAllowsWhenBelowLimit(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	oldest := now.Add(-20 * time.Second)

	store := &fakeRateLimitStore{
		count:     3,
		oldest:    oldest,
		hasOldest: true,
	}

	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return now })

	router := newRateLimitRouter(limiter, RateLimitRule{
		Name:   "login-ip",
		Limit:  10,
		Window: time.Minute,
		Identifier: func(c *gin.Context) (string, bool) {
			return "198.51.100.7", true
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	if store.recordCalls != 1 {
		t.Fatalf("expected one recorded attempt, got %d", store.recordCalls)
	}

	if store.recordedKey != "login-ip:198.51.100.7" {
		t.Fatalf("unexpected storage key %q", store.recordedKey)
	}

	if got := rr.Header().Get("X-RateLimit-Limit"); got != "10" {
		t.Fatalf("expected limit header 10, got %q", got)
	}

	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "6" {
		t.Fatalf("expected remaining header 6, got %q", got)
	}

	expectedReset := oldest.Add(time.Minute).Unix()
	if got := rr.Header().Get("X-RateLimit-Reset"); got != strconv.FormatInt(expectedReset, 10) {
		t.Fatalf("expected reset header %d, got %q", expectedReset, got)
	}

	if got := rr.Header().Get("Retry-After"); got != "" {
		t.Fatalf("expected no retry-after header, got %q", got)
	}
}

func TestRateLimiterBlocksWhenLimitExceeded(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	oldest := now.Add(-15 * time.Second)

	store := &fakeRateLimitStore{
		count:     10,
		oldest:    oldest,
		hasOldest: true,
	}

	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return now })

	router := newRateLimitRouter(limiter, RateLimitRule{
		Name:   "login-ip",
		Limit:  10,
		Window: time.Minute,
		Identifier: func(c *gin.Context) (string, bool) {
			return "198.51.100.7", true
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}

	if store.recordCalls != 0 {
		t.Fatalf("expected no recorded attempt when blocked, got %d", store.recordCalls)
	}

	if got := rr.Header().Get("Retry-After"); got != "45" {
		t.Fatalf("expected retry-after 45, got %q", got)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rr.Body.Bytes(), &problem); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	if problem.Status != http.StatusTooManyRequests {
		t.Fatalf("unexpected problem status %d", problem.Status)
	}

	if problem.RetryAfter != 45 {
		t.Fatalf("expected problem retry_after 45, got %d", problem.RetryAfter)
	}

	if problem.Instance != "/v1/auth/login" {
		t.Fatalf("unexpected problem instance %q", problem.Instance)
	}
}

func TestRateLimiterFailsOpenOnStoreError(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	store := &fakeRateLimitStore{
		trimErr: errors.New("redis unavailable"),
	}

	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return now })

	router := newRateLimitRouter(limiter, RateLimitRule{
		Name:   "login-ip",
		Limit:  10,
		Window: time.Minute,
		Identifier: func(c *gin.Context) (string, bool) {
			return "198.51.100.7", true
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 when failing open, got %d", rr.Code)
	}

	if store.recordCalls != 0 {
		t.Fatalf("expected no recorded attempt on failure, got %d", store.recordCalls)
	}
}

func TestRateLimiterSkipsRulesWithoutIdentifier(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	store := &fakeRateLimitStore{count: 0}

	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return now })

	router := newRateLimitRouter(limiter, RateLimitRule{
		Name:   "login-username",
		Limit:  5,
		Window: 15 * time.Minute,
		Identifier: func(c *gin.Context) (string, bool) {
			return "", false
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	if len(store.trimmedKeys) != 0 {
		t.Fatalf("expected store untouched, trimmed %v", store.trimmedKeys)
	}
}

func TestUsernameIdentifierFallsBackToClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	identify := UsernameIdentifier("username")

	var fromForm, fromIP string
	router := gin.New()
	router.POST("/", func(c *gin.Context) {
		value, ok := identify(c)
		if !ok {
			t.Fatal("expected identifier to resolve")
		}
		if c.Request.Header.Get("Content-Type") == "application/x-www-form-urlencoded" {
			fromForm = value
		} else {
			fromIP = value
		}
		c.Status(http.StatusOK)
	})

	formReq := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("username=drift_king"))
	formReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(httptest.NewRecorder(), formReq)

	ipReq := httptest.NewRequest(http.MethodPost, "/", nil)
	ipReq.RemoteAddr = "203.0.113.9:51234"
	router.ServeHTTP(httptest.NewRecorder(), ipReq)

	if fromForm != "drift_king" {
		t.Fatalf("expected username identifier, got %q", fromForm)
	}

	if fromIP != "203.0.113.9" {
		t.Fatalf("expected client IP fallback, got %q", fromIP)
	}
}
