package qstash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, baseURL string, now time.Time) *Client {
	t.Helper()
	c, err := NewClient(Config{
		URL:               baseURL,
		Token:             "token",
		CurrentSigningKey: "current",
		NextSigningKey:    "next",
		Retries:           2,
	}, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestNewClientRejectsBadURL(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{URL: "  "}); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewClient(Config{URL: "not a url"}); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestPublish(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotRetries string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotRetries = r.Header.Get("Upstash-Retries")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprint(w, `{"messageId":"msg_1"}`)
	}))
	t.Cleanup(server.Close)

	c := newTestClient(t, server.URL, time.Now())
	id, err := c.Publish(context.Background(), "https://hooks.example.com/notify", map[string]string{"subject": "hi"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if id != "msg_1" {
		t.Fatalf("message id = %q", id)
	}
	if gotPath != "/v2/publish/https://hooks.example.com/notify" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer token" || gotRetries != "2" {
		t.Fatalf("headers auth=%q retries=%q", gotAuth, gotRetries)
	}
	if gotBody["subject"] != "hi" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestPublishHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid token"}`)
	}))
	t.Cleanup(server.Close)

	c := newTestClient(t, server.URL, time.Now())
	if _, err := c.Publish(context.Background(), "https://hooks.example.com/notify", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 9, 8, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"ticket_id":"tick_7001"}`)
	const callback = "https://support.corecraft.example/v1/notifications/callback"
	c := newTestClient(t, "https://qstash.upstash.io", now)

	current, err := Sign("current", callback, body, now, 5*time.Minute)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if err := c.Verify(current, body, callback); err != nil {
		t.Fatalf("current key: %v", err)
	}

	next, _ := Sign("next", callback, body, now, 5*time.Minute)
	if err := c.Verify(next, body, callback); err != nil {
		t.Fatalf("next key: %v", err)
	}

	cases := []struct {
		name string
		sig  string
		body []byte
		url  string
		want error
	}{
		{name: "missing", sig: "", body: body, want: ErrMissingSignature},
		{name: "tampered body", sig: current, body: []byte(`{}`), want: ErrInvalidSignature},
		{name: "wrong subject", sig: current, body: body, url: "https://evil.example", want: ErrInvalidSignature},
	}
	for _, tc := range cases {
		if err := c.Verify(tc.sig, tc.body, tc.url); !errors.Is(err, tc.want) {
			t.Fatalf("%s: error = %v, want %v", tc.name, err, tc.want)
		}
	}

	unknown, _ := Sign("other", callback, body, now, 5*time.Minute)
	if err := c.Verify(unknown, body, callback); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("unknown key: %v", err)
	}

	expired, _ := Sign("current", callback, body, now.Add(-time.Hour), 5*time.Minute)
	if err := c.Verify(expired, body, callback); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expired token: %v", err)
	}
}
