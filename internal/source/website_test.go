package source

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

func websiteCred(endpoint string) string {
	cred, _ := json.Marshal(map[string]string{"endpoint": endpoint, "apiKey": "secret-key"})
	return string(cred)
}

func TestWebsiteNormalize(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `[
			{"employeeEmail": "a@x.com", "sessions": [
				{"startTime": "2024-01-01T08:00:00Z", "endTime": "2024-01-01T12:00:00Z"},
				{"startTime": "2024-01-01T13:00:00Z", "endTime": "2024-01-01T17:30:00Z"}
			]},
			{"employeeEmail": "b@x.com", "sessions": [
				{"startTime": "2024-01-02T09:00:00Z", "endTime": "2024-01-02T10:00:00Z"}
			]}
		]`)
	}))
	defer server.Close()

	adapter := NewWebsiteAdapter(5 * time.Second)
	spans, err := adapter.Normalize(context.Background(), websiteCred(server.URL), "")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if gotAuth != "Bearer secret-key" {
		t.Fatalf("expected bearer credential, got %q", gotAuth)
	}
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	if spans[0].NativeID != "a@x.com" {
		t.Fatalf("expected first span for a@x.com, got %q", spans[0].NativeID)
	}
	if got := spans[0].End.Sub(spans[0].Start); got != 4*time.Hour {
		t.Fatalf("expected 4h span, got %s", got)
	}
}

func TestWebsiteNormalizeSkipsEmptyEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"employeeEmail": "", "sessions": [{"startTime": "2024-01-01T08:00:00Z", "endTime": "2024-01-01T09:00:00Z"}]},
			{"employeeEmail": "a@x.com", "sessions": [{"startTime": "2024-01-01T08:00:00Z", "endTime": "2024-01-01T09:00:00Z"}]}
		]`)
	}))
	defer server.Close()

	adapter := NewWebsiteAdapter(5 * time.Second)
	spans, err := adapter.Normalize(context.Background(), websiteCred(server.URL), "")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("expected entry without email skipped, got %d spans", len(spans))
	}
}

func TestWebsiteNormalizeClassifiesErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name:    "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) },
			want:    ErrBadCredential,
		},
		{
			name:    "forbidden",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) },
			want:    ErrBadCredential,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			want:    ErrUnreachable,
		},
		{
			name:    "not json",
			handler: func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "<html>nope</html>") },
			want:    ErrBadPayload,
		},
		{
			name: "bad session timestamp",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `[{"employeeEmail": "a@x.com", "sessions": [{"startTime": "yesterday", "endTime": "today"}]}]`)
			},
			want: ErrBadPayload,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			adapter := NewWebsiteAdapter(5 * time.Second)
			_, err := adapter.Normalize(context.Background(), websiteCred(server.URL), "")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestWebsiteNormalizeUnreachableEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	adapter := NewWebsiteAdapter(time.Second)
	_, err := adapter.Normalize(context.Background(), websiteCred(server.URL), "")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestWebsiteBadCredentialBlob(t *testing.T) {
	adapter := NewWebsiteAdapter(time.Second)

	if _, err := adapter.Normalize(context.Background(), "not json", ""); !errors.Is(err, ErrBadCredential) {
		t.Fatalf("expected ErrBadCredential for malformed blob, got %v", err)
	}
	if _, err := adapter.Normalize(context.Background(), `{"apiKey": "k"}`, ""); !errors.Is(err, ErrBadCredential) {
		t.Fatalf("expected ErrBadCredential for missing endpoint, got %v", err)
	}
}

func TestWebsiteVerify(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	adapter := NewWebsiteAdapter(5 * time.Second)
	if err := adapter.Verify(context.Background(), websiteCred(server.URL), ""); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("Verify must issue exactly one probe, got %d", calls)
	}

	if err := adapter.Verify(context.Background(), websiteCred("http://127.0.0.1:1"), ""); err == nil {
		t.Fatal("Verify against a dead endpoint must fail")
	}
}
