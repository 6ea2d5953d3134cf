package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// WebsiteAdapter polls an HTTP usage-tracking endpoint. The stored credential
// is a JSON blob naming the endpoint and a bearer key; the response groups
// sessions per employee email:
//
//	[{"employeeEmail": "a@x.com", "sessions": [{"startTime": ..., "endTime": ...}]}]
type WebsiteAdapter struct {
	client *http.Client
}

func NewWebsiteAdapter(timeout time.Duration) *WebsiteAdapter {
	return &WebsiteAdapter{client: &http.Client{Timeout: timeout}}
}

type websiteCredential struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"apiKey"`
}

type usagePayload []struct {
	EmployeeEmail string `json:"employeeEmail"`
	Sessions      []struct {
		StartTime string `json:"startTime"`
		EndTime   string `json:"endTime"`
	} `json:"sessions"`
}

func (a *WebsiteAdapter) Normalize(ctx context.Context, credential, config string) ([]TimeSpan, error) {
	body, err := a.fetch(ctx, credential)
	if err != nil {
		return nil, err
	}

	var payload usagePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode usage payload: %v", ErrBadPayload, err)
	}

	spans := make([]TimeSpan, 0)
	for _, usage := range payload {
		email := strings.TrimSpace(usage.EmployeeEmail)
		if email == "" {
			log.Printf("source: usage entry with empty employeeEmail, skipping %d sessions", len(usage.Sessions))
			continue
		}
		for _, session := range usage.Sessions {
			start, err := time.Parse(time.RFC3339, session.StartTime)
			if err != nil {
				return nil, fmt.Errorf("%w: bad session startTime %q: %v", ErrBadPayload, session.StartTime, err)
			}
			end, err := time.Parse(time.RFC3339, session.EndTime)
			if err != nil {
				return nil, fmt.Errorf("%w: bad session endTime %q: %v", ErrBadPayload, session.EndTime, err)
			}
			spans = append(spans, TimeSpan{NativeID: email, Start: start.UTC(), End: end.UTC()})
		}
	}
	return spans, nil
}

func (a *WebsiteAdapter) Verify(ctx context.Context, credential, config string) error {
	_, err := a.fetch(ctx, credential)
	return err
}

func (a *WebsiteAdapter) fetch(ctx context.Context, credential string) ([]byte, error) {
	var cred websiteCredential
	if err := json.Unmarshal([]byte(credential), &cred); err != nil {
		return nil, fmt.Errorf("%w: parse website credential: %v", ErrBadCredential, err)
	}
	if strings.TrimSpace(cred.Endpoint) == "" {
		return nil, fmt.Errorf("%w: website credential missing endpoint", ErrBadCredential)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cred.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build usage request: %v", ErrBadCredential, err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: usage fetch: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: usage endpoint returned %d", ErrBadCredential, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: usage endpoint returned %d", ErrUnreachable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read usage response: %v", ErrUnreachable, err)
	}
	return body, nil
}
