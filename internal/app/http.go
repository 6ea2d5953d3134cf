package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"paysync/api/internal/payroll"
	"paysync/api/internal/source"
	"paysync/api/internal/store"
	syncsvc "paysync/api/internal/sync"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	segments := splitPath(r.URL.Path)
	if len(segments) < 2 || segments[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch segments[1] {
	case "sync":
		s.handleSync(w, r, segments[2:])
	case "settlement":
		s.handleSettlement(w, r, segments[2:])
	case "integrations":
		s.handleIntegrations(w, r, segments[2:])
	case "payments":
		s.handlePayments(w, r, segments[2:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// ---- Sync ----

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "run":
		summary, err := s.service.RunSync(r.Context())
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "last":
		summary, ok, err := s.service.LastSync(r.Context())
		if err != nil {
			writeMappedError(w, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "NO_RUNS", "No sync run has completed yet", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// ---- Settlement ----

func (s *HTTPServer) handleSettlement(w http.ResponseWriter, r *http.Request, rest []string) {
	if r.Method != http.MethodPost || len(rest) != 1 || rest[0] != "run" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	var body struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	var periodStart, periodEnd time.Time
	if body.Start != "" || body.End != "" {
		var err error
		periodStart, err = time.Parse(time.RFC3339, body.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", fmt.Sprintf("bad start time %q", body.Start), nil)
			return
		}
		periodEnd, err = time.Parse(time.RFC3339, body.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", fmt.Sprintf("bad end time %q", body.End), nil)
			return
		}
	}

	payments, err := s.service.SettlePeriod(r.Context(), periodStart, periodEnd)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

// ---- Integrations ----

func (s *HTTPServer) handleIntegrations(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		items, err := s.service.ListIntegrations(r.Context())
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"integrations": toIntegrationViews(items)})

	case len(rest) == 0 && r.Method == http.MethodPost:
		var input IntegrationInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.CreateIntegration(r.Context(), input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"integration": toIntegrationView(item)})

	case len(rest) == 1 && rest[0] == "verify" && r.Method == http.MethodPost:
		var input IntegrationInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.VerifySource(r.Context(), input.Kind, input.Credential, input.Config); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(rest) == 1 && r.Method == http.MethodGet:
		item, err := s.service.GetIntegration(r.Context(), rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"integration": toIntegrationView(item)})

	case len(rest) == 1 && r.Method == http.MethodPut:
		var input IntegrationInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.UpdateIntegration(r.Context(), rest[0], input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"integration": toIntegrationView(item)})

	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteIntegration(r.Context(), rest[0]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(rest) == 2 && rest[1] == "refresh" && r.Method == http.MethodPost:
		if err := s.service.RefreshIntegration(r.Context(), rest[0]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// integrationView never echoes the stored credential back out.
type integrationView struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toIntegrationView(item store.Integration) integrationView {
	return integrationView{
		ID:        item.ID,
		Kind:      item.Kind,
		Name:      item.Name,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

func toIntegrationViews(items []store.Integration) []integrationView {
	views := make([]integrationView, 0, len(items))
	for _, item := range items {
		views = append(views, toIntegrationView(item))
	}
	return views
}

// ---- Payments ----

func (s *HTTPServer) handlePayments(w http.ResponseWriter, r *http.Request, rest []string) {
	if r.Method != http.MethodGet || len(rest) != 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	payments, err := s.service.ListPayments(r.Context(), r.URL.Query().Get("employee_id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

// ---- Plumbing ----

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		// An absent body is fine; endpoints that need fields validate them.
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, syncsvc.ErrRunInProgress):
		return http.StatusConflict, "SYNC_IN_PROGRESS", "A sync run is already in progress", nil
	case errors.Is(err, source.ErrBadCredential):
		return http.StatusBadRequest, "SOURCE_CREDENTIAL_INVALID", err.Error(), nil
	case errors.Is(err, source.ErrBadPayload):
		return http.StatusBadGateway, "SOURCE_PAYLOAD_MALFORMED", err.Error(), nil
	case errors.Is(err, source.ErrUnreachable):
		return http.StatusBadGateway, "SOURCE_UNREACHABLE", err.Error(), nil
	case errors.Is(err, source.ErrUnknownKind):
		return http.StatusBadRequest, "UNKNOWN_KIND", err.Error(), nil
	case errors.Is(err, payroll.ErrInvalidPeriod):
		return http.StatusBadRequest, "INVALID_PERIOD", err.Error(), nil
	case errors.Is(err, payroll.ErrAborted):
		return http.StatusInternalServerError, "SETTLEMENT_ABORTED", "Settlement aborted, nothing was recorded", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
