package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const defaultSheetRange = "Sheet1!A:D"

// SheetsAdapter reads worked-time rows from a Google spreadsheet. The stored
// credential is a service-account JSON blob; the config names the
// spreadsheet and, optionally, the range. Expected columns: employee email,
// start time, end time (a trailing date column, if present, is ignored).
type SheetsAdapter struct {
	timeout time.Duration

	// endpoint overrides the Sheets API base URL in tests.
	endpoint string
}

func NewSheetsAdapter(timeout time.Duration) *SheetsAdapter {
	return &SheetsAdapter{timeout: timeout}
}

type sheetsConfig struct {
	SpreadsheetID string `json:"spreadsheetId"`
	Range         string `json:"range"`
}

func (a *SheetsAdapter) Normalize(ctx context.Context, credential, config string) ([]TimeSpan, error) {
	rows, err := a.fetch(ctx, credential, config)
	if err != nil {
		return nil, err
	}
	return normalizeSheetRows(rows), nil
}

func (a *SheetsAdapter) Verify(ctx context.Context, credential, config string) error {
	_, err := a.fetch(ctx, credential, config)
	return err
}

func (a *SheetsAdapter) fetch(ctx context.Context, credential, config string) ([][]interface{}, error) {
	// ErrBadCredential is reserved for auth failures; a broken config blob
	// is a malformed-input problem.
	var cfg sheetsConfig
	if err := json.Unmarshal([]byte(config), &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse sheets config: %v", ErrBadPayload, err)
	}
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, fmt.Errorf("%w: sheets config missing spreadsheetId", ErrBadPayload)
	}
	readRange := cfg.Range
	if readRange == "" {
		readRange = defaultSheetRange
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	opts := []option.ClientOption{
		option.WithCredentialsJSON([]byte(credential)),
		option.WithScopes(sheets.SpreadsheetsReadonlyScope),
	}
	if a.endpoint != "" {
		opts = []option.ClientOption{
			option.WithEndpoint(a.endpoint),
			option.WithoutAuthentication(),
		}
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: init sheets client: %v", ErrBadCredential, err)
	}

	resp, err := svc.Spreadsheets.Values.Get(cfg.SpreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, classifySheetsError(err)
	}
	return resp.Values, nil
}

func classifySheetsError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: sheets fetch: %v", ErrBadCredential, err)
		case http.StatusNotFound, http.StatusBadRequest:
			return fmt.Errorf("%w: sheets fetch: %v", ErrBadPayload, err)
		}
	}
	return fmt.Errorf("%w: sheets fetch: %v", ErrUnreachable, err)
}

// normalizeSheetRows turns raw cell values into time spans. The first row is
// a header. Rows missing an email or with an unparseable start or end are
// skipped with a warning, never fatal.
func normalizeSheetRows(rows [][]interface{}) []TimeSpan {
	spans := make([]TimeSpan, 0, len(rows))
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) < 3 {
			log.Printf("source: sheets row %d has %d cells, want 3, skipping", i+1, len(row))
			continue
		}
		email := strings.TrimSpace(cellString(row[0]))
		if email == "" {
			log.Printf("source: sheets row %d has no email, skipping", i+1)
			continue
		}
		start, err := parseSheetTime(cellString(row[1]))
		if err != nil {
			log.Printf("source: sheets row %d has bad start %q, skipping: %v", i+1, cellString(row[1]), err)
			continue
		}
		end, err := parseSheetTime(cellString(row[2]))
		if err != nil {
			log.Printf("source: sheets row %d has bad end %q, skipping: %v", i+1, cellString(row[2]), err)
			continue
		}
		spans = append(spans, TimeSpan{NativeID: email, Start: start, End: end})
	}
	return spans
}

func cellString(cell interface{}) string {
	s, _ := cell.(string)
	return s
}

var sheetTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func parseSheetTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time cell")
	}
	for _, layout := range sheetTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}
