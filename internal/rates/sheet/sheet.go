// Package sheet fetches the exchange-rate table from a published
// Google Sheets spreadsheet. Each row of the rates sheet is one
// currency: code in column A, base-relative rate in column B.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"splitbudget/internal/core"
)

type Fetcher struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	base          string
}

// NewFromEnv creates a rate fetcher from environment variables.
// Required: RATES_SPREADSHEET_ID. Optional: RATES_SHEET_NAME
// (default "Rates"), RATES_BASE_CURRENCY (default "EUR").
func NewFromEnv(ctx context.Context) (*Fetcher, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("RATES_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing RATES_SPREADSHEET_ID")
	}

	sheetName := strings.TrimSpace(os.Getenv("RATES_SHEET_NAME"))
	if sheetName == "" {
		sheetName = "Rates"
	}
	base := strings.TrimSpace(os.Getenv("RATES_BASE_CURRENCY"))
	if base == "" {
		base = "EUR"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return New(svc, spreadsheetID, sheetName, base), nil
}

func New(svc *gsheet.Service, spreadsheetID, sheetName, base string) *Fetcher {
	return &Fetcher{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		base:          base,
	}
}

// newSheetsService initializes a Sheets service using Service Account
// credentials from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// Fetch pulls the rate sheet and parses it into a table. Rows that do
// not parse (headers, blanks, typos) are skipped and logged; the fetch
// only fails when the sheet is unreachable or yields no rates at all.
func (f *Fetcher) Fetch(ctx context.Context) (core.RateTable, error) {
	if f.svc == nil {
		return core.RateTable{}, errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:B", f.sheetName)
	resp, err := f.svc.Spreadsheets.Values.Get(f.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return core.RateTable{}, fmt.Errorf("read rate sheet %s: %w", f.sheetName, err)
	}

	table := core.RateTable{
		Base:  f.base,
		Rates: make(map[string]decimal.Decimal, len(resp.Values)),
	}
	for i, row := range resp.Values {
		code, rate, ok := parseRateRow(row)
		if !ok {
			if i > 0 { // first row is usually a header
				slog.WarnContext(ctx, "Skipping unparseable rate row",
					"sheet", f.sheetName, "row", i+1)
			}
			continue
		}
		table.Rates[code] = rate
	}

	if table.Empty() {
		return core.RateTable{}, fmt.Errorf("rate sheet %s yielded no rates", f.sheetName)
	}

	slog.InfoContext(ctx, "Fetched rate table",
		"sheet", f.sheetName,
		"base", f.base,
		"rate_count", len(table.Rates))
	return table, nil
}

func parseRateRow(row []any) (string, decimal.Decimal, bool) {
	if len(row) < 2 {
		return "", decimal.Decimal{}, false
	}
	code, ok := row[0].(string)
	if !ok {
		return "", decimal.Decimal{}, false
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", decimal.Decimal{}, false
	}

	var rate decimal.Decimal
	switch v := row[1].(type) {
	case string:
		parsed, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(v), ",", "."))
		if err != nil {
			return "", decimal.Decimal{}, false
		}
		rate = parsed
	case float64:
		rate = decimal.NewFromFloat(v)
	default:
		return "", decimal.Decimal{}, false
	}
	if !rate.IsPositive() {
		return "", decimal.Decimal{}, false
	}
	return code, rate, true
}
