// Package google exports entity rollups to a Google Spreadsheet, one tab per
// entity.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"patrimonio/internal/core"
	ports "patrimonio/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	tabPrefix     string
}

// Ensure interface conformance
var _ ports.RollupExporter = (*Client)(nil)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_TAB_PREFIX (default "Budget"), prepended to the entity
// name to form the tab title.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	tabPrefix := strings.TrimSpace(os.Getenv("GOOGLE_TAB_PREFIX"))
	if tabPrefix == "" {
		tabPrefix = "Budget"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		tabPrefix:     tabPrefix,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
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
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return service, nil
}

// ExportEntityRollup overwrites the entity's tab with the current rollup
// grid: one header row of months, one row per category, a totals row.
func (c *Client) ExportEntityRollup(ctx context.Context, entity core.Entity, grid core.Grid) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	tab := c.tabName(entity)
	if err := c.ensureTab(ctx, tab); err != nil {
		return fmt.Errorf("ensure tab %s: %w", tab, err)
	}

	values := rollupValues(grid)
	rng := fmt.Sprintf("%s!A1", tab)

	clearRange := fmt.Sprintf("%s!A1:ZZ", tab)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear tab %s: %w", tab, err)
	}

	vr := &gsheet.ValueRange{Values: values}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write tab %s: %w", tab, err)
	}

	slog.InfoContext(ctx, "Exported entity rollup",
		"entity_id", entity.EntityID,
		"tab", tab,
		"rows", len(values))
	return nil
}

func (c *Client) tabName(entity core.Entity) string {
	name := strings.TrimSpace(entity.Name)
	if name == "" {
		name = entity.EntityID
	}
	return fmt.Sprintf("%s %s", c.tabPrefix, name)
}

// ensureTab adds the sheet tab if the spreadsheet does not have it yet.
func (c *Client) ensureTab(ctx context.Context, tab string) error {
	meta, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet metadata: %w", err)
	}
	for _, sheet := range meta.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == tab {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: tab},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	return nil
}

// rollupValues flattens a grid into sheet rows. Amounts are rendered as
// decimal strings so the sheet never re-rounds them.
func rollupValues(grid core.Grid) [][]any {
	header := make([]any, 0, len(grid.Months)+2)
	header = append(header, "Category")
	for _, month := range grid.Months {
		header = append(header, month.String())
	}
	header = append(header, "Total")

	values := [][]any{header}
	for _, row := range grid.Rows {
		line := make([]any, 0, len(row.Amounts)+2)
		line = append(line, row.Category)
		for _, amount := range row.Amounts {
			line = append(line, amount.String())
		}
		line = append(line, row.Total.String())
		values = append(values, line)
	}

	totals := make([]any, 0, len(grid.ColumnTotals)+2)
	totals = append(totals, "Total")
	for _, amount := range grid.ColumnTotals {
		totals = append(totals, amount.String())
	}
	totals = append(totals, grid.GrandTotal.String())
	values = append(values, totals)

	return values
}
