package export

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

// SheetsWriter implements Writer using the Google Sheets API. Every run appends rows;
// headers are written once when a sheet is empty.
type SheetsWriter struct {
	spreadsheetID string
	svc           *sheets.Service
}

// NewSheetsWriter creates a SheetsWriter authenticated with a service account JSON.
func NewSheetsWriter(ctx context.Context, spreadsheetID, credentialsJSON string) (*SheetsWriter, error) {
	creds, err := google.CredentialsFromJSON(
		ctx,
		[]byte(credentialsJSON),
		sheets.SpreadsheetsScope,
	)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &SheetsWriter{spreadsheetID: spreadsheetID, svc: svc}, nil
}

// Write appends the report to the SETTLEMENTS and FUNDS sheets.
func (w *SheetsWriter) Write(ctx context.Context, report Report) error {
	created, err := w.ensureSheets(ctx, settlementsSheet, fundsSheet)
	if err != nil {
		return err
	}

	if err := w.appendRows(ctx, settlementsSheet, "A:I", settlementHeader, settlementValues(report.Settlements)); err != nil {
		return err
	}
	if err := w.appendRows(ctx, fundsSheet, "A:G", fundHeader, fundValues(report.Funds)); err != nil {
		return err
	}

	if len(created) > 0 {
		if err := w.formatHeaders(ctx, created); err != nil {
			return fmt.Errorf("formatting sheets: %w", err)
		}
	}
	return nil
}

func (w *SheetsWriter) appendRows(ctx context.Context, sheet, cols string, header []any, rows [][]any) error {
	existing, err := w.svc.Spreadsheets.Values.Get(w.spreadsheetID, sheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("reading %s header: %w", sheet, err)
	}
	if len(existing.Values) == 0 {
		rows = append([][]any{header}, rows...)
	}
	if len(rows) == 0 {
		return nil
	}

	_, err = w.svc.Spreadsheets.Values.Append(
		w.spreadsheetID,
		sheet+"!"+cols,
		&sheets.ValueRange{Values: rows},
	).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appending %s rows: %w", sheet, err)
	}
	return nil
}

// ensureSheets creates any of the named sheets that do not already exist and returns
// the ids of the sheets it created.
func (w *SheetsWriter) ensureSheets(ctx context.Context, names ...string) (map[string]int64, error) {
	spreadsheet, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting spreadsheet metadata: %w", err)
	}

	existing := make(map[string]bool, len(spreadsheet.Sheets))
	for _, s := range spreadsheet.Sheets {
		existing[s.Properties.Title] = true
	}

	var requests []*sheets.Request
	for _, name := range names {
		if !existing[name] {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: name},
				},
			})
		}
	}

	if len(requests) == 0 {
		return nil, nil
	}

	resp, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: requests},
	).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("creating sheets: %w", err)
	}

	created := make(map[string]int64, len(resp.Replies))
	for _, reply := range resp.Replies {
		if reply.AddSheet != nil && reply.AddSheet.Properties != nil {
			created[reply.AddSheet.Properties.Title] = reply.AddSheet.Properties.SheetId
		}
	}
	return created, nil
}

// formatHeaders styles the header row of newly created sheets and freezes it.
func (w *SheetsWriter) formatHeaders(ctx context.Context, created map[string]int64) error {
	// #D9EAD3
	lightGreen := &sheets.Color{Red: 0.851, Green: 0.918, Blue: 0.827}

	var reqs []*sheets.Request
	for _, id := range created {
		reqs = append(reqs,
			&sheets.Request{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{SheetId: id, StartRowIndex: 0, EndRowIndex: 1},
					Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
						BackgroundColor:     lightGreen,
						TextFormat:          &sheets.TextFormat{Bold: true},
						HorizontalAlignment: "CENTER",
					}},
					Fields: "userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)",
				},
			},
			&sheets.Request{
				UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
					Properties: &sheets.SheetProperties{
						SheetId:        id,
						GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
					},
					Fields: "gridProperties.frozenRowCount",
				},
			},
		)
	}

	_, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: reqs},
	).Context(ctx).Do()
	return err
}
