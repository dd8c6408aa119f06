package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/retry"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

const defaultCallAttempts = 5

// GoogleStore implements Store on top of the Sheets v4 API.
type GoogleStore struct {
	srv    *gsheets.Service
	policy retry.Policy
}

func NewGoogleStore(ctx context.Context, credentialsJSON string) (*GoogleStore, error) {
	config, err := google.JWTConfigFromJSON([]byte(credentialsJSON), gsheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account credentials: %w", err)
	}

	srv, err := gsheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets client: %w", err)
	}

	return &GoogleStore{srv: srv, policy: retry.Exponential(defaultCallAttempts)}, nil
}

func (s *GoogleStore) ReadRows(ctx context.Context, ref Ref, required []string) (*Table, error) {
	var resp *gsheets.ValueRange
	err := s.call(ctx, "read", ref, func(ctx context.Context) (err error) {
		resp, err = s.srv.Spreadsheets.Values.Get(ref.SpreadsheetID, quoteSheet(ref.Sheet)).
			ValueRenderOption("UNFORMATTED_VALUE").
			DateTimeRenderOption("SERIAL_NUMBER").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Values) == 0 {
		return nil, &MissingHeadersError{Ref: ref, Missing: required}
	}
	headers := cellsToStrings(resp.Values[0])
	raw := make([][]string, 0, len(resp.Values)-1)
	for _, r := range resp.Values[1:] {
		raw = append(raw, cellsToStrings(r))
	}
	return buildTable(ref, headers, raw, required)
}

func (s *GoogleStore) WriteRows(ctx context.Context, ref Ref, rows []domain.Row) error {
	var headerResp *gsheets.ValueRange
	err := s.call(ctx, "read headers", ref, func(ctx context.Context) (err error) {
		headerResp, err = s.srv.Spreadsheets.Values.Get(ref.SpreadsheetID, quoteSheet(ref.Sheet)+"!1:1").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return err
	}
	if len(headerResp.Values) == 0 {
		return &MissingHeadersError{Ref: ref}
	}
	headers := cellsToStrings(headerResp.Values[0])
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	if len(rows) > 0 {
		values := rowValues(headers, rows)
		cells := make([][]interface{}, len(values))
		for i, r := range values {
			cells[i] = make([]interface{}, len(r))
			for j, v := range r {
				cells[i][j] = v
			}
		}
		err = s.call(ctx, "write", ref, func(ctx context.Context) error {
			_, err := s.srv.Spreadsheets.Values.Update(ref.SpreadsheetID, quoteSheet(ref.Sheet)+"!A2", &gsheets.ValueRange{Values: cells}).
				ValueInputOption("USER_ENTERED").
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			return err
		}
	}

	props, err := s.sheetProperties(ctx, ref)
	if err != nil {
		return err
	}
	lastWritten := len(rows) + 1
	if props.GridProperties != nil && int(props.GridProperties.RowCount) > lastWritten {
		return s.deleteRows(ctx, ref, props.SheetId, lastWritten, int(props.GridProperties.RowCount))
	}
	return nil
}

func (s *GoogleStore) DeleteRowRange(ctx context.Context, ref Ref, start, end int) error {
	props, err := s.sheetProperties(ctx, ref)
	if err != nil {
		return err
	}
	return s.deleteRows(ctx, ref, props.SheetId, start, end)
}

func (s *GoogleStore) sheetProperties(ctx context.Context, ref Ref) (*gsheets.SheetProperties, error) {
	var ss *gsheets.Spreadsheet
	err := s.call(ctx, "get properties", ref, func(ctx context.Context) (err error) {
		ss, err = s.srv.Spreadsheets.Get(ref.SpreadsheetID).
			Fields("sheets.properties").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == ref.Sheet {
			return sh.Properties, nil
		}
	}
	return nil, fmt.Errorf("sheet %s not found", ref)
}

func (s *GoogleStore) deleteRows(ctx context.Context, ref Ref, sheetID int64, start, end int) error {
	req := &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			DeleteDimension: &gsheets.DeleteDimensionRequest{
				Range: &gsheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(start),
					EndIndex:        int64(end),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	return s.call(ctx, "delete rows", ref, func(ctx context.Context) error {
		_, err := s.srv.Spreadsheets.BatchUpdate(ref.SpreadsheetID, req).Context(ctx).Do()
		return err
	})
}

// call retries rate limits and server errors with exponential backoff.
func (s *GoogleStore) call(ctx context.Context, op string, ref Ref, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, s.policy, func(ctx context.Context, attempt int) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return retry.Permanent(err)
		}
		log.Warn().Err(err).Str("sheet", ref.String()).Str("op", op).Int("attempt", attempt).Msg("sheets call failed, retrying")
		return err
	})
	if err != nil {
		return fmt.Errorf("sheets %s %s: %w", op, ref, err)
	}
	return nil
}

func isTransient(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError
	}
	return false
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func cellsToStrings(cells []interface{}) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = cellString(c)
	}
	return out
}

func cellString(c interface{}) string {
	switch v := c.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
