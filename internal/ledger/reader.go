// Package ledger reads the salary spreadsheet published as a CSV export.
package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rongwang/salary-bot/internal/config"
	"github.com/rongwang/salary-bot/internal/models"
)

// ErrConnection wraps every failure to obtain the spreadsheet export
var ErrConnection = errors.New("connection error")

// ErrNotConfigured is returned by NewReader when no spreadsheet is set
var ErrNotConfigured = errors.New("spreadsheet is not configured")

// Reader fetches and searches the salary spreadsheet
type Reader struct {
	client  *http.Client
	url     string
	columns config.ColumnMapping
}

// NewReader creates a Reader for the configured sheet. A nil client gets a
// default one with the configured timeout.
func NewReader(cfg config.SheetsConfig, client *http.Client) (*Reader, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, ErrNotConfigured
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid sheets base url %q", cfg.BaseURL)
	}

	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	base.Path += "/spreadsheets/d/" + url.PathEscape(cfg.SpreadsheetID) + "/export"
	q := url.Values{}
	q.Set("format", "csv")
	q.Set("gid", cfg.SheetGID)
	base.RawQuery = q.Encode()

	return &Reader{
		client:  client,
		url:     base.String(),
		columns: cfg.Columns,
	}, nil
}

// URL returns the export address the reader fetches
func (r *Reader) URL() string {
	return r.url
}

// Fetch downloads the whole sheet. It makes a single attempt.
func (r *Reader) Fetch(ctx context.Context) ([][]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrConnection, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	rows, err := parseCSV(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return rows, nil
}

func parseCSV(body []byte) ([][]string, error) {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(body))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr.ReadAll()
}

// FindByName fetches the sheet and returns the first row whose name cell
// matches name ignoring case and surrounding spaces. It returns nil, nil when
// no row matches.
func (r *Reader) FindByName(ctx context.Context, name string) (*models.SalarySnapshot, error) {
	rows, err := r.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	want := strings.ToLower(strings.TrimSpace(name))
	col := r.columns.Name
	for _, row := range rows {
		if col < 0 || len(row) <= col {
			continue
		}
		if strings.ToLower(strings.TrimSpace(row[col])) == want {
			snapshot := r.Extract(row, name)
			return &snapshot, nil
		}
	}
	return nil, nil
}

// Extract builds a snapshot from a row, labelled with name
func (r *Reader) Extract(row []string, name string) models.SalarySnapshot {
	m := r.columns

	share := "N/A"
	if m.Share >= 0 && m.Share < len(row) {
		share = row[m.Share]
	}

	return models.SalarySnapshot{
		Name:       name,
		Share:      share,
		Salary:     CleanNumber(row, m.Salary),
		Advance:    CleanNumber(row, m.Advance),
		Bonus:      CleanNumber(row, m.Bonus),
		Penalty:    CleanNumber(row, m.Penalty),
		CoverMinus: CleanNumber(row, m.CoverMinus),
		CoverPlus:  CleanNumber(row, m.CoverPlus),
		Tax:        CleanNumber(row, m.Tax),
		Remains:    CleanNumber(row, m.Remains),
	}
}

// CleanNumber parses row[idx] as a number after removing spaces, thousands
// separators and any character other than digits and '.'. Out of range
// indices and unparsable cells give 0.
func CleanNumber(row []string, idx int) float64 {
	if idx < 0 || idx >= len(row) {
		return 0
	}

	raw := strings.NewReplacer(" ", "", ",", "").Replace(row[idx])

	var b strings.Builder
	for _, c := range raw {
		if (c >= '0' && c <= '9') || c == '.' {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return 0
	}

	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return v
}
