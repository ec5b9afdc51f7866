package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"worklog/internal/core"
	"worklog/internal/log"
	ports "worklog/internal/sheets"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultRulesSheet = "Classification Rules"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	rulesSheet    string
	logger        *log.Logger
}

var (
	_ ports.RuleMirror      = (*Client)(nil)
	_ ports.RuleSheetReader = (*Client)(nil)
)

// New creates a Sheets client authenticated with service account credentials
// from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, rulesSheet string, logger *log.Logger) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(rulesSheet) == "" {
		rulesSheet = defaultRulesSheet
	}
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	creds, err := serviceAccountCredentials()
	if err != nil {
		return nil, err
	}

	// Token refreshes go through the pooled client as well.
	base := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClient())
	gcreds, err := goauth.CredentialsFromJSON(base, creds, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(oauth2.NewClient(base, gcreds.TokenSource)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	logger.InfoContext(ctx, "Google Sheets client ready", "sheet", rulesSheet)
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		rulesSheet:    rulesSheet,
		logger:        logger,
	}, nil
}

func serviceAccountCredentials() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

// newHTTPClient pools connections to the Sheets API with bounded timeouts
func newHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   5,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 60 * time.Second,
	}
}

// ReplaceRules clears the rules sheet and writes the header plus one row per rule.
func (c *Client) ReplaceRules(ctx context.Context, rules []core.ClassificationRule) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("'%s'!A:E", c.rulesSheet)

	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear rules sheet: %w", err)
	}

	vr := &gsheet.ValueRange{Values: rulesToValues(rules)}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("'%s'!A1", c.rulesSheet), vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write rules sheet: %w", err)
	}

	c.logger.InfoContext(ctx, "Rules mirrored to sheet", log.FieldCount, len(rules), log.FieldOperation, log.OpSync)
	return nil
}

// ReadRules parses the rules sheet. Rows with an unknown classification are
// skipped and logged.
func (c *Client) ReadRules(ctx context.Context) ([]core.ClassificationRule, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, fmt.Sprintf("'%s'!A:E", c.rulesSheet)).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read rules sheet: %w", err)
	}
	rules, skipped, err := parseRules(resp.Values)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		c.logger.WarnContext(ctx, "Skipped unparseable rule rows", log.FieldCount, skipped)
	}
	return rules, nil
}
