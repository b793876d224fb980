// Package sheets reads the ledger from a Google spreadsheet with one tab per
// record kind. Each tab has a header row; columns are matched by name so
// their order is free, and an optional user_id column scopes rows to users.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"finwatch/internal/cache"
	"finwatch/internal/core"
	"finwatch/internal/log"
	"finwatch/internal/sources"
	"finwatch/internal/sources/memory"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var _ sources.Ledger = (*Client)(nil)

const DefaultCacheTTL = time.Minute

// Tabs names the sheet tab holding each record kind.
type Tabs struct {
	Budgets  string
	Expenses string
	Bills    string
	Goals    string
	Accounts string
	Loans    string
}

func DefaultTabs() Tabs {
	return Tabs{
		Budgets:  "Budgets",
		Expenses: "Expenses",
		Bills:    "Bills",
		Goals:    "Goals",
		Accounts: "Accounts",
		Loans:    "Loans",
	}
}

type Config struct {
	SpreadsheetID string
	Tabs          Tabs

	// Service account credentials take precedence over OAuth.
	ServiceAccountJSON string
	ServiceAccountFile string

	// OAuth client and the token written by cmd/oauth-init.
	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenFile  string

	// CacheTTL bounds how long tab contents are reused across fetchers.
	CacheTTL time.Duration
	Logger   *log.Logger
}

// valueSource abstracts the Values.Get call so the parsing can be tested
// without the API.
type valueSource interface {
	Values(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
}

type apiSource struct {
	svc *gsheet.Service
}

func (a apiSource) Values(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := a.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

type Client struct {
	src           valueSource
	spreadsheetID string
	tabs          Tabs
	values        *cache.LRUCache[[][]any]
	logger        *log.Logger
}

// New connects to the Sheets API.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(apiSource{svc: svc}, cfg), nil
}

func newClient(src valueSource, cfg Config) *Client {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}
	tabs := DefaultTabs()
	for _, o := range []struct {
		dst *string
		v   string
	}{
		{&tabs.Budgets, cfg.Tabs.Budgets},
		{&tabs.Expenses, cfg.Tabs.Expenses},
		{&tabs.Bills, cfg.Tabs.Bills},
		{&tabs.Goals, cfg.Tabs.Goals},
		{&tabs.Accounts, cfg.Tabs.Accounts},
		{&tabs.Loans, cfg.Tabs.Loans},
	} {
		if v := strings.TrimSpace(o.v); v != "" {
			*o.dst = v
		}
	}
	return &Client{
		src:           src,
		spreadsheetID: cfg.SpreadsheetID,
		tabs:          tabs,
		values:        cache.NewLRUCache[[][]any](16, cfg.CacheTTL),
		logger:        cfg.Logger.WithComponent(log.ComponentSheets),
	}
}

// newSheetsService authenticates with a service account when one is
// configured and falls back to an OAuth client plus stored token.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	httpClient := newHTTPClientWithPooling()

	saJSON := strings.TrimSpace(cfg.ServiceAccountJSON)
	saFile := strings.TrimSpace(cfg.ServiceAccountFile)
	if saJSON != "" || saFile != "" {
		raw := []byte(saJSON)
		if saJSON == "" {
			b, err := os.ReadFile(saFile)
			if err != nil {
				return nil, fmt.Errorf("read service account file: %w", err)
			}
			raw = b
		}
		creds, err := google.CredentialsFromJSON(ctx, raw, gsheet.SpreadsheetsReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("service account credentials: %w", err)
		}
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		return gsheet.NewService(ctx, goption.WithHTTPClient(oauth2.NewClient(ctx, creds.TokenSource)))
	}

	clientJSON := []byte(strings.TrimSpace(cfg.OAuthClientJSON))
	if len(clientJSON) == 0 && cfg.OAuthClientFile != "" {
		b, err := os.ReadFile(cfg.OAuthClientFile)
		if err != nil {
			return nil, fmt.Errorf("read oauth client file: %w", err)
		}
		clientJSON = b
	}
	if len(clientJSON) == 0 {
		return nil, errors.New("missing credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_OAUTH_CLIENT_JSON)")
	}
	oauthCfg, err := google.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	if cfg.OAuthTokenFile == "" {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_FILE)")
	}
	tok, err := ReadToken(cfg.OAuthTokenFile)
	if err != nil {
		return nil, err
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	return gsheet.NewService(ctx, goption.WithHTTPClient(oauthCfg.Client(ctx, tok)))
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// readTab returns a tab's full value matrix, served from cache while fresh.
func (c *Client) readTab(ctx context.Context, tab string) ([][]any, error) {
	if v, ok := c.values.Get(tab); ok {
		return v, nil
	}
	rng := tab + "!A:Z"
	values, err := c.src.Values(ctx, c.spreadsheetID, rng)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	c.values.Set(tab, values)
	c.logger.DebugContext(ctx, "Read sheet tab", "tab", tab, log.FieldCount, len(values))
	return values, nil
}

// Invalidate drops cached tab contents.
func (c *Client) Invalidate() {
	c.values.Drain()
}

// load reads the named tabs and evaluates them through an in-memory ledger
// scoped to userID.
func (c *Client) load(ctx context.Context, userID string, tabs ...string) (*memory.Store, error) {
	store := memory.New()
	for _, tab := range tabs {
		values, err := c.readTab(ctx, tab)
		if err != nil {
			return nil, err
		}
		t := newTable(values)
		if err := c.fill(store, tab, t, userID); err != nil {
			return nil, fmt.Errorf("parse %s: %w", tab, err)
		}
	}
	return store, nil
}

func (c *Client) fill(store *memory.Store, tab string, t table, userID string) error {
	switch tab {
	case c.tabs.Budgets:
		return t.each(userID, func(r row) error {
			limit, err := r.money("limit")
			if err != nil {
				return err
			}
			store.AddBudget(userID, r.get("id"), r.get("category"), limit)
			return nil
		})
	case c.tabs.Expenses:
		return t.each(userID, func(r row) error {
			amt, err := r.money("amount")
			if err != nil {
				return err
			}
			d, err := r.date("date")
			if err != nil {
				return err
			}
			store.AddExpense(userID, memory.Expense{Category: r.get("category"), Amount: amt, Date: d})
			return nil
		})
	case c.tabs.Bills:
		return t.each(userID, func(r row) error {
			amt, err := r.money("amount")
			if err != nil {
				return err
			}
			due, err := r.date("due_date")
			if err != nil {
				return err
			}
			store.AddBill(userID, memory.Bill{ID: r.get("id"), Name: r.get("name"), Amount: amt, DueDate: due, Paid: r.flag("paid", false)})
			return nil
		})
	case c.tabs.Goals:
		return t.each(userID, func(r row) error {
			cur, err := r.money("current")
			if err != nil {
				return err
			}
			target, err := r.money("target")
			if err != nil {
				return err
			}
			status := r.get("status")
			store.AddGoal(userID, memory.Goal{
				Goal:   core.Goal{ID: r.get("id"), Name: r.get("name"), CurrentAmount: cur, TargetAmount: target, TargetDate: r.optionalDate("target_date")},
				Active: status == "" || strings.EqualFold(status, "active"),
			})
			return nil
		})
	case c.tabs.Accounts:
		return t.each(userID, func(r row) error {
			bal, err := r.money("balance")
			if err != nil {
				return err
			}
			minimum, err := r.money("minimum_balance")
			if err != nil {
				return err
			}
			store.AddAccount(userID, memory.Account{
				Account: core.Account{ID: r.get("id"), Name: r.get("name"), Balance: bal, MinimumBalance: minimum},
				Active:  r.flag("active", true),
			})
			return nil
		})
	case c.tabs.Loans:
		return t.each(userID, func(r row) error {
			amt, err := r.money("amount")
			if err != nil {
				return err
			}
			repaid, err := r.money("amount_repaid")
			if err != nil {
				return err
			}
			store.AddLoan(userID, core.LoanRow{
				ID:                 r.get("id"),
				Amount:             amt,
				AmountRepaid:       repaid,
				PersonName:         r.get("person_name"),
				BorrowerName:       r.get("borrower_name"),
				Status:             r.get("status"),
				RepaymentStatus:    r.get("repayment_status"),
				DueDate:            r.optionalDate("due_date"),
				ExpectedReturnDate: r.optionalDate("expected_return_date"),
			})
			return nil
		})
	}
	return fmt.Errorf("unknown tab %q", tab)
}

func (c *Client) BudgetsWithSpend(ctx context.Context, userID string, today core.Date) ([]core.BudgetSpend, error) {
	s, err := c.load(ctx, userID, c.tabs.Budgets, c.tabs.Expenses)
	if err != nil {
		return nil, err
	}
	return s.BudgetsWithSpend(ctx, userID, today)
}

func (c *Client) DueBills(ctx context.Context, userID string, today core.Date, daysAhead int) ([]core.DueBill, error) {
	s, err := c.load(ctx, userID, c.tabs.Bills)
	if err != nil {
		return nil, err
	}
	return s.DueBills(ctx, userID, today, daysAhead)
}

func (c *Client) ActiveGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	s, err := c.load(ctx, userID, c.tabs.Goals)
	if err != nil {
		return nil, err
	}
	return s.ActiveGoals(ctx, userID)
}

func (c *Client) ActiveAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	s, err := c.load(ctx, userID, c.tabs.Accounts)
	if err != nil {
		return nil, err
	}
	return s.ActiveAccounts(ctx, userID)
}

func (c *Client) ActiveLoans(ctx context.Context, userID string) ([]core.LoanRow, error) {
	s, err := c.load(ctx, userID, c.tabs.Loans)
	if err != nil {
		return nil, err
	}
	return s.ActiveLoans(ctx, userID)
}
