package sheets

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"finwatch/internal/core"

	"golang.org/x/oauth2"
)

// table is a tab's value matrix with a header-name index.
type table struct {
	cols map[string]int
	rows [][]string
}

func newTable(values [][]any) table {
	t := table{cols: map[string]int{}}
	if len(values) == 0 {
		return t
	}
	for i, h := range toStrings(values[0]) {
		key := normalizeHeader(h)
		if key == "" {
			continue
		}
		if _, dup := t.cols[key]; !dup {
			t.cols[key] = i
		}
	}
	for _, v := range values[1:] {
		r := toStrings(v)
		if isBlank(r) {
			continue
		}
		t.rows = append(t.rows, r)
	}
	return t
}

// normalizeHeader maps "Due Date", "due-date" and "due_date" to one key.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	return h
}

type row struct {
	cols   map[string]int
	values []string
	line   int
}

// each calls fn for every row visible to userID. Rows without a user_id
// column, or with a blank one, belong to every user. Row errors carry the
// spreadsheet line number.
func (t table) each(userID string, fn func(row) error) error {
	_, scoped := t.cols["user_id"]
	for i, values := range t.rows {
		r := row{cols: t.cols, values: values, line: i + 2}
		if scoped {
			if owner := r.get("user_id"); owner != "" && owner != userID {
				continue
			}
		}
		if strings.HasPrefix(r.get("id"), "#") {
			continue
		}
		if err := fn(r); err != nil {
			return fmt.Errorf("row %d: %w", r.line, err)
		}
	}
	return nil
}

func (r row) get(col string) string {
	i, ok := r.cols[col]
	if !ok {
		return ""
	}
	return safeGet(r.values, i)
}

// money parses a currency cell; blank means zero.
func (r row) money(col string) (core.Money, error) {
	v := r.get(col)
	if v == "" {
		return core.Money{}, nil
	}
	cents, ok := parseEurosToCents(v)
	if !ok {
		return core.Money{}, fmt.Errorf("%s: invalid amount %q", col, v)
	}
	return core.Money{Cents: cents}, nil
}

func (r row) date(col string) (core.Date, error) {
	v := r.get(col)
	d, err := parseSheetDate(v)
	if err != nil {
		return core.Date{}, fmt.Errorf("%s: invalid date %q", col, v)
	}
	return d, nil
}

// optionalDate yields the zero date for blank or unparseable cells.
func (r row) optionalDate(col string) core.Date {
	d, err := parseSheetDate(r.get(col))
	if err != nil {
		return core.Date{}
	}
	return d
}

func (r row) flag(col string, def bool) bool {
	switch strings.ToLower(r.get(col)) {
	case "":
		return def
	case "true", "yes", "y", "1", "x", "si", "sì":
		return true
	default:
		return false
	}
}

// parseSheetDate accepts ISO dates and the dd/mm/yyyy locale format.
func parseSheetDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Date{}, fmt.Errorf("empty date")
	}
	if d, err := core.ParseDate(s); err == nil {
		return d, nil
	}
	t, err := time.Parse("02/01/2006", s)
	if err != nil {
		return core.Date{}, err
	}
	return core.DateOf(t), nil
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func isBlank(r []string) bool {
	for _, v := range r {
		if v != "" {
			return false
		}
	}
	return true
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// parseEurosToCents reads sheet-formatted amounts: "12,34", "12.34",
// "€ 1.234,50" and plain numbers.
func parseEurosToCents(s string) (int64, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "€"))
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") {
		// thousands dots with a decimal comma
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	if cents, err := core.ParseAmount(s); err == nil {
		return cents, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if f < 0 {
		return int64(f*100.0 - 0.5), true
	}
	return int64(f*100.0 + 0.5), true
}

// ReadToken loads an OAuth token saved by cmd/oauth-init.
func ReadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return &tok, nil
}

// WriteToken saves an OAuth token with owner-only permissions.
func WriteToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}
