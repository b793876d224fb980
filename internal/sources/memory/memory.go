package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"finwatch/internal/core"
	"finwatch/internal/sources"
)

var _ sources.Ledger = (*Store)(nil)

type (
	Bill struct {
		ID      string
		Name    string
		Amount  core.Money
		DueDate core.Date
		Paid    bool
	}

	Expense struct {
		Category string
		Amount   core.Money
		Date     core.Date
	}

	Goal struct {
		core.Goal
		Active bool
	}

	Account struct {
		core.Account
		Active bool
	}

	ledger struct {
		budgets  []core.BudgetSpend // SpentThisMonth is computed on read
		expenses []Expense
		bills    []Bill
		goals    []Goal
		accounts []Account
		loans    []core.LoanRow
	}
)

// Store is an in-process ledger used for local development and tests.
type Store struct {
	mu    sync.Mutex
	users map[string]*ledger
}

func New() *Store {
	return &Store{users: make(map[string]*ledger)}
}

func (s *Store) user(userID string) *ledger {
	l, ok := s.users[userID]
	if !ok {
		l = &ledger{}
		s.users[userID] = l
	}
	return l
}

func (s *Store) AddBudget(userID, id, category string, limit core.Money) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.user(userID)
	l.budgets = append(l.budgets, core.BudgetSpend{ID: id, Category: category, Limit: limit})
}

func (s *Store) AddExpense(userID string, e Expense) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.user(userID)
	l.expenses = append(l.expenses, e)
}

func (s *Store) AddBill(userID string, b Bill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.user(userID)
	l.bills = append(l.bills, b)
}

func (s *Store) AddGoal(userID string, g Goal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.user(userID)
	l.goals = append(l.goals, g)
}

func (s *Store) AddAccount(userID string, a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.user(userID)
	l.accounts = append(l.accounts, a)
}

func (s *Store) AddLoan(userID string, row core.LoanRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.user(userID)
	l.loans = append(l.loans, row)
}

// BudgetsWithSpend sums expenses whose category matches the budget's
// category within today's month.
func (s *Store) BudgetsWithSpend(_ context.Context, userID string, today core.Date) ([]core.BudgetSpend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	start, end := today.MonthBounds()
	out := make([]core.BudgetSpend, 0, len(l.budgets))
	for _, b := range l.budgets {
		var spent int64
		for _, e := range l.expenses {
			if !strings.EqualFold(e.Category, b.Category) {
				continue
			}
			if e.Date.Before(start.Time) || !e.Date.Before(end.Time) {
				continue
			}
			spent += e.Amount.Cents
		}
		b.SpentThisMonth = core.Money{Cents: spent}
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) DueBills(_ context.Context, userID string, today core.Date, daysAhead int) ([]core.DueBill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	var out []core.DueBill
	for _, b := range l.bills {
		if b.Paid {
			continue
		}
		days := today.DaysUntil(b.DueDate)
		if days < 0 || days > daysAhead {
			continue
		}
		out = append(out, core.DueBill{ID: b.ID, Name: b.Name, Amount: b.Amount, DueDate: b.DueDate, DaysUntilDue: days})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DaysUntilDue < out[j].DaysUntilDue })
	return out, nil
}

func (s *Store) ActiveGoals(_ context.Context, userID string) ([]core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	var out []core.Goal
	for _, g := range l.goals {
		if g.Active {
			out = append(out, g.Goal)
		}
	}
	return out, nil
}

func (s *Store) ActiveAccounts(_ context.Context, userID string) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	var out []core.Account
	for _, a := range l.accounts {
		if a.Active {
			out = append(out, a.Account)
		}
	}
	return out, nil
}

// ActiveLoans returns every stored loan row; status lives under either
// column name, so activity is decided after normalization.
func (s *Store) ActiveLoans(_ context.Context, userID string) ([]core.LoanRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return append([]core.LoanRow(nil), l.loans...), nil
}

// seedFile mirrors the JSON fixture format. Amounts are decimal strings and
// dates are YYYY-MM-DD.
type seedFile struct {
	Users map[string]struct {
		Budgets []struct {
			ID       string `json:"id"`
			Category string `json:"category"`
			Limit    string `json:"limit"`
		} `json:"budgets"`
		Expenses []struct {
			Category string `json:"category"`
			Amount   string `json:"amount"`
			Date     string `json:"date"`
		} `json:"expenses"`
		Bills []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Amount  string `json:"amount"`
			DueDate string `json:"due_date"`
			Paid    bool   `json:"paid"`
		} `json:"bills"`
		Goals []struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			Current    string `json:"current"`
			Target     string `json:"target"`
			TargetDate string `json:"target_date"`
			Status     string `json:"status"`
		} `json:"goals"`
		Accounts []struct {
			ID             string `json:"id"`
			Name           string `json:"name"`
			Balance        string `json:"balance"`
			MinimumBalance string `json:"minimum_balance"`
			Active         *bool  `json:"active"`
		} `json:"accounts"`
		Loans []struct {
			ID                 string `json:"id"`
			Amount             string `json:"amount"`
			AmountRepaid       string `json:"amount_repaid"`
			PersonName         string `json:"person_name"`
			BorrowerName       string `json:"borrower_name"`
			Status             string `json:"status"`
			RepaymentStatus    string `json:"repayment_status"`
			DueDate            string `json:"due_date"`
			ExpectedReturnDate string `json:"expected_return_date"`
		} `json:"loans"`
	} `json:"users"`
}

// NewFromFile builds a store from a JSON seed. A missing file yields an
// empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	if err := s.Load(data); err != nil {
		return nil, fmt.Errorf("load seed file %s: %w", path, err)
	}
	return s, nil
}

// Load merges a JSON seed document into the store.
func (s *Store) Load(data []byte) error {
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}
	for userID, u := range seed.Users {
		for _, b := range u.Budgets {
			limit, err := amount(b.Limit)
			if err != nil {
				return fmt.Errorf("budget %s limit: %w", b.ID, err)
			}
			s.AddBudget(userID, b.ID, b.Category, limit)
		}
		for i, e := range u.Expenses {
			amt, err := amount(e.Amount)
			if err != nil {
				return fmt.Errorf("expense %d amount: %w", i, err)
			}
			d, err := core.ParseDate(e.Date)
			if err != nil {
				return fmt.Errorf("expense %d date: %w", i, err)
			}
			s.AddExpense(userID, Expense{Category: e.Category, Amount: amt, Date: d})
		}
		for _, b := range u.Bills {
			amt, err := amount(b.Amount)
			if err != nil {
				return fmt.Errorf("bill %s amount: %w", b.ID, err)
			}
			d, err := core.ParseDate(b.DueDate)
			if err != nil {
				return fmt.Errorf("bill %s due date: %w", b.ID, err)
			}
			s.AddBill(userID, Bill{ID: b.ID, Name: b.Name, Amount: amt, DueDate: d, Paid: b.Paid})
		}
		for _, g := range u.Goals {
			cur, err := amount(g.Current)
			if err != nil {
				return fmt.Errorf("goal %s current: %w", g.ID, err)
			}
			target, err := amount(g.Target)
			if err != nil {
				return fmt.Errorf("goal %s target: %w", g.ID, err)
			}
			td, _ := optionalDate(g.TargetDate)
			s.AddGoal(userID, Goal{
				Goal:   core.Goal{ID: g.ID, Name: g.Name, CurrentAmount: cur, TargetAmount: target, TargetDate: td},
				Active: g.Status == "" || strings.EqualFold(g.Status, "active"),
			})
		}
		for _, a := range u.Accounts {
			bal, err := amount(a.Balance)
			if err != nil {
				return fmt.Errorf("account %s balance: %w", a.ID, err)
			}
			minimum, err := amount(a.MinimumBalance)
			if err != nil {
				return fmt.Errorf("account %s minimum: %w", a.ID, err)
			}
			s.AddAccount(userID, Account{
				Account: core.Account{ID: a.ID, Name: a.Name, Balance: bal, MinimumBalance: minimum},
				Active:  a.Active == nil || *a.Active,
			})
		}
		for _, l := range u.Loans {
			amt, err := amount(l.Amount)
			if err != nil {
				return fmt.Errorf("loan %s amount: %w", l.ID, err)
			}
			repaid, err := amount(l.AmountRepaid)
			if err != nil {
				return fmt.Errorf("loan %s repaid: %w", l.ID, err)
			}
			due, _ := optionalDate(l.DueDate)
			expected, _ := optionalDate(l.ExpectedReturnDate)
			s.AddLoan(userID, core.LoanRow{
				ID:                 l.ID,
				Amount:             amt,
				AmountRepaid:       repaid,
				PersonName:         l.PersonName,
				BorrowerName:       l.BorrowerName,
				Status:             l.Status,
				RepaymentStatus:    l.RepaymentStatus,
				DueDate:            due,
				ExpectedReturnDate: expected,
			})
		}
	}
	return nil
}

// amount parses a decimal string; blank means zero.
func amount(s string) (core.Money, error) {
	if strings.TrimSpace(s) == "" {
		return core.Money{}, nil
	}
	cents, err := core.ParseAmount(s)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

func optionalDate(s string) (core.Date, error) {
	if strings.TrimSpace(s) == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}
