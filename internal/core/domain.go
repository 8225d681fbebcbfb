package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	CreditTxn Direction = "CREDIT"
	DebitTxn  Direction = "DEBIT"
)

const (
	SourceBank       Source = "bank"
	SourceMutualFund Source = "mutual_fund"
	SourceStock      Source = "stock"
	SourceManual     Source = "manual"
)

// CategoryOthers is the fallback category for unmatched transactions.
const CategoryOthers = "Others"

type (
	Direction string

	Source string

	// Transaction is the canonical shape every provider record is
	// normalized into. Amount is always an unsigned magnitude; the sign
	// is carried by Direction.
	Transaction struct {
		ID        string          `json:"id,omitempty"`
		Amount    decimal.Decimal `json:"amount"`
		Narration string          `json:"narration"`
		Date      Date            `json:"date"`
		Direction Direction       `json:"txn_type"`
		Mode      string          `json:"mode,omitempty"`
		Balance   decimal.Decimal `json:"balance"`
		Category  string          `json:"category"`
		Source    Source          `json:"source,omitempty"`
		Bank      string          `json:"bank,omitempty"`
	}

	// Nudge is a detected recurring payment obligation surfaced as a
	// due-date reminder. Never persisted; recomputed per request.
	Nudge struct {
		Category        string `json:"category"`
		Amount          int64  `json:"amount"`
		Due             Date   `json:"due"`
		LastPaid        Date   `json:"last_paid"`
		Merchant        string `json:"merchant"`
		AutopayEligible bool   `json:"autopay_eligible"`
	}

	// Goal is a savings target owned by exactly one session.
	Goal struct {
		ID            string          `json:"id"`
		SessionID     string          `json:"user_id"`
		Name          string          `json:"name"`
		TargetAmount  decimal.Decimal `json:"target_amount"`
		CurrentAmount decimal.Decimal `json:"current_amount"`
		TargetDate    Date            `json:"target_date"`
		Category      string          `json:"category,omitempty"`
		Description   string          `json:"description,omitempty"`
		CreatedAt     time.Time       `json:"created_at"`
		UpdatedAt     time.Time       `json:"updated_at"`
		IsActive      bool            `json:"is_active"`
	}

	// GoalProgress is derived from a Goal snapshot; deriving it never
	// mutates or persists the goal.
	GoalProgress struct {
		GoalID             string          `json:"goal_id"`
		Name               string          `json:"name"`
		TargetAmount       decimal.Decimal `json:"target_amount"`
		CurrentAmount      decimal.Decimal `json:"current_amount"`
		TargetDate         Date            `json:"target_date"`
		ProgressPercentage decimal.Decimal `json:"progress_percentage"`
		MonthlyRequired    decimal.Decimal `json:"monthly_required"`
		DaysRemaining      int             `json:"days_remaining"`
		OnTrack            bool            `json:"on_track"`
	}

	DailySpend struct {
		Date   Date            `json:"date"`
		Amount decimal.Decimal `json:"amount"`
	}

	MonthlySpend struct {
		Month  string          `json:"month"`
		Amount decimal.Decimal `json:"amount"`
	}

	CategorySpend struct {
		Category   string          `json:"category"`
		Amount     decimal.Decimal `json:"amount"`
		Percentage decimal.Decimal `json:"percentage"`
	}

	CategoryBreakdown struct {
		Total     decimal.Decimal `json:"total"`
		Breakdown []CategorySpend `json:"breakdown"`
	}

	// Summary is the income/expense overview for a date range.
	Summary struct {
		TotalExpenses    decimal.Decimal `json:"total_expenses"`
		TotalIncome      decimal.Decimal `json:"total_income"`
		Balance          decimal.Decimal `json:"balance"`
		From             Date            `json:"from_date"`
		To               Date            `json:"to_date"`
		TransactionCount int             `json:"transaction_count"`
		LatestDate       Date            `json:"latest_transaction_date"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidDirection = errors.New("invalid transaction direction")
	ErrEmptyNarration   = errors.New("empty narration")
	ErrEmptyName        = errors.New("empty name")
	ErrGoalNotFound     = errors.New("goal not found")
)

func (d Direction) Valid() bool {
	return d == CreditTxn || d == DebitTxn
}

func (t Transaction) Validate() error {
	if t.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if len(strings.TrimSpace(t.Narration)) == 0 {
		return ErrEmptyNarration
	}
	if len(t.Narration) > 200 {
		return errors.New("narration too long (max 200 characters)")
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if !t.Direction.Valid() {
		return ErrInvalidDirection
	}
	return nil
}

func (g Goal) Validate() error {
	if len(strings.TrimSpace(g.Name)) == 0 {
		return ErrEmptyName
	}
	if len(g.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if g.TargetAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if g.CurrentAmount.Sign() < 0 {
		return errors.New("current amount cannot be negative")
	}
	if g.TargetDate.IsZero() {
		return ErrInvalidDate
	}
	return nil
}
