package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finsight/internal/amqp"
	"finsight/internal/core"
	"finsight/internal/insights"
	applog "finsight/internal/log"
	"finsight/internal/storage"
)

// handleListNudges returns upcoming payment nudges, minus the ones the
// session has dismissed.
func (s *Server) handleListNudges(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	key := cacheKey(r)
	if s.cachedJSON(w, sessionID, key) {
		return
	}

	txns, err := s.bankTransactions(r.Context(), sessionID)
	if s.handleProviderError(w, err) {
		return
	}

	nudges := insights.Nudges(txns, s.now())
	nudges = insights.FilterDismissed(nudges, s.sessions.DismissedCategories(sessionID))
	if nudges == nil {
		nudges = []core.Nudge{}
	}
	s.writeAndCacheJSON(w, sessionID, key, nudges)
}

type dismissNudgeResponse struct {
	Success            bool             `json:"success"`
	Message            string           `json:"message"`
	DeletedNudge       core.Nudge       `json:"deleted_nudge"`
	CreatedTransaction core.Transaction `json:"created_transaction"`
}

// handleDismissNudge marks a nudge category as handled: the category
// is hidden for the session and a payment transaction is recorded in
// the overlay so spend views reflect it.
func (s *Server) handleDismissNudge(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	category := r.PathValue("category")

	txns, err := s.bankTransactions(r.Context(), sessionID)
	if s.handleProviderError(w, err) {
		return
	}

	var match *core.Nudge
	for _, nudge := range insights.Nudges(txns, s.now()) {
		if strings.EqualFold(nudge.Category, category) {
			match = &nudge
			break
		}
	}
	if match == nil {
		writeError(w, http.StatusNotFound, "no nudge found for category '"+category+"'")
		return
	}

	s.sessions.DismissCategory(sessionID, match.Category)

	payment := core.Transaction{
		ID:        uuid.NewString(),
		Amount:    decimal.NewFromInt(match.Amount),
		Narration: "Payment: " + match.Category + " - " + match.Merchant,
		Date:      core.DateOf(s.now()),
		Direction: core.DebitTxn,
		Category:  match.Category,
		Source:    core.SourceManual,
	}
	s.sessions.AddManualTransaction(sessionID, payment)
	s.sessions.InvalidateResponses(sessionID)

	s.publishOverlayEvent(r, sessionID, func() (*amqp.OverlayEvent, error) {
		return amqp.NewNudgeDismissedEvent(sessionID, match.Category)
	})
	s.publishOverlayEvent(r, sessionID, func() (*amqp.OverlayEvent, error) {
		return amqp.NewManualTransactionEvent(sessionID, payment)
	})

	writeJSON(w, http.StatusOK, dismissNudgeResponse{
		Success:            true,
		Message:            "Payment for '" + match.Category + "' has been processed and nudge removed",
		DeletedNudge:       *match,
		CreatedTransaction: payment,
	})
}

// handleListTransactions returns the unified transaction list: all
// provider sources plus the session's manual entries, newest first.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	key := cacheKey(r)
	if s.cachedJSON(w, sessionID, key) {
		return
	}

	txns, err := s.allTransactions(r.Context(), sessionID)
	if s.handleProviderError(w, err) {
		return
	}
	if txns == nil {
		txns = []core.Transaction{}
	}
	s.writeAndCacheJSON(w, sessionID, key, txns)
}

type addTransactionRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Narration string          `json:"narration"`
	Date      core.Date       `json:"date"`
	Type      string          `json:"type"` // "expense" or "income"
	Category  string          `json:"category"`
}

type addTransactionResponse struct {
	Success     bool             `json:"success"`
	Transaction core.Transaction `json:"transaction"`
	Message     string           `json:"message"`
}

// handleAddTransaction records a manual transaction in the session
// overlay.
func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	var req addTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	direction := core.DebitTxn
	if req.Type == "income" {
		direction = core.CreditTxn
	}
	if req.Category == "" {
		req.Category = s.normalizer.Categorize(req.Narration, "")
	}
	if req.Date.IsZero() {
		req.Date = core.DateOf(s.now())
	}

	txn := core.Transaction{
		ID:        uuid.NewString(),
		Amount:    req.Amount,
		Narration: strings.TrimSpace(req.Narration),
		Date:      req.Date,
		Direction: direction,
		Category:  req.Category,
		Source:    core.SourceManual,
	}
	if err := txn.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.sessions.AddManualTransaction(sessionID, txn)
	s.sessions.InvalidateResponses(sessionID)
	s.publishOverlayEvent(r, sessionID, func() (*amqp.OverlayEvent, error) {
		return amqp.NewManualTransactionEvent(sessionID, txn)
	})

	writeJSON(w, http.StatusCreated, addTransactionResponse{
		Success:     true,
		Transaction: txn,
		Message:     "Transaction recorded successfully",
	})
}

type summaryResponse struct {
	core.Summary
	Currency    string    `json:"currency"`
	LastUpdated time.Time `json:"last_updated"`
}

// handleTransactionSummary returns the income/expense overview for a
// date range.
func (s *Server) handleTransactionSummary(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	from, to, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := cacheKey(r)
	if s.cachedJSON(w, sessionID, key) {
		return
	}

	txns, err := s.allTransactions(r.Context(), sessionID)
	if s.handleProviderError(w, err) {
		return
	}

	summary := insights.Summarize(txns, from, to, core.DateOf(s.now()))
	s.writeAndCacheJSON(w, sessionID, key, summaryResponse{
		Summary:     summary,
		Currency:    "INR",
		LastUpdated: s.now().UTC(),
	})
}

func (s *Server) handleDailySpend(w http.ResponseWriter, r *http.Request) {
	s.handleSpendView(w, r, func(txns []core.Transaction, from, to core.Date) any {
		return insights.DailySpend(txns, from, to)
	})
}

func (s *Server) handleMonthlySpend(w http.ResponseWriter, r *http.Request) {
	s.handleSpendView(w, r, func(txns []core.Transaction, from, to core.Date) any {
		spend := insights.MonthlySpend(txns, from, to)
		if spend == nil {
			spend = []core.MonthlySpend{}
		}
		return spend
	})
}

func (s *Server) handleSpendByCategory(w http.ResponseWriter, r *http.Request) {
	s.handleSpendView(w, r, func(txns []core.Transaction, from, to core.Date) any {
		breakdown := insights.CategoryBreakdown(txns, from, to)
		if breakdown.Breakdown == nil {
			breakdown.Breakdown = []core.CategorySpend{}
		}
		return breakdown
	})
}

// handleSpendView is the shared shape of the three spend aggregates:
// session, date range, bank + overlay transactions, compute, cache.
func (s *Server) handleSpendView(w http.ResponseWriter, r *http.Request, compute func([]core.Transaction, core.Date, core.Date) any) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	from, to, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := cacheKey(r)
	if s.cachedJSON(w, sessionID, key) {
		return
	}

	txns, err := s.bankTransactions(r.Context(), sessionID)
	if s.handleProviderError(w, err) {
		return
	}
	s.writeAndCacheJSON(w, sessionID, key, compute(txns, from, to))
}

type whatIfRequest struct {
	Scenario        string          `json:"scenario"`
	Amount          decimal.Decimal `json:"amount"`
	HorizonMonths   int             `json:"horizon_months"`
	AnnualRate      decimal.Decimal `json:"annual_rate"`
	Percent         decimal.Decimal `json:"percent"`
	AvgMonthlySpend decimal.Decimal `json:"avg_monthly_spend"`
}

// handleWhatIf runs a financial simulation. When spend_reduction is
// requested without an explicit average monthly spend, it is derived
// from the caller's last 90 days of debits.
func (s *Server) handleWhatIf(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	var req whatIfRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.HorizonMonths == 0 {
		req.HorizonMonths = 12
	}
	if req.AnnualRate.Sign() == 0 {
		req.AnnualRate = decimal.NewFromFloat(0.12)
	}
	if req.Percent.Sign() == 0 {
		req.Percent = decimal.NewFromInt(10)
	}

	if req.Scenario == insights.ScenarioSpendReduction && req.AvgMonthlySpend.Sign() == 0 {
		req.AvgMonthlySpend = s.averageMonthlySpend(r, sessionID)
	}

	result, err := insights.Simulate(req.Scenario, insights.WhatIfParams{
		Amount:          req.Amount,
		HorizonMonths:   req.HorizonMonths,
		AnnualRate:      req.AnnualRate,
		Percent:         req.Percent,
		AvgMonthlySpend: req.AvgMonthlySpend,
	})
	if errors.Is(err, insights.ErrUnknownScenario) {
		writeError(w, http.StatusBadRequest, "unknown scenario '"+req.Scenario+"'")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// defaultMonthlySpend is assumed when the caller has no recent debits
// to derive an average from.
var defaultMonthlySpend = decimal.NewFromInt(50000)

func (s *Server) averageMonthlySpend(r *http.Request, sessionID string) decimal.Decimal {
	txns, err := s.bankTransactions(r.Context(), sessionID)
	if err != nil {
		return defaultMonthlySpend
	}

	to := core.DateOf(s.now())
	from := to.AddDays(-90)
	months := insights.MonthlySpend(txns, from, to)
	if len(months) == 0 {
		return defaultMonthlySpend
	}

	total := decimal.Zero
	for _, m := range months {
		total = total.Add(m.Amount)
	}
	return total.Div(decimal.NewFromInt(int64(len(months))))
}

type createGoalRequest struct {
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	TargetDate    core.Date       `json:"target_date"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	var req createGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	goal := core.Goal{
		SessionID:     sessionID,
		Name:          strings.TrimSpace(req.Name),
		TargetAmount:  req.TargetAmount,
		CurrentAmount: req.CurrentAmount,
		TargetDate:    req.TargetDate,
		Category:      req.Category,
		Description:   req.Description,
	}
	if err := goal.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.goals.CreateGoal(r.Context(), goal)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Goal create failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to create goal")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	goals, err := s.goals.ListGoals(r.Context(), sessionID)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Goal list failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to list goals")
		return
	}
	if goals == nil {
		goals = []core.Goal{}
	}
	writeJSON(w, http.StatusOK, goals)
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	goal, err := s.goals.GetGoal(r.Context(), sessionID, r.PathValue("id"))
	if s.handleGoalError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

type updateGoalRequest struct {
	Name          *string          `json:"name"`
	TargetAmount  *decimal.Decimal `json:"target_amount"`
	CurrentAmount *decimal.Decimal `json:"current_amount"`
	TargetDate    *core.Date       `json:"target_date"`
	Category      *string          `json:"category"`
	Description   *string          `json:"description"`
	IsActive      *bool            `json:"is_active"`
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	var req updateGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	updated, err := s.goals.UpdateGoal(r.Context(), sessionID, r.PathValue("id"), storage.GoalUpdate{
		Name:          req.Name,
		TargetAmount:  req.TargetAmount,
		CurrentAmount: req.CurrentAmount,
		TargetDate:    req.TargetDate,
		Category:      req.Category,
		Description:   req.Description,
		IsActive:      req.IsActive,
	})
	if s.handleGoalError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	goalID := r.PathValue("id")
	if err := s.goals.DeleteGoal(r.Context(), sessionID, goalID); s.handleGoalError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Goal deleted",
	})
}

func (s *Server) handleGoalProgress(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	goal, err := s.goals.GetGoal(r.Context(), sessionID, r.PathValue("id"))
	if s.handleGoalError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusOK, insights.GoalProgress(goal, s.now()))
}

// handleGoalError maps goal store failures onto responses. Returns
// true when the error was handled.
func (s *Server) handleGoalError(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, core.ErrGoalNotFound) {
		writeError(w, http.StatusNotFound, "goal not found")
		return true
	}
	s.logger.ErrorContext(r.Context(), "Goal store error", applog.FieldError, err)
	writeError(w, http.StatusInternalServerError, "goal store error")
	return true
}

// publishOverlayEvent best-effort publishes to the journal queue; the
// overlay write has already happened, so failures only lose the audit
// trail.
func (s *Server) publishOverlayEvent(r *http.Request, sessionID string, build func() (*amqp.OverlayEvent, error)) {
	if s.events == nil {
		return
	}
	event, err := build()
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Overlay event build failed",
			applog.FieldSessionID, sessionID,
			applog.FieldError, err)
		return
	}
	if err := s.events.PublishOverlayEvent(r.Context(), event); err != nil {
		s.logger.ErrorContext(r.Context(), "Overlay event publish failed",
			applog.FieldSessionID, sessionID,
			applog.FieldError, err)
	}
}
