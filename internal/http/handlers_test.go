package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finsight/internal/amqp"
	"finsight/internal/classify"
	"finsight/internal/core"
	"finsight/internal/normalize"
	"finsight/internal/provider"
	"finsight/internal/session"
	"finsight/internal/storage"
)

var testNow = time.Date(2024, 8, 15, 10, 30, 0, 0, time.UTC)

type fakeProvider struct {
	bank []byte
	mf   []byte
	err  error
}

func (f *fakeProvider) FetchAll(ctx context.Context, sessionID string) (provider.Snapshot, error) {
	if f.err != nil {
		return provider.Snapshot{}, f.err
	}
	return provider.Snapshot{Bank: f.bank, MutualFund: f.mf}, nil
}

func (f *fakeProvider) FetchBank(ctx context.Context, sessionID string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bank, nil
}

type fakeGoals struct {
	goals  map[string]core.Goal
	nextID int
}

func newFakeGoals() *fakeGoals {
	return &fakeGoals{goals: make(map[string]core.Goal)}
}

func (f *fakeGoals) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	f.nextID++
	g.ID = fmt.Sprintf("goal-%d", f.nextID)
	g.CreatedAt = testNow
	g.UpdatedAt = testNow
	g.IsActive = true
	f.goals[g.ID] = g
	return g, nil
}

func (f *fakeGoals) ListGoals(ctx context.Context, sessionID string) ([]core.Goal, error) {
	var out []core.Goal
	for _, g := range f.goals {
		if g.SessionID == sessionID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeGoals) GetGoal(ctx context.Context, sessionID, goalID string) (core.Goal, error) {
	g, ok := f.goals[goalID]
	if !ok || g.SessionID != sessionID {
		return core.Goal{}, core.ErrGoalNotFound
	}
	return g, nil
}

func (f *fakeGoals) UpdateGoal(ctx context.Context, sessionID, goalID string, u storage.GoalUpdate) (core.Goal, error) {
	g, err := f.GetGoal(ctx, sessionID, goalID)
	if err != nil {
		return core.Goal{}, err
	}
	if u.Name != nil {
		g.Name = *u.Name
	}
	if u.CurrentAmount != nil {
		g.CurrentAmount = *u.CurrentAmount
	}
	f.goals[goalID] = g
	return g, nil
}

func (f *fakeGoals) DeleteGoal(ctx context.Context, sessionID, goalID string) error {
	if _, err := f.GetGoal(ctx, sessionID, goalID); err != nil {
		return err
	}
	delete(f.goals, goalID)
	return nil
}

type fakePublisher struct {
	events []*amqp.OverlayEvent
}

func (f *fakePublisher) PublishOverlayEvent(ctx context.Context, event *amqp.OverlayEvent) error {
	f.events = append(f.events, event)
	return nil
}

// bankPayload builds the provider's tuple-shaped bank response.
func bankPayload(rows ...[]any) []byte {
	payload := map[string]any{
		"bankTransactions": []map[string]any{
			{"bank": "HDFC Bank", "txns": rows},
		},
	}
	data, _ := json.Marshal(payload)
	return data
}

func row(amount float64, narration, date string) []any {
	return []any{amount, narration, date, float64(2), "UPI", 1000.0}
}

type testEnv struct {
	server    *Server
	provider  *fakeProvider
	goals     *fakeGoals
	publisher *fakePublisher
	sessions  *session.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		provider:  &fakeProvider{},
		goals:     newFakeGoals(),
		publisher: &fakePublisher{},
		sessions:  session.NewStore(time.Minute, time.Minute),
	}
	env.server = NewServer("127.0.0.1:0", Deps{
		Provider:   env.provider,
		Normalizer: normalize.New(classify.Default()),
		Sessions:   env.sessions,
		Goals:      env.goals,
		Events:     env.publisher,
		Now:        func() time.Time { return testNow },
	})
	t.Cleanup(func() { env.server.rateLimiter.stop() })
	return env
}

func (env *testEnv) request(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: "sess-1"})
	rec := httptest.NewRecorder()
	env.server.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestMissingSessionCookie(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/nudges", nil)
	rec := httptest.NewRecorder()
	env.server.Server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["detail"] != "login required - no sessionid cookie" {
		t.Errorf("detail = %q", body["detail"])
	}
}

func TestListNudges(t *testing.T) {
	env := newTestEnv(t)
	env.provider.bank = bankPayload(
		row(499, "NETFLIX SUBSCRIPTION", "2024-05-15"),
		row(499, "NETFLIX SUBSCRIPTION", "2024-06-15"),
		row(499, "NETFLIX SUBSCRIPTION", "2024-07-10"),
	)

	rec := env.request(t, http.MethodGet, "/api/nudges", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	nudges := decodeBody[[]core.Nudge](t, rec)
	if len(nudges) != 1 {
		t.Fatalf("nudges = %d, want 1", len(nudges))
	}
	if nudges[0].Category != "Netflix" {
		t.Errorf("category = %q, want Netflix", nudges[0].Category)
	}
	if nudges[0].Amount != 499 {
		t.Errorf("amount = %d, want 499", nudges[0].Amount)
	}
	// Last paid 2024-07-10 is 36 days before the fixed clock, so the
	// due date is pulled in to now+5d.
	if got := nudges[0].Due.String(); got != "2024-08-20" {
		t.Errorf("due = %s, want 2024-08-20", got)
	}
}

func TestListNudgesCached(t *testing.T) {
	env := newTestEnv(t)
	env.provider.bank = bankPayload(
		row(499, "NETFLIX SUBSCRIPTION", "2024-06-15"),
		row(499, "NETFLIX SUBSCRIPTION", "2024-07-10"),
	)

	first := env.request(t, http.MethodGet, "/api/nudges", nil)
	if first.Header().Get("X-Cache") != "" {
		t.Fatalf("first response should not be a cache hit")
	}
	second := env.request(t, http.MethodGet, "/api/nudges", nil)
	if second.Header().Get("X-Cache") != "hit" {
		t.Errorf("second response should be served from cache")
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Errorf("cached body differs from original")
	}
}

func TestDismissNudge(t *testing.T) {
	env := newTestEnv(t)
	env.provider.bank = bankPayload(
		row(499, "NETFLIX SUBSCRIPTION", "2024-06-15"),
		row(499, "NETFLIX SUBSCRIPTION", "2024-07-10"),
	)

	rec := env.request(t, http.MethodDelete, "/api/nudges/netflix", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[dismissNudgeResponse](t, rec)
	if !resp.Success {
		t.Errorf("success = false")
	}
	if resp.DeletedNudge.Category != "Netflix" {
		t.Errorf("deleted category = %q", resp.DeletedNudge.Category)
	}
	if !strings.HasPrefix(resp.CreatedTransaction.Narration, "Payment: Netflix") {
		t.Errorf("created narration = %q", resp.CreatedTransaction.Narration)
	}
	if resp.CreatedTransaction.Direction != core.DebitTxn {
		t.Errorf("created direction = %q", resp.CreatedTransaction.Direction)
	}

	// The dismissal hides the category on the next listing.
	list := env.request(t, http.MethodGet, "/api/nudges", nil)
	nudges := decodeBody[[]core.Nudge](t, list)
	for _, n := range nudges {
		if n.Category == "Netflix" {
			t.Errorf("dismissed nudge still listed")
		}
	}

	// The overlay journal saw both the dismissal and the payment.
	if len(env.publisher.events) != 2 {
		t.Fatalf("published events = %d, want 2", len(env.publisher.events))
	}
	if env.publisher.events[0].Kind != amqp.KindNudgeDismissed {
		t.Errorf("first event kind = %q", env.publisher.events[0].Kind)
	}
	if env.publisher.events[1].Kind != amqp.KindManualTransaction {
		t.Errorf("second event kind = %q", env.publisher.events[1].Kind)
	}
}

func TestDismissNudgeUnknownCategory(t *testing.T) {
	env := newTestEnv(t)
	env.provider.bank = bankPayload()

	rec := env.request(t, http.MethodDelete, "/api/nudges/nonexistent", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAddTransaction(t *testing.T) {
	env := newTestEnv(t)
	env.provider.bank = bankPayload()

	rec := env.request(t, http.MethodPost, "/api/transactions", map[string]any{
		"amount":    250.50,
		"narration": "GROCERIES AT BIGBASKET",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[addTransactionResponse](t, rec)
	if !resp.Success {
		t.Errorf("success = false")
	}
	if resp.Transaction.Category != "Groceries" {
		t.Errorf("auto category = %q, want Groceries", resp.Transaction.Category)
	}
	if resp.Transaction.Direction != core.DebitTxn {
		t.Errorf("direction = %q, want DEBIT", resp.Transaction.Direction)
	}
	if got := resp.Transaction.Date.String(); got != "2024-08-15" {
		t.Errorf("defaulted date = %s, want 2024-08-15", got)
	}

	// The manual entry shows up in the unified list.
	list := env.request(t, http.MethodGet, "/api/transactions", nil)
	txns := decodeBody[[]core.Transaction](t, list)
	if len(txns) != 1 {
		t.Fatalf("transactions = %d, want 1", len(txns))
	}
	if txns[0].Source != core.SourceManual {
		t.Errorf("source = %q, want manual", txns[0].Source)
	}
}

func TestAddTransactionRejectsNonPositiveAmount(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/transactions", map[string]any{
		"amount":    0,
		"narration": "SOMETHING",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAddTransactionIncome(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/transactions", map[string]any{
		"amount":    90000,
		"narration": "SALARY CREDIT AUGUST",
		"type":      "income",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[addTransactionResponse](t, rec)
	if resp.Transaction.Direction != core.CreditTxn {
		t.Errorf("direction = %q, want CREDIT", resp.Transaction.Direction)
	}
}

func TestTransactionSummary(t *testing.T) {
	env := newTestEnv(t)
	env.provider.bank = bankPayload(
		row(1200, "AMAZON PURCHASE", "2024-07-05"),
		[]any{90000.0, "SALARY CREDIT", "2024-07-01", float64(1), "NEFT", 95000.0},
	)

	rec := env.request(t, http.MethodGet, "/api/transactions/summary?from_date=2024-07-01&to_date=2024-07-31", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[map[string]any](t, rec)
	if resp["currency"] != "INR" {
		t.Errorf("currency = %v, want INR", resp["currency"])
	}
	if resp["total_expenses"] != "1200" {
		t.Errorf("total_expenses = %v", resp["total_expenses"])
	}
	if resp["total_income"] != "90000" {
		t.Errorf("total_income = %v", resp["total_income"])
	}
	if resp["transaction_count"] != float64(2) {
		t.Errorf("transaction_count = %v", resp["transaction_count"])
	}
	if resp["latest_transaction_date"] != "2024-07-05" {
		t.Errorf("latest_transaction_date = %v", resp["latest_transaction_date"])
	}
}

func TestSummaryRequiresDateRange(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/transactions/summary", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDailySpend(t *testing.T) {
	env := newTestEnv(t)
	env.provider.bank = bankPayload(
		row(100, "SWIGGY ORDER", "2024-07-01"),
		row(200, "SWIGGY ORDER", "2024-07-01"),
		row(50, "UBER RIDE", "2024-07-03"),
	)

	rec := env.request(t, http.MethodGet, "/api/spend_daily?from_date=2024-07-01&to_date=2024-07-03", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	days := decodeBody[[]core.DailySpend](t, rec)
	if len(days) != 3 {
		t.Fatalf("days = %d, want 3", len(days))
	}
	if !days[0].Amount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("day 1 amount = %s, want 300", days[0].Amount)
	}
	if !days[1].Amount.Equal(decimal.Zero) {
		t.Errorf("day 2 amount = %s, want 0", days[1].Amount)
	}
}

func TestSpendByCategory(t *testing.T) {
	env := newTestEnv(t)
	env.provider.bank = bankPayload(
		row(750, "GROCERIES AT BIGBASKET", "2024-07-02"),
		row(250, "DINING OUT BISTRO", "2024-07-03"),
	)

	rec := env.request(t, http.MethodGet, "/api/spend_by_category?from_date=2024-07-01&to_date=2024-07-31", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	breakdown := decodeBody[core.CategoryBreakdown](t, rec)
	if !breakdown.Total.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("total = %s, want 1000", breakdown.Total)
	}
	if len(breakdown.Breakdown) != 2 {
		t.Fatalf("categories = %d, want 2", len(breakdown.Breakdown))
	}
	if breakdown.Breakdown[0].Category != "Groceries" {
		t.Errorf("top category = %q, want Groceries", breakdown.Breakdown[0].Category)
	}
	if !breakdown.Breakdown[0].Percentage.Equal(decimal.NewFromInt(75)) {
		t.Errorf("top percentage = %s, want 75", breakdown.Breakdown[0].Percentage)
	}
}

func TestWhatIfMFReturn(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/whatif", map[string]any{
		"scenario": "mf_return",
		"amount":   10000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[map[string]any](t, rec)
	if resp["projected_value"] != "11268.25" {
		t.Errorf("projected_value = %v, want 11268.25", resp["projected_value"])
	}
	if resp["horizon_months"] != float64(12) {
		t.Errorf("horizon_months = %v, want 12 by default", resp["horizon_months"])
	}
}

func TestWhatIfSpendReductionDerivesAverage(t *testing.T) {
	env := newTestEnv(t)
	// Two months of recent debits: 30000 and 20000, average 25000.
	env.provider.bank = bankPayload(
		row(30000, "RENT PAYMENT", "2024-07-01"),
		row(20000, "RENT PAYMENT", "2024-08-01"),
	)

	rec := env.request(t, http.MethodPost, "/api/whatif", map[string]any{
		"scenario": "spend_reduction",
		"percent":  20,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[map[string]any](t, rec)
	if resp["current_monthly_spend"] != "25000" {
		t.Errorf("current_monthly_spend = %v, want 25000", resp["current_monthly_spend"])
	}
	if resp["monthly_savings"] != "5000" {
		t.Errorf("monthly_savings = %v, want 5000", resp["monthly_savings"])
	}
}

func TestWhatIfUnknownScenario(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/whatif", map[string]any{
		"scenario": "lottery",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGoalLifecycle(t *testing.T) {
	env := newTestEnv(t)

	created := env.request(t, http.MethodPost, "/api/goals", map[string]any{
		"name":           "Emergency Fund",
		"target_amount":  100000,
		"current_amount": 25000,
		"target_date":    "2025-08-15",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", created.Code, created.Body.String())
	}
	goal := decodeBody[core.Goal](t, created)
	if goal.ID == "" {
		t.Fatalf("created goal has no ID")
	}

	got := env.request(t, http.MethodGet, "/api/goals/"+goal.ID, nil)
	if got.Code != http.StatusOK {
		t.Fatalf("get status = %d", got.Code)
	}

	updated := env.request(t, http.MethodPut, "/api/goals/"+goal.ID, map[string]any{
		"current_amount": 50000,
	})
	if updated.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", updated.Code, updated.Body.String())
	}
	after := decodeBody[core.Goal](t, updated)
	if !after.CurrentAmount.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("current_amount = %s, want 50000", after.CurrentAmount)
	}

	progress := env.request(t, http.MethodGet, "/api/goals/"+goal.ID+"/progress", nil)
	if progress.Code != http.StatusOK {
		t.Fatalf("progress status = %d", progress.Code)
	}
	p := decodeBody[core.GoalProgress](t, progress)
	if !p.ProgressPercentage.Equal(decimal.NewFromInt(50)) {
		t.Errorf("progress = %s, want 50", p.ProgressPercentage)
	}

	deleted := env.request(t, http.MethodDelete, "/api/goals/"+goal.ID, nil)
	if deleted.Code != http.StatusOK {
		t.Fatalf("delete status = %d", deleted.Code)
	}
	missing := env.request(t, http.MethodGet, "/api/goals/"+goal.ID, nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", missing.Code)
	}
}

func TestCreateGoalRejectsInvalid(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/goals", map[string]any{
		"name":          "",
		"target_amount": 1000,
		"target_date":   "2025-01-01",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestProviderUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	env.provider.err = provider.ErrUnauthorized

	rec := env.request(t, http.MethodGet, "/api/nudges", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if !strings.Contains(body["detail"], "please login again") {
		t.Errorf("detail = %q", body["detail"])
	}
}
