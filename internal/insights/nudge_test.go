package insights

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
)

var nudgeNow = time.Date(2024, 8, 15, 10, 30, 0, 0, time.UTC)

func recurring(amount, narration, date, category string) core.Transaction {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return core.Transaction{
		Amount:    decimal.RequireFromString(amount),
		Narration: narration,
		Date:      d,
		Direction: core.DebitTxn,
		Category:  category,
	}
}

func TestNudgesDetectsRecurringPayments(t *testing.T) {
	txns := []core.Transaction{
		recurring("499", "NETFLIX SUBSCRIPTION AUTOPAY", "2024-06-05", "Streaming"),
		recurring("499", "NETFLIX SUBSCRIPTION AUTOPAY", "2024-07-05", "Streaming"),
		recurring("25000", "RENT PAYMENT TO LANDLORD", "2024-08-01", "Housing"),
	}

	nudges := Nudges(txns, nudgeNow)
	if len(nudges) != 2 {
		t.Fatalf("expected 2 nudges, got %d", len(nudges))
	}

	netflix := nudges[0]
	if netflix.Category != "Netflix" {
		t.Fatalf("unexpected first nudge: %+v", netflix)
	}
	if netflix.Amount != 499 {
		t.Fatalf("amount: got %d, want 499", netflix.Amount)
	}
	if netflix.LastPaid.String() != "2024-07-05" {
		t.Fatalf("last paid: got %s", netflix.LastPaid)
	}
	// 41 days since last payment -> imminent, due in 5 days.
	if netflix.Due.String() != "2024-08-20" {
		t.Fatalf("due: got %s, want 2024-08-20", netflix.Due)
	}
	if !netflix.AutopayEligible {
		t.Fatalf("nudges are autopay eligible")
	}

	rent := nudges[1]
	if rent.Category != "Rent" {
		t.Fatalf("unexpected second nudge: %+v", rent)
	}
	// 14 days since last payment -> next cycle from last paid.
	if rent.Due.String() != "2024-08-31" {
		t.Fatalf("rent due: got %s, want 2024-08-31", rent.Due)
	}
}

func TestNudgesDedupsRelatedGroups(t *testing.T) {
	txns := []core.Transaction{
		recurring("5000", "SIP KOTAKMF GROWTH", "2024-06-01", "Investment"),
		recurring("5000", "SIP KOTAKMF GROWTH", "2024-07-01", "Investment"),
		recurring("3000", "SIP HDFCMF FLEXI", "2024-07-01", "Investment"),
		recurring("42000", "AMEX CARD_PAYMENT", "2024-07-10", "Credit Card Payment"),
		recurring("15000", "HDFC CREDIT CARD BILL CARD_PAYMENT", "2024-07-12", "Credit Card Payment"),
	}

	nudges := Nudges(txns, nudgeNow)
	if len(nudges) != 2 {
		t.Fatalf("expected one SIP and one card nudge, got %d: %+v", len(nudges), nudges)
	}

	var labels []string
	for _, n := range nudges {
		labels = append(labels, n.Category)
	}
	// The more frequent SIP wins; the larger card payment wins.
	assertContains(t, labels, "Kotak MF SIP")
	assertContains(t, labels, "AMEX Card Payment")
}

func TestNudgesFutureDatedReference(t *testing.T) {
	txns := []core.Transaction{
		recurring("1000", "ACT BROADBAND MONTHLY", "2024-09-01", "Internet"),
	}

	nudges := Nudges(txns, nudgeNow)
	if len(nudges) != 1 {
		t.Fatalf("expected 1 nudge, got %d", len(nudges))
	}
	// Future-dated data restarts the cycle from now.
	if nudges[0].Due.String() != "2024-09-14" {
		t.Fatalf("due: got %s, want 2024-09-14", nudges[0].Due)
	}
}

func TestNudgesIgnoresNonRecurringShapes(t *testing.T) {
	credit := recurring("85000", "SALARY JULY", "2024-07-01", "Housing")
	credit.Direction = core.CreditTxn

	txns := []core.Transaction{
		credit,
		recurring("750", "SWIGGY PAYMENT", "2024-07-03", "Shopping"),
	}
	if got := Nudges(txns, nudgeNow); len(got) != 0 {
		t.Fatalf("expected no nudges, got %+v", got)
	}
	if got := Nudges(nil, nudgeNow); len(got) != 0 {
		t.Fatalf("nil input: expected no nudges, got %+v", got)
	}
}

func TestNudgesCatchAllBucketsByHundred(t *testing.T) {
	txns := []core.Transaction{
		recurring("1250.75", "AIRTEL POSTPAID", "2024-06-10", "Telecom"),
		recurring("1280", "AIRTEL POSTPAID", "2024-07-10", "Telecom"),
	}

	nudges := Nudges(txns, nudgeNow)
	if len(nudges) != 1 {
		t.Fatalf("amounts within the same 100-bucket must group, got %d nudges", len(nudges))
	}
	if nudges[0].Category != "Telecom" || nudges[0].Amount != 1200 {
		t.Fatalf("unexpected catch-all nudge: %+v", nudges[0])
	}
}

func TestNudgesMerchantExcerpt(t *testing.T) {
	long := "NETFLIX SUBSCRIPTION WITH A VERY LONG NARRATION FIELD THAT KEEPS GOING AND GOING"
	txns := []core.Transaction{recurring("499", long, "2024-07-05", "Streaming")}

	nudges := Nudges(txns, nudgeNow)
	if len(nudges) != 1 {
		t.Fatalf("expected 1 nudge, got %d", len(nudges))
	}
	if len(nudges[0].Merchant) != merchantExcerptLen {
		t.Fatalf("merchant excerpt length: got %d, want %d", len(nudges[0].Merchant), merchantExcerptLen)
	}
}

func TestFilterDismissed(t *testing.T) {
	nudges := []core.Nudge{
		{Category: "Netflix"},
		{Category: "Rent"},
	}

	got := FilterDismissed(nudges, map[string]bool{"netflix": true})
	if len(got) != 1 || got[0].Category != "Rent" {
		t.Fatalf("unexpected filter result: %+v", got)
	}

	if got := FilterDismissed(nudges, nil); len(got) != 2 {
		t.Fatalf("empty dismissed set must pass everything through")
	}
}

func assertContains(t *testing.T, haystack []string, want string) {
	t.Helper()
	for _, s := range haystack {
		if s == want {
			return
		}
	}
	t.Fatalf("missing %q in %v", want, haystack)
}
