package insights

import (
	"sort"
	"strings"
	"time"

	"finsight/internal/core"
)

// autopayCategories are the categories whose recurring debits are
// worth surfacing as payment nudges.
var autopayCategories = map[string]bool{
	"Housing":             true,
	"Utilities":           true,
	"Streaming":           true,
	"Internet":            true,
	"Telecom":             true,
	"DTH":                 true,
	"Insurance":           true,
	"Loan":                true,
	"Investment":          true,
	"Savings":             true,
	"Credit Card Payment": true,
}

// sipFundHouses maps fund-house narration tokens to nudge labels,
// checked in order.
var sipFundHouses = []struct{ token, label string }{
	{"KOTAKMF", "Kotak MF SIP"},
	{"ADITYABIRLAMF", "Aditya Birla MF SIP"},
	{"ICICIPRUMF", "ICICI Pru MF SIP"},
	{"HDFCMF", "HDFC MF SIP"},
}

var streamingServices = []struct{ token, label string }{
	{"NETFLIX", "Netflix"},
	{"SONYLIV", "Sonyliv"},
	{"HOTSTAR", "Hotstar"},
	{"SPOTIFY", "Spotify"},
	{"AMAZON PRIME", "Amazon Prime"},
	{"YOUTUBE", "Youtube"},
}

const merchantExcerptLen = 50

type nudgeKey struct {
	label  string
	amount int64
}

// Nudges detects recurring payment obligations among autopay-eligible
// debit transactions and estimates the next due date for each. The
// reference time is passed explicitly so callers control the clock.
//
// Groups are ranked by occurrence count, then amount, then label, and
// deduplicated so each broad obligation (one SIP, one card payment,
// one rent, ...) yields at most one nudge. Results are sorted by due
// date ascending. Empty input yields an empty list.
func Nudges(txns []core.Transaction, now time.Time) []core.Nudge {
	groups := make(map[nudgeKey][]core.Transaction)
	for _, txn := range txns {
		if txn.Direction != core.DebitTxn || !autopayCategories[txn.Category] {
			continue
		}
		groups[groupKey(txn)] = append(groups[groupKey(txn)], txn)
	}

	keys := make([]nudgeKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := len(groups[keys[i]]), len(groups[keys[j]])
		if ci != cj {
			return ci > cj
		}
		if keys[i].amount != keys[j].amount {
			return keys[i].amount > keys[j].amount
		}
		return keys[i].label < keys[j].label
	})

	var nudges []core.Nudge
	added := make(map[string]bool)
	for _, key := range keys {
		dk := dedupKey(key.label)
		if added[dk] {
			continue
		}
		added[dk] = true

		latest := groups[key][0]
		for _, txn := range groups[key][1:] {
			if txn.Date.After(latest.Date.Time) {
				latest = txn
			}
		}

		nudges = append(nudges, core.Nudge{
			Category:        key.label,
			Amount:          key.amount,
			Due:             nextDue(latest.Date, now),
			LastPaid:        latest.Date,
			Merchant:        excerpt(latest.Narration, merchantExcerptLen),
			AutopayEligible: true,
		})
	}

	sort.SliceStable(nudges, func(i, j int) bool {
		return nudges[i].Due.Before(nudges[j].Due.Time)
	})
	return nudges
}

// groupKey derives the (label, amount) grouping key for one
// transaction. Named obligations keep the exact whole-unit amount;
// the catch-all key floors the amount to the nearest 100 so small
// variations still cluster.
func groupKey(txn core.Transaction) nudgeKey {
	narration := strings.ToUpper(txn.Narration)
	whole := txn.Amount.IntPart()

	switch {
	case txn.Category == "Investment" && strings.Contains(narration, "SIP"):
		for _, fh := range sipFundHouses {
			if strings.Contains(narration, fh.token) {
				return nudgeKey{fh.label, whole}
			}
		}
		return nudgeKey{"SIP Investment", whole}
	case txn.Category == "Streaming":
		for _, svc := range streamingServices {
			if strings.Contains(narration, svc.token) {
				return nudgeKey{svc.label, whole}
			}
		}
		return nudgeKey{"Streaming Service", whole}
	case txn.Category == "Internet" && strings.Contains(narration, "ACT BROADBAND"):
		return nudgeKey{"ACT Broadband", whole}
	case txn.Category == "Loan" && strings.Contains(narration, "EMI"):
		return nudgeKey{"EMI Payment", whole}
	case txn.Category == "Savings" && strings.Contains(narration, "RD"):
		return nudgeKey{"RD Installment", whole}
	case txn.Category == "Housing" && strings.Contains(narration, "RENT"):
		return nudgeKey{"Rent", whole}
	case txn.Category == "Credit Card Payment":
		if strings.Contains(narration, "AMEX") {
			return nudgeKey{"AMEX Card Payment", whole}
		}
		return nudgeKey{"Credit Card Payment", whole}
	default:
		return nudgeKey{txn.Category, whole / 100 * 100}
	}
}

// dedupKey collapses related labels into one broad obligation key so
// only the strongest group per obligation survives.
func dedupKey(label string) string {
	switch {
	case strings.Contains(label, "SIP"):
		return "SIP"
	case strings.Contains(label, "Card Payment"):
		return "CreditCard"
	case strings.Contains(label, "Rent"):
		return "Rent"
	case strings.Contains(label, "EMI"):
		return "EMI"
	case strings.Contains(label, "RD"):
		return "RD"
	}
	if i := strings.IndexByte(label, ' '); i > 0 {
		return label[:i]
	}
	return label
}

// nextDue estimates the next payment date from the last paid date.
// Future-dated references (synthetic demo data) restart the monthly
// cycle from now. Past references past the 25-day mark are assumed
// imminent.
func nextDue(lastPaid core.Date, now time.Time) core.Date {
	if lastPaid.After(now) {
		return core.DateOf(now).AddDays(30)
	}
	daysSince := int(now.Sub(lastPaid.Time).Hours() / 24)
	if daysSince > 25 {
		return core.DateOf(now).AddDays(5)
	}
	return lastPaid.AddDays(30)
}

// FilterDismissed drops nudges whose category the session has
// dismissed. The dismissed set is keyed by lowercase category.
func FilterDismissed(nudges []core.Nudge, dismissed map[string]bool) []core.Nudge {
	if len(dismissed) == 0 {
		return nudges
	}
	out := make([]core.Nudge, 0, len(nudges))
	for _, n := range nudges {
		if dismissed[strings.ToLower(n.Category)] {
			continue
		}
		out = append(out, n)
	}
	return out
}

func excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
