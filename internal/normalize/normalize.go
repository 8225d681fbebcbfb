// Package normalize converts provider-shaped transaction payloads into
// the canonical Transaction shape.
//
// The provider groups bank transactions per account, each holding
// ordered row tuples [amount, narration, date, directionCode, mode,
// balance]. Malformed rows — wrong arity, unparsable amount or date,
// unknown direction code — are skipped silently: the normalizer never
// fails on bad input, it degrades to a partial or empty list.
package normalize

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"

	"finsight/internal/classify"
	"finsight/internal/core"
)

const bankTupleFields = 6

// BankPayload mirrors the provider's bank transaction response.
type BankPayload struct {
	BankTransactions []BankGroup `json:"bankTransactions"`
}

// BankGroup is one account's transaction rows.
type BankGroup struct {
	Bank string  `json:"bank"`
	Txns [][]any `json:"txns"`
}

// Normalizer converts raw provider payloads into canonical
// transactions, categorizing each one at normalization time.
type Normalizer struct {
	classifier *classify.Classifier
}

func New(classifier *classify.Classifier) *Normalizer {
	return &Normalizer{classifier: classifier}
}

// Categorize classifies a narration the same way normalized rows are
// categorized, for callers creating transactions by hand.
func (n *Normalizer) Categorize(narration, mode string) string {
	return n.classifier.Classify(narration, mode)
}

// ParseBank decodes a raw bank payload and flattens it into canonical
// transactions. Undecodable or error-shaped payloads yield an empty
// list.
func (n *Normalizer) ParseBank(data []byte) []core.Transaction {
	var payload BankPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}

	var txns []core.Transaction
	for _, group := range payload.BankTransactions {
		bank := group.Bank
		if bank == "" {
			bank = "Unknown Bank"
		}
		for _, row := range group.Txns {
			txn, ok := n.parseBankRow(row)
			if !ok {
				continue
			}
			txn.Bank = bank
			txns = append(txns, txn)
		}
	}
	return txns
}

func (n *Normalizer) parseBankRow(row []any) (core.Transaction, bool) {
	if len(row) < bankTupleFields {
		return core.Transaction{}, false
	}

	amount, err := core.ParseAmount(row[0])
	if err != nil {
		return core.Transaction{}, false
	}
	narration, ok := row[1].(string)
	if !ok {
		return core.Transaction{}, false
	}
	dateStr, ok := row[2].(string)
	if !ok {
		return core.Transaction{}, false
	}
	date, err := core.ParseDate(dateStr)
	if err != nil {
		return core.Transaction{}, false
	}
	direction, err := core.ParseDirectionCode(row[3])
	if err != nil {
		return core.Transaction{}, false
	}
	mode, _ := row[4].(string)
	// Balance is informational; a bad cell doesn't invalidate the row.
	balance, _ := core.ParseAmount(row[5])

	return core.Transaction{
		Amount:    amount,
		Narration: narration,
		Date:      date,
		Direction: direction,
		Mode:      mode,
		Balance:   balance,
		Category:  n.classifier.Classify(narration, mode),
	}, true
}

// ParseMutualFund converts a mutual fund payload. The provider's MF
// structure carries holdings rather than row tuples; until it exposes
// transaction rows this yields no transactions, never an error.
func (n *Normalizer) ParseMutualFund(data []byte) []core.Transaction {
	return nil
}

// ParseStock converts a stock payload. Same contract as ParseMutualFund.
func (n *Normalizer) ParseStock(data []byte) []core.Transaction {
	return nil
}

// MergeAll unifies the three provider sources into one list: each
// transaction gets a stable per-session ID and a source tag, and the
// result is sorted by date descending.
func (n *Normalizer) MergeAll(bank, mf, stock []byte) []core.Transaction {
	var all []core.Transaction
	all = appendTagged(all, n.ParseBank(bank), core.SourceBank)
	all = appendTagged(all, n.ParseMutualFund(mf), core.SourceMutualFund)
	all = appendTagged(all, n.ParseStock(stock), core.SourceStock)

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Date.After(all[j].Date.Time)
	})
	return all
}

func appendTagged(dst, src []core.Transaction, source core.Source) []core.Transaction {
	for i, txn := range src {
		txn.Source = source
		txn.ID = transactionID(source, i, txn)
		dst = append(dst, txn)
	}
	return dst
}

// transactionID derives a stable, session-unique ID from the
// transaction's identifying fields.
func transactionID(source core.Source, index int, txn core.Transaction) string {
	h := fnv.New64a()
	h.Write([]byte(txn.Narration))
	h.Write([]byte(txn.Amount.String()))
	h.Write([]byte(txn.Date.String()))
	return fmt.Sprintf("%s_%d_%x", source, index, h.Sum64())
}
