package session

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
)

func newTestStore() *Store {
	return NewStore(time.Minute, time.Minute)
}

func TestDismissCategory(t *testing.T) {
	s := newTestStore()

	s.DismissCategory("sess-1", "Netflix")
	s.DismissCategory("sess-1", "RENT")

	got := s.DismissedCategories("sess-1")
	if !got["netflix"] || !got["rent"] {
		t.Fatalf("dismissed set must be lowercased: %v", got)
	}
	if len(s.DismissedCategories("sess-2")) != 0 {
		t.Fatalf("sessions must be isolated")
	}
}

func TestManualTransactions(t *testing.T) {
	s := newTestStore()

	first := core.Transaction{Narration: "Cash groceries", Amount: decimal.NewFromInt(450)}
	second := core.Transaction{Narration: "Cab fare", Amount: decimal.NewFromInt(220)}
	s.AddManualTransaction("sess-1", first)
	s.AddManualTransaction("sess-1", second)

	got := s.ManualTransactions("sess-1")
	if len(got) != 2 {
		t.Fatalf("expected 2 manual transactions, got %d", len(got))
	}
	if got[0].Narration != "Cash groceries" || got[1].Narration != "Cab fare" {
		t.Fatalf("insertion order not preserved: %+v", got)
	}

	// Returned slice is a copy.
	got[0].Narration = "mutated"
	if s.ManualTransactions("sess-1")[0].Narration != "Cash groceries" {
		t.Fatalf("store leaked its internal slice")
	}
}

func TestResponseCache(t *testing.T) {
	s := newTestStore()

	s.PutResponse("sess-1", "nudges", []byte(`[]`))
	if body, ok := s.CachedResponse("sess-1", "nudges"); !ok || string(body) != `[]` {
		t.Fatalf("cached response not returned")
	}
	if _, ok := s.CachedResponse("sess-2", "nudges"); ok {
		t.Fatalf("response cache must be session scoped")
	}

	s.InvalidateResponses("sess-1")
	if _, ok := s.CachedResponse("sess-1", "nudges"); ok {
		t.Fatalf("invalidation must drop cached responses")
	}
}

func TestExpire(t *testing.T) {
	s := newTestStore()

	s.DismissCategory("sess-1", "Netflix")
	s.PutResponse("sess-1", "nudges", []byte(`[]`))
	s.Expire("sess-1")

	if len(s.DismissedCategories("sess-1")) != 0 {
		t.Fatalf("expire must drop the overlay")
	}
	if _, ok := s.CachedResponse("sess-1", "nudges"); ok {
		t.Fatalf("expire must drop cached responses")
	}
}
