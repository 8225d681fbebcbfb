// Package session holds per-session overlay state: nudge dismissals,
// manually added transactions and short-lived response caches. The
// overlay is advisory demo state, last writer wins; losing it on
// expiry or restart is acceptable.
package session

import (
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"finsight/internal/core"
)

type overlay struct {
	dismissed map[string]bool
	manual    []core.Transaction
}

// Store is a TTL-bound keyed overlay store. Overlay entries and cached
// responses expire independently; the janitor reclaims both.
type Store struct {
	mu        sync.Mutex
	overlays  *gocache.Cache
	responses *gocache.Cache
}

func NewStore(sessionTTL, responseTTL time.Duration) *Store {
	return &Store{
		overlays:  gocache.New(sessionTTL, 2*sessionTTL),
		responses: gocache.New(responseTTL, 2*responseTTL),
	}
}

// DismissCategory records a dismissed nudge category for the session.
// Categories are matched case-insensitively, so the set is lowercased.
func (s *Store) DismissCategory(sessionID, category string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ov := s.overlay(sessionID)
	ov.dismissed[strings.ToLower(category)] = true
	s.overlays.SetDefault(sessionID, ov)
}

// DismissedCategories returns a copy of the session's dismissed set,
// keyed by lowercase category.
func (s *Store) DismissedCategories(sessionID string) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ov := s.overlay(sessionID)
	out := make(map[string]bool, len(ov.dismissed))
	for k := range ov.dismissed {
		out[k] = true
	}
	return out
}

// AddManualTransaction appends a user-entered transaction to the
// session overlay, preserving insertion order.
func (s *Store) AddManualTransaction(sessionID string, txn core.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ov := s.overlay(sessionID)
	ov.manual = append(ov.manual, txn)
	s.overlays.SetDefault(sessionID, ov)
}

// ManualTransactions returns a copy of the session's manually added
// transactions in insertion order.
func (s *Store) ManualTransactions(sessionID string) []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	ov := s.overlay(sessionID)
	out := make([]core.Transaction, len(ov.manual))
	copy(out, ov.manual)
	return out
}

// CachedResponse returns a previously cached response body for the
// session-scoped key, if still fresh.
func (s *Store) CachedResponse(sessionID, key string) ([]byte, bool) {
	v, ok := s.responses.Get(responseKey(sessionID, key))
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// PutResponse caches a response body under the session-scoped key.
func (s *Store) PutResponse(sessionID, key string, body []byte) {
	s.responses.SetDefault(responseKey(sessionID, key), body)
}

// InvalidateResponses drops every cached response for the session.
// Called after overlay writes so stale views don't outlive them.
func (s *Store) InvalidateResponses(sessionID string) {
	prefix := responseKey(sessionID, "")
	for k := range s.responses.Items() {
		if strings.HasPrefix(k, prefix) {
			s.responses.Delete(k)
		}
	}
}

// Expire removes the session's overlay and cached responses.
func (s *Store) Expire(sessionID string) {
	s.mu.Lock()
	s.overlays.Delete(sessionID)
	s.mu.Unlock()
	s.InvalidateResponses(sessionID)
}

// overlay returns the live overlay for the session, creating an empty
// one if absent. Callers must hold s.mu.
func (s *Store) overlay(sessionID string) *overlay {
	if v, ok := s.overlays.Get(sessionID); ok {
		return v.(*overlay)
	}
	ov := &overlay{dismissed: make(map[string]bool)}
	s.overlays.SetDefault(sessionID, ov)
	return ov
}

func responseKey(sessionID, key string) string {
	return sessionID + "|" + key
}
