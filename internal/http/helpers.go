package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"finsight/internal/core"
	applog "finsight/internal/log"
	"finsight/internal/provider"
)

// errorResponse is the error body shape: {"detail": "..."}.
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encoding response failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// sessionID extracts the session cookie, writing a 401 when absent.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	cookie, err := r.Cookie("sessionid")
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "login required - no sessionid cookie")
		return "", false
	}
	return cookie.Value, true
}

// parseDateRange reads the mandatory from_date/to_date query params.
func parseDateRange(r *http.Request) (core.Date, core.Date, error) {
	fromStr := r.URL.Query().Get("from_date")
	toStr := r.URL.Query().Get("to_date")
	if fromStr == "" || toStr == "" {
		return core.Date{}, core.Date{}, errors.New("from_date and to_date query parameters are required (YYYY-MM-DD)")
	}

	from, err := core.ParseDate(fromStr)
	if err != nil {
		return core.Date{}, core.Date{}, fmt.Errorf("invalid from_date %q: must be YYYY-MM-DD", fromStr)
	}
	to, err := core.ParseDate(toStr)
	if err != nil {
		return core.Date{}, core.Date{}, fmt.Errorf("invalid to_date %q: must be YYYY-MM-DD", toStr)
	}
	if to.Before(from.Time) {
		return core.Date{}, core.Date{}, errors.New("to_date must not be before from_date")
	}
	return from, to, nil
}

// bankTransactions fetches and normalizes the session's bank
// transactions, appending the session's manual overlay. Upstream
// failures other than an expired session degrade to the overlay only.
func (s *Server) bankTransactions(ctx context.Context, sessionID string) ([]core.Transaction, error) {
	data, err := s.provider.FetchBank(ctx, sessionID)
	if errors.Is(err, provider.ErrUnauthorized) {
		return nil, err
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Bank fetch degraded", applog.FieldError, err)
		data = nil
	}

	txns := s.normalizer.ParseBank(data)
	return append(txns, s.sessions.ManualTransactions(sessionID)...), nil
}

// allTransactions fetches and merges all sources plus the manual
// overlay, newest first.
func (s *Server) allTransactions(ctx context.Context, sessionID string) ([]core.Transaction, error) {
	snap, err := s.provider.FetchAll(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	txns := s.normalizer.MergeAll(snap.Bank, snap.MutualFund, snap.Stock)
	manual := s.sessions.ManualTransactions(sessionID)
	if len(manual) == 0 {
		return txns, nil
	}

	// Manual entries are newest-last in the overlay; re-sorting keeps
	// the date-descending contract.
	txns = append(txns, manual...)
	sortByDateDesc(txns)
	return txns, nil
}

func sortByDateDesc(txns []core.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Date.After(txns[j].Date.Time)
	})
}

// handleProviderError maps upstream failures onto responses. Returns
// true when the error was handled.
func (s *Server) handleProviderError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, provider.ErrUnauthorized) {
		writeError(w, http.StatusUnauthorized, "session rejected by data provider, please login again")
		return true
	}
	writeError(w, http.StatusBadGateway, "data provider unavailable")
	return true
}

// cachedJSON serves a fresh cached body for the session-scoped key,
// reporting whether it did.
func (s *Server) cachedJSON(w http.ResponseWriter, sessionID, key string) bool {
	body, ok := s.sessions.CachedResponse(sessionID, key)
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "hit")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	return true
}

// writeAndCacheJSON writes the value and remembers the body for the
// session-scoped key.
func (s *Server) writeAndCacheJSON(w http.ResponseWriter, sessionID, key string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encoding response failed", http.StatusInternalServerError)
		return
	}
	s.sessions.PutResponse(sessionID, key, body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// cacheKey builds the response cache key from path and query.
func cacheKey(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}
