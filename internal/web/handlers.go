package web

import (
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/geo-dedupe/internal/audit"
	"github.com/geo-dedupe/internal/dedupe"
)

const maxPageSize = 500

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if value := r.URL.Query().Get(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statsResponse summarizes the loaded run.
type statsResponse struct {
	Responses    int            `json:"responses"`
	Dupes        int            `json:"dupes"`
	Canonicals   int            `json:"canonicals"`
	ByStatus     map[string]int `json:"by_status"`
	StoreRecords uint64         `json:"store_records"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := statsResponse{
		Responses:    len(s.responses),
		ByStatus:     make(map[string]int),
		StoreRecords: s.recordCount,
	}
	for _, resp := range s.responses {
		if resp.IsDupe {
			stats.Dupes++
		}
		if len(resp.PossibleDupes) > 0 {
			stats.Canonicals++
		}
		for _, pd := range resp.PossibleDupes {
			stats.ByStatus[pd.Classification]++
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}
	payload, ok, err := s.store.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read record")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

func (s *Server) handleDupes(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	writeJSON(w, http.StatusOK, s.dupePage(offset, limit))
}

type dupePageResponse struct {
	Total   int               `json:"total"`
	Offset  int               `json:"offset"`
	Results []dedupe.Response `json:"results"`
}

func (s *Server) dupePage(offset, limit int) dupePageResponse {
	page := dupePageResponse{Total: len(s.dupeIdx), Offset: offset, Results: []dedupe.Response{}}
	for i := offset; i < len(s.dupeIdx) && len(page.Results) < limit; i++ {
		page.Results = append(page.Results, s.responses[s.dupeIdx[i]])
	}
	return page
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	limit := queryInt(r, "limit", 50)
	if limit > maxPageSize {
		limit = maxPageSize
	}

	results := []dedupe.Response{}
	for _, resp := range s.responses {
		if resp.Object == nil {
			continue
		}
		haystack := strings.ToLower(resp.Object.Name() + " " + resp.Object.Street())
		if strings.Contains(haystack, q) {
			results = append(results, resp)
			if len(results) >= limit {
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// reviewRequest is the body of a review decision.
type reviewRequest struct {
	Decision string `json:"decision"`
	Reviewer string `json:"reviewer"`
	Notes    string `json:"notes"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	guid := mux.Vars(r)["guid"]
	if _, ok := s.byGUID[guid]; !ok {
		writeError(w, http.StatusNotFound, "unknown guid")
		return
	}
	if s.tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "audit trail not configured")
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !audit.ValidDecision(req.Decision) {
		writeError(w, http.StatusBadRequest, "decision must be confirmed, rejected, or unsure")
		return
	}

	err := s.tracker.Record(audit.Decision{
		GUID:     guid,
		Decision: req.Decision,
		Reviewer: req.Reviewer,
		Notes:    req.Notes,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record decision")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded", "guid": guid})
}
