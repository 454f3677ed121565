package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"pattern-sync/internal/indexer"
	"pattern-sync/internal/logging"
	"pattern-sync/internal/store"
)

// StoreSummary describes one store.
type StoreSummary struct {
	Name          string `json:"name"`
	Root          string `json:"root"`
	Extension     string `json:"extension"`
	Records       int    `json:"records"`
	Buckets       int    `json:"buckets"`
	Poisoned      bool   `json:"poisoned"`
	Error         string `json:"error,omitempty"`
	SelectedPath  string `json:"selectedPath,omitempty"`
	SelectedIndex *int   `json:"selectedIndex,omitempty"`
}

// ElementInfo describes one record of a snapshot.
type ElementInfo struct {
	Index  int    `json:"index"`
	Path   string `json:"path"`
	Tag    string `json:"tag"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ElementsResponse is one page of a store snapshot.
type ElementsResponse struct {
	Store    string        `json:"store"`
	Total    int           `json:"total"`
	Offset   int           `json:"offset"`
	Elements []ElementInfo `json:"elements"`
}

func summarize(s *store.Store) StoreSummary {
	policy := s.Policy()
	summary := StoreSummary{
		Name:      policy.Name,
		Root:      policy.Root,
		Extension: policy.Ext(),
	}

	stats, err := s.Stats()
	summary.Records = stats.Records
	summary.Buckets = stats.Buckets
	summary.Poisoned = stats.Poisoned
	if err != nil {
		summary.Error = err.Error()
		return summary
	}

	if sel, ok, err := s.Selection(); err == nil && ok {
		idx := sel.Index
		summary.SelectedPath = sel.Path
		summary.SelectedIndex = &idx
	}
	return summary
}

// ListStores returns a summary of every store
func (h *Handlers) ListStores(w http.ResponseWriter, _ *http.Request) {
	summaries := make([]StoreSummary, 0, len(h.stores))
	for _, s := range h.stores {
		summaries = append(summaries, summarize(s))
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, summaries)
}

// GetStore returns the summary of one store
func (h *Handlers) GetStore(w http.ResponseWriter, r *http.Request) {
	s := h.store(mux.Vars(r)["name"])
	if s == nil {
		writeJSONError(w, "store not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, summarize(s))
}

// ListElements returns a page of the store's current snapshot, ordered by
// path. Query parameters offset and limit (0 = everything) select the page.
func (h *Handlers) ListElements(w http.ResponseWriter, r *http.Request) {
	s := h.store(mux.Vars(r)["name"])
	if s == nil {
		writeJSONError(w, "store not found", http.StatusNotFound)
		return
	}

	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		writeJSONError(w, "invalid offset", http.StatusBadRequest)
		return
	}
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		writeJSONError(w, "invalid limit", http.StatusBadRequest)
		return
	}

	elems, err := s.Elements()
	if err != nil {
		if store.IsDisabled(err) {
			writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		logging.Error("failed to snapshot store %s: %v", s.Name(), err)
		writeJSONError(w, "failed to read store", http.StatusInternalServerError)
		return
	}

	start := min(offset, len(elems))
	end := len(elems)
	if limit > 0 {
		end = min(start+limit, len(elems))
	}

	page := make([]ElementInfo, 0, end-start)
	for i, el := range elems[start:end] {
		page = append(page, ElementInfo{
			Index:  start + i,
			Path:   el.Path,
			Tag:    el.Record.Tag,
			Width:  el.Record.Pattern.Width(),
			Height: el.Record.Pattern.Height(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ElementsResponse{
		Store:    s.Name(),
		Total:    len(elems),
		Offset:   start,
		Elements: page,
	})
}

// TriggerRescan starts a full rescan of every store in the background
func (h *Handlers) TriggerRescan(w http.ResponseWriter, _ *http.Request) {
	if h.indexer.GetHealthStatus().Scanning {
		writeJSONError(w, "scan already in progress", http.StatusConflict)
		return
	}

	go func() {
		if _, err := h.indexer.ScanAll(h.scanCtx); err != nil && !errors.Is(err, indexer.ErrScanInProgress) {
			logging.Error("Rescan failed: %v", err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"status": "scan started"})
}
