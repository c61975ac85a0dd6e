package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/nerrad567/sbergate/internal/schema"
)

// handleCategories returns the category → feature schema the gateway is
// currently serialising against.
func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	sch := s.schema
	s.mu.RUnlock()

	if sch == nil {
		writeUnavailable(w, "category schema not loaded yet")
		return
	}

	categories := make(map[string][]schema.Feature, sch.Len())
	for _, cat := range sch.Categories() {
		categories[cat] = sch.Features(cat)
	}

	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

// handleModels serves the cached cloud model list. The cache is written
// once by the schema bootstrap; until then the endpoint reports 503.
func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	body, err := os.ReadFile(s.storage.ModelsFile)
	if err != nil {
		writeUnavailable(w, "model list not fetched yet")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response
	w.Write(body)
}

// handleCloudProxy forwards unmatched /api/v1/* GETs to the vendor cloud
// API, so the bundled UI can reach cloud-only endpoints through the
// gateway's credentials.
func (s *Server) handleCloudProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeNotFound(w, "not found")
		return
	}

	s.mu.RLock()
	client := s.cloudClient
	s.mu.RUnlock()

	if client == nil {
		writeUnavailable(w, "cloud endpoint not discovered yet")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/")
	status, contentType, body, err := client.Proxy(r.Context(), "/v1/mqtt-gate/"+rest)
	if err != nil {
		s.logger.Warn("cloud proxy request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "cloud request failed")
		return
	}

	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write to response
	w.Write(body)
}
