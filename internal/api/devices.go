package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/sbergate/internal/device"
)

// deviceSummary is the flattened per-device view served by the v1 list:
// identity and grouping fields only, no state.
type deviceSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DefaultName string   `json:"default_name"`
	Nicknames   []string `json:"nicknames"`
	Home        string   `json:"home"`
	Room        string   `json:"room"`
	Groups      []string `json:"groups"`
	ModelID     string   `json:"model_id"`
	Category    string   `json:"category"`
	HWVersion   string   `json:"hw_version"`
	SWVersion   string   `json:"sw_version"`
}

// handleListDevices returns the simplified device list for the UI.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	ids := s.registry.IDs()
	devices := make([]deviceSummary, 0, len(ids))

	for _, id := range ids {
		rec, ok := s.registry.Get(id)
		if !ok {
			continue
		}
		devices = append(devices, deviceSummary{
			ID:          id,
			Name:        rec.Name,
			DefaultName: rec.DefaultName,
			Nicknames:   emptyIfNil(rec.Nicknames),
			Home:        rec.Home,
			Room:        rec.Room,
			Groups:      emptyIfNil(rec.Groups),
			ModelID:     rec.ModelID,
			Category:    rec.Category,
			HWVersion:   rec.HWVersion,
			SWVersion:   rec.SWVersion,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

// handleCreateDevice creates a manual (non-hub) device.
//
// The body is a partial device update; category is required since it selects
// the generated id prefix and the cloud feature schema.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var u device.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if u.Category == nil || *u.Category == "" {
		writeBadRequest(w, "category field is required")
		return
	}

	id, err := s.registry.GenerateID(*u.Category)
	if err != nil {
		if errors.Is(err, device.ErrIDSpaceExhausted) {
			writeBadRequest(w, "no free device id for category "+*u.Category)
			return
		}
		writeInternalError(w, "failed to allocate device id")
		return
	}

	if err := s.registry.Upsert(id, u); err != nil {
		writeInternalError(w, "failed to create device")
		return
	}

	s.logger.Info("device created via admin API", "id", id, "category", *u.Category)
	s.publishCloudConfig()

	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// handleUpdateDevice applies a partial update to an existing device.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var u device.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ok, err := s.registry.UpdateAttributes(id, u)
	if err != nil {
		writeInternalError(w, "failed to update device")
		return
	}
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	s.publishCloudConfig()

	rec, _ := s.registry.Get(id)
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteDevice removes a device by id.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !s.registry.Exists(id) {
		writeNotFound(w, "device not found")
		return
	}
	if err := s.registry.Delete(id); err != nil {
		writeInternalError(w, "failed to delete device")
		return
	}

	s.publishCloudConfig()
	w.WriteHeader(http.StatusNoContent)
}

// handleDumpDevices returns the full registry, states included. This is the
// working view for the bundled UI's device editor.
func (s *Server) handleDumpDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"devices": s.registry.List()})
}

// bulkUpdateRequest carries per-device partial updates keyed by device id.
// Each list element maps ids to their updates, so one request can touch
// many devices.
type bulkUpdateRequest struct {
	Devices []map[string]device.Update `json:"devices"`
}

// handleBulkUpdateDevices applies partial updates to many devices at once.
// Unknown ids are created, matching the editor's save-all behaviour.
func (s *Server) handleBulkUpdateDevices(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	updated := 0
	for _, entry := range req.Devices {
		for id, u := range entry {
			if err := s.registry.Upsert(id, u); err != nil {
				writeInternalError(w, "failed to update device "+id)
				return
			}
			updated++
		}
	}

	s.logger.Info("bulk device update applied", "count", updated)
	s.publishCloudConfig()

	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

// commandRequest is the admin command envelope.
type commandRequest struct {
	Command string `json:"command"`
}

// handleCommand executes maintenance commands. Only database deletion is
// supported; it wipes the registry and pushes the now-empty device list to
// the cloud so stale devices disappear from the vendor app.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	switch req.Command {
	case "DB_delete":
		s.logger.Info("registry wipe requested via admin API")
		if err := s.registry.Clear(); err != nil {
			writeInternalError(w, "failed to clear registry")
			return
		}
		s.publishCloudConfig()
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		s.logger.Warn("unknown admin command", "command", req.Command)
		writeBadRequest(w, "unknown command")
	}
}

// emptyIfNil keeps list fields as [] rather than null in JSON output.
func emptyIfNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
