package web

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"loyalty/internal/adapters/storage/uow"
	"loyalty/internal/domain/brand"
)

type syncSettingsRequest struct {
	Settings brand.SyncSettings `json:"settings"`
	Window   *brand.Window      `json:"window,omitempty"`
}

// UpdateBrandSyncSettings handles PUT /admin/brands/{brandID}/sync-settings.
// An empty access_id or access_token keeps the stored credential.
// A supplied window may only move forward.
func (h *Handler) UpdateBrandSyncSettings(w http.ResponseWriter, r *http.Request) {
	brandID := chi.URLParam(r, "brandID")

	var req syncSettingsRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Settings.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Window != nil {
		loc, _ := req.Settings.Location()
		if req.Window.Start == "" || req.Window.End == "" {
			writeError(w, http.StatusBadRequest, "window requires start and end")
			return
		}
		if err := req.Window.Validate(loc); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	var updated brand.Brand
	err := h.deps.Runner.InTx(r.Context(), func(s uow.Stores) error {
		b, err := s.Brands.GetByID(r.Context(), brandID)
		if err != nil {
			return err
		}
		settings := req.Settings
		if strings.TrimSpace(settings.AccessID) == "" {
			settings.AccessID = b.Settings.AccessID
		}
		if strings.TrimSpace(settings.AccessToken) == "" {
			settings.AccessToken = b.Settings.AccessToken
		}
		// The stored window is kept in the brand zone, so a zone change rewrites
		// it before any guarded comparison against the new window.
		rezoned, err := rezoneWindow(&b, settings)
		if err != nil {
			return err
		}
		if rezoned {
			b.Settings = settings
			if err := s.Brands.Save(r.Context(), b); err != nil {
				return err
			}
		} else if err := s.Brands.UpdateSyncSettings(r.Context(), brandID, settings); err != nil {
			return err
		}
		if req.Window != nil {
			if err := s.Brands.UpdateSyncWindow(r.Context(), brandID, *req.Window, b.LastSyncAt); err != nil {
				return err
			}
		}
		updated, err = s.Brands.GetByID(r.Context(), brandID)
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBrandView(updated))
}

// rezoneWindow converts b's stored window into the zone of next.
// POST: reports true and updates b.Window only when the zone changed and a window is set
func rezoneWindow(b *brand.Brand, next brand.SyncSettings) (bool, error) {
	if b.Window.Start == "" && b.Window.End == "" {
		return false, nil
	}
	from, err := b.Settings.Location()
	if err != nil {
		return false, err
	}
	to, err := next.Location()
	if err != nil {
		return false, err
	}
	if from.String() == to.String() {
		return false, nil
	}
	w, err := b.Window.In(from, to)
	if err != nil {
		return false, err
	}
	slog.Info("admin_event", "event", "window_rezoned", "brand_id", b.ID,
		"from", from.String(), "to", to.String(), "window_end", w.End)
	b.Window = w
	return true, nil
}
