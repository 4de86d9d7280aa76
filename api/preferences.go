package api

import (
	"net/http"

	"energy-crm/pkg/ontology"
	"energy-crm/pkg/preferences"

	"github.com/cockroachdb/errors"
)

// preferencesUpdate is the body of PUT /api/preferences. Absent fields are
// left alone; an empty density clears the override.
type preferencesUpdate struct {
	ViewportWidth *int    `json:"viewportWidth"`
	Density       *string `json:"density"`
	Theme         *string `json:"theme"`
}

func (h *Handlers) GetPreferences(w http.ResponseWriter, r *http.Request) {
	p, ok := preferences.FromContext(r.Context())
	if !ok {
		h.presentError(w, r, errors.New("preferences missing from request context"))
		return
	}
	sendJSON(w, http.StatusOK, p.Snapshot())
}

func (h *Handlers) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	p, ok := preferences.FromContext(r.Context())
	if !ok {
		h.presentError(w, r, errors.New("preferences missing from request context"))
		return
	}

	var req preferencesUpdate
	if err := decodeBody(w, r, &req); err != nil {
		h.presentError(w, r, err)
		return
	}

	// validate everything before applying anything
	var density preferences.Density
	if req.Density != nil && *req.Density != "" {
		d, err := preferences.ParseDensity(*req.Density)
		if err != nil {
			h.presentError(w, r, errors.Wrap(ontology.ErrBadParameter, err.Error()))
			return
		}
		density = d
	}
	var theme preferences.Theme
	if req.Theme != nil {
		t, err := preferences.ParseTheme(*req.Theme)
		if err != nil {
			h.presentError(w, r, errors.Wrap(ontology.ErrBadParameter, err.Error()))
			return
		}
		theme = t
	}
	if req.ViewportWidth != nil && *req.ViewportWidth < 0 {
		h.presentError(w, r, errors.Wrap(ontology.ErrBadParameter, "viewportWidth must not be negative"))
		return
	}

	// persisted fields first so a storage failure leaves nothing applied
	if req.Density != nil {
		var err error
		if density == "" {
			err = p.ClearDensityOverride()
		} else {
			err = p.SetDensityOverride(density)
		}
		if err != nil {
			h.presentError(w, r, err)
			return
		}
	}
	if req.Theme != nil {
		if err := p.SetTheme(theme); err != nil {
			h.presentError(w, r, err)
			return
		}
	}
	if req.ViewportWidth != nil {
		p.SetViewportWidth(*req.ViewportWidth)
	}

	sendJSON(w, http.StatusOK, p.Snapshot())
}
