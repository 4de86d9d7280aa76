package api

import (
	"encoding/json"
	"net/http"

	"energy-crm/pkg/ontology"

	"github.com/julienschmidt/httprouter"
)

// requireStore answers 503 when no case store is configured. It runs before
// anything touches the request body or the database.
func (h *Handlers) requireStore(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if h.opts.Cases == nil {
			h.presentError(w, r, ontology.ErrCaseStoreDisabled)
			return
		}
		next(w, r, ps)
	}
}

func (h *Handlers) ListCases(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	cases, err := h.opts.Cases.ListCases(r.Context(), r.URL.Query().Get("caseNumber"))
	if err != nil {
		h.presentError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, cases)
}

func (h *Handlers) GetCase(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	c, err := h.opts.Cases.GetCase(r.Context(), ps.ByName("id"))
	if err != nil {
		h.presentError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, c)
}

func (h *Handlers) CreateCase(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var input ontology.Case
	if err := decodeBody(w, r, &input); err != nil {
		h.presentError(w, r, err)
		return
	}

	created, err := h.opts.Cases.CreateCase(r.Context(), input)
	if err != nil {
		h.presentError(w, r, err)
		return
	}
	sendJSON(w, http.StatusCreated, created)
}

func (h *Handlers) UpdateCase(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var patch map[string]json.RawMessage
	if err := decodeBody(w, r, &patch); err != nil {
		h.presentError(w, r, err)
		return
	}

	updated, err := h.opts.Cases.UpdateCase(r.Context(), ps.ByName("id"), patch)
	if err != nil {
		h.presentError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, updated)
}

func (h *Handlers) DeleteCase(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.opts.Cases.DeleteCase(r.Context(), ps.ByName("id")); err != nil {
		h.presentError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
