package api

import (
	"net/http"

	"energy-crm/pkg/ontology"

	"github.com/julienschmidt/httprouter"
)

func (h *Handlers) ListOrgs(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sendJSON(w, http.StatusOK, h.opts.Directory.ListOrgs())
}

func (h *Handlers) GetOrg(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	org, err := h.opts.Directory.GetOrg(ps.ByName("id"))
	if err != nil {
		h.presentError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, org)
}

func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	sendJSON(w, http.StatusOK, h.opts.Directory.ListAccounts(q.Get("orgId"), q.Get("q")))
}

func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	account, err := h.opts.Directory.GetAccount(ps.ByName("id"))
	if err != nil {
		h.presentError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, account)
}

func (h *Handlers) ListContacts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sendJSON(w, http.StatusOK, h.opts.Directory.ListContacts(r.URL.Query().Get("accountId")))
}

func (h *Handlers) GetContact(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	contact, err := h.opts.Directory.GetContact(ps.ByName("id"))
	if err != nil {
		h.presentError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, contact)
}

func (h *Handlers) ListOpportunities(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sendJSON(w, http.StatusOK, h.opts.Directory.ListOpportunities(r.URL.Query().Get("stage")))
}

func (h *Handlers) MoveOpportunity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req ontology.MoveOpportunityRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.presentError(w, r, err)
		return
	}

	opp, err := h.opts.Directory.MoveOpportunity(ps.ByName("id"), req.Stage)
	if err != nil {
		h.presentError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, opp)
}

func (h *Handlers) Pipeline(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sendJSON(w, http.StatusOK, h.opts.Directory.Pipeline())
}
