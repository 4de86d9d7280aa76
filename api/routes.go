package api

import (
	"net/http"

	"energy-crm/api/middleware"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

// PublicPaths are served without bearer auth.
var PublicPaths = []string{"/health", "/info"}

// RegisterRoutes sets up all API routes on router.
func (h *Handlers) RegisterRoutes(router *httprouter.Router) {
	router.HandlerFunc(http.MethodGet, "/health", h.Health)
	router.HandlerFunc(http.MethodGet, "/info", h.Info)

	router.GET("/api/cases", h.requireStore(h.ListCases))
	router.POST("/api/cases", h.requireStore(h.CreateCase))
	router.GET("/api/cases/:id", h.requireStore(h.GetCase))
	router.PATCH("/api/cases/:id", h.requireStore(h.UpdateCase))
	router.DELETE("/api/cases/:id", h.requireStore(h.DeleteCase))

	router.GET("/api/orgs", h.ListOrgs)
	router.GET("/api/orgs/:id", h.GetOrg)
	router.GET("/api/accounts", h.ListAccounts)
	router.GET("/api/accounts/:id", h.GetAccount)
	router.GET("/api/contacts", h.ListContacts)
	router.GET("/api/contacts/:id", h.GetContact)
	router.GET("/api/opportunities", h.ListOpportunities)
	router.POST("/api/opportunities/:id/move", h.MoveOpportunity)
	router.GET("/api/pipeline", h.Pipeline)

	prefs := h.opts.Preferences
	router.Handler(http.MethodGet, "/api/preferences", prefs.Middleware(http.HandlerFunc(h.GetPreferences)))
	router.Handler(http.MethodPut, "/api/preferences", prefs.Middleware(http.HandlerFunc(h.UpdatePreferences)))

	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusNotFound, "NOT_FOUND", "no such route")
	})
}

// NewRouter builds the full HTTP handler: routes wrapped in auth, request
// logging and CORS, outermost last.
func NewRouter(h *Handlers, bearerToken string, log *logrus.Entry) http.Handler {
	router := httprouter.New()
	router.HandleOPTIONS = false
	h.RegisterRoutes(router)

	var handler http.Handler = router
	handler = middleware.BearerAuth(bearerToken, PublicPaths, handler)
	handler = middleware.RequestLogger(log.WithField("component", "http"), handler)
	return middleware.CORS(handler)
}
