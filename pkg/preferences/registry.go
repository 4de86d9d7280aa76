package preferences

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"energy-crm/pkg/shared"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

const (
	ClientIDHeader  = "X-Client-ID"
	DefaultClientID = "anonymous"

	// DefaultMaxClients bounds how many clients stay in memory. Evicted
	// clients keep their persisted override and theme; only the viewport
	// width is lost until the next resize report.
	DefaultMaxClients = 10000
)

var ErrInvalidClientID = errors.New("client id must be 1-64 characters of letters, digits, '-' or '_'")

const clientIDRules = "required,max=64,clientid"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("clientid", func(fl validator.FieldLevel) bool {
		for _, r := range fl.Field().String() {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			default:
				return false
			}
		}
		return true
	})
	return v
}

// ValidateClientID reports ErrInvalidClientID for ids that cannot be used
// as storage keys.
func ValidateClientID(clientID string) error {
	if err := validate.Var(clientID, clientIDRules); err != nil {
		return errors.WithSecondaryError(ErrInvalidClientID, err)
	}
	return nil
}

// Registry hands out one Preferences per client, created on first use and
// evicted least-recently-used once the cap is reached.
type Registry struct {
	mu      sync.Mutex
	storage Storage
	clients *lru.Cache[string, *Preferences]
	log     *logrus.Entry
}

func NewRegistry(storage Storage, log *logrus.Entry) *Registry {
	return NewRegistrySize(storage, DefaultMaxClients, log)
}

func NewRegistrySize(storage Storage, maxClients int, log *logrus.Entry) *Registry {
	if maxClients < 1 {
		maxClients = DefaultMaxClients
	}
	log = log.WithField("component", "preferences")
	clients, err := lru.NewWithEvict(maxClients, func(clientID string, _ *Preferences) {
		log.WithField("client", clientID).Debug("preferences evicted")
	})
	if err != nil {
		panic(err) // size is always positive here

	}
	return &Registry{
		storage: storage,
		clients: clients,
		log:     log,
	}
}

func (r *Registry) For(clientID string) (*Preferences, error) {
	if err := ValidateClientID(clientID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.clients.Get(clientID); ok {
		return p, nil
	}

	p, err := New(clientID, r.storage, r.log)
	if err != nil {
		return nil, err
	}
	r.clients.Add(clientID, p)
	r.log.WithField("client", clientID).Debug("preferences created")
	return p, nil
}

func (r *Registry) Len() int {
	return r.clients.Len()
}

// Middleware resolves the caller's preferences from the X-Client-ID header
// and attaches them to the request context.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		clientID := req.Header.Get(ClientIDHeader)
		if clientID == "" {
			clientID = DefaultClientID
		}

		p, err := r.For(clientID)
		if errors.Is(err, ErrInvalidClientID) {
			writeError(w, http.StatusBadRequest, "INVALID_CLIENT_ID", err.Error())
			return
		}
		if err != nil {
			r.log.WithError(err).Error("failed to load preferences")
			writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
			return
		}

		next.ServeHTTP(w, req.WithContext(WithPreferences(req.Context(), p)))
	})
}

type ctxKey struct{}

func WithPreferences(ctx context.Context, p *Preferences) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (*Preferences, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Preferences)
	return p, ok && p != nil
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(shared.Response{
		Success: false,
		Error:   &shared.Error{Code: code, Message: message},
	})
}
