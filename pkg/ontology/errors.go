package ontology

import "github.com/cockroachdb/errors"

// Base errors, mapped to HTTP status codes by the api package
var (
	// ErrBadParameter is rendered with the http status code 400
	ErrBadParameter = errors.New("bad parameter")

	// ErrNotFound is rendered with the http status code 404
	ErrNotFound = errors.New("not found")

	// ErrConflict is rendered with the http status code 409
	ErrConflict = errors.New("duplicate value")

	// ErrUnavailable is rendered with the http status code 503
	ErrUnavailable = errors.New("store unavailable")
)

var (
	ErrCaseNotFound        = errors.Wrap(ErrNotFound, "case not found")
	ErrDuplicateCaseNumber = errors.Wrap(ErrConflict, "a case with this case number or id already exists")
	ErrCaseStoreDisabled   = errors.Wrap(ErrUnavailable, "case store is not configured: set DATABASE_URL")
)
