package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"energy-crm/api/services"
	"energy-crm/db"
	"energy-crm/pkg/fixtures"
	"energy-crm/pkg/ontology"
	"energy-crm/pkg/preferences"
	"energy-crm/pkg/shared"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var selectQueryRegex = "SELECT (.+) FROM cases"

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func baseOptions(t *testing.T) Options {
	t.Helper()
	data, err := fixtures.Load()
	require.NoError(t, err)
	return Options{
		ServiceName: "energy-crm",
		Version:     "test",
		Directory:   services.NewDirectoryService(data, quietLog()),
		Preferences: preferences.NewRegistry(preferences.NewMemoryStorage(), quietLog()),
	}
}

func persistedRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := db.DefaultConfig()
	cfg.DSN = "sqlite://" + filepath.Join(t.TempDir(), "crm.db")
	store, err := db.New(cfg, quietLog())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	opts := baseOptions(t)
	opts.Cases = services.NewCaseService(store.DB, store.Dialect, nil, quietLog())
	opts.Store = store
	return NewRouter(NewHandlers(opts, quietLog()), "", quietLog())
}

func mockRouter(t *testing.T) http.Handler {
	t.Helper()
	return NewRouter(NewHandlers(baseOptions(t), quietLog()), "", quietLog())
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v), resp.Body.String())
	return v
}

const testCaseBody = `{
	"caseNumber": "CS-TEST-001",
	"accountId": "ACC-001",
	"accountName": "Harbour Bakery Pty Ltd",
	"type": "Billing",
	"subType": "Estimated Read",
	"status": "New",
	"priority": "High",
	"slaStatus": "On Track",
	"owner": "Priya Shah",
	"team": "Billing Ops",
	"createdDate": "2026-10-19T09:00:00Z",
	"updatedDate": "2026-10-19T09:00:00Z",
	"description": "Customer disputes estimated read",
	"communications": [{"id": "m1", "type": "email", "direction": "inbound", "from": "owner@harbour.example", "to": "billing@retailer.example", "subject": "Bill too high", "body": "Please check", "timestamp": "2026-10-19T08:55:00Z"}],
	"activities": [{"id": "a1", "type": "created", "description": "Case created", "user": "Priya Shah", "timestamp": "2026-10-19T09:00:00Z"}],
	"attachments": [{"id": "f1", "name": "bill.pdf", "size": "120 KB", "type": "application/pdf", "uploadedBy": "Priya Shah", "uploadedDate": "2026-10-19T09:01:00Z"}],
	"relatedCases": ["CS-2026-0001"]
}`

func TestCaseLifecycle(t *testing.T) {
	router := persistedRouter(t)

	resp := do(t, router, "POST", "/api/cases", testCaseBody)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	created := decode[ontology.Case](t, resp)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "CS-TEST-001", created.CaseNumber)
	assert.Len(t, created.Communications, 1)
	assert.Len(t, created.Attachments, 1)
	assert.Equal(t, []string{"CS-2026-0001"}, created.RelatedCases)

	resp = do(t, router, "GET", "/api/cases/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, created, decode[ontology.Case](t, resp))

	resp = do(t, router, "PATCH", "/api/cases/"+created.ID, `{"status": "Resolved"}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "Resolved", decode[ontology.Case](t, resp).Status)

	resp = do(t, router, "GET", "/api/cases/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.Code)
	want := created
	want.Status = "Resolved"
	assert.Equal(t, want, decode[ontology.Case](t, resp))

	resp = do(t, router, "DELETE", "/api/cases/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Empty(t, resp.Body.String())

	resp = do(t, router, "GET", "/api/cases/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "null", strings.TrimSpace(resp.Body.String()))
}

func TestNestedRecordsRoundTripUnchanged(t *testing.T) {
	router := persistedRouter(t)

	communication := `{"id":"m1","type":"email","body":"x","timestamp":"t","read":true,"attachments":["a.pdf"]}`
	attachment := `{"id":"f1","name":"meter.jpg","size":120000,"geo":{"lat":-33.86,"lng":151.2}}`
	body := `{"caseNumber":"CS-TEST-003","communications":[` + communication + `],"attachments":[` + attachment + `]}`

	resp := do(t, router, "POST", "/api/cases", body)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	created := decode[map[string]json.RawMessage](t, resp)

	var id string
	require.NoError(t, json.Unmarshal(created["id"], &id))

	resp = do(t, router, "GET", "/api/cases/"+id, "")
	require.Equal(t, http.StatusOK, resp.Code)
	stored := decode[map[string]json.RawMessage](t, resp)
	assert.JSONEq(t, "["+communication+"]", string(stored["communications"]))
	assert.JSONEq(t, "["+attachment+"]", string(stored["attachments"]))

	resp = do(t, router, "PATCH", "/api/cases/"+id, `{"attachments":[`+attachment+`,{"id":"f2","name":"x","size":1}]}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	patched := decode[map[string]json.RawMessage](t, resp)
	assert.JSONEq(t, "["+attachment+`,{"id":"f2","name":"x","size":1}]`, string(patched["attachments"]))
}

func TestListCasesByCaseNumber(t *testing.T) {
	router := persistedRouter(t)

	resp := do(t, router, "GET", "/api/cases", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "[]", strings.TrimSpace(resp.Body.String()))

	require.Equal(t, http.StatusCreated, do(t, router, "POST", "/api/cases", testCaseBody).Code)
	require.Equal(t, http.StatusCreated, do(t, router, "POST", "/api/cases", `{"caseNumber": "CS-TEST-002"}`).Code)

	resp = do(t, router, "GET", "/api/cases?caseNumber=CS-TEST-002", "")
	require.Equal(t, http.StatusOK, resp.Code)
	found := decode[[]ontology.Case](t, resp)
	require.Len(t, found, 1)
	assert.Equal(t, "CS-TEST-002", found[0].CaseNumber)
	assert.NotNil(t, found[0].Communications)

	resp = do(t, router, "GET", "/api/cases?caseNumber=CS-NOPE", "")
	assert.Empty(t, decode[[]ontology.Case](t, resp))

	resp = do(t, router, "GET", "/api/cases", "")
	assert.Len(t, decode[[]ontology.Case](t, resp), 2)
}

func TestPatchWithoutRecognizedFieldsIsNoOp(t *testing.T) {
	router := persistedRouter(t)
	created := decode[ontology.Case](t, do(t, router, "POST", "/api/cases", testCaseBody))

	resp := do(t, router, "PATCH", "/api/cases/"+created.ID, `{"colour": "blue", "id": "other"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, created, decode[ontology.Case](t, resp))

	first := decode[ontology.Case](t, do(t, router, "PATCH", "/api/cases/"+created.ID, `{"priority": "Low", "relatedCases": []}`))
	second := decode[ontology.Case](t, do(t, router, "PATCH", "/api/cases/"+created.ID, `{"priority": "Low", "relatedCases": []}`))
	assert.Equal(t, first, second)
	assert.Empty(t, second.RelatedCases)
	assert.NotNil(t, second.RelatedCases)
}

func TestMissingCaseReturns404(t *testing.T) {
	router := persistedRouter(t)

	for _, method := range []string{"GET", "PATCH", "DELETE"} {
		body := ""
		if method == "PATCH" {
			body = `{"status": "Resolved"}`
		}
		resp := do(t, router, method, "/api/cases/does-not-exist", body)
		assert.Equal(t, http.StatusNotFound, resp.Code, method)
		assert.Equal(t, "null", strings.TrimSpace(resp.Body.String()), method)
	}
}

func TestDuplicateCaseNumberReturns409(t *testing.T) {
	router := persistedRouter(t)
	original := decode[ontology.Case](t, do(t, router, "POST", "/api/cases", testCaseBody))

	resp := do(t, router, "POST", "/api/cases", `{"caseNumber": "CS-TEST-001", "status": "Closed"}`)
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "CONFLICT", decode[shared.Response](t, resp).Error.Code)

	resp = do(t, router, "GET", "/api/cases/"+original.ID, "")
	assert.Equal(t, original, decode[ontology.Case](t, resp))
}

func TestCreateCaseRejectsBadInput(t *testing.T) {
	router := persistedRouter(t)

	for name, body := range map[string]string{
		"malformed json":      `{"caseNumber": `,
		"missing case number": `{"status": "New"}`,
		"wrong array type":    `{"caseNumber": "CS-1", "activities": "none"}`,
	} {
		resp := do(t, router, "POST", "/api/cases", body)
		assert.Equal(t, http.StatusBadRequest, resp.Code, name)
	}

	resp := do(t, router, "GET", "/api/cases", "")
	assert.Empty(t, decode[[]ontology.Case](t, resp))
}

func TestCaseEndpointsReturn503WithoutStore(t *testing.T) {
	router := mockRouter(t)

	requests := []struct{ method, path, body string }{
		{"GET", "/api/cases", ""},
		{"POST", "/api/cases", testCaseBody},
		{"GET", "/api/cases/1", ""},
		{"PATCH", "/api/cases/1", `{"status": "Resolved"}`},
		{"DELETE", "/api/cases/1", ""},
	}
	for _, r := range requests {
		resp := do(t, router, r.method, r.path, r.body)
		assert.Equal(t, http.StatusServiceUnavailable, resp.Code, r.method+" "+r.path)
		body := decode[shared.Response](t, resp)
		assert.False(t, body.Success)
		require.NotNil(t, body.Error)
		assert.Equal(t, "STORE_UNAVAILABLE", body.Error.Code)
		assert.Contains(t, body.Error.Message, "DATABASE_URL")
	}
}

func TestUnexpectedErrorsAreNotLeaked(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery(selectQueryRegex).WillReturnError(errors.New("disk I/O error at /var/lib/crm.db"))

	opts := baseOptions(t)
	opts.Cases = services.NewCaseService(conn, db.DialectSQLite, nil, quietLog())
	router := NewRouter(NewHandlers(opts, quietLog()), "", quietLog())

	resp := do(t, router, "GET", "/api/cases", "")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	body := decode[shared.Response](t, resp)
	assert.Equal(t, "INTERNAL", body.Error.Code)
	assert.Equal(t, "internal server error", body.Error.Message)
	assert.NotContains(t, resp.Body.String(), "disk")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryEndpoints(t *testing.T) {
	router := mockRouter(t)

	resp := do(t, router, "GET", "/api/orgs", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[[]ontology.Org](t, resp), 3)

	resp = do(t, router, "GET", "/api/orgs/ORG-001", "")
	assert.Equal(t, "ORG-001", decode[ontology.Org](t, resp).ID)

	resp = do(t, router, "GET", "/api/accounts?orgId=ORG-001", "")
	for _, a := range decode[[]ontology.Account](t, resp) {
		assert.Equal(t, "ORG-001", a.OrgID)
	}

	resp = do(t, router, "GET", "/api/accounts/ACC-001", "")
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = do(t, router, "GET", "/api/contacts?accountId=ACC-001", "")
	for _, c := range decode[[]ontology.Contact](t, resp) {
		assert.Equal(t, "ACC-001", c.AccountID)
	}

	resp = do(t, router, "GET", "/api/contacts/CON-001", "")
	assert.Equal(t, http.StatusOK, resp.Code)

	for _, path := range []string{"/api/orgs/ORG-999", "/api/accounts/ACC-999", "/api/contacts/CON-999"} {
		resp = do(t, router, "GET", path, "")
		assert.Equal(t, http.StatusNotFound, resp.Code, path)
	}
}

func TestPipelineAndMove(t *testing.T) {
	router := mockRouter(t)

	resp := do(t, router, "GET", "/api/pipeline", "")
	require.Equal(t, http.StatusOK, resp.Code)
	stages := decode[[]ontology.PipelineStage](t, resp)
	require.Len(t, stages, len(ontology.PipelineStages))
	for i, s := range stages {
		assert.Equal(t, ontology.PipelineStages[i], s.Stage)
	}
	assert.Equal(t, 0, stages[5].Count)

	resp = do(t, router, "POST", "/api/opportunities/OPP-001/move", `{"stage": "Closed Lost"}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "Closed Lost", decode[ontology.Opportunity](t, resp).Stage)

	resp = do(t, router, "GET", "/api/opportunities?stage=Closed%20Lost", "")
	opps := decode[[]ontology.Opportunity](t, resp)
	require.Len(t, opps, 1)
	assert.Equal(t, "OPP-001", opps[0].ID)

	resp = do(t, router, "POST", "/api/opportunities/OPP-001/move", `{"stage": "Won-ish"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(t, router, "POST", "/api/opportunities/OPP-001/move", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(t, router, "POST", "/api/opportunities/OPP-999/move", `{"stage": "Proposal"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestPreferences(t *testing.T) {
	router := mockRouter(t)

	resp := do(t, router, "GET", "/api/preferences", "")
	require.Equal(t, http.StatusOK, resp.Code)
	snap := decode[preferences.Snapshot](t, resp)
	assert.Equal(t, preferences.DefaultClientID, snap.ClientID)
	assert.Equal(t, preferences.DensityNormal, snap.Density)
	assert.Equal(t, preferences.ThemeSystem, snap.Theme)

	header := []string{preferences.ClientIDHeader, "tab-1"}

	resp = do(t, router, "PUT", "/api/preferences", `{"viewportWidth": 800}`, header...)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, preferences.DensityCompact, decode[preferences.Snapshot](t, resp).Density)

	resp = do(t, router, "PUT", "/api/preferences", `{"density": "comfortable", "theme": "dark"}`, header...)
	snap = decode[preferences.Snapshot](t, resp)
	assert.Equal(t, preferences.DensityComfortable, snap.Density)
	assert.Equal(t, preferences.DensityComfortable, snap.DensityOverride)
	assert.Equal(t, preferences.ThemeDark, snap.Theme)

	resp = do(t, router, "PUT", "/api/preferences", `{"density": ""}`, header...)
	snap = decode[preferences.Snapshot](t, resp)
	assert.Equal(t, preferences.DensityCompact, snap.Density)
	assert.Empty(t, snap.DensityOverride)
	assert.Equal(t, preferences.ThemeDark, snap.Theme)

	// other clients are unaffected
	resp = do(t, router, "GET", "/api/preferences", "")
	assert.Equal(t, preferences.ThemeSystem, decode[preferences.Snapshot](t, resp).Theme)
}

func TestPreferencesRejectInvalidInput(t *testing.T) {
	router := mockRouter(t)
	header := []string{preferences.ClientIDHeader, "tab-2"}

	for _, body := range []string{`{"theme": "neon"}`, `{"density": "huge"}`, `{"viewportWidth": -5}`, `{"theme": "dark", "density": "huge"}`} {
		resp := do(t, router, "PUT", "/api/preferences", body, header...)
		assert.Equal(t, http.StatusBadRequest, resp.Code, body)
	}

	// nothing from the rejected requests was applied
	resp := do(t, router, "GET", "/api/preferences", "", header...)
	assert.Equal(t, preferences.ThemeSystem, decode[preferences.Snapshot](t, resp).Theme)

	resp = do(t, router, "GET", "/api/preferences", "", preferences.ClientIDHeader, "bad id!")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

type readOnlyStorage struct {
	*preferences.MemoryStorage
}

func (readOnlyStorage) Set(string, string) error { return errors.New("storage is read-only") }

func TestPreferencesStorageFailureAppliesNothing(t *testing.T) {
	opts := baseOptions(t)
	opts.Preferences = preferences.NewRegistry(readOnlyStorage{preferences.NewMemoryStorage()}, quietLog())
	router := NewRouter(NewHandlers(opts, quietLog()), "", quietLog())
	header := []string{preferences.ClientIDHeader, "tab-3"}

	resp := do(t, router, "PUT", "/api/preferences", `{"viewportWidth": 800, "density": "comfortable"}`, header...)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)

	resp = do(t, router, "GET", "/api/preferences", "", header...)
	require.Equal(t, http.StatusOK, resp.Code)
	snap := decode[preferences.Snapshot](t, resp)
	assert.Zero(t, snap.ViewportWidth)
	assert.Equal(t, preferences.DensityNormal, snap.Density)
	assert.Empty(t, snap.DensityOverride)
}

func TestHealthAndInfo(t *testing.T) {
	router := mockRouter(t)

	resp := do(t, router, "GET", "/health", "")
	require.Equal(t, http.StatusOK, resp.Code)
	health := decode[shared.HealthStatus](t, resp)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "not configured", health.Details["database"])
	assert.Equal(t, "disabled", health.Details["nats"])

	resp = do(t, router, "GET", "/info", "")
	info := decode[shared.Info](t, resp)
	assert.Equal(t, shared.Info{Name: "energy-crm", Version: "test", Mode: shared.ModeMock}, info)

	persisted := persistedRouter(t)
	resp = do(t, persisted, "GET", "/info", "")
	assert.Equal(t, shared.ModePersisted, decode[shared.Info](t, resp).Mode)

	resp = do(t, persisted, "GET", "/health", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "healthy", decode[shared.HealthStatus](t, resp).Details["database"])
}

func TestHealthReportsClosedDatabase(t *testing.T) {
	cfg := db.DefaultConfig()
	cfg.DSN = "sqlite://" + filepath.Join(t.TempDir(), "crm.db")
	store, err := db.New(cfg, quietLog())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	opts := baseOptions(t)
	opts.Cases = services.NewCaseService(store.DB, store.Dialect, nil, quietLog())
	opts.Store = store
	router := NewRouter(NewHandlers(opts, quietLog()), "", quietLog())

	resp := do(t, router, "GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, decode[shared.HealthStatus](t, resp).Details["database"], "unhealthy")
}

type failingNATS struct{}

func (failingNATS) HealthCheck() error { return errors.New("NATS not connected") }

func TestHealthReportsUnhealthyNATS(t *testing.T) {
	opts := baseOptions(t)
	opts.NATS = failingNATS{}
	router := NewRouter(NewHandlers(opts, quietLog()), "", quietLog())

	resp := do(t, router, "GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Equal(t, "unhealthy", decode[shared.HealthStatus](t, resp).Status)
}

func TestBearerTokenGuardsAPI(t *testing.T) {
	router := NewRouter(NewHandlers(baseOptions(t), quietLog()), "s3cret", quietLog())

	assert.Equal(t, http.StatusUnauthorized, do(t, router, "GET", "/api/orgs", "").Code)
	assert.Equal(t, http.StatusOK, do(t, router, "GET", "/api/orgs", "", "Authorization", "Bearer s3cret").Code)
	assert.Equal(t, http.StatusOK, do(t, router, "GET", "/health", "").Code)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	router := mockRouter(t)

	assert.Equal(t, http.StatusNotFound, do(t, router, "GET", "/api/nope", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, router, "PUT", "/api/cases", "").Code)
}

func TestBodyTooLarge(t *testing.T) {
	router := persistedRouter(t)
	big := bytes.Repeat([]byte("x"), maxBodyBytes+1)
	body := `{"caseNumber": "CS-BIG", "description": "` + string(big) + `"}`

	resp := do(t, router, "POST", "/api/cases", body)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
