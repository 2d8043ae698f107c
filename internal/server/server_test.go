package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movebox/customerdupes/internal/config"
	"github.com/movebox/customerdupes/internal/database"
	"github.com/movebox/customerdupes/internal/dedupe"
	"github.com/movebox/customerdupes/internal/models"
)

const testKey = "test-key"

type testEnv struct {
	db      *database.DB
	handler http.Handler
	key     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	generated, err := EnsureAPIKey(db, testKey)
	require.NoError(t, err)
	require.Empty(t, generated)

	engine := dedupe.NewEngine(db, dedupe.NewGreedyGrouper(dedupe.DefaultConfig()))
	engine.SetObserver(db.RecordMerge)

	srv := New(config.DefaultConfig(), db, engine, nil, "test", "now")
	return &testEnv{db: db, handler: srv.Handler(), key: testKey}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if e.key != "" {
		req.Header.Set("Authorization", "Bearer "+e.key)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seedPair stores two records that match on name, email and phone.
func (e *testEnv) seedPair(t *testing.T, a, b string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.db.CreateCustomer(ctx, &models.Customer{
		ID: a, Name: "Max Mustermann", Email: "max@example.de", Phone: "0170 1234567",
		Notes: "Klavier", Tags: []string{"vip"},
	}))
	require.NoError(t, e.db.CreateCustomer(ctx, &models.Customer{
		ID: b, Name: "Max Mustermann", Email: "MAX@example.de", Phone: "0170-1234567",
		Notes: "3. OG", Tags: []string{"klavier"},
	}))
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)
	env.key = ""
	rec := env.do(t, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t)

	env.key = ""
	assert.Equal(t, http.StatusUnauthorized, env.do(t, "GET", "/api/v1/customers", nil).Code)

	env.key = "wrong"
	assert.Equal(t, http.StatusUnauthorized, env.do(t, "GET", "/api/v1/customers", nil).Code)

	env.key = ""
	rec := env.do(t, "GET", "/api/v1/customers?api_key="+testKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCustomerCRUD(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/v1/customers", map[string]any{"email": "x@example.de"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "name is required")

	rec = env.do(t, "POST", "/api/v1/customers", map[string]any{"name": "Erika Schulz", "tags": []string{"a"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[models.Customer](t, rec)
	require.NotEmpty(t, created.ID)

	rec = env.do(t, "PATCH", "/api/v1/customers/"+created.ID, map[string]any{"phone": "040 123"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[models.Customer](t, rec)
	assert.Equal(t, "040 123", updated.Phone)
	assert.Equal(t, "Erika Schulz", updated.Name)

	rec = env.do(t, "GET", "/api/v1/customers", nil)
	assert.Equal(t, 1, int(decode[map[string]any](t, rec)["count"].(float64)))

	assert.Equal(t, http.StatusNoContent, env.do(t, "DELETE", "/api/v1/customers/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/api/v1/customers/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "DELETE", "/api/v1/customers/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "PATCH", "/api/v1/customers/missing", map[string]any{"name": "x"}).Code)
}

func TestDuplicateListAndFilter(t *testing.T) {
	env := newTestEnv(t)
	env.seedPair(t, "a", "b")

	type listResp struct {
		Groups []dedupe.Group `json:"groups"`
		Count  int            `json:"count"`
	}

	rec := env.do(t, "GET", "/api/v1/duplicates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listResp](t, rec)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "a", list.Groups[0].MasterID)
	assert.Equal(t, dedupe.MatchExact, list.Groups[0].MatchType)

	list = decode[listResp](t, env.do(t, "GET", "/api/v1/duplicates?type=potential", nil))
	assert.Zero(t, list.Count)

	list = decode[listResp](t, env.do(t, "GET", "/api/v1/duplicates?q=MUSTER", nil))
	assert.Equal(t, 1, list.Count)

	assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/v1/duplicates?type=bogus", nil).Code)
}

func TestProposalAndMerge(t *testing.T) {
	env := newTestEnv(t)
	env.seedPair(t, "a", "b")

	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/api/v1/duplicates/b/proposal", nil).Code)

	rec := env.do(t, "GET", "/api/v1/duplicates/a/proposal", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Proposal dedupe.Proposal `json:"proposal"`
	}](t, rec)
	p := resp.Proposal
	assert.Equal(t, []string{"a", "b"}, p.SelectedIDs)
	require.NotNil(t, p.MergedData.Notes)
	assert.Equal(t, "Klavier\n\n3. OG", *p.MergedData.Notes)

	city := "Hamburg"
	p.MergedData.ToAddress = &city
	rec = env.do(t, "POST", "/api/v1/duplicates/merge", p)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := env.db.GetCustomer(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "Hamburg", got.ToAddress)
	assert.Equal(t, []string{"vip", "klavier"}, got.Tags)
	_, err = env.db.GetCustomer(context.Background(), "b")
	assert.ErrorIs(t, err, database.ErrNotFound)

	statsResp := decode[struct {
		Stats        models.Stats `json:"stats"`
		DatabaseSize int64        `json:"database_size_bytes"`
	}](t, env.do(t, "GET", "/api/v1/duplicates/stats", nil))
	assert.Positive(t, statsResp.DatabaseSize)
	stats := statsResp.Stats
	assert.Equal(t, 1, stats.TotalCustomers)
	assert.Zero(t, stats.TotalGroups)
	assert.Equal(t, 1, stats.Processed)

	logs := decode[struct {
		Merges []models.MergeLog `json:"merges"`
	}](t, env.do(t, "GET", "/api/v1/merges?limit=5", nil)).Merges
	require.Len(t, logs, 1)
	assert.Equal(t, models.MergeModeManual, logs[0].Mode)
	assert.Equal(t, []string{"b"}, logs[0].RemovedIDs)
}

func TestMerge_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.seedPair(t, "a", "b")

	rec := env.do(t, "POST", "/api/v1/duplicates/merge", dedupe.Proposal{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The master update succeeds, the delete of an unknown id does not.
	rec = env.do(t, "POST", "/api/v1/duplicates/merge", dedupe.Proposal{SelectedIDs: []string{"a", "ghost"}})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "ghost", body["record_id"])
	assert.Equal(t, "delete", body["step"])

	logs, err := env.db.RecentMerges(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.NotEmpty(t, logs[0].ErrorMessage)
}

func TestMerge_RejectsSurvivorInDeleteList(t *testing.T) {
	env := newTestEnv(t)
	env.seedPair(t, "a", "b")

	for _, ids := range [][]string{{"a", "a"}, {"a", "b", "a"}, {"a", ""}, {"a", "b", "b"}} {
		rec := env.do(t, "POST", "/api/v1/duplicates/merge", dedupe.Proposal{SelectedIDs: ids})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%v", ids)
	}

	for _, id := range []string{"a", "b"} {
		_, err := env.db.GetCustomer(context.Background(), id)
		assert.NoError(t, err, "customer %s must still be live", id)
	}
	logs, err := env.db.RecentMerges(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestMerge_PartialSelectionLogsOnlyRemoved(t *testing.T) {
	env := newTestEnv(t)
	env.seedPair(t, "a", "b")
	require.NoError(t, env.db.CreateCustomer(context.Background(), &models.Customer{
		ID: "c", Name: "Max Mustermann", Email: "max@example.de", Phone: "01701234567",
	}))

	resp := decode[struct {
		Group    dedupe.Group    `json:"group"`
		Proposal dedupe.Proposal `json:"proposal"`
	}](t, env.do(t, "GET", "/api/v1/duplicates/a/proposal", nil))
	require.Len(t, resp.Group.Members, 3)

	p := resp.Proposal
	p.SelectedIDs = []string{"a", "b"}
	rec := env.do(t, "POST", "/api/v1/duplicates/merge", p)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err := env.db.GetCustomer(context.Background(), "c")
	assert.NoError(t, err, "unselected member stays live")

	logs, err := env.db.RecentMerges(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "a", logs[0].MasterID)
	assert.Equal(t, []string{"b"}, logs[0].RemovedIDs)
}

func TestAutoMerge(t *testing.T) {
	env := newTestEnv(t)
	env.seedPair(t, "a", "b")
	require.NoError(t, env.db.CreateCustomer(context.Background(), &models.Customer{ID: "c", Name: "Anna Schmidt"}))

	rec := env.do(t, "POST", "/api/v1/duplicates/auto-merge", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, float64(1), body["succeeded"])
	assert.Equal(t, float64(0), body["failed"])

	n, err := env.db.CustomerCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDeleteDuplicates(t *testing.T) {
	env := newTestEnv(t)
	env.seedPair(t, "a", "b")

	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", "/api/v1/duplicates/delete", map[string]any{}).Code)

	rec := env.do(t, "POST", "/api/v1/duplicates/delete", map[string]any{"master_ids": []string{"a", "nope"}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, float64(1), body["succeeded"])
	assert.Equal(t, []any{"nope"}, body["missing"])

	got, err := env.db.GetCustomer(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "Klavier", got.Notes, "delete mode does not merge fields")
}

func TestAPIKeyRegenerate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/v1/apikey/regenerate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	newKey := decode[map[string]string](t, rec)["api_key"]
	require.NotEmpty(t, newKey)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, "GET", "/api/v1/customers", nil).Code)
	env.key = newKey
	assert.Equal(t, http.StatusOK, env.do(t, "GET", "/api/v1/customers", nil).Code)
}

func TestEnsureAPIKey_GeneratesOnce(t *testing.T) {
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	key, err := EnsureAPIKey(db, "")
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	again, err := EnsureAPIKey(db, "")
	require.NoError(t, err)
	assert.Empty(t, again)
}
