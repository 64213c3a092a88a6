package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posbridge/posbridge/pkg/apierrors"
	"github.com/posbridge/posbridge/pkg/backoffice"
	"github.com/posbridge/posbridge/pkg/engine"
	"github.com/posbridge/posbridge/pkg/pos"
	"github.com/posbridge/posbridge/pkg/stores"
)

// backofficeServer serves login and inventory for a fixed set of accounts.
type backofficeServer struct {
	mu        sync.Mutex
	passwords map[string]string
	inventory map[string]int
	tokens    map[string]bool
	seq       int
}

func (s *backofficeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	reply := func(status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	switch r.URL.Path {
	case "/login":
		user, _ := payload["username"].(string)
		pass, _ := payload["password"].(string)
		if want, ok := s.passwords[user]; !ok || want != pass {
			reply(http.StatusForbidden, map[string]interface{}{"result": false, "message": "bad credentials"})
			return
		}
		s.seq++
		token := fmt.Sprintf("tok-%d", s.seq)
		s.tokens[token] = true
		reply(http.StatusOK, map[string]interface{}{
			"result": true,
			"data":   map[string]interface{}{"sessionId": token, "userId": s.seq},
		})
	case "/inventory/list":
		cookie, err := r.Cookie(backoffice.SessionCookieName)
		if err != nil || !s.tokens[cookie.Value] {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		locID, _ := payload["locId"].(string)
		items := make([]map[string]interface{}, 0, s.inventory[locID])
		for i := 0; i < s.inventory[locID]; i++ {
			items = append(items, map[string]interface{}{
				"sku":         fmt.Sprintf("%s-%03d", locID, i),
				"name":        fmt.Sprintf("Item %d", i),
				"category":    "General",
				"description": "Stock item",
				"quantity":    i % 5,
				"price":       2.5,
			})
		}
		reply(http.StatusOK, map[string]interface{}{"result": true, "data": items})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newScenarioStore(t *testing.T) *stores.SQLiteStore {
	t.Helper()
	store, err := stores.NewSQLiteStore(stores.Config{Path: filepath.Join(t.TempDir(), "scenario.db")})
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestCycleWithRejectedAccount runs inventory and enrichment over three
// locations where one location's backoffice login is rejected.
func TestCycleWithRejectedAccount(t *testing.T) {
	bo := &backofficeServer{
		passwords: map[string]string{"acct-a": "pa", "acct-b": "pb", "acct-c": "pc"},
		inventory: map[string]int{"A": 42, "B": 7, "C": 10},
		tokens:    make(map[string]bool),
	}
	boSrv := httptest.NewServer(bo)
	t.Cleanup(boSrv.Close)

	var catalogCalls int
	var catalogMu sync.Mutex
	posSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		catalogMu.Lock()
		catalogCalls++
		catalogMu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(posSrv.Close)

	noSleep := func(context.Context, time.Duration) error { return nil }
	pool, err := backoffice.NewPool(backoffice.Config{
		BaseURL:        boSrv.URL,
		RequestTimeout: 5 * time.Second,
		Sleep:          noSleep,
	}, []backoffice.Account{
		{Name: "acct-a", Credentials: backoffice.Credentials{Username: "acct-a", Password: "pa"}},
		{Name: "acct-b", Credentials: backoffice.Credentials{Username: "acct-b", Password: "wrong"}},
		{Name: "acct-c", Credentials: backoffice.Credentials{Username: "acct-c", Password: "pc"}},
	})
	require.NoError(t, err)

	store := newScenarioStore(t)
	catalog := pos.NewReportingClient(pos.Config{
		BaseURL:        posSrv.URL,
		RequestTimeout: 5 * time.Second,
		Sleep:          noSleep,
	})

	locations := []engine.LocationConfig{
		{LocationID: "A", Name: "Alpha", APIKey: "ka", BackofficeAccount: "acct-a"},
		{LocationID: "B", Name: "Beta", APIKey: "kb", BackofficeAccount: "acct-b"},
		{LocationID: "C", Name: "Gamma", APIKey: "kc", BackofficeAccount: "acct-c"},
	}

	orch, err := engine.NewOrchestrator(engine.OrchestratorConfig{
		Locations: locations,
		Tasks: map[engine.Phase]engine.Task{
			engine.PhaseInventory:  &InventoryTask{Backoffice: PoolResolver(pool), Store: store},
			engine.PhaseEnrichment: &EnrichmentTask{Catalog: catalog, Store: store},
		},
		Runner: engine.NewPhaseRunner(engine.WithMaxParallel(3)),
	})
	require.NoError(t, err)

	cycle := orch.RunCycle(context.Background())

	assert.Equal(t, 1, cycle.TotalErrors)
	assert.Equal(t, 52, cycle.TotalSynced)
	assert.Equal(t, engine.CycleStatusPartial, cycle.Status())

	inv := cycle.Phase(engine.PhaseInventory)
	require.NotNil(t, inv)
	require.Len(t, inv.Results, 3)
	assert.True(t, inv.Results[0].Success)
	assert.Equal(t, 42, inv.Results[0].Counts.Created)
	assert.False(t, inv.Results[1].Success)
	assert.Equal(t, "B", inv.Results[1].LocationID)
	assert.Equal(t, string(apierrors.ClassAuth), inv.Results[1].ErrorKind)
	assert.True(t, inv.Results[2].Success)
	assert.Equal(t, 10, inv.Results[2].Counts.Created)

	enrich := cycle.Phase(engine.PhaseEnrichment)
	require.NotNil(t, enrich)
	require.Len(t, enrich.Results, 3)
	for _, r := range enrich.Results {
		assert.True(t, r.Success, "enrichment for %s", r.LocationID)
	}
	assert.Zero(t, catalogCalls)

	items, err := store.ListInventory(context.Background(), "A")
	require.NoError(t, err)
	assert.Len(t, items, 42)
	items, err = store.ListInventory(context.Background(), "B")
	require.NoError(t, err)
	assert.Empty(t, items)
}
