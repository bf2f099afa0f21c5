package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mochilink/mochi-sync/internal/api"
	"github.com/mochilink/mochi-sync/internal/audit"
	"github.com/mochilink/mochi-sync/internal/bridge"
	"github.com/mochilink/mochi-sync/internal/domain"
	"github.com/mochilink/mochi-sync/internal/listsync"
	"github.com/mochilink/mochi-sync/internal/storage/memory"
)

// testServer creates a test server with in-memory storage
type testServer struct {
	handler      http.Handler
	store        *memory.Store
	bridges      *bridge.Registry
	bootstrapKey string
	shimDir      string
}

func newTestServer(t *testing.T) *testServer {
	store := memory.New()
	t.Cleanup(func() { store.Close() })
	bootstrapKey := "test-bootstrap-key"

	bridges := bridge.NewRegistry()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := listsync.New(store, bridges, audit.NewStoreRecorder(store, log), log)
	handler := api.NewRouter(store, engine, bridges, bootstrapKey)

	return &testServer{
		handler:      handler,
		store:        store,
		bridges:      bridges,
		bootstrapKey: bootstrapKey,
		shimDir:      t.TempDir(),
	}
}

func (ts *testServer) request(method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	var reqBody io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// createServer registers a server through the API. When online is true a
// file-backed bridge is attached; otherwise the server has no handle and
// counts as offline.
func (ts *testServer) createServer(t *testing.T, id string, online bool) {
	t.Helper()
	rr := ts.request("POST", "/api/v1/servers", domain.CreateServerRequest{
		ID:           id,
		Name:         id,
		Address:      id + ".internal:25565",
		Capabilities: []string{domain.CapabilityWhitelist, domain.CapabilityBan},
	}, ts.bootstrapKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 creating server, got %d: %s", rr.Code, rr.Body.String())
	}
	if online {
		ts.bridges.Attach(id, bridge.NewFileShim(filepath.Join(ts.shimDir, id+".json")))
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("GET", "/health", nil, "")

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	var resp map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %s", resp["status"])
	}
}

func TestDocsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("GET", "/docs", nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Error("Expected docs body to be non-empty")
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	// Request without auth header
	rr := ts.request("GET", "/api/v1/servers", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}

	// Request with invalid auth header format
	req := httptest.NewRequest("GET", "/api/v1/servers", nil)
	req.Header.Set("Authorization", "Basic invalid")
	rr = httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}

	// Request with invalid API key
	rr = ts.request("GET", "/api/v1/servers", nil, "invalid-key")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}
}

func TestBootstrapKeyAuth(t *testing.T) {
	ts := newTestServer(t)

	// Bootstrap key should work when no API keys exist
	rr := ts.request("GET", "/api/v1/servers", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 with bootstrap key, got %d", rr.Code)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	ts := newTestServer(t)

	// Create API key using bootstrap key
	createReq := domain.CreateAPIKeyRequest{Name: "Test Key"}
	rr := ts.request("POST", "/api/v1/keys", createReq, ts.bootstrapKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var createResp domain.CreateAPIKeyResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &createResp)
	if createResp.Key == "" {
		t.Error("Expected key to be returned on creation")
	}
	if createResp.Name != "Test Key" {
		t.Errorf("Expected name 'Test Key', got '%s'", createResp.Name)
	}

	// Use the new API key
	rr = ts.request("GET", "/api/v1/servers", nil, createResp.Key)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 with new API key, got %d", rr.Code)
	}

	// Bootstrap key stops working once a real key exists
	rr = ts.request("GET", "/api/v1/servers", nil, ts.bootstrapKey)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for bootstrap key after key creation, got %d", rr.Code)
	}

	// List API keys
	rr = ts.request("GET", "/api/v1/keys", nil, createResp.Key)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	var keys []*domain.APIKey
	_ = json.Unmarshal(rr.Body.Bytes(), &keys)
	if len(keys) != 1 {
		t.Errorf("Expected 1 key, got %d", len(keys))
	}

	// Delete API key
	rr = ts.request("DELETE", "/api/v1/keys/"+createResp.ID, nil, createResp.Key)
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rr.Code)
	}
}

func TestServerCRUD(t *testing.T) {
	ts := newTestServer(t)

	// Create server
	createReq := domain.CreateServerRequest{
		ID:           "lobby",
		Name:         "Lobby",
		Address:      "lobby.internal:25565",
		Capabilities: []string{domain.CapabilityWhitelist},
	}
	rr := ts.request("POST", "/api/v1/servers", createReq, ts.bootstrapKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var server domain.Server
	_ = json.Unmarshal(rr.Body.Bytes(), &server)
	if server.ID != "lobby" || server.Name != "Lobby" {
		t.Errorf("Unexpected server: %+v", server)
	}

	// Duplicate id conflicts
	rr = ts.request("POST", "/api/v1/servers", createReq, ts.bootstrapKey)
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for duplicate id, got %d", rr.Code)
	}

	// Invalid id rejected
	rr = ts.request("POST", "/api/v1/servers", domain.CreateServerRequest{ID: "9bad id!"}, ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid id, got %d", rr.Code)
	}

	// Get server (note trailing slash for the subrouter)
	rr = ts.request("GET", "/api/v1/servers/lobby/", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	// List servers
	rr = ts.request("GET", "/api/v1/servers", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	var servers []map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &servers)
	if len(servers) != 1 {
		t.Errorf("Expected 1 server, got %d", len(servers))
	}
	if servers[0]["isOnline"] != false {
		t.Error("Expected server without a bridge to report offline")
	}

	// Update server
	newAddr := "lobby2.internal:25565"
	rr = ts.request("PUT", "/api/v1/servers/lobby/", domain.UpdateServerRequest{Address: &newAddr}, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	var updated domain.Server
	_ = json.Unmarshal(rr.Body.Bytes(), &updated)
	if updated.Address != newAddr {
		t.Errorf("Expected address %q, got %q", newAddr, updated.Address)
	}

	// Delete server
	rr = ts.request("DELETE", "/api/v1/servers/lobby/", nil, ts.bootstrapKey)
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rr.Code)
	}

	// Verify deleted
	rr = ts.request("GET", "/api/v1/servers/lobby/", nil, ts.bootstrapKey)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestWhitelistEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.createServer(t, "lobby", true)

	// Add a player; the file shim is reachable so the op applies directly.
	addReq := domain.AddWhitelistRequest{PlayerID: "alice", PlayerName: "Alice", Executor: "admin"}
	rr := ts.request("POST", "/api/v1/servers/lobby/whitelist", addReq, ts.bootstrapKey)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var result map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &result)
	if result["queued"] != false {
		t.Error("Expected online add to not be queued")
	}

	// Invalid player id rejected
	rr = ts.request("POST", "/api/v1/servers/lobby/whitelist", domain.AddWhitelistRequest{PlayerID: "x"}, ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for short player id, got %d", rr.Code)
	}

	// List
	rr = ts.request("GET", "/api/v1/servers/lobby/whitelist", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	var entries []domain.WhitelistEntry
	_ = json.Unmarshal(rr.Body.Bytes(), &entries)
	if len(entries) != 1 || entries[0].PlayerID != "alice" {
		t.Errorf("Unexpected whitelist: %+v", entries)
	}

	// Check
	rr = ts.request("GET", "/api/v1/servers/lobby/whitelist/alice", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	var check map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &check)
	if check["whitelisted"] != true {
		t.Error("Expected alice to be whitelisted")
	}

	// Remove
	rr = ts.request("DELETE", "/api/v1/servers/lobby/whitelist/alice", nil, ts.bootstrapKey)
	if rr.Code != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d", rr.Code)
	}
	rr = ts.request("GET", "/api/v1/servers/lobby/whitelist/alice", nil, ts.bootstrapKey)
	_ = json.Unmarshal(rr.Body.Bytes(), &check)
	if check["whitelisted"] != false {
		t.Error("Expected alice removed")
	}

	// Unknown server yields 404
	rr = ts.request("GET", "/api/v1/servers/ghost/whitelist", nil, ts.bootstrapKey)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestWhitelistOfflineQueues(t *testing.T) {
	ts := newTestServer(t)
	ts.createServer(t, "lobby", false)

	addReq := domain.AddWhitelistRequest{PlayerID: "alice", Executor: "admin"}
	rr := ts.request("POST", "/api/v1/servers/lobby/whitelist", addReq, ts.bootstrapKey)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var result map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &result)
	if result["queued"] != true {
		t.Error("Expected offline add to be queued")
	}

	// Pending shows the op
	rr = ts.request("GET", "/api/v1/servers/lobby/whitelist/pending", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	var ops []domain.WhitelistOp
	_ = json.Unmarshal(rr.Body.Bytes(), &ops)
	if len(ops) != 1 || ops[0].PlayerID != "alice" {
		t.Errorf("Unexpected pending ops: %+v", ops)
	}

	// The check endpoint reflects queued intent
	rr = ts.request("GET", "/api/v1/servers/lobby/whitelist/alice", nil, ts.bootstrapKey)
	var check map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &check)
	if check["whitelisted"] != true {
		t.Error("Expected queued add to count as whitelisted")
	}
}

func TestBanEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.createServer(t, "survival", true)

	// Ban a player
	banReq := domain.AddBanRequest{
		BanType:  domain.BanTypePlayer,
		Target:   "griefer",
		Reason:   "griefing",
		Executor: "admin",
	}
	rr := ts.request("POST", "/api/v1/servers/survival/bans", banReq, ts.bootstrapKey)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}

	// Unknown ban type rejected
	rr = ts.request("POST", "/api/v1/servers/survival/bans", domain.AddBanRequest{BanType: "mac", Target: "x"}, ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown ban type, got %d", rr.Code)
	}

	// Invalid IP target rejected
	rr = ts.request("POST", "/api/v1/servers/survival/bans", domain.AddBanRequest{BanType: domain.BanTypeIP, Target: "not-an-ip"}, ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid IP, got %d", rr.Code)
	}

	// List
	rr = ts.request("GET", "/api/v1/servers/survival/bans", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	var bans []domain.BanEntry
	_ = json.Unmarshal(rr.Body.Bytes(), &bans)
	if len(bans) != 1 || bans[0].Target != "griefer" {
		t.Errorf("Unexpected bans: %+v", bans)
	}

	// Check
	rr = ts.request("GET", "/api/v1/servers/survival/bans/player/griefer", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	var check map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &check)
	if check["banned"] != true {
		t.Error("Expected griefer to be banned")
	}

	// Unban
	rr = ts.request("DELETE", "/api/v1/servers/survival/bans/player/griefer", nil, ts.bootstrapKey)
	if rr.Code != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d", rr.Code)
	}
	rr = ts.request("GET", "/api/v1/servers/survival/bans/player/griefer", nil, ts.bootstrapKey)
	_ = json.Unmarshal(rr.Body.Bytes(), &check)
	if check["banned"] != false {
		t.Error("Expected griefer unbanned")
	}

	// The lifted ban remains as history
	rr = ts.request("GET", "/api/v1/servers/survival/bans?includeInactive=true", nil, ts.bootstrapKey)
	_ = json.Unmarshal(rr.Body.Bytes(), &bans)
	if len(bans) != 1 || bans[0].IsActive {
		t.Errorf("Expected 1 inactive historical ban, got %+v", bans)
	}
}

func TestSyncEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.createServer(t, "lobby", true)

	// Force sync
	rr := ts.request("POST", "/api/v1/servers/lobby/sync", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// Status
	rr = ts.request("GET", "/api/v1/servers/lobby/sync/status", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	var statuses []domain.SyncStatus
	_ = json.Unmarshal(rr.Body.Bytes(), &statuses)
	if len(statuses) != 2 {
		t.Fatalf("Expected 2 statuses, got %d", len(statuses))
	}
	for _, st := range statuses {
		if !st.IsOnline {
			t.Errorf("Expected %s to report online", st.ListType)
		}
		if st.LastSync.IsZero() {
			t.Errorf("Expected %s to have a sync stamp", st.ListType)
		}
	}

	// Force sync against an offline server is a 502
	ts.createServer(t, "survival", false)
	rr = ts.request("POST", "/api/v1/servers/survival/sync", nil, ts.bootstrapKey)
	if rr.Code != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", rr.Code)
	}

	// Fleet-wide force sync skips the offline server instead of failing
	rr = ts.request("POST", "/api/v1/sync", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var all map[string][]domain.SyncStatus
	_ = json.Unmarshal(rr.Body.Bytes(), &all)
	if len(all) != 2 {
		t.Fatalf("Expected statuses for 2 servers, got %d", len(all))
	}

	rr = ts.request("GET", "/api/v1/sync/status", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createServer(t, "lobby", true)

	addReq := domain.AddWhitelistRequest{PlayerID: "alice", Executor: "admin"}
	ts.request("POST", "/api/v1/servers/lobby/whitelist", addReq, ts.bootstrapKey)

	rr := ts.request("GET", "/api/v1/stats", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var stats domain.EngineStats
	_ = json.Unmarshal(rr.Body.Bytes(), &stats)
	if stats.ServersKnown != 1 || stats.ServersOnline != 1 {
		t.Errorf("Unexpected server counts: %+v", stats)
	}
	if stats.TotalEntries != 1 {
		t.Errorf("Expected 1 entry, got %d", stats.TotalEntries)
	}
}

func TestAuditEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createServer(t, "lobby", true)

	addReq := domain.AddWhitelistRequest{PlayerID: "alice", Executor: "admin"}
	ts.request("POST", "/api/v1/servers/lobby/whitelist", addReq, ts.bootstrapKey)

	rr := ts.request("GET", "/api/v1/audit?serverId=lobby&operation=whitelist_add", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var records []domain.AuditRecord
	_ = json.Unmarshal(rr.Body.Bytes(), &records)
	if len(records) != 1 {
		t.Fatalf("Expected 1 audit record, got %d", len(records))
	}
	if records[0].Result != domain.AuditResultSuccess || records[0].Executor != "admin" {
		t.Errorf("Unexpected audit record: %+v", records[0])
	}

	// Bad limit rejected
	rr = ts.request("GET", "/api/v1/audit?limit=zero", nil, ts.bootstrapKey)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}
