package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/penny-assistant/penny/internal/calendar"
	"github.com/penny-assistant/penny/internal/lists"
	"github.com/penny-assistant/penny/internal/retrieval"
	"github.com/penny-assistant/penny/internal/storage"
)

// testCaps serves every capability from its local tier over a shared
// in-memory store, with the mock tier behind retrieval.
type testCaps struct {
	lists     *lists.Service
	retrieval *retrieval.Service
	calendar  *calendar.Service
}

func (c *testCaps) Lists() *lists.Service         { return c.lists }
func (c *testCaps) Retrieval() *retrieval.Service { return c.retrieval }
func (c *testCaps) Calendar() *calendar.Service   { return c.calendar }

func newTestServer(t *testing.T, token string) (*httptest.Server, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	caps := &testCaps{
		lists:     lists.NewService(nil, lists.NewLocalBackend(store)),
		retrieval: retrieval.NewService(nil, retrieval.NewLocalBackend(store), retrieval.NewMockBackend()),
		calendar:  calendar.NewService(nil, calendar.NewLocalBackend(store)),
	}
	ctx := context.Background()
	caps.lists.Initialize(ctx)
	caps.retrieval.Initialize(ctx)
	caps.calendar.Initialize(ctx)

	srv := httptest.NewServer(NewAppHandler(AppDeps{Caps: caps, Store: store, Token: token}))
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var env map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	return env
}

func TestHealthIsOpen(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	resp, err := http.Get(srv.URL + "/v1/health")
	if err != nil {
		t.Fatalf("GET /v1/health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}

func TestBearerAuth(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/status", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/status", "wrong", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/status", "secret", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", resp.StatusCode)
	}
}

func TestListLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/lists", "", map[string]string{
		"owner_id": "alice", "name": "groceries",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d, want 200", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env["outcome"] != "success" {
		t.Fatalf("create outcome = %v", env["outcome"])
	}
	id, _ := env["payload"].(string)
	if id == "" {
		t.Fatal("create returned empty id")
	}

	resp = doJSON(t, http.MethodPut, srv.URL+"/v1/lists/"+id+"/items", "", map[string]any{
		"items": []string{"milk", "eggs"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, want 200", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/lists?owner_id=alice", "", nil)
	env = decodeEnvelope(t, resp)
	payload, _ := env["payload"].([]any)
	if len(payload) != 1 {
		t.Fatalf("got %d lists, want 1", len(payload))
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/v1/lists/"+id, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", resp.StatusCode)
	}
}

func TestCreateListValidation(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/lists", "", map[string]string{"owner_id": "alice"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing name: status = %d, want 400", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/lists", strings.NewReader("{not json"))
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", resp2.StatusCode)
	}
}

// Exhausting the chain on a terminal error maps to 502 with a failure
// envelope.
func TestDeleteUnknownListIsBadGateway(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := doJSON(t, http.MethodDelete, srv.URL+"/v1/lists/no-such-id", "", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env["outcome"] != "failure" {
		t.Errorf("outcome = %v, want failure", env["outcome"])
	}
	if env["diagnostic"] == "" {
		t.Error("failure envelope has no diagnostic")
	}
}

// With nothing stored, the query falls through to the mock tier but the
// caller still gets an answer.
func TestQueryFallsBackToMock(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/query", "", map[string]string{
		"question": "where are my keys", "owner_id": "alice",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env["served_by"] != "mock" {
		t.Errorf("served_by = %v, want mock", env["served_by"])
	}
	payload, _ := env["payload"].(map[string]any)
	answer, _ := payload["answer"].(string)
	if answer == "" {
		t.Error("empty answer")
	}
}

func TestAddContextThenQuery(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/context", "", map[string]string{
		"owner_id": "alice",
		"source":   "notes",
		"content":  "The wifi password is hunter2.",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add context status = %d, want 200", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env["outcome"] != "success" {
		t.Fatalf("store outcome = %v: %v", env["outcome"], env["diagnostic"])
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/query", "", map[string]string{
		"question": "what is the wifi password", "owner_id": "alice",
	})
	env = decodeEnvelope(t, resp)
	if env["served_by"] != "local" {
		t.Errorf("served_by = %v, want local", env["served_by"])
	}
	payload, _ := env["payload"].(map[string]any)
	ctxChunks, _ := payload["context"].([]any)
	if len(ctxChunks) == 0 {
		t.Fatal("no context returned")
	}
	if got, _ := ctxChunks[0].(string); !strings.Contains(got, "hunter2") {
		t.Errorf("top context = %q", got)
	}
}

func TestIngestDocumentQueuesJob(t *testing.T) {
	srv, store := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/documents", "", map[string]string{
		"owner_id": "alice", "path": "/tmp/report.pdf",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "queued" || body["id"] == "" {
		t.Fatalf("body = %v", body)
	}

	job, err := store.ClaimNextJob([]string{"ingest_document"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil {
		t.Fatal("no job enqueued")
	}
	if !strings.Contains(job.PayloadJSON, "/tmp/report.pdf") {
		t.Errorf("payload = %q", job.PayloadJSON)
	}
}

func TestUpcomingEventsDefaultsMax(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/calendar/events?owner_id=alice", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	payload, _ := env["payload"].([]any)
	if len(payload) != 5 {
		t.Errorf("got %d events, want the default 5", len(payload))
	}
}

func TestCreateEventValidation(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/calendar/events", "", map[string]string{
		"owner_id": "alice", "title": "no start",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing start: status = %d, want 400", resp.StatusCode)
	}
}
