package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/relaykit/relay/internal/broker"
)

func newTestRouter(t *testing.T) (*broker.Registry, *mux.Router) {
	t.Helper()

	reg := broker.NewRegistry(broker.Config{MaxQueueSize: 10, RingBufferSize: 10, Policy: broker.PolicyDropOldest})
	r := mux.NewRouter()
	NewHandlers(reg).RegisterRoutes(r)
	return reg, r
}

func doRequest(t *testing.T, r *mux.Router, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestIndex(t *testing.T) {
	_, r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["service"] != "relay" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestCreateTopic(t *testing.T) {
	_, r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodPost, "/topics", []byte(`{"name":"orders"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "created" || body["topic"] != "orders" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestCreateTopicDuplicate(t *testing.T) {
	reg, r := newTestRouter(t)
	if err := reg.CreateTopic("orders"); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, r, http.MethodPost, "/topics", []byte(`{"name":"orders"}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestCreateTopicBadRequests(t *testing.T) {
	_, r := newTestRouter(t)

	for name, body := range map[string]string{
		"missing name": `{}`,
		"empty name":   `{"name":""}`,
		"blank name":   `{"name":"   "}`,
		"invalid json": `{`,
	} {
		rec := doRequest(t, r, http.MethodPost, "/topics", []byte(body))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestDeleteTopic(t *testing.T) {
	reg, r := newTestRouter(t)
	if err := reg.CreateTopic("orders"); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, r, http.MethodDelete, "/topics/orders", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "deleted" || body["topic"] != "orders" {
		t.Fatalf("unexpected body: %v", body)
	}

	rec = doRequest(t, r, http.MethodDelete, "/topics/orders", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestListTopics(t *testing.T) {
	reg, r := newTestRouter(t)
	for _, name := range []string{"beta", "alpha"} {
		if err := reg.CreateTopic(name); err != nil {
			t.Fatal(err)
		}
	}

	rec := doRequest(t, r, http.MethodGet, "/topics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Topics []broker.TopicInfo `json:"topics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Topics) != 2 || body.Topics[0].Name != "alpha" || body.Topics[1].Name != "beta" {
		t.Fatalf("unexpected topics: %+v", body.Topics)
	}
}

func TestHealth(t *testing.T) {
	reg, r := newTestRouter(t)
	if err := reg.CreateTopic("orders"); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, r, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body broker.HealthInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Topics != 1 || body.Subscribers != 0 || body.UptimeSec < 0 {
		t.Fatalf("unexpected health: %+v", body)
	}
}

func TestStats(t *testing.T) {
	reg, r := newTestRouter(t)
	if err := reg.CreateTopic("orders"); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Publish("orders", broker.Message{ID: "11111111-1111-4111-8111-111111111111"}); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, r, http.MethodGet, "/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Topics map[string]broker.TopicStats `json:"topics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if s := body.Topics["orders"]; s.Messages != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestUnknownEndpoint(t *testing.T) {
	_, r := newTestRouter(t)

	for _, path := range []string{"/nope", "/topics/a/b"} {
		rec := doRequest(t, r, http.MethodGet, path, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, rec.Code)
		}
		if body := decodeBody(t, rec); body["error"] != "Endpoint not found" {
			t.Fatalf("%s: unexpected body: %v", path, body)
		}
	}

	rec := doRequest(t, r, http.MethodPut, "/topics", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unsupported method, got %d", rec.Code)
	}
}
