package rest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"quarantine-proxy/internal/message"
	"quarantine-proxy/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	st := store.New()
	srv := httptest.NewServer(NewServer(st, testLogger()))
	t.Cleanup(srv.Close)
	return srv, st
}

func TestHandleListEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/quarantine")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var views map[string]recordView
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("len(views) = %d, want 0", len(views))
	}
}

func TestHandleListAndGet(t *testing.T) {
	srv, st := newTestServer(t)
	rec := st.Insert([]byte("raw message bytes"), message.Metadata{
		Sender: "billing@vendor.example", Subject: "Invoice", Amount: 5000,
	})

	resp, err := http.Get(srv.URL + "/quarantine")
	if err != nil {
		t.Fatalf("GET list: %v", err)
	}
	var views map[string]recordView
	json.NewDecoder(resp.Body).Decode(&views)
	resp.Body.Close()
	if len(views) != 1 {
		t.Fatalf("len(views) = %d, want 1", len(views))
	}
	listed, ok := views[rec.ID]
	if !ok {
		t.Fatalf("expected record %q in list, got: %+v", rec.ID, views)
	}
	if listed.Meta.Sender != "billing@vendor.example" || listed.Meta.Amount != 5000 {
		t.Errorf("listed.Meta = %+v", listed.Meta)
	}

	resp2, err := http.Get(srv.URL + "/quarantine/" + rec.ID)
	if err != nil {
		t.Fatalf("GET one: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp2.StatusCode)
	}
	var view recordView
	json.NewDecoder(resp2.Body).Decode(&view)
	if view.Meta.Amount != 5000 {
		t.Errorf("Meta.Amount = %v, want 5000", view.Meta.Amount)
	}
	if view.Meta.Subject != "Invoice" {
		t.Errorf("Meta.Subject = %q, want Invoice", view.Meta.Subject)
	}
	if string(view.Content) != "raw message bytes" {
		t.Errorf("Content = %q", view.Content)
	}
}

func TestHandleGetNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/quarantine/nonexistent")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleApprove(t *testing.T) {
	srv, st := newTestServer(t)
	rec := st.Insert([]byte("raw"), message.Metadata{Amount: 100})

	resp, err := http.Post(srv.URL+"/quarantine/"+rec.ID+"/approve", "application/json", nil)
	if err != nil {
		t.Fatalf("POST approve: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	got, _ := st.Get(rec.ID)
	if got.Status != store.Approved {
		t.Errorf("Status = %q, want approved", got.Status)
	}
}

func TestHandleDeleteThenApproveConflict(t *testing.T) {
	srv, st := newTestServer(t)
	rec := st.Insert([]byte("raw"), message.Metadata{Amount: 100})

	resp, err := http.Post(srv.URL+"/quarantine/"+rec.ID+"/delete", "application/json", nil)
	if err != nil {
		t.Fatalf("POST delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp2, err := http.Post(srv.URL+"/quarantine/"+rec.ID+"/approve", "application/json", nil)
	if err != nil {
		t.Fatalf("POST approve: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp2.StatusCode)
	}
}

func TestHandleApproveUnknownID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/quarantine/missing/approve", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
