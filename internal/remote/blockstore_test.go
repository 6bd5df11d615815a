package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBlockstoreRoundTrip(t *testing.T) {
	rows := map[string]Row{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/query":
			_ = json.NewEncoder(w).Encode(map[string]any{"ids": []string{"row-1"}})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/rows":
			var req struct {
				Properties map[string]any `json:"properties"`
				Body       string         `json:"body"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			rows["row-2"] = Row{Properties: req.Properties, Body: req.Body}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "row-2"})
		case r.Method == http.MethodPatch && r.URL.Path == "/v1/rows/row-2":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/rows/row-2":
			_ = json.NewEncoder(w).Encode(rows["row-2"])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	b := NewBlockstore(server.URL, "test-key")

	ids, err := b.Query(ctx, "anchor", map[string]string{"Session": "s1"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "row-1" {
		t.Errorf("unexpected query result %v", ids)
	}

	id, err := b.Create(ctx, "anchor", map[string]any{"Title": "t"}, "body text")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if id != "row-2" {
		t.Errorf("unexpected row id %q", id)
	}

	if err := b.Update(ctx, "row-2", map[string]any{"Status": "review"}, ""); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	row, err := b.Fetch(ctx, "row-2")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if row.Body != "body text" || row.Properties["Title"] != "t" {
		t.Errorf("unexpected row %+v", row)
	}
}

func TestBlockstoreStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusNotFound, KindNotFound},
		{http.StatusConflict, KindConflict},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusUnprocessableEntity, KindSchemaMismatch},
		{http.StatusInternalServerError, KindTransport},
	}
	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		b := NewBlockstore(server.URL, "k")
		_, err := b.Fetch(context.Background(), "row-1")
		server.Close()
		if err == nil {
			t.Errorf("status %d: expected error", tt.status)
			continue
		}
		if got := KindOf(err); got != tt.kind {
			t.Errorf("status %d: got kind %s, want %s", tt.status, got, tt.kind)
		}
	}
}
