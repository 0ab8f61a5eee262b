package transact

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableStoreCreate(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody Record
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "svc_account", user)
		assert.Equal(t, "hunter2", pass)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{
			"sys_id":            "abc123",
			"short_description": "remote",
		}})
	}))
	defer server.Close()

	store := NewTableStore(server.URL, WithBasicAuth("svc_account", "hunter2"))
	rec, err := store.Create(context.Background(), "incident", Record{"short_description": "remote"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/incident", gotPath)
	assert.Equal(t, "remote", gotBody["short_description"])
	assert.Equal(t, "abc123", rec.SysID())
}

func TestTableStoreUpdateAndDelete(t *testing.T) {
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodPatch:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{
				"sys_id": "abc123", "priority": "1",
			}})
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer server.Close()

	store := NewTableStore(server.URL)
	ctx := context.Background()

	rec, err := store.Update(ctx, "incident", "abc123", Record{"priority": "1"})
	require.NoError(t, err)
	assert.Equal(t, "1", rec["priority"])

	require.NoError(t, store.Delete(ctx, "incident", "abc123"))

	assert.Equal(t, []string{
		"PATCH /incident/abc123",
		"DELETE /incident/abc123",
	}, requests)
}

func TestTableStoreReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"insufficient rights"}}`, http.StatusForbidden)
	}))
	defer server.Close()

	store := NewTableStore(server.URL)
	_, err := store.Create(context.Background(), "incident", Record{"x": "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
	assert.Contains(t, err.Error(), "insufficient rights")
}

func TestTransactionRollbackOverTableAPI(t *testing.T) {
	// A tiny in-process table API: creates succeed until the named table
	// rejects, exercising the full commit-then-compensate path over HTTP.
	backing := NewMemoryRecordStore()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		switch r.Method {
		case http.MethodPost:
			table := r.URL.Path[1:]
			if table == "problem" {
				http.Error(w, `{"error":{"message":"table is read-only"}}`, http.StatusBadRequest)
				return
			}
			var data Record
			json.NewDecoder(r.Body).Decode(&data)
			rec, err := backing.Create(ctx, table, data)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"result": rec})
		case http.MethodDelete:
			table, id := splitRecordPath(r.URL.Path)
			if err := backing.Delete(ctx, table, id); err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer server.Close()

	store := NewTableStore(server.URL)
	tx, err := NewCoordinator().Begin(store, nil)
	require.NoError(t, err)
	_, err = tx.Create("incident", Record{"short_description": "will be undone"})
	require.NoError(t, err)
	_, err = tx.Create("problem", Record{"short_description": "rejected"})
	require.NoError(t, err)

	result, err := tx.Commit(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.True(t, result.RollbackPerformed)
	assert.Empty(t, result.RollbackErrors)

	assert.Empty(t, backing.List("incident"), "compensation deleted the created record")
}

func splitRecordPath(path string) (table, id string) {
	rest := path[1:]
	for i := len(rest) - 1; i >= 0; i-- {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:]
		}
	}
	return rest, ""
}
