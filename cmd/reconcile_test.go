package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"fire/command/internal/dispatch"
	"fire/command/internal/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestReconcile(t *testing.T) {
	var gotAuth, gotPath, gotMethod string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotMethod = r.Method
		_ = json.NewEncoder(w).Encode(server.ReconcileResponse{
			Drifted: true,
			Before:  dispatch.Summary{Pending: 3, Version: 7},
			After:   dispatch.Summary{Pending: 2, Dispatched: 1, Version: 8},
		})
	}))
	defer ts.Close()

	report, err := requestReconcile(context.Background(), ts.Client(), ts.URL+"/", "tok")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/v1/summary/reconcile", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.True(t, report.Drifted)
	assert.Equal(t, 2, report.After.Pending)

	var out bytes.Buffer
	require.NoError(t, printReconcile(&out, report))
	assert.Contains(t, out.String(), "STATUS")
	assert.Regexp(t, `PENDING\s+3\s+2`, out.String())
	assert.Regexp(t, `DISPATCHED\s+0\s+1`, out.String())
	assert.Contains(t, out.String(), "drifted and was replaced (version 8)")
}

func TestRequestReconcileErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "":
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(server.APIError{Error: "Service Unavailable", Details: "persistence failed"})
		}
	}))
	defer ts.Close()

	_, err := requestReconcile(context.Background(), ts.Client(), ts.URL, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	_, err = requestReconcile(context.Background(), ts.Client(), ts.URL, "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistence failed")
}

func TestPrintReconcileConsistent(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printReconcile(&out, server.ReconcileResponse{After: dispatch.Summary{Version: 4}}))
	assert.Contains(t, out.String(), "summary consistent (version 4)")
}
