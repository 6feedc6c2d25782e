package risk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "hiring-platform/pkg/errors"
)

func TestAnalyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze-risk", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "iv-1", req["interview_id"])
		assert.Equal(t, "cand-1", req["candidate_id"])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Assessment{NoShowRisk: 0.72, RiskLevel: "high"})
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL, 2*time.Second)
	got, err := c.Analyze(context.Background(), "iv-1", "cand-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.72, got.NoShowRisk, 1e-9)
	assert.Equal(t, "high", got.RiskLevel)
}

func TestAnalyze_ClampsOutOfRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Assessment{NoShowRisk: 1.7, RiskLevel: "high"})
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL, 2*time.Second)
	got, err := c.Analyze(context.Background(), "iv-1", "cand-1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.NoShowRisk)
}

func TestAnalyze_RetriesTransient(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Assessment{NoShowRisk: 0.3, RiskLevel: "low"})
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL, 2*time.Second)
	got, err := c.Analyze(context.Background(), "iv-1", "cand-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, got.NoShowRisk, 1e-9)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAnalyze_ValidatesInput(t *testing.T) {
	c := NewHTTPClient("http://localhost:0", time.Second)
	_, err := c.Analyze(context.Background(), "", "cand-1")
	assert.True(t, perrors.Is(err, perrors.ErrInvalidArg))
}
