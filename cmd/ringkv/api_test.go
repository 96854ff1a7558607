package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ringkv/internal/audit"
	"ringkv/internal/sim"
)

func newTestAPI(t *testing.T) (*sim.Cluster, http.Handler) {
	t.Helper()
	c, err := sim.NewCluster(sim.Options{Nodes: 4, JoinEvery: 1, Seed: 5})
	require.NoError(t, err)
	ok, err := c.RunUntil(c.Converged, 60)
	require.NoError(t, err)
	require.True(t, ok)
	return c, (&api{node: c.Node(0)}).routes()
}

func TestAPI_CreateAndRead(t *testing.T) {
	c, h := newTestAPI(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/kv/color", strings.NewReader("blue")))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp txnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "create", resp.Op)
	assert.Equal(t, "color", resp.Key)
	assert.NotZero(t, resp.Txn)

	require.NoError(t, c.Run(3))
	assert.Len(t, c.Holders("color"), 3)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/kv/color", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, c.Run(3))

	reads := c.Recorder().Outcomes(audit.OpRead, "color", true)
	require.Len(t, reads, 1)
	assert.Equal(t, "blue", reads[0].Value)
}

func TestAPI_KVErrors(t *testing.T) {
	c, h := newTestAPI(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/kv/x", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/kv/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c.Fail(0)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/kv/x", bytes.NewBufferString("v")))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPI_Views(t *testing.T) {
	_, h := newTestAPI(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/members", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var members []memberView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &members))
	require.Len(t, members, 4)
	assert.Equal(t, "1:0", members[0].Addr)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ring", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var ring []ringView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ring))
	assert.Len(t, ring, 4)
	for i := 1; i < len(ring); i++ {
		assert.LessOrEqual(t, ring[i-1].Hash, ring[i].Hash)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"IN_GROUP"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ringkv_messages_sent_total")
}

func TestMethodToOp(t *testing.T) {
	assert.Equal(t, "create", methodToOp(http.MethodPost))
	assert.Equal(t, "update", methodToOp(http.MethodPut))
	assert.Equal(t, "read", methodToOp(http.MethodGet))
	assert.Equal(t, "delete", methodToOp(http.MethodDelete))
	assert.Equal(t, "other", methodToOp(http.MethodPatch))
}

func TestServeConfig(t *testing.T) {
	old := serveOpts
	t.Cleanup(func() { serveOpts = old })

	serveOpts.id, serveOpts.port = 2, 7002
	serveOpts.introducer = "1:7001"
	serveOpts.tFail, serveOpts.tRemove = 5, 20
	serveOpts.fanout, serveOpts.txnTimeout = 2, 10
	serveOpts.hash = "xxhash"

	cfg, err := serveConfig()
	require.NoError(t, err)
	assert.Equal(t, "2:7002", cfg.Self.String())
	assert.Equal(t, "1:7001", cfg.Introducer.String())
	assert.Equal(t, "xxhash", cfg.Hash)

	serveOpts.introducer = "nope"
	_, err = serveConfig()
	assert.Error(t, err)

	serveOpts.introducer = "1:7001"
	serveOpts.tRemove = 1
	_, err = serveConfig()
	assert.Error(t, err)
}
