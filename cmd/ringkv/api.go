package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"ringkv/internal/node"
	"ringkv/internal/replication"
	"ringkv/internal/telemetry"
)

// api serves the HTTP client surface of one node. Writes return the
// transaction id; the quorum outcome is reported asynchronously through the
// audit log.
type api struct {
	node *node.Node
}

type txnResponse struct {
	Txn uint32 `json:"txn"`
	Op  string `json:"op"`
	Key string `json:"key"`
}

type memberView struct {
	Addr      string `json:"addr"`
	Heartbeat int64  `json:"heartbeat"`
	Timestamp int64  `json:"timestamp"`
}

type ringView struct {
	Addr string `json:"addr"`
	Hash uint32 `json:"hash"`
}

func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	mux.HandleFunc("/healthz", a.healthz)
	mux.HandleFunc("/members", a.members)
	mux.HandleFunc("/ring", a.ring)
	mux.HandleFunc("/kv/", func(w http.ResponseWriter, r *http.Request) {
		telemetry.Instrument(methodToOp(r.Method), http.HandlerFunc(a.kv)).ServeHTTP(w, r)
	})
	return mux
}

func (a *api) healthz(w http.ResponseWriter, _ *http.Request) {
	if a.node.Failed() {
		http.Error(w, "failed", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"node":  a.node.Addr().String(),
		"state": a.node.State().String(),
	})
}

func (a *api) members(w http.ResponseWriter, _ *http.Request) {
	entries := a.node.Entries()
	out := make([]memberView, 0, len(entries))
	for _, e := range entries {
		out = append(out, memberView{Addr: e.Addr().String(), Heartbeat: e.Heartbeat, Timestamp: e.Timestamp})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) ring(w http.ResponseWriter, _ *http.Request) {
	out := []ringView{}
	if r := a.node.Ring(); r != nil {
		for _, n := range r.Nodes() {
			out = append(out, ringView{Addr: n.Addr.String(), Hash: n.Hash})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) kv(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/kv/")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	var (
		txn uint32
		err error
	)
	switch r.Method {
	case http.MethodPost, http.MethodPut:
		body, rerr := io.ReadAll(r.Body)
		if rerr != nil {
			http.Error(w, rerr.Error(), http.StatusBadRequest)
			return
		}
		if r.Method == http.MethodPost {
			txn, err = a.node.ClientCreate(key, string(body))
		} else {
			txn, err = a.node.ClientUpdate(key, string(body))
		}
	case http.MethodGet:
		txn, err = a.node.ClientRead(key)
	case http.MethodDelete:
		txn, err = a.node.ClientDelete(key)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch {
	case errors.Is(err, replication.ErrNoReplicas), errors.Is(err, node.ErrFailed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, txnResponse{Txn: txn, Op: methodToOp(r.Method), Key: key})
}

func methodToOp(m string) string {
	switch m {
	case http.MethodPost:
		return "create"
	case http.MethodGet:
		return "read"
	case http.MethodPut:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "other"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
