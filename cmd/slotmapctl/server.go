package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"slotmap/core/contract"
	"slotmap/core/runtime"
	"slotmap/crypto"
	"slotmap/native/slotmap"
	"slotmap/storage"
)

type entryResponse struct {
	Slot  string `json:"slot"`
	Found bool   `json:"found"`
	Lock  bool   `json:"lock"`
	Value string `json:"value,omitempty"`
}

type receiptResponse struct {
	ID        string `json:"id"`
	Slot      string `json:"slot"`
	Committed bool   `json:"committed"`
	Failure   string `json:"failure,omitempty"`
	Error     string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// newRouter exposes n over HTTP. A nil limiter disables rate limiting of
// submissions.
func newRouter(n *node, limiter *rate.Limiter) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(sr chi.Router) {
		sr.Get("/contract", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"id": n.cid.String()})
		})
		sr.Get("/slot", n.handleDerive)
		sr.Get("/entries/{slot}", n.handleEntry)
		sr.With(rateLimit(limiter)).Post("/set", n.handleSet)
	})

	return otelhttp.NewHandler(r, "slotmapctl")
}

func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (n *node) handleDerive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := setRequest{Car: q.Get("car"), Account: q.Get("account"), Key: q.Get("key")}.params()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	n.writeEntry(w, slotmap.DeriveSlot(p.Car, p.Account, p.Key))
}

func (n *node) handleEntry(w http.ResponseWriter, r *http.Request) {
	slot, err := crypto.ParseElement(chi.URLParam(r, "slot"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	n.writeEntry(w, slot)
}

func (n *node) writeEntry(w http.ResponseWriter, slot crypto.Element) {
	entry, ok, err := n.entry(slot)
	if err != nil && !errors.Is(err, storage.ErrTableNotFound) {
		n.logger.Error("read entry", "slot", slot.String(), "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "storage failure"})
		return
	}
	resp := entryResponse{Slot: slot.String(), Found: ok}
	if ok {
		resp.Lock = entry.Lock
		resp.Value = entry.Value.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (n *node) handleSet(w http.ResponseWriter, r *http.Request) {
	var req setRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	p, err := req.params()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	proof, err := hex.DecodeString(strings.TrimPrefix(req.Proof, "0x"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "proof: " + err.Error()})
		return
	}

	receipt, slot, err := n.set(r.Context(), p, proof)
	resp := receiptResponse{Slot: slot.String()}
	if receipt != nil {
		resp.ID = receipt.ID.String()
		resp.Committed = receipt.Committed
		resp.Failure = receipt.Failure
	}
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, statusFor(resp.Failure), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps a receipt failure kind onto an HTTP status.
func statusFor(failure string) int {
	switch failure {
	case string(contract.KindRejected):
		return http.StatusConflict
	case string(contract.KindDecode), string(contract.KindRange), string(contract.KindUnsupportedFunction):
		return http.StatusBadRequest
	case runtime.FailureUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
