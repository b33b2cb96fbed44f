package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"slotmap/config"
	"slotmap/core/events"
	"slotmap/core/runtime"
	"slotmap/core/types"
	"slotmap/crypto"
	"slotmap/native/slotmap"
	"slotmap/observability/metrics"
	"slotmap/storage"
)

// node is a single-process host: one store, one runtime, the slotmap
// contract deployed under the configured name.
type node struct {
	db     storage.Database
	rt     *runtime.Runtime
	cid    types.ContractID
	logger *slog.Logger
}

// openNode opens the configured store and deploys the contract. Events are
// logged and also handed to every emitter in extra.
func openNode(ctx context.Context, cfg *config.Config, logger *slog.Logger, extra ...events.Emitter) (*node, error) {
	db, err := storage.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	emitter := append(events.Multi{events.LogEmitter{Logger: logger}}, extra...)
	rt := runtime.New(db,
		runtime.WithLogger(logger),
		runtime.WithMetrics(metrics.Runtime()),
		runtime.WithEmitter(emitter),
	)
	cid := types.ContractIDFromName(cfg.ContractName)
	if err := rt.Deploy(ctx, cid, slotmap.Entrypoints(), nil); err != nil {
		db.Close()
		return nil, fmt.Errorf("deploy %s: %w", cfg.ContractName, err)
	}
	// Proof verification belongs to the host. The runtime here keeps its
	// default NoopProofVerifier, so every proof is accepted.
	logger.Warn("proof verification disabled", "contract", cid.String())
	return &node{db: db, rt: rt, cid: cid, logger: logger}, nil
}

func (n *node) Close() { n.db.Close() }

// set submits a single Set call and returns the receipt together with the
// slot the call targeted.
func (n *node) set(ctx context.Context, p slotmap.SetParams, proof []byte) (*runtime.Receipt, crypto.Element, error) {
	slot := slotmap.DeriveSlot(p.Car, p.Account, p.Key)
	data, err := slotmap.EncodeSetCall(p)
	if err != nil {
		return nil, slot, err
	}
	tx := &types.Transaction{Calls: []types.ContractCall{{ContractID: n.cid, Data: data}}}
	if len(proof) > 0 {
		tx.Proofs = [][]byte{proof}
	}
	receipt, err := n.rt.Execute(ctx, tx)
	return receipt, slot, err
}

// entry reads the committed entry at slot.
func (n *node) entry(slot crypto.Element) (slotmap.Entry, bool, error) {
	lockKey, valueKey := slotmap.EntryKeys(slot)
	rawLock, ok, err := n.rt.ReadTable(n.cid, slotmap.EntriesTable, lockKey)
	if err != nil || !ok {
		return slotmap.Entry{}, false, err
	}
	rawValue, ok, err := n.rt.ReadTable(n.cid, slotmap.EntriesTable, valueKey)
	if err != nil {
		return slotmap.Entry{}, false, err
	}
	if !ok {
		return slotmap.Entry{}, false, errors.New("entry has a lock flag but no value")
	}
	entry, err := slotmap.DecodeEntry(rawLock, rawValue)
	if err != nil {
		return slotmap.Entry{}, false, err
	}
	return entry, true, nil
}

// parseAccount accepts a bech32 account string or a plain field element.
func parseAccount(s string) (crypto.Element, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return crypto.Zero(), nil
	}
	if strings.HasPrefix(strings.ToLower(s), crypto.AccountPrefix+"1") {
		return crypto.DecodeAccount(s)
	}
	return crypto.ParseElement(s)
}

func parseOptionalElement(s string) (crypto.Element, error) {
	if strings.TrimSpace(s) == "" {
		return crypto.Zero(), nil
	}
	return crypto.ParseElement(s)
}

// setRequest is the JSON form of a Set call.
type setRequest struct {
	Car     string `json:"car"`
	Account string `json:"account"`
	Key     string `json:"key"`
	Value   string `json:"value"`
	Lock    bool   `json:"lock"`
	Proof   string `json:"proof,omitempty"`
}

func (r setRequest) params() (slotmap.SetParams, error) {
	var p slotmap.SetParams
	var err error
	if p.Car, err = parseOptionalElement(r.Car); err != nil {
		return p, fmt.Errorf("car: %w", err)
	}
	if p.Account, err = parseAccount(r.Account); err != nil {
		return p, fmt.Errorf("account: %w", err)
	}
	if strings.TrimSpace(r.Key) == "" {
		return p, errors.New("key is required")
	}
	if p.Key, err = crypto.ParseElement(r.Key); err != nil {
		return p, fmt.Errorf("key: %w", err)
	}
	if p.Value, err = parseOptionalElement(r.Value); err != nil {
		return p, fmt.Errorf("value: %w", err)
	}
	p.Lock = r.Lock
	return p, nil
}
