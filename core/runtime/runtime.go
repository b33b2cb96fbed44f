// Package runtime is a reference host for contracts written against
// core/contract. It owns everything the contracts deliberately do not:
// phase ordering, proof and signature verification, write permissions and
// transaction atomicity.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"slotmap/core/contract"
	"slotmap/core/events"
	"slotmap/core/types"
	"slotmap/crypto"
	"slotmap/observability/metrics"
	"slotmap/storage"
)

var (
	// ErrUnknownContract is returned for calls to a contract id that was never
	// deployed on this runtime.
	ErrUnknownContract = errors.New("runtime: unknown contract")
	// ErrInvalidEntrypoints rejects a deployment with missing phases.
	ErrInvalidEntrypoints = errors.New("runtime: incomplete entrypoints")
	// ErrProofInvalid wraps proof verifier failures.
	ErrProofInvalid = errors.New("runtime: proof verification failed")
	// ErrSignatureInvalid is returned when a required signature is missing or
	// does not verify.
	ErrSignatureInvalid = errors.New("runtime: signature verification failed")
	// ErrEmptyTransaction rejects transactions without calls.
	ErrEmptyTransaction = errors.New("runtime: transaction has no calls")
)

// ProofVerifier checks a zero-knowledge proof against the public inputs a
// contract's metadata phase produced. circuit is the artifact the contract
// registered for namespace during init.
type ProofVerifier interface {
	VerifyProof(namespace string, circuit []byte, inputs []crypto.Element, proof []byte) error
}

// NoopProofVerifier accepts every proof. It is meant for local development
// and tests where no prover is available.
type NoopProofVerifier struct{}

func (NoopProofVerifier) VerifyProof(string, []byte, []crypto.Element, []byte) error { return nil }

// Runtime drives deployed contracts through their phases.
//
// Deploy and Execute are serialised, which gives contracts the guarantee that
// no two transactions touch the same state concurrently.
type Runtime struct {
	mu       sync.Mutex
	db       storage.Database
	modules  map[types.ContractID]contract.Entrypoints
	verifier ProofVerifier
	emitter  events.Emitter
	logger   *slog.Logger
	metrics  *metrics.RuntimeMetrics
	tracer   trace.Tracer
	now      func() time.Time
}

// Option customises a Runtime.
type Option func(*Runtime)

// WithLogger sets the base logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) {
		if l != nil {
			rt.logger = l
		}
	}
}

// WithProofVerifier sets the proof verifier. Defaults to NoopProofVerifier.
func WithProofVerifier(v ProofVerifier) Option {
	return func(rt *Runtime) {
		if v != nil {
			rt.verifier = v
		}
	}
}

// WithEmitter sets the event sink. Defaults to events.NoopEmitter.
func WithEmitter(e events.Emitter) Option {
	return func(rt *Runtime) {
		if e != nil {
			rt.emitter = e
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *metrics.RuntimeMetrics) Option {
	return func(rt *Runtime) { rt.metrics = m }
}

// WithTracer overrides the tracer. Defaults to the global provider's
// "slotmap/runtime" tracer.
func WithTracer(t trace.Tracer) Option {
	return func(rt *Runtime) {
		if t != nil {
			rt.tracer = t
		}
	}
}

// New creates a runtime backed by db.
func New(db storage.Database, opts ...Option) *Runtime {
	rt := &Runtime{
		db:       db,
		modules:  make(map[types.ContractID]contract.Entrypoints),
		verifier: NoopProofVerifier{},
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
		tracer:   otel.Tracer("slotmap/runtime"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Deploy registers a contract under cid and runs its init phase. Deploying
// the same id again replaces the entrypoints and re-runs init against the
// existing state. Init's writes are committed atomically.
func (rt *Runtime) Deploy(ctx context.Context, cid types.ContractID, entry contract.Entrypoints, payload []byte) error {
	if !entry.Valid() {
		return ErrInvalidEntrypoints
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	logger := rt.logger.With("contract", cid.String())
	view := newOverlay(rt.db)
	host := rt.host(view, cid, contract.PhaseInit, logger)
	err := rt.invoke(ctx, contract.PhaseInit, cid, func() error {
		return entry.Init(host, cid, payload)
	})
	if err != nil {
		return fmt.Errorf("init %s: %w", cid, err)
	}
	if err := view.flush(); err != nil {
		return fmt.Errorf("%w: commit init: %v", contract.ErrStorage, err)
	}
	rt.modules[cid] = entry
	logger.Info("contract deployed")
	return nil
}

// CallResult describes how far one call got.
type CallResult struct {
	Index      int
	ContractID types.ContractID
	Metadata   *contract.Metadata
	Update     []byte
}

// Receipt is returned by Execute. On failure FailedCall and Failure identify
// the offending call and the classification of its error.
type Receipt struct {
	ID         uuid.UUID
	Calls      []CallResult
	Committed  bool
	FailedCall int
	Failure    string
	Elapsed    time.Duration
}

// Execute runs every call of tx through metadata, verification, exec and
// apply, in call order. State is committed only if all calls succeed; any
// error discards every write of the transaction.
func (rt *Runtime) Execute(ctx context.Context, tx *types.Transaction) (*Receipt, error) {
	receipt := &Receipt{ID: uuid.New(), FailedCall: -1}
	start := rt.now()
	defer func() { receipt.Elapsed = rt.now().Sub(start) }()

	if tx == nil || len(tx.Calls) == 0 {
		rt.metrics.ObserveTransaction("rejected")
		receipt.Failure = string(contract.KindDecode)
		return receipt, ErrEmptyTransaction
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	ctx, span := rt.tracer.Start(ctx, "runtime.Execute", trace.WithAttributes(
		attribute.String("tx.id", receipt.ID.String()),
		attribute.Int("tx.calls", len(tx.Calls)),
	))
	defer span.End()

	logger := rt.logger.With("tx", receipt.ID.String())
	digest, err := tx.Hash()
	if err != nil {
		return rt.fail(span, logger, receipt, 0, fmt.Errorf("%w: hash transaction: %v", contract.ErrDecode, err))
	}

	view := newOverlay(rt.db)
	for i := range tx.Calls {
		if err := ctx.Err(); err != nil {
			return rt.fail(span, logger, receipt, i, err)
		}
		result, err := rt.executeCall(ctx, view, logger, receipt.ID.String(), tx, digest, i)
		if result != nil {
			receipt.Calls = append(receipt.Calls, *result)
		}
		if err != nil {
			return rt.fail(span, logger, receipt, i, fmt.Errorf("call %d: %w", i, err))
		}
	}

	keys := view.dirty()
	if err := view.flush(); err != nil {
		return rt.fail(span, logger, receipt, len(tx.Calls)-1, fmt.Errorf("%w: commit: %v", contract.ErrStorage, err))
	}
	receipt.Committed = true
	rt.metrics.ObserveTransaction("committed")
	rt.emitter.Emit(events.TransactionCommitted{TxID: receipt.ID.String(), Calls: len(tx.Calls), Keys: keys})
	logger.Info("transaction committed", "calls", len(tx.Calls), "keys", keys)
	return receipt, nil
}

func (rt *Runtime) executeCall(ctx context.Context, view *overlay, logger *slog.Logger, txID string, tx *types.Transaction, digest []byte, i int) (*CallResult, error) {
	call := tx.Calls[i]
	cid := call.ContractID
	result := &CallResult{Index: i, ContractID: cid}

	entry, ok := rt.modules[cid]
	if !ok {
		return result, fmt.Errorf("%w: %s", ErrUnknownContract, cid)
	}
	logger = logger.With("call", i, "contract", cid.String())

	payload, err := types.CallPayload{CallIndex: uint32(i), Calls: tx.Calls}.Encode()
	if err != nil {
		return result, fmt.Errorf("%w: encode payload: %v", contract.ErrDecode, err)
	}

	var rawMetadata []byte
	err = rt.invoke(ctx, contract.PhaseMetadata, cid, func() error {
		var err error
		rawMetadata, err = entry.Metadata(rt.host(view, cid, contract.PhaseMetadata, logger), cid, payload)
		return err
	})
	if err != nil {
		return result, err
	}
	md, err := contract.DecodeMetadata(rawMetadata)
	if err != nil {
		return result, fmt.Errorf("%w: metadata: %v", contract.ErrDecode, err)
	}
	result.Metadata = md

	if err := rt.verify(view, cid, md, tx, digest, i); err != nil {
		return result, err
	}

	var update []byte
	err = rt.invoke(ctx, contract.PhaseExec, cid, func() error {
		var err error
		update, err = entry.Exec(rt.host(view, cid, contract.PhaseExec, logger), cid, payload)
		return err
	})
	if err != nil {
		return result, err
	}
	result.Update = update

	err = rt.invoke(ctx, contract.PhaseApply, cid, func() error {
		return entry.Apply(rt.host(view, cid, contract.PhaseApply, logger), cid, update)
	})
	if err != nil {
		return result, err
	}

	var fn byte
	if len(update) > 0 {
		fn = update[0]
	}
	rt.emitter.Emit(events.CallApplied{TxID: txID, Index: i, ContractID: cid, Function: fn})
	return result, nil
}

// verify checks the proofs and signatures a call's metadata demands.
func (rt *Runtime) verify(view storage.Database, cid types.ContractID, md *contract.Metadata, tx *types.Transaction, digest []byte, i int) error {
	for _, inputs := range md.ZKPublicInputs {
		circuit, err := lookupCircuit(view, cid, inputs.Namespace)
		if err != nil {
			return err
		}
		if err := rt.verifier.VerifyProof(inputs.Namespace, circuit.Bincode, inputs.Inputs, tx.Proof(i)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrProofInvalid, inputs.Namespace, err)
		}
	}

	sigs := tx.SignaturesFor(i)
	if len(sigs) != len(md.SignaturePublicKeys) {
		return fmt.Errorf("%w: want %d signatures, got %d", ErrSignatureInvalid, len(md.SignaturePublicKeys), len(sigs))
	}
	for j, pub := range md.SignaturePublicKeys {
		if !pub.Verify(digest, sigs[j]) {
			return fmt.Errorf("%w: signature %d", ErrSignatureInvalid, j)
		}
	}
	return nil
}

// invoke runs one entrypoint with tracing and metrics. A panicking contract
// aborts the transaction like any other error.
func (rt *Runtime) invoke(ctx context.Context, phase contract.Phase, cid types.ContractID, fn func() error) (err error) {
	_, span := rt.tracer.Start(ctx, "contract."+string(phase), trace.WithAttributes(
		attribute.String("contract.id", cid.String()),
	))
	defer span.End()

	start := rt.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", phase, r)
		}
		rt.metrics.ObservePhase(string(phase), string(contract.Classify(err)), rt.now().Sub(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	return fn()
}

func (rt *Runtime) host(view storage.Database, cid types.ContractID, phase contract.Phase, logger *slog.Logger) *phaseHost {
	return &phaseHost{
		rt:     rt,
		view:   view,
		cid:    cid,
		phase:  phase,
		logger: logger.With("phase", string(phase)),
	}
}

func (rt *Runtime) fail(span trace.Span, logger *slog.Logger, receipt *Receipt, call int, err error) (*Receipt, error) {
	receipt.FailedCall = call
	receipt.Failure = Classify(err)
	rt.metrics.ObserveTransaction(receipt.Failure)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Warn("transaction aborted", "call", call, "reason", receipt.Failure, "error", err)
	return receipt, err
}

// FailureUnauthorized is the receipt failure for calls whose proof or
// signatures did not verify.
const FailureUnauthorized = "unauthorized"

// Classify extends contract.Classify with the runtime's own verification
// failures.
func Classify(err error) string {
	switch {
	case errors.Is(err, ErrProofInvalid), errors.Is(err, ErrSignatureInvalid), errors.Is(err, ErrCircuitNotFound):
		return FailureUnauthorized
	case errors.Is(err, ErrUnknownContract):
		return string(contract.KindUnsupportedFunction)
	default:
		return string(contract.Classify(err))
	}
}

// ReadTable returns a committed value from a contract table. It is an
// operator tool; contracts never see it.
func (rt *Runtime) ReadTable(cid types.ContractID, table string, key []byte) ([]byte, bool, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	t, err := storage.Lookup(rt.db, cid.Bytes(), table)
	if err != nil {
		return nil, false, err
	}
	return t.Get(key)
}

// Deployed reports whether cid has been deployed on this runtime.
func (rt *Runtime) Deployed(cid types.ContractID) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	_, ok := rt.modules[cid]
	return ok
}
