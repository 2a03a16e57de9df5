package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ruteri/collection-factory/interfaces"
	"github.com/ruteri/collection-factory/metrics"
)

const (
	// CallbackMethod names the completion callback carried in every provisioning plan.
	CallbackMethod = "on_create"

	// DefaultInitMethod is the child program's initialization entry point.
	DefaultInitMethod = "new"
)

var (
	// DefaultDeployCost is the minimum attached deposit, 10 tokens in the smallest denomination.
	DefaultDeployCost = interfaces.MustParseBalance("10000000000000000000000000")

	// DefaultContractBalance is the reservation funding a child, 8 tokens.
	DefaultContractBalance = interfaces.MustParseBalance("8000000000000000000000000")
)

// Config holds the business parameters of a factory.
type Config struct {
	// AccountID is the factory's own account; children are "<name>.<AccountID>".
	AccountID interfaces.AccountID

	// DeployCost is the minimum attached deposit.
	DeployCost interfaces.Balance

	// ContractBalance is moved into every child and is not refunded on failure.
	// It must be strictly less than DeployCost.
	ContractBalance interfaces.Balance

	// Code is the program image deployed into every child.
	Code []byte

	// InitMethod defaults to DefaultInitMethod.
	InitMethod string

	// StrictReservation makes in-flight child ids count as taken.
	// Without it two requests for one name can both be dispatched before either resolves.
	StrictReservation bool
}

func (c *Config) validate() error {
	if err := c.AccountID.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !c.ContractBalance.Lt(c.DeployCost) {
		return fmt.Errorf("%w: contract balance %s must be less than deploy cost %s", ErrInvalidConfig, c.ContractBalance, c.DeployCost)
	}
	if len(c.Code) == 0 {
		return fmt.Errorf("%w: missing program image", ErrInvalidConfig)
	}
	if c.InitMethod == "" {
		c.InitMethod = DefaultInitMethod
	}
	return nil
}

// Option configures optional collaborators of a Factory.
type Option func(*Factory)

// WithDepositCollector collects the attached deposit from the creator before dispatch
// and returns it if the runtime rejects the plan. Without it the caller's transport
// is trusted to have moved the funds already.
func WithDepositCollector(t interfaces.Transferer) Option {
	return func(f *Factory) { f.deposits = t }
}

// WithDiagnostics stores a record of every failed provisioning attempt.
func WithDiagnostics(backend interfaces.StorageBackend) Option {
	return func(f *Factory) { f.diagnostics = backend }
}

// WithMetrics records request and callback outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Factory) { f.metrics = m }
}

// Factory provisions child accounts and keeps the registry of committed children.
//
// All state is owned by the goroutine running Run: requests, queries and provisioning
// results are processed one at a time, in the order the loop receives them.
type Factory struct {
	cfg         Config
	registry    interfaces.Registry
	provisioner interfaces.Provisioner
	refunds     interfaces.Transferer
	codec       interfaces.Codec

	deposits    interfaces.Transferer
	diagnostics interfaces.StorageBackend
	metrics     *metrics.Metrics
	log         *slog.Logger
	tracer      trace.Tracer

	commands chan func()
	results  chan interfaces.ProvisioningResult
	stopped  chan struct{}

	// owned by the loop
	pending  map[interfaces.ReceiptID]*Dispatch
	reserved map[interfaces.AccountID]interfaces.ReceiptID
}

// New creates a factory. Parameters:
//   - cfg: business parameters, validated here
//   - registry: committed children, written only by this factory
//   - provisioner: the runtime executing provisioning plans
//   - refunds: pays compensating refunds from the factory account
//   - codec: encodes the init payload and the callback context
//   - log: structured logger
func New(cfg Config, registry interfaces.Registry, provisioner interfaces.Provisioner, refunds interfaces.Transferer, codec interfaces.Codec, log *slog.Logger, opts ...Option) (*Factory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	f := &Factory{
		cfg:         cfg,
		registry:    registry,
		provisioner: provisioner,
		refunds:     refunds,
		codec:       codec,
		log:         log,
		tracer:      otel.Tracer("github.com/ruteri/collection-factory/factory"),
		commands:    make(chan func()),
		results:     make(chan interfaces.ProvisioningResult),
		stopped:     make(chan struct{}),
		pending:     make(map[interfaces.ReceiptID]*Dispatch),
		reserved:    make(map[interfaces.AccountID]interfaces.ReceiptID),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// AccountID returns the factory's own account.
func (f *Factory) AccountID() interfaces.AccountID {
	return f.cfg.AccountID
}

// Run processes requests and callbacks until ctx is done. It must be called exactly once.
// Results arriving after Run returned are not processed; their dispatches stay unresolved.
func (f *Factory) Run(ctx context.Context) error {
	defer close(f.stopped)

	for {
		select {
		case cmd := <-f.commands:
			cmd()
		case res := <-f.results:
			f.onCreationComplete(ctx, res)
		case <-ctx.Done():
			if len(f.pending) > 0 {
				f.log.Warn("Stopping with unresolved provisioning requests", slog.Int("pending", len(f.pending)))
			}
			return ctx.Err()
		}
	}
}

// RequestCreation validates req and dispatches its provisioning plan.
//
// Validation failures are returned synchronously and leave no trace: an
// *InsufficientDepositError, ErrDuplicateChild or ErrInvalidRequest. On success the
// returned Dispatch resolves once the runtime reported the outcome.
func (f *Factory) RequestCreation(ctx context.Context, req interfaces.ProvisioningRequest) (*Dispatch, error) {
	var (
		dispatch *Dispatch
		err      error
	)
	if serr := f.do(ctx, func() { dispatch, err = f.requestCreation(ctx, req) }); serr != nil {
		return nil, serr
	}
	return dispatch, err
}

// CheckExists reports whether id was committed.
func (f *Factory) CheckExists(ctx context.Context, id interfaces.AccountID) (bool, error) {
	var (
		exists bool
		err    error
	)
	if serr := f.do(ctx, func() { exists, err = f.registry.Contains(ctx, id) }); serr != nil {
		return false, serr
	}
	return exists, err
}

// Inflight returns the number of dispatched requests awaiting their callback.
func (f *Factory) Inflight(ctx context.Context) (int, error) {
	var n int
	if err := f.do(ctx, func() { n = len(f.pending) }); err != nil {
		return 0, err
	}
	return n, nil
}

// do runs fn on the loop and waits for it to return.
func (f *Factory) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	cmd := func() {
		defer close(done)
		fn()
	}

	select {
	case f.commands <- cmd:
	case <-f.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// accepted commands always run to completion
	<-done
	return nil
}

func (f *Factory) requestCreation(ctx context.Context, req interfaces.ProvisioningRequest) (*Dispatch, error) {
	ctx, span := f.tracer.Start(ctx, "RequestCreation", trace.WithAttributes(
		attribute.String("predecessor", req.Predecessor.String()),
		attribute.String("name", req.Name),
	))
	defer span.End()

	dispatch, result, err := f.validateAndDispatch(ctx, req)
	f.metrics.RecordRequest(result)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		f.log.Debug("Rejected creation request",
			slog.String("predecessor", req.Predecessor.String()),
			slog.String("name", req.Name),
			"err", err)
		return nil, err
	}

	span.SetAttributes(attribute.String("receiptID", string(dispatch.ReceiptID)))
	f.metrics.SetInflight(len(f.pending))
	return dispatch, nil
}

func (f *Factory) validateAndDispatch(ctx context.Context, req interfaces.ProvisioningRequest) (*Dispatch, string, error) {
	if err := req.Validate(); err != nil {
		return nil, metrics.ResultInvalid, err
	}

	childID, err := interfaces.DeriveChildID(req.Name, f.cfg.AccountID)
	if err != nil {
		return nil, metrics.ResultInvalid, errors.Join(interfaces.ErrInvalidRequest, err)
	}

	if req.AttachedDeposit.Lt(f.cfg.DeployCost) {
		return nil, metrics.ResultInsufficientDeposit, &InsufficientDepositError{
			Required: f.cfg.DeployCost,
			Attached: req.AttachedDeposit,
		}
	}

	exists, err := f.registry.Contains(ctx, childID)
	if err != nil {
		return nil, metrics.ResultDispatchError, fmt.Errorf("could not query registry: %w", err)
	}
	if exists {
		return nil, metrics.ResultDuplicate, fmt.Errorf("%w: %s", ErrDuplicateChild, childID)
	}
	if receipt, inflight := f.reserved[childID]; inflight {
		return nil, metrics.ResultDuplicate, fmt.Errorf("%w: %s is being provisioned by %s", ErrDuplicateChild, childID, receipt)
	}

	initArgs, err := f.codec.Marshal(interfaces.InitArgs{
		Metadata: req.Metadata,
		OwnerID:  req.Predecessor,
		Size:     req.Supply,
		Sale:     req.Sale,
	})
	if err != nil {
		return nil, metrics.ResultInvalid, errors.Join(interfaces.ErrInvalidRequest, err)
	}

	callbackArgs, err := f.codec.Marshal(callbackContext{
		CreatorID:       req.Predecessor,
		Metadata:        req.Metadata,
		ChildID:         childID,
		AttachedDeposit: req.AttachedDeposit,
	})
	if err != nil {
		return nil, metrics.ResultInvalid, errors.Join(interfaces.ErrInvalidRequest, err)
	}

	if f.deposits != nil {
		if err := f.deposits.Transfer(ctx, req.Predecessor, f.cfg.AccountID, req.AttachedDeposit); err != nil {
			return nil, metrics.ResultInsufficientDeposit, fmt.Errorf("%w: %w", ErrDepositCollection, err)
		}
	}

	receipt := interfaces.ReceiptID(uuid.NewString())
	plan := interfaces.ProvisioningPlan{
		ReceiptID:   receipt,
		Predecessor: f.cfg.AccountID,
		Account:     childID,
		AccessKey:   req.SignerPublicKey,
		Deposit:     f.cfg.ContractBalance,
		Code:        f.cfg.Code,
		Init:        interfaces.FunctionCall{Method: f.cfg.InitMethod, Args: initArgs},
		Callback:    interfaces.FunctionCall{Method: CallbackMethod, Args: callbackArgs},
	}

	results, err := f.provisioner.Provision(ctx, plan)
	if err != nil {
		f.returnDeposit(ctx, req)
		return nil, metrics.ResultDispatchError, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	dispatch := newDispatch(receipt, childID, req.Predecessor, req.AttachedDeposit)
	f.pending[receipt] = dispatch
	if f.cfg.StrictReservation {
		f.reserved[childID] = receipt
	}
	go f.forward(results)

	f.log.Info("Dispatched child provisioning",
		slog.String("childID", childID.String()),
		slog.String("creator", req.Predecessor.String()),
		slog.String("attachedDeposit", req.AttachedDeposit.String()),
		slog.String("receiptID", string(receipt)))
	return dispatch, metrics.ResultDispatched, nil
}

// returnDeposit undoes deposit collection when nothing was dispatched.
func (f *Factory) returnDeposit(ctx context.Context, req interfaces.ProvisioningRequest) {
	if f.deposits == nil {
		return
	}
	if err := f.deposits.Transfer(ctx, f.cfg.AccountID, req.Predecessor, req.AttachedDeposit); err != nil {
		f.log.Error("Could not return deposit of undispatched request",
			slog.String("creator", req.Predecessor.String()),
			slog.String("amount", req.AttachedDeposit.String()),
			"err", err)
	}
}

// forward hands runtime results to the loop.
func (f *Factory) forward(results <-chan interfaces.ProvisioningResult) {
	for res := range results {
		select {
		case f.results <- res:
		case <-f.stopped:
			return
		}
	}
}
