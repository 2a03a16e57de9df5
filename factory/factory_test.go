package factory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/collection-factory/chain"
	"github.com/ruteri/collection-factory/codec"
	"github.com/ruteri/collection-factory/interfaces"
	"github.com/ruteri/collection-factory/ledger"
	"github.com/ruteri/collection-factory/metrics"
	"github.com/ruteri/collection-factory/programs"
	"github.com/ruteri/collection-factory/registry"
	"github.com/ruteri/collection-factory/storage"
)

var (
	deployCost      = interfaces.NewBalance(10)
	contractBalance = interfaces.NewBalance(8)
)

// manualProvisioner accepts every plan and lets the test decide when and how it resolves.
type manualProvisioner struct {
	mutex    sync.Mutex
	plans    []interfaces.ProvisioningPlan
	channels map[interfaces.ReceiptID]chan interfaces.ProvisioningResult
	reject   error
}

func newManualProvisioner() *manualProvisioner {
	return &manualProvisioner{channels: make(map[interfaces.ReceiptID]chan interfaces.ProvisioningResult)}
}

func (p *manualProvisioner) Provision(ctx context.Context, plan interfaces.ProvisioningPlan) (<-chan interfaces.ProvisioningResult, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.reject != nil {
		return nil, p.reject
	}
	ch := make(chan interfaces.ProvisioningResult, 2)
	p.plans = append(p.plans, plan)
	p.channels[plan.ReceiptID] = ch
	return ch, nil
}

func (p *manualProvisioner) plan(t *testing.T, receipt interfaces.ReceiptID) interfaces.ProvisioningPlan {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, plan := range p.plans {
		if plan.ReceiptID == receipt {
			return plan
		}
	}
	t.Fatalf("no plan for receipt %s", receipt)
	return interfaces.ProvisioningPlan{}
}

// resolve delivers one result for the plan; with duplicate it delivers it twice.
func (p *manualProvisioner) resolve(t *testing.T, receipt interfaces.ReceiptID, err error, duplicate bool) {
	plan := p.plan(t, receipt)

	p.mutex.Lock()
	ch := p.channels[receipt]
	p.mutex.Unlock()

	res := interfaces.ProvisioningResult{ReceiptID: receipt, Err: err, Callback: plan.Callback}
	ch <- res
	if duplicate {
		ch <- res
	}
	close(ch)
}

// deliverCallback resolves the plan with a result carrying the given callback instead of the dispatched one.
func (p *manualProvisioner) deliverCallback(t *testing.T, receipt interfaces.ReceiptID, err error, callback interfaces.FunctionCall) {
	p.plan(t, receipt)

	p.mutex.Lock()
	ch := p.channels[receipt]
	p.mutex.Unlock()

	ch <- interfaces.ProvisioningResult{ReceiptID: receipt, Err: err, Callback: callback}
	close(ch)
}

type transfer struct {
	from, to interfaces.AccountID
	amount   interfaces.Balance
}

// recordingTransferer records transfers and optionally fails them.
type recordingTransferer struct {
	mutex     sync.Mutex
	transfers []transfer
	fail      error
}

func (r *recordingTransferer) Transfer(ctx context.Context, from, to interfaces.AccountID, amount interfaces.Balance) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.fail != nil {
		return r.fail
	}
	r.transfers = append(r.transfers, transfer{from, to, amount})
	return nil
}

func (r *recordingTransferer) recorded() []transfer {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]transfer(nil), r.transfers...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		AccountID:       "factory",
		DeployCost:      deployCost,
		ContractBalance: contractBalance,
		Code:            programs.CollectionImage,
	}
}

func testRequest(name string, attached interfaces.Balance) interfaces.ProvisioningRequest {
	return interfaces.ProvisioningRequest{
		Name:     name,
		Metadata: interfaces.MetadataBlob(`{"spec":"nft-1.0.0","name":"Abc","symbol":"ABC"}`),
		Supply:   100,
		Sale: interfaces.Sale{
			Royalties: &interfaces.Royalties{
				Accounts: map[interfaces.AccountID]interfaces.BasisPoint{"alice": 500},
				Percent:  500,
			},
			Price: interfaces.NewBalance(1),
		},
		Predecessor:     "alice",
		AttachedDeposit: attached,
	}
}

// startFactory runs f until the test ends.
func startFactory(t *testing.T, f *Factory) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func wait(t *testing.T, d *Dispatch) Resolution {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := d.Wait(ctx)
	require.NoError(t, err)
	return res
}

type fixture struct {
	factory     *Factory
	registry    *registry.MemoryRegistry
	provisioner *manualProvisioner
	refunds     *recordingTransferer
	metrics     *metrics.Metrics
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()

	fx := &fixture{
		registry:    registry.NewMemoryRegistry(),
		provisioner: newManualProvisioner(),
		refunds:     &recordingTransferer{},
		metrics:     metrics.NewMetrics("test"),
	}
	opts = append(opts, WithMetrics(fx.metrics))

	f, err := New(cfg, fx.registry, fx.provisioner, fx.refunds, codec.JSON{}, testLogger(), opts...)
	require.NoError(t, err)
	fx.factory = f
	startFactory(t, f)
	return fx
}

func (fx *fixture) scrape(t *testing.T) string {
	rec := httptest.NewRecorder()
	fx.metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ContractBalance = deployCost
	_, err := New(cfg, registry.NewMemoryRegistry(), newManualProvisioner(), &recordingTransferer{}, codec.JSON{}, testLogger())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = testConfig()
	cfg.AccountID = "F"
	_, err = New(cfg, registry.NewMemoryRegistry(), newManualProvisioner(), &recordingTransferer{}, codec.JSON{}, testLogger())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = testConfig()
	cfg.Code = nil
	_, err = New(cfg, registry.NewMemoryRegistry(), newManualProvisioner(), &recordingTransferer{}, codec.JSON{}, testLogger())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRequestCreation_InsufficientDeposit(t *testing.T) {
	deposits := &recordingTransferer{}
	fx := newFixture(t, testConfig(), WithDepositCollector(deposits))
	ctx := context.Background()

	for _, attached := range []interfaces.Balance{{}, interfaces.NewBalance(1), interfaces.NewBalance(9)} {
		_, err := fx.factory.RequestCreation(ctx, testRequest("abc", attached))
		require.ErrorIs(t, err, ErrInsufficientDeposit)

		var depositErr *InsufficientDepositError
		require.ErrorAs(t, err, &depositErr)
		assert.Equal(t, deployCost, depositErr.Required)
		assert.Equal(t, attached, depositErr.Attached)
	}

	n, err := fx.registry.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, fx.provisioner.plans)
	assert.Empty(t, deposits.recorded())
	assert.Empty(t, fx.refunds.recorded())
	assert.Contains(t, fx.scrape(t), `test_creation_requests_total{result="insufficient_deposit"} 3`)
}

func TestRequestCreation_Duplicate(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()
	require.NoError(t, fx.registry.Insert(ctx, "abc.factory"))

	_, err := fx.factory.RequestCreation(ctx, testRequest("abc", deployCost))
	assert.ErrorIs(t, err, ErrDuplicateChild)

	n, err := fx.registry.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, fx.provisioner.plans)
}

func TestRequestCreation_InvalidRequest(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()

	tests := []struct {
		name   string
		modify func(*interfaces.ProvisioningRequest)
	}{
		{"uppercase name", func(r *interfaces.ProvisioningRequest) { r.Name = "ABC" }},
		{"empty name", func(r *interfaces.ProvisioningRequest) { r.Name = "" }},
		{"invalid predecessor", func(r *interfaces.ProvisioningRequest) { r.Predecessor = "A" }},
		{"missing metadata", func(r *interfaces.ProvisioningRequest) { r.Metadata = nil }},
		{"id too long", func(r *interfaces.ProvisioningRequest) { r.Name = strings.Repeat("a", 60) }},
		{"dotted name", func(r *interfaces.ProvisioningRequest) { r.Name = "x.y" }},
		{"trailing separator", func(r *interfaces.ProvisioningRequest) { r.Name = "abc-" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest("abc", deployCost)
			tt.modify(&req)
			_, err := fx.factory.RequestCreation(ctx, req)
			assert.ErrorIs(t, err, interfaces.ErrInvalidRequest)
		})
	}
	assert.Empty(t, fx.provisioner.plans)
}

func TestRequestCreation_SingleCharacterName(t *testing.T) {
	fx := newFixture(t, testConfig())

	dispatch, err := fx.factory.RequestCreation(context.Background(), testRequest("a", deployCost))
	require.NoError(t, err)
	assert.Equal(t, interfaces.AccountID("a.factory"), dispatch.ChildID)
}

func TestRequestCreation_Plan(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()

	req := testRequest("abc", interfaces.NewBalance(12))
	req.SignerPublicKey = "ed25519:8JVtb1ibCsYG6fHnM7qLsBLHxdgRVBiEHtTzGUFXvHaA"

	dispatch, err := fx.factory.RequestCreation(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, interfaces.AccountID("abc.factory"), dispatch.ChildID)
	assert.Equal(t, StateDispatched, dispatch.State())

	plan := fx.provisioner.plan(t, dispatch.ReceiptID)
	assert.Equal(t, interfaces.AccountID("factory"), plan.Predecessor)
	assert.Equal(t, interfaces.AccountID("abc.factory"), plan.Account)
	assert.Equal(t, req.SignerPublicKey, plan.AccessKey)
	assert.Equal(t, contractBalance, plan.Deposit)
	assert.Equal(t, programs.CollectionImage, plan.Code)
	assert.Equal(t, "new", plan.Init.Method)
	assert.JSONEq(t, `{
		"metadata": {"spec":"nft-1.0.0","name":"Abc","symbol":"ABC"},
		"owner_id": "alice",
		"size": 100,
		"sale": {"royalties": {"accounts": {"alice": 500}, "percent": 500}, "price": "1"}
	}`, string(plan.Init.Args))
	assert.Equal(t, CallbackMethod, plan.Callback.Method)
	assert.JSONEq(t, `{
		"creator_id": "alice",
		"metadata": {"spec":"nft-1.0.0","name":"Abc","symbol":"ABC"},
		"nft_account_id": "abc.factory",
		"attached_deposit": "12"
	}`, string(plan.Callback.Args))

	inflight, err := fx.factory.Inflight(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, inflight)
}

func TestCreation_Success(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()

	dispatch, err := fx.factory.RequestCreation(ctx, testRequest("abc", deployCost))
	require.NoError(t, err)

	exists, err := fx.factory.CheckExists(ctx, "abc.factory")
	require.NoError(t, err)
	assert.False(t, exists, "not committed before the callback")

	fx.provisioner.resolve(t, dispatch.ReceiptID, nil, false)
	res := wait(t, dispatch)
	assert.Equal(t, StateCommitted, res.State)
	assert.True(t, res.Refund.IsZero())

	exists, err = fx.factory.CheckExists(ctx, "abc.factory")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Empty(t, fx.refunds.recorded())

	// a second request for the same name is now a duplicate
	_, err = fx.factory.RequestCreation(ctx, testRequest("abc", deployCost))
	assert.ErrorIs(t, err, ErrDuplicateChild)
}

func TestCreation_FailureRefundsDifference(t *testing.T) {
	records := t.TempDir()
	diagnostics, err := storage.NewFileBackend(records, testLogger())
	require.NoError(t, err)

	fx := newFixture(t, testConfig(), WithDiagnostics(diagnostics))
	ctx := context.Background()

	dispatch, err := fx.factory.RequestCreation(ctx, testRequest("abc", deployCost))
	require.NoError(t, err)

	fx.provisioner.resolve(t, dispatch.ReceiptID, errors.New("account creation failed"), false)
	res := wait(t, dispatch)
	assert.Equal(t, StateRefunded, res.State)
	assert.Equal(t, interfaces.NewBalance(2), res.Refund)
	assert.NoError(t, res.RefundErr)
	assert.EqualError(t, res.Cause, "account creation failed")

	assert.Equal(t, []transfer{{"factory", "alice", interfaces.NewBalance(2)}}, fx.refunds.recorded())

	exists, err := fx.factory.CheckExists(ctx, "abc.factory")
	require.NoError(t, err)
	assert.False(t, exists)

	entries, err := os.ReadDir(filepath.Join(records, "records"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	record, err := os.ReadFile(filepath.Join(records, "records", entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(record), `"message":"failed contract deployment"`)
	assert.Contains(t, string(record), `"refund":"2"`)
}

func TestCreation_CorruptCallbackFallsBackToDispatch(t *testing.T) {
	garbled := interfaces.FunctionCall{Method: CallbackMethod, Args: []byte("{garbled")}

	t.Run("failure is still refunded", func(t *testing.T) {
		fx := newFixture(t, testConfig())
		ctx := context.Background()

		dispatch, err := fx.factory.RequestCreation(ctx, testRequest("abc", interfaces.NewBalance(12)))
		require.NoError(t, err)

		fx.provisioner.deliverCallback(t, dispatch.ReceiptID, errors.New("deploy failed"), garbled)
		res := wait(t, dispatch)
		assert.Equal(t, StateRefunded, res.State)
		assert.Equal(t, interfaces.NewBalance(4), res.Refund)
		assert.Equal(t, []transfer{{"factory", "alice", interfaces.NewBalance(4)}}, fx.refunds.recorded())

		exists, err := fx.factory.CheckExists(ctx, "abc.factory")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("success is still committed", func(t *testing.T) {
		fx := newFixture(t, testConfig())
		ctx := context.Background()

		dispatch, err := fx.factory.RequestCreation(ctx, testRequest("abc", deployCost))
		require.NoError(t, err)

		fx.provisioner.deliverCallback(t, dispatch.ReceiptID, nil, interfaces.FunctionCall{Method: "unexpected"})
		res := wait(t, dispatch)
		assert.Equal(t, StateCommitted, res.State)
		assert.Empty(t, fx.refunds.recorded())

		exists, err := fx.factory.CheckExists(ctx, "abc.factory")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("tampered context is ignored", func(t *testing.T) {
		fx := newFixture(t, testConfig())
		ctx := context.Background()

		dispatch, err := fx.factory.RequestCreation(ctx, testRequest("abc", deployCost))
		require.NoError(t, err)

		tampered := interfaces.FunctionCall{
			Method: CallbackMethod,
			Args:   []byte(`{"creator_id":"mallory","metadata":{},"nft_account_id":"abc.factory","attached_deposit":"1000"}`),
		}
		fx.provisioner.deliverCallback(t, dispatch.ReceiptID, errors.New("deploy failed"), tampered)
		res := wait(t, dispatch)
		assert.Equal(t, interfaces.NewBalance(2), res.Refund)
		assert.Equal(t, []transfer{{"factory", "alice", interfaces.NewBalance(2)}}, fx.refunds.recorded())
	})
}

func TestCheckExists_Stable(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()
	require.NoError(t, fx.registry.Insert(ctx, "abc.factory"))

	for i := 0; i < 10; i++ {
		exists, err := fx.factory.CheckExists(ctx, "abc.factory")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = fx.factory.CheckExists(ctx, "xyz.factory")
		require.NoError(t, err)
		assert.False(t, exists)
	}
}

// Two requests for one name both pass validation before either resolves. The registry
// ends up with the child once, but both reservations were sent to the runtime.
func TestCreation_ReserveCommitRace(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()

	first, err := fx.factory.RequestCreation(ctx, testRequest("abc", deployCost))
	require.NoError(t, err)
	second, err := fx.factory.RequestCreation(ctx, testRequest("abc", deployCost))
	require.NoError(t, err)
	require.NotEqual(t, first.ReceiptID, second.ReceiptID)

	fx.provisioner.resolve(t, first.ReceiptID, nil, false)
	fx.provisioner.resolve(t, second.ReceiptID, nil, false)
	assert.Equal(t, StateCommitted, wait(t, first).State)
	assert.Equal(t, StateCommitted, wait(t, second).State)

	n, err := fx.registry.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// known gap: two reservations consumed for one child
	require.Len(t, fx.provisioner.plans, 2)
	for _, plan := range fx.provisioner.plans {
		assert.Equal(t, contractBalance, plan.Deposit)
	}
}

func TestCreation_StrictReservation(t *testing.T) {
	cfg := testConfig()
	cfg.StrictReservation = true
	fx := newFixture(t, cfg)
	ctx := context.Background()

	first, err := fx.factory.RequestCreation(ctx, testRequest("abc", deployCost))
	require.NoError(t, err)

	_, err = fx.factory.RequestCreation(ctx, testRequest("abc", deployCost))
	assert.ErrorIs(t, err, ErrDuplicateChild)

	// a failed attempt releases the name
	fx.provisioner.resolve(t, first.ReceiptID, errors.New("init failed"), false)
	assert.Equal(t, StateRefunded, wait(t, first).State)

	retry, err := fx.factory.RequestCreation(ctx, testRequest("abc", deployCost))
	require.NoError(t, err)
	fx.provisioner.resolve(t, retry.ReceiptID, nil, false)
	assert.Equal(t, StateCommitted, wait(t, retry).State)
	assert.Len(t, fx.provisioner.plans, 2)
}

func TestCreation_DuplicateResultDropped(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()

	dispatch, err := fx.factory.RequestCreation(ctx, testRequest("abc", deployCost))
	require.NoError(t, err)

	fx.provisioner.resolve(t, dispatch.ReceiptID, errors.New("deploy failed"), true)
	assert.Equal(t, StateRefunded, wait(t, dispatch).State)

	require.Eventually(t, func() bool {
		return strings.Contains(fx.scrape(t), `test_creation_callbacks_total{outcome="dropped"} 1`)
	}, 5*time.Second, 10*time.Millisecond)

	// refunded once only
	assert.Len(t, fx.refunds.recorded(), 1)
}

func TestCreation_RefundFailureIsNotRetried(t *testing.T) {
	fx := newFixture(t, testConfig())
	fx.refunds.fail = errors.New("ledger unavailable")
	ctx := context.Background()

	dispatch, err := fx.factory.RequestCreation(ctx, testRequest("abc", deployCost))
	require.NoError(t, err)

	fx.provisioner.resolve(t, dispatch.ReceiptID, errors.New("deploy failed"), false)
	res := wait(t, dispatch)
	assert.Equal(t, StateRefunded, res.State)
	assert.Equal(t, interfaces.NewBalance(2), res.Refund)
	assert.EqualError(t, res.RefundErr, "ledger unavailable")
	assert.Contains(t, fx.scrape(t), `test_refunds_total{status="failed"} 1`)
}

func TestRequestCreation_DispatchRejected(t *testing.T) {
	deposits := &recordingTransferer{}
	fx := newFixture(t, testConfig(), WithDepositCollector(deposits))
	fx.provisioner.reject = errors.New("runtime overloaded")

	_, err := fx.factory.RequestCreation(context.Background(), testRequest("abc", deployCost))
	assert.ErrorIs(t, err, ErrDispatchFailed)

	// collected, then returned
	assert.Equal(t, []transfer{
		{"alice", "factory", deployCost},
		{"factory", "alice", deployCost},
	}, deposits.recorded())
}

func TestFactory_Stopped(t *testing.T) {
	f, err := New(testConfig(), registry.NewMemoryRegistry(), newManualProvisioner(), &recordingTransferer{}, codec.JSON{}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.Run(ctx), context.Canceled)

	_, err = f.CheckExists(context.Background(), "abc.factory")
	assert.ErrorIs(t, err, ErrStopped)
}

// The 10/8 scenarios end to end on the local runtime, with balances observed on the ledger.
func TestCreation_LocalRuntime(t *testing.T) {
	setup := func(t *testing.T) (*Factory, *chain.Local) {
		l := ledger.NewMemory(testLogger())
		host := programs.NewCollectionHost(codec.JSON{}, nil)
		runtime := chain.NewLocal(l, host, testLogger())
		require.NoError(t, runtime.Genesis("factory", interfaces.NewBalance(100)))
		require.NoError(t, runtime.Genesis("alice", interfaces.NewBalance(50)))

		f, err := New(testConfig(), registry.NewMemoryRegistry(), runtime, runtime, codec.JSON{}, testLogger(),
			WithDepositCollector(runtime))
		require.NoError(t, err)
		startFactory(t, f)
		return f, runtime
	}

	balance := func(t *testing.T, runtime *chain.Local, id interfaces.AccountID) interfaces.Balance {
		b, err := runtime.Balance(context.Background(), id)
		require.NoError(t, err)
		return b
	}

	t.Run("success", func(t *testing.T) {
		f, runtime := setup(t)
		ctx := context.Background()

		dispatch, err := f.RequestCreation(ctx, testRequest("abc", deployCost))
		require.NoError(t, err)
		res := wait(t, dispatch)
		require.Equal(t, StateCommitted, res.State)

		exists, err := f.CheckExists(ctx, "abc.factory")
		require.NoError(t, err)
		assert.True(t, exists)

		assert.Equal(t, interfaces.NewBalance(40), balance(t, runtime, "alice"))
		assert.Equal(t, interfaces.NewBalance(102), balance(t, runtime, "factory"))
		assert.Equal(t, interfaces.NewBalance(8), balance(t, runtime, "abc.factory"))
	})

	t.Run("child initialization fails", func(t *testing.T) {
		f, runtime := setup(t)
		ctx := context.Background()

		req := testRequest("abc", deployCost)
		req.Sale.Royalties.Percent = 10_001

		dispatch, err := f.RequestCreation(ctx, req)
		require.NoError(t, err)
		res := wait(t, dispatch)
		require.Equal(t, StateRefunded, res.State)
		assert.ErrorIs(t, res.Cause, interfaces.ErrProgramFailed)
		assert.Equal(t, interfaces.NewBalance(2), res.Refund)

		exists, err := f.CheckExists(ctx, "abc.factory")
		require.NoError(t, err)
		assert.False(t, exists)
		assert.False(t, runtime.Exists("abc.factory"))

		// alice paid 10 and got 2 back; the factory keeps the reservation
		assert.Equal(t, interfaces.NewBalance(42), balance(t, runtime, "alice"))
		assert.Equal(t, interfaces.NewBalance(108), balance(t, runtime, "factory"))
	})

	t.Run("race consumes both reservations", func(t *testing.T) {
		f, runtime := setup(t)
		ctx := context.Background()

		first, err := f.RequestCreation(ctx, testRequest("abc", deployCost))
		require.NoError(t, err)
		second, err := f.RequestCreation(ctx, testRequest("abc", deployCost))
		if err != nil {
			// the first callback already resolved; the race did not happen this time
			require.ErrorIs(t, err, ErrDuplicateChild)
			return
		}

		states := []State{wait(t, first).State, wait(t, second).State}
		assert.ElementsMatch(t, []State{StateCommitted, StateRefunded}, states)

		exists, err := f.CheckExists(ctx, "abc.factory")
		require.NoError(t, err)
		assert.True(t, exists)

		// one child, two reservations paid by alice
		assert.Equal(t, interfaces.NewBalance(50-10-8), balance(t, runtime, "alice"))
	})
}

func TestRequestCreation_RegistryUnavailable(t *testing.T) {
	reg := new(registry.MockRegistry)
	reg.On("Contains", mock.Anything, interfaces.AccountID("abc.factory")).Return(false, errors.New("database is locked")).Once()

	provisioner := newManualProvisioner()
	f, err := New(testConfig(), reg, provisioner, &recordingTransferer{}, codec.JSON{}, testLogger())
	require.NoError(t, err)
	startFactory(t, f)

	_, err = f.RequestCreation(context.Background(), testRequest("abc", deployCost))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateChild)
	assert.Empty(t, provisioner.plans)
	reg.AssertExpectations(t)
}

func TestCreation_CommitFailure(t *testing.T) {
	reg := new(registry.MockRegistry)
	reg.On("Contains", mock.Anything, interfaces.AccountID("abc.factory")).Return(false, nil).Once()
	reg.On("Insert", mock.Anything, interfaces.AccountID("abc.factory")).Return(errors.New("disk full")).Once()

	provisioner := newManualProvisioner()
	refunds := &recordingTransferer{}
	f, err := New(testConfig(), reg, provisioner, refunds, codec.JSON{}, testLogger())
	require.NoError(t, err)
	startFactory(t, f)

	dispatch, err := f.RequestCreation(context.Background(), testRequest("abc", deployCost))
	require.NoError(t, err)
	provisioner.resolve(t, dispatch.ReceiptID, nil, false)

	res := wait(t, dispatch)
	assert.Equal(t, StateCommitted, res.State)
	assert.EqualError(t, res.CommitErr, "disk full")
	assert.Empty(t, refunds.recorded(), "a provisioned child is never refunded")
	reg.AssertExpectations(t)
}
