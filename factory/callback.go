package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ruteri/collection-factory/interfaces"
	"github.com/ruteri/collection-factory/metrics"
)

// callbackContext is everything needed to resolve a request. It travels with the plan
// and comes back with the result; nothing about it is looked up at resolution time.
type callbackContext struct {
	CreatorID       interfaces.AccountID    `json:"creator_id"`
	Metadata        interfaces.MetadataBlob `json:"metadata"`
	ChildID         interfaces.AccountID    `json:"nft_account_id"`
	AttachedDeposit interfaces.Balance      `json:"attached_deposit"`
}

// diagnosticRecord is stored for every failed provisioning attempt.
type diagnosticRecord struct {
	Message         string               `json:"message"`
	ReceiptID       interfaces.ReceiptID `json:"receipt_id"`
	ChildID         interfaces.AccountID `json:"child_id"`
	CreatorID       interfaces.AccountID `json:"creator_id"`
	AttachedDeposit interfaces.Balance   `json:"attached_deposit"`
	Refund          interfaces.Balance   `json:"refund"`
	Cause           string               `json:"cause"`
	Time            time.Time            `json:"time"`
}

// onCreationComplete resolves a dispatched request. Only results of plans this factory
// dispatched and that are still pending are processed; anything else is dropped.
func (f *Factory) onCreationComplete(ctx context.Context, res interfaces.ProvisioningResult) {
	dispatch, ok := f.pending[res.ReceiptID]
	if !ok {
		f.log.Warn("Dropping provisioning result without pending request", slog.String("receiptID", string(res.ReceiptID)))
		f.metrics.RecordCallback(metrics.OutcomeDropped, 0)
		return
	}
	delete(f.pending, res.ReceiptID)
	if f.reserved[dispatch.ChildID] == res.ReceiptID {
		delete(f.reserved, dispatch.ChildID)
	}
	defer f.metrics.SetInflight(len(f.pending))

	ctx, span := f.tracer.Start(ctx, "OnCreationComplete", trace.WithAttributes(
		attribute.String("receiptID", string(res.ReceiptID)),
		attribute.Bool("succeeded", res.Succeeded()),
	))
	defer span.End()

	cbCtx, err := f.decodeCallback(res.Callback)
	if err != nil {
		// fall back to the dispatch record, which carries the same facts
		f.log.Error("Resolving corrupt provisioning result from the dispatch record",
			slog.String("receiptID", string(res.ReceiptID)),
			"err", errors.Join(ErrCorruptResult, err))
		span.RecordError(err)
		cbCtx = callbackContext{
			CreatorID:       dispatch.Creator,
			ChildID:         dispatch.ChildID,
			AttachedDeposit: dispatch.Attached,
		}
	} else if cbCtx.ChildID != dispatch.ChildID || cbCtx.CreatorID != dispatch.Creator || cbCtx.AttachedDeposit.Cmp(dispatch.Attached) != 0 {
		f.log.Error("Provisioning result disagrees with the dispatch record",
			slog.String("receiptID", string(res.ReceiptID)),
			slog.String("childID", cbCtx.ChildID.String()),
			slog.String("dispatchedChildID", dispatch.ChildID.String()))
		cbCtx.CreatorID, cbCtx.ChildID, cbCtx.AttachedDeposit = dispatch.Creator, dispatch.ChildID, dispatch.Attached
	}

	var resolution Resolution
	if res.Succeeded() {
		resolution = f.commit(ctx, cbCtx)
		f.metrics.RecordCallback(metrics.OutcomeCommitted, time.Since(dispatch.dispatchedAt))
	} else {
		resolution = f.compensate(ctx, res, cbCtx)
		f.metrics.RecordCallback(metrics.OutcomeRefunded, time.Since(dispatch.dispatchedAt))
		span.SetStatus(codes.Error, res.Err.Error())
	}
	dispatch.resolve(resolution)
}

func (f *Factory) commit(ctx context.Context, cbCtx callbackContext) Resolution {
	if err := f.registry.Insert(ctx, cbCtx.ChildID); err != nil {
		f.log.Error("Could not commit provisioned child", slog.String("childID", cbCtx.ChildID.String()), "err", err)
		return Resolution{State: StateCommitted, CommitErr: err}
	}

	if n, err := f.registry.Len(ctx); err == nil {
		f.metrics.SetRegistrySize(n)
	}

	f.log.Info("Committed child", slog.String("childID", cbCtx.ChildID.String()), slog.String("creator", cbCtx.CreatorID.String()))
	return Resolution{State: StateCommitted}
}

// compensate refunds the attached deposit minus the reservation. The reservation is
// consumed by the failed attempt.
func (f *Factory) compensate(ctx context.Context, res interfaces.ProvisioningResult, cbCtx callbackContext) Resolution {
	refund, err := cbCtx.AttachedDeposit.Sub(f.cfg.ContractBalance)
	if err != nil {
		refund = interfaces.Balance{}
	}

	f.log.Error("failed contract deployment",
		slog.String("childID", cbCtx.ChildID.String()),
		slog.String("creator", cbCtx.CreatorID.String()),
		slog.String("refund", refund.String()),
		"err", res.Err)

	f.storeDiagnostics(ctx, diagnosticRecord{
		Message:         "failed contract deployment",
		ReceiptID:       res.ReceiptID,
		ChildID:         cbCtx.ChildID,
		CreatorID:       cbCtx.CreatorID,
		AttachedDeposit: cbCtx.AttachedDeposit,
		Refund:          refund,
		Cause:           res.Err.Error(),
		Time:            time.Now().UTC(),
	})

	resolution := Resolution{State: StateRefunded, Cause: res.Err, Refund: refund}
	if refund.IsZero() {
		return resolution
	}

	// no retry: a failed refund is a loss reported only here
	if err := f.refunds.Transfer(ctx, f.cfg.AccountID, cbCtx.CreatorID, refund); err != nil {
		f.log.Error("Refund failed",
			slog.String("creator", cbCtx.CreatorID.String()),
			slog.String("amount", refund.String()),
			"err", err)
		resolution.RefundErr = err
	}
	f.metrics.RecordRefund(resolution.RefundErr)
	return resolution
}

func (f *Factory) storeDiagnostics(ctx context.Context, record diagnosticRecord) {
	if f.diagnostics == nil {
		return
	}

	data, err := f.codec.Marshal(record)
	if err != nil {
		f.log.Error("Could not encode diagnostic record", "err", err)
		return
	}

	id, err := f.diagnostics.Store(ctx, data, interfaces.RecordType)
	if err != nil {
		f.log.Warn("Could not store diagnostic record", slog.String("backend", f.diagnostics.Name()), "err", err)
		return
	}
	f.log.Debug("Stored diagnostic record", slog.String("recordID", id.String()))
}

func (f *Factory) decodeCallback(call interfaces.FunctionCall) (callbackContext, error) {
	var cbCtx callbackContext
	if call.Method != CallbackMethod {
		return cbCtx, fmt.Errorf("unexpected callback method %q", call.Method)
	}
	if err := f.codec.Unmarshal(call.Args, &cbCtx); err != nil {
		return cbCtx, fmt.Errorf("could not decode callback context: %w", err)
	}
	return cbCtx, nil
}
