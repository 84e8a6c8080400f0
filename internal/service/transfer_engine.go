package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/ledger-service/internal/model"
	"github.com/richardliu001/ledger-service/internal/repo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tracerName = "github.com/richardliu001/ledger-service/internal/service"

// EngineConfig tunes TransferEngine.
type EngineConfig struct {
	Retry RetryPolicy
	// RecordRejected appends a "rejected" entry for transfers refused for
	// insufficient funds. Applied entries are always written.
	RecordRejected bool
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// TransferOutcome is the result of a committed transfer.
type TransferOutcome struct {
	TransactionID uuid.UUID
	FromBalance   decimal.Decimal
	ToBalance     decimal.Decimal
	CreatedAt     time.Time
}

// transferEvent is the outbox payload for an applied transfer.
type transferEvent struct {
	TransactionID string          `json:"transaction_id"`
	From          string          `json:"from_account_id"`
	To            string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	FromBalance   decimal.Decimal `json:"from_balance"`
	ToBalance     decimal.Decimal `json:"to_balance"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TransferEngine validates transfers and applies them atomically: both
// balance writes, the ledger entry and the outbox event commit together.
type TransferEngine struct {
	repo   repo.RepositoryInterface
	log    *zap.SugaredLogger
	cfg    EngineConfig
	tracer trace.Tracer
}

// NewTransferEngine returns TransferEngine.
func NewTransferEngine(r repo.RepositoryInterface, logger *zap.SugaredLogger, cfg EngineConfig) *TransferEngine {
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TransferEngine{repo: r, log: logger, cfg: cfg, tracer: tp.Tracer(tracerName)}
}

// CreateTransfer moves amount from fromID to toID.
func (e *TransferEngine) CreateTransfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal) (*TransferOutcome, error) {
	ctx, span := e.tracer.Start(ctx, "ledger.CreateTransfer", trace.WithAttributes(
		attribute.String("ledger.from_account", fromID.String()),
		attribute.String("ledger.to_account", toID.String()),
		attribute.String("ledger.amount", amount.String()),
	))
	defer span.End()

	out, err := e.createTransfer(ctx, fromID, toID, amount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		return nil, err
	}
	span.SetAttributes(attribute.String("ledger.transaction_id", out.TransactionID.String()))
	return out, nil
}

func (e *TransferEngine) createTransfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal) (*TransferOutcome, error) {
	if err := validateTransfer(fromID, toID, amount); err != nil {
		return nil, err
	}

	var record *model.Transaction
	journal := func(ctx context.Context, tx *gorm.DB, res *repo.TransferResult) error {
		record = &model.Transaction{
			FromAccountID: fromID,
			ToAccountID:   toID,
			Amount:        amount,
			Status:        model.StatusApplied,
		}
		if err := e.repo.AppendTransaction(ctx, tx, record); err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
		payload, err := json.Marshal(transferEvent{
			TransactionID: record.ID.String(),
			From:          fromID.String(),
			To:            toID.String(),
			Amount:        amount,
			FromBalance:   res.From.After,
			ToBalance:     res.To.After,
			CreatedAt:     record.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("marshal transfer event: %w", err)
		}
		evt := &model.OutboxEvent{
			Aggregate:   model.AggregateTransaction,
			AggregateID: record.ID.String(),
			EventType:   model.EventTransferApplied,
			Payload:     string(payload),
		}
		if err := e.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return fmt.Errorf("create outbox event: %w", err)
		}
		return nil
	}

	var (
		res *repo.TransferResult
		err error
	)
	for attempt := 0; ; attempt++ {
		res, err = e.repo.TransferAtomic(ctx, fromID, toID, amount, journal)
		if !errors.Is(err, repo.ErrVersionConflict) || attempt >= e.cfg.Retry.MaxRetries {
			break
		}
		e.log.Debugw("transfer version conflict, retrying", "from", fromID, "to", toID, "attempt", attempt+1)
		if werr := e.cfg.Retry.wait(ctx, attempt); werr != nil {
			err = werr
			break
		}
	}
	if err != nil {
		return nil, e.classify(ctx, fromID, toID, amount, err)
	}

	publishBalances(ctx, e.repo, e.log, res.From, res.To)
	e.log.Infow("transfer applied",
		"transaction_id", record.ID, "from", fromID, "to", toID, "amount", amount.String())

	return &TransferOutcome{
		TransactionID: record.ID,
		FromBalance:   res.From.After,
		ToBalance:     res.To.After,
		CreatedAt:     record.CreatedAt,
	}, nil
}

func validateTransfer(fromID, toID uuid.UUID, amount decimal.Decimal) error {
	switch {
	case fromID == uuid.Nil:
		return &ValidationError{Field: "from_account_id", Reason: "is required"}
	case toID == uuid.Nil:
		return &ValidationError{Field: "to_account_id", Reason: "is required"}
	case !amount.IsPositive():
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	case fromID == toID:
		return &ValidationError{Field: "to_account_id", Reason: "must differ from from_account_id"}
	}
	return nil
}

// classify turns a store error into the caller-facing taxonomy, recording the
// rejected attempt when configured.
func (e *TransferEngine) classify(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, err error) error {
	var (
		insufficient *repo.InsufficientFundsError
		missing      *repo.MissingAccountError
	)
	switch {
	case errors.As(err, &insufficient):
		e.log.Infow("transfer rejected", "from", fromID, "to", toID,
			"amount", amount.String(), "available", insufficient.Available.String())
		if e.cfg.RecordRejected {
			e.recordRejected(ctx, fromID, toID, amount, "insufficient funds")
		}
		return &InsufficientFundsError{
			AccountID:      insufficient.AccountID,
			Requested:      insufficient.Requested,
			Available:      insufficient.Available,
			NewFromBalance: insufficient.NewFrom,
			NewToBalance:   insufficient.NewTo,
		}
	case errors.As(err, &missing):
		role := "to"
		if missing.AccountID == fromID {
			role = "from"
		}
		return &NotFoundError{Resource: "account", ID: missing.AccountID.String(), Role: role}
	case errors.Is(err, repo.ErrSameAccount):
		return &ValidationError{Field: "to_account_id", Reason: "must differ from from_account_id"}
	case errors.Is(err, repo.ErrNonPositiveAmount):
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	default:
		e.log.Errorw("transfer failed", "from", fromID, "to", toID, "error", err)
		return storeFailure("transfer", err)
	}
}

// recordRejected appends a rejected entry in its own write; balances are untouched.
func (e *TransferEngine) recordRejected(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, reason string) {
	rec := &model.Transaction{
		FromAccountID: fromID,
		ToAccountID:   toID,
		Amount:        amount,
		Status:        model.StatusRejected,
		Reason:        reason,
	}
	if err := e.repo.AppendTransaction(ctx, nil, rec); err != nil {
		e.log.Warnw("record rejected transfer", "from", fromID, "to", toID, "error", err)
	}
}

// publishBalances writes committed balances to the cache with their row
// versions. The write outlives a cancelled request so a committed change is
// not hidden behind an older cached one.
func publishBalances(ctx context.Context, cache repo.BalanceCache, log *zap.SugaredLogger, changes ...repo.BalanceChange) {
	ctx = context.WithoutCancel(ctx)
	for _, c := range changes {
		err := cache.CacheBalance(ctx, c.AccountID, c.After, c.Version)
		if err != nil && !errors.Is(err, repo.ErrCacheDisabled) {
			log.Warnw("cache committed balance", "account_id", c.AccountID, "version", c.Version, "error", err)
		}
	}
}
