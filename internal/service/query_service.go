package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/richardliu001/ledger-service/internal/model"
	"github.com/richardliu001/ledger-service/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// QueryService serves read-only balance and history lookups.
type QueryService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

func NewQueryService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *QueryService {
	return &QueryService{repo: r, log: logger}
}

// GetBalance returns current account balance, from cache when possible.
func (s *QueryService) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	bal, err := s.repo.GetCachedBalance(ctx, accountID)
	if err == nil {
		return bal, nil
	}
	acc, err := s.repo.GetBalance(ctx, accountID)
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			return decimal.Zero, &NotFoundError{Resource: "account", ID: accountID.String()}
		}
		return decimal.Zero, storeFailure("get balance", err)
	}
	if err := s.repo.CacheBalance(ctx, accountID, acc.Balance, acc.Version); err != nil && !errors.Is(err, repo.ErrCacheDisabled) {
		s.log.Warnw("cache balance", "account_id", accountID, "error", err)
	}
	return acc.Balance, nil
}

// ListTransactions returns every ledger entry in insertion order.
func (s *QueryService) ListTransactions(ctx context.Context, f repo.TxFilter) ([]model.Transaction, error) {
	txs, err := s.repo.ListTransactions(ctx, f)
	if err != nil {
		return nil, storeFailure("list transactions", err)
	}
	return txs, nil
}

// QueryTransactions returns entries where accountID is sender or receiver.
// An account with no entries yields NotFoundError.
func (s *QueryService) QueryTransactions(ctx context.Context, accountID uuid.UUID, f repo.TxFilter) ([]model.Transaction, error) {
	txs, err := s.repo.AccountTransactions(ctx, accountID, f)
	if err != nil {
		return nil, storeFailure("query transactions", err)
	}
	if len(txs) == 0 {
		return nil, &NotFoundError{Resource: "transactions for account", ID: accountID.String()}
	}
	return txs, nil
}

// GetTransaction loads a single entry.
func (s *QueryService) GetTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	t, err := s.repo.GetTransaction(ctx, id)
	if errors.Is(err, repo.ErrTransactionNotFound) {
		return nil, &NotFoundError{Resource: "transaction", ID: id.String()}
	}
	if err != nil {
		return nil, storeFailure("get transaction", err)
	}
	return t, nil
}
