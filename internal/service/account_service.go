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

// AccountService provisions accounts and exposes the administrative balance overwrite.
type AccountService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

func NewAccountService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *AccountService {
	return &AccountService{repo: r, log: logger}
}

// Provision creates an account with a zero balance.
func (s *AccountService) Provision(ctx context.Context) (*model.AccountBalance, error) {
	acc, err := s.repo.CreateAccount(ctx, uuid.New())
	if err != nil {
		return nil, storeFailure("provision account", err)
	}
	s.log.Infow("account provisioned", "account_id", acc.AccountID)
	return acc, nil
}

// AccountExists reports whether accountID has a balance row.
func (s *AccountService) AccountExists(ctx context.Context, accountID uuid.UUID) (bool, error) {
	ok, err := s.repo.AccountExists(ctx, accountID)
	if err != nil {
		return false, storeFailure("account exists", err)
	}
	return ok, nil
}

// SetBalance overwrites the balance of an existing account.
func (s *AccountService) SetBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) (*model.AccountBalance, error) {
	if balance.IsNegative() {
		return nil, &ValidationError{Field: "balance", Reason: "must not be negative"}
	}
	acc, err := s.repo.SetBalance(ctx, accountID, balance)
	switch {
	case errors.Is(err, repo.ErrAccountNotFound):
		return nil, &NotFoundError{Resource: "account", ID: accountID.String()}
	case errors.Is(err, repo.ErrNegativeBalance):
		return nil, &ValidationError{Field: "balance", Reason: "must not be negative"}
	case err != nil:
		return nil, storeFailure("set balance", err)
	}
	publishBalances(ctx, s.repo, s.log, repo.BalanceChange{AccountID: accountID, After: acc.Balance, Version: acc.Version})
	s.log.Infow("balance set", "account_id", accountID, "balance", balance.String())
	return acc, nil
}
