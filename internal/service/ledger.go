package service

import (
	"github.com/richardliu001/ledger-service/internal/repo"
	"go.uber.org/zap"
)

// Ledger bundles the services the HTTP layer talks to.
type Ledger struct {
	*TransferEngine
	*QueryService
	*AccountService
}

func NewLedger(r repo.RepositoryInterface, logger *zap.SugaredLogger, cfg EngineConfig) *Ledger {
	return &Ledger{
		TransferEngine: NewTransferEngine(r, logger, cfg),
		QueryService:   NewQueryService(r, logger),
		AccountService: NewAccountService(r, logger),
	}
}
