package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/richardliu001/ledger-service/internal/repo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	repo   *repo.Repository
	redis  *miniredis.Miniredis
	ledger *Ledger
}

func testEngineConfig() EngineConfig {
	return EngineConfig{
		Retry:          RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		RecordRejected: true,
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log := zaptest.NewLogger(t).Sugar()
	r := repo.NewRepository(newTestDB(t), rdb, log)
	return &fixture{repo: r, redis: mr, ledger: NewLedger(r, log, testEngineConfig())}
}

func (f *fixture) account(t *testing.T, balance string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	acc, err := f.ledger.Provision(ctx)
	require.NoError(t, err)
	if balance != "0" {
		_, err = f.ledger.SetBalance(ctx, acc.AccountID, decimal.RequireFromString(balance))
		require.NoError(t, err)
	}
	return acc.AccountID
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	acc, err := f.repo.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
