package repo

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/richardliu001/ledger-service/internal/model"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tracerName = "github.com/richardliu001/ledger-service/internal/repo"

const (
	defaultCacheTTL    = 5 * time.Minute
	defaultLockTimeout = 3 * time.Second
)

// BalanceStore is the durable account id -> balance mapping.
type BalanceStore interface {
	CreateAccount(ctx context.Context, accountID uuid.UUID) (*model.AccountBalance, error)
	AccountExists(ctx context.Context, accountID uuid.UUID) (bool, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (*model.AccountBalance, error)
	SetBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) (*model.AccountBalance, error)
	CompareAndSet(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal, expectedVersion uint64) error
	TransferAtomic(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, hooks ...TransferHook) (*TransferResult, error)
}

// TransactionLog is the append-only record of transfers.
type TransactionLog interface {
	AppendTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	ListTransactions(ctx context.Context, f TxFilter) ([]model.Transaction, error)
	AccountTransactions(ctx context.Context, accountID uuid.UUID, f TxFilter) ([]model.Transaction, error)
}

// OutboxStore persists integration events next to the ledger writes.
type OutboxStore interface {
	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
}

// BalanceCache is a best-effort read cache in front of the BalanceStore.
type BalanceCache interface {
	CacheBalance(ctx context.Context, accountID uuid.UUID, bal decimal.Decimal, version uint64) error
	GetCachedBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
}

// RepositoryInterface restricts Repo methods so services can be tested against wrappers.
type RepositoryInterface interface {
	BalanceStore
	TransactionLog
	OutboxStore
	BalanceCache
}

// Repository implements RepositoryInterface on gorm and redis.
type Repository struct {
	db          *gorm.DB
	rdb         *redis.Client
	log         *zap.SugaredLogger
	cacheTTL    time.Duration
	lockTimeout time.Duration
	tracer      trace.Tracer
}

type Option func(*Repository)

// WithCacheTTL sets the expiry of cached balances.
func WithCacheTTL(d time.Duration) Option {
	return func(r *Repository) {
		if d > 0 {
			r.cacheTTL = d
		}
	}
}

// WithLockTimeout bounds row lock waits inside TransferAtomic. Zero disables it.
func WithLockTimeout(d time.Duration) Option {
	return func(r *Repository) { r.lockTimeout = d }
}

// WithTracerProvider sets the provider TransferAtomic spans come from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Repository) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewRepository constructs repo. rdb may be nil, which disables caching.
func NewRepository(db *gorm.DB, rdb *redis.Client, logger *zap.SugaredLogger, opts ...Option) *Repository {
	r := &Repository{
		db:          db,
		rdb:         rdb,
		log:         logger,
		cacheTTL:    defaultCacheTTL,
		lockTimeout: defaultLockTimeout,
		tracer:      otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AutoMigrate creates the ledger tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.AccountBalance{}, &model.Transaction{}, &model.OutboxEvent{})
}

// conn returns tx when the caller is inside a transaction, the pool otherwise.
func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx)
}
