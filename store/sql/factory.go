package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-dataspace/core"
	"github.com/goliatone/go-dataspace/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type RepositoryFactory struct {
	db      *bun.DB
	secrets core.SecretProvider

	transactionStore *TransactionStore
}

func NewRepositoryFactory(secrets core.SecretProvider) *RepositoryFactory {
	return &RepositoryFactory{secrets: secrets}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, secrets core.SecretProvider) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(secrets)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, secrets core.SecretProvider) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(secrets)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (*TransactionStore, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.transactionStore != nil {
		return f.transactionStore, nil
	}
	store, err := NewTransactionStore(f.db, f.secrets)
	if err != nil {
		return nil, err
	}
	f.transactionStore = store
	return store, nil
}

func (f *RepositoryFactory) TransactionStore() *TransactionStore {
	if f == nil {
		return nil
	}
	return f.transactionStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

// Ledger is an opened, migrated SQL ledger.
type Ledger struct {
	*CachedTransactionStore
	Client *persistence.Client
	Store  *TransactionStore
}

func (l *Ledger) Close() error {
	if l == nil || l.Client == nil {
		return nil
	}
	return l.Client.Close()
}

// Open connects to the configured database, applies the embedded
// migrations for its dialect and returns a cached ledger.
func Open(ctx context.Context, cfg core.LedgerConfig, secrets core.SecretProvider) (*Ledger, error) {
	driver := normalizeDriver(cfg.Driver)
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: ledger dsn is required")
	}
	var (
		dialect        schema.Dialect
		migrationsName string
	)
	switch driver {
	case DriverSQLite:
		dialect, migrationsName = sqlitedialect.New(), migrations.DialectSQLite
	case DriverPostgres:
		dialect, migrationsName = pgdialect.New(), migrations.DialectPostgres
	default:
		return nil, fmt.Errorf("sqlstore: unsupported ledger driver %q", cfg.Driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{driver: driver, server: dsn, debug: cfg.Debug}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: persistence client: %w", err)
	}
	if err := Migrate(ctx, client, migrationsName); err != nil {
		_ = client.Close()
		return nil, err
	}

	factory, err := NewRepositoryFactoryFromPersistence(client, secrets)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	cacheConfig := repositorycache.DefaultConfig()
	if cfg.CacheTTL > 0 {
		cacheConfig.TTL = cfg.CacheTTL
	}
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sqlstore: cache service: %w", err)
	}
	cached, err := NewCachedTransactionStore(factory.TransactionStore(), cacheService)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Ledger{CachedTransactionStore: cached, Client: client, Store: factory.TransactionStore()}, nil
}

// Migrate registers the embedded migrations for one dialect and applies them.
func Migrate(ctx context.Context, client *persistence.Client, dialect string) error {
	if client == nil {
		return fmt.Errorf("sqlstore: persistence client is required")
	}
	_, err := migrations.Register(ctx, func(_ context.Context, registered string, _ string, fsys fs.FS) error {
		if registered != dialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(dialect))
	if err != nil {
		return fmt.Errorf("sqlstore: register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite
	case "postgres", "postgresql", "pg":
		return DriverPostgres
	default:
		return strings.ToLower(strings.TrimSpace(driver))
	}
}

type persistenceConfig struct {
	driver string
	server string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool {
	return c.debug
}

func (c persistenceConfig) GetDriver() string {
	return c.driver
}

func (c persistenceConfig) GetServer() string {
	return c.server
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-dataspace-ledger"
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
