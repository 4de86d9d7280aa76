package db

import (
	"context"
	"database/sql"
	"embed"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schemaFS embed.FS

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// Service represents the database service with connection management
type Service struct {
	DB      *sql.DB
	Dialect Dialect
	log     *logrus.Entry
}

// Config holds database configuration
type Config struct {
	DSN            string
	MaxOpenConns   int
	MaxIdleConns   int
	AutoInitialize bool // Apply schema.sql on start; every statement is idempotent
}

// DefaultConfig returns default database configuration
func DefaultConfig() *Config {
	return &Config{
		DSN:            "sqlite://./data/crm.db",
		MaxOpenConns:   1, // SQLite doesn't handle concurrent writes well
		MaxIdleConns:   1,
		AutoInitialize: true,
	}
}

// ParseDSN picks the driver for a connection string and returns the source
// to hand to sql.Open.
func ParseDSN(dsn string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return DialectSQLite, strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return DialectSQLite, strings.TrimPrefix(dsn, "sqlite:"), nil
	case strings.HasPrefix(dsn, "file:"),
		strings.HasSuffix(dsn, ".db"),
		strings.HasSuffix(dsn, ".sqlite"),
		dsn == ":memory:":
		return DialectSQLite, dsn, nil
	}
	return "", "", errors.Newf("unsupported database url %q", redact(dsn))
}

// New creates a new database service instance
func New(config *Config, log *logrus.Entry) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}

	dialect, source, err := ParseDSN(config.DSN)
	if err != nil {
		return nil, err
	}

	if dialect == DialectSQLite && isPlainPath(source) {
		if err := os.MkdirAll(filepath.Dir(source), 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	db, err := sql.Open(string(dialect), source)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	service := &Service{DB: db, Dialect: dialect, log: log}

	if config.AutoInitialize {
		if err := service.InitializeSchema(); err != nil {
			db.Close()
			return nil, err
		}
	}

	log.WithField("dialect", dialect).Info("database service initialized")
	return service, nil
}

// InitializeSchema loads and executes the schema.sql file
func (s *Service) InitializeSchema() error {
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return errors.Wrap(err, "failed to read schema file")
	}

	if _, err := s.DB.Exec(string(schemaSQL)); err != nil {
		return errors.Wrap(err, "failed to execute schema")
	}

	return nil
}

// VerifySchema checks if the database schema is properly initialized
func (s *Service) VerifySchema() error {
	requiredTables := []string{"cases"}

	var query string
	switch s.Dialect {
	case DialectPostgres:
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`
	default:
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
	}

	for _, table := range requiredTables {
		var exists int
		if err := s.DB.QueryRow(query, table).Scan(&exists); err != nil {
			return errors.Wrapf(err, "failed to check table %s", table)
		}
		if exists == 0 {
			return errors.Newf("required table missing: %s", table)
		}
	}

	s.log.Debug("schema verification successful")
	return nil
}

// StatementBuilder returns a squirrel builder using the dialect's placeholders
func StatementBuilder(dialect Dialect) squirrel.StatementBuilderType {
	if dialect == DialectPostgres {
		return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	}
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
}

// Close closes the database connection
func (s *Service) Close() error {
	if s.DB != nil {
		s.log.Info("closing database connection")
		return s.DB.Close()
	}
	return nil
}

// Health checks the database connection health
func (s *Service) Health() error {
	if s.DB == nil {
		return errors.New("database connection is nil")
	}
	return s.DB.Ping()
}

func isPlainPath(source string) bool {
	return source != ":memory:" && !strings.HasPrefix(source, "file:")
}

// redact drops credentials from a connection string before it is logged.
func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}

// Transaction executes a function within a database transaction
func Transaction(ctx context.Context, conn *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p) // re-throw panic after rollback
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.WithSecondaryError(err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}
