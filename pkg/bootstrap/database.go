package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"claimant-consumer/internal/config"
	"claimant-consumer/internal/logger"
	"claimant-consumer/migrations"
)

// SecretSource resolves a named secret, as the Secrets Manager repository
// does.
type SecretSource interface {
	Secret(ctx context.Context, name string) (string, error)
}

type DatabaseConnector struct {
	Config  config.PostgresConfig
	Secrets SecretSource
	Logger  logger.Logger
}

func NewDatabaseConnector(cfg config.PostgresConfig, secrets SecretSource, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config:  cfg,
		Secrets: secrets,
		Logger:  log,
	}
}

// DSN builds the connection URL. The password is taken from the secret
// named by PasswordSecretName when one is configured.
func (dc *DatabaseConnector) DSN(ctx context.Context) (string, error) {
	password := dc.Config.Password
	if dc.Config.PasswordSecretName != "" {
		if dc.Secrets == nil {
			return "", fmt.Errorf("password secret %s configured without a secret source", dc.Config.PasswordSecretName)
		}
		secret, err := dc.Secrets.Secret(ctx, dc.Config.PasswordSecretName)
		if err != nil {
			return "", fmt.Errorf("failed to resolve database password: %w", err)
		}
		password = secret
	}

	sslMode := dc.Config.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(dc.Config.User, password),
		Host:     fmt.Sprintf("%s:%d", dc.Config.Host, dc.Config.Port),
		Path:     dc.Config.DBName,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String(), nil
}

func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	dsn, err := dc.DSN(ctx)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dc.Logger.Infow("PostgreSQL connected successfully",
		"host", dc.Config.Host,
		"dbname", dc.Config.DBName)
	return db, nil
}

// RunMigrations brings the schema up to date with the embedded migrations.
func RunMigrations(db *sql.DB, log logger.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(migrations.Postgres, "postgres")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	log.Infow("Database migrations applied", "version", version, "dirty", dirty)
	return nil
}
