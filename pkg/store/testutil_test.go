package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	sharedDSN     string
	containerOnce sync.Once
	containerErr  error
)

// newTestStore starts (once per package run) a shared Postgres
// testcontainer, creates a uniquely named database for this test, runs
// migrations against it, and returns a ready Store. The database is
// dropped on test cleanup.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	baseDSN := sharedPostgresDSN(t)
	dbName := generateDBName(t)

	admin, err := pgxpool.New(ctx, baseDSN)
	require.NoError(t, err)
	defer admin.Close()

	_, err = admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName))
	require.NoError(t, err)

	t.Cleanup(func() {
		cleanupCtx := context.Background()
		admin, err := pgxpool.New(cleanupCtx, baseDSN)
		if err == nil {
			_, _ = admin.Exec(cleanupCtx, fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", dbName))
			admin.Close()
		}
	})

	cfg := dsnToConfig(t, baseDSN)
	cfg.Database = dbName

	s, err := NewStore(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s
}

func sharedPostgresDSN(t *testing.T) string {
	t.Helper()

	if ci := os.Getenv("CI_DATABASE_URL"); ci != "" {
		return ci
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		c, err := tcpostgres.Run(ctx,
			"postgres:17-alpine",
			tcpostgres.WithDatabase("govpipe_test"),
			tcpostgres.WithUsername("govpipe"),
			tcpostgres.WithPassword("govpipe"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("starting postgres testcontainer: %w", err)
			return
		}
		dsn, err := c.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = fmt.Errorf("reading connection string: %w", err)
			return
		}
		sharedDSN = dsn
	})

	require.NoError(t, containerErr)
	return sharedDSN
}

func generateDBName(t *testing.T) string {
	t.Helper()
	name := strings.ToLower(t.Name())
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}
	randBytes := make([]byte, 4)
	_, err := rand.Read(randBytes)
	require.NoError(t, err)
	return fmt.Sprintf("test_%s_%s", name, hex.EncodeToString(randBytes))
}

// dsnToConfig is a thin ConnString -> Config parser sufficient for the
// pgx-formatted URLs testcontainers returns; production configuration goes
// through cmd/govpipe's env-var loader instead.
func dsnToConfig(t *testing.T, dsn string) Config {
	t.Helper()
	poolCfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cc := poolCfg.ConnConfig
	return Config{
		Host:     cc.Host,
		Port:     int(cc.Port),
		User:     cc.User,
		Password: cc.Password,
		Database: cc.Database,
		SSLMode:  "disable",
	}
}
