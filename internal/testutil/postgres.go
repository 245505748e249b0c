// Package testutil provides PostgreSQL helpers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var nonIdentChars = regexp.MustCompile(`[^a-z0-9_]+`)

// OpenPGXPool opens a pgxpool backed by PostgreSQL with an isolated schema
// per test. Tests are skipped when TEST_DATABASE_URL/DATABASE_URL is unset.
func OpenPGXPool(t *testing.T, prefix string) *pgxpool.Pool {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		t.Skip("PostgreSQL test DSN is not set: set TEST_DATABASE_URL or DATABASE_URL")
	}

	schema := newSchemaName(prefix)
	ctx := context.Background()

	adminPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres admin pool: %v", err)
	}
	t.Cleanup(adminPool.Close)

	if err := adminPool.Ping(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}

	if _, err := adminPool.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA "%s"`, schema)); err != nil {
		t.Fatalf("create test schema %q: %v", schema, err)
	}
	t.Cleanup(func() {
		_, _ = adminPool.Exec(ctx, fmt.Sprintf(`DROP SCHEMA IF EXISTS "%s" CASCADE`, schema))
	})

	schemaDSN, err := dsnWithSearchPath(dsn, schema)
	if err != nil {
		t.Fatalf("build postgres DSN with search_path: %v", err)
	}

	testPool, err := pgxpool.New(ctx, schemaDSN)
	if err != nil {
		t.Fatalf("open postgres test pool: %v", err)
	}
	t.Cleanup(testPool.Close)

	if err := testPool.Ping(ctx); err != nil {
		t.Fatalf("ping postgres test pool: %v", err)
	}

	return testPool
}

func dsnWithSearchPath(dsn, schema string) (string, error) {
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse DSN: %w", err)
		}
		q := u.Query()
		q.Set("search_path", schema)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	if strings.Contains(dsn, "search_path=") {
		re := regexp.MustCompile(`search_path=\S+`)
		return re.ReplaceAllString(dsn, "search_path="+schema), nil
	}
	return dsn + " search_path=" + schema, nil
}

func newSchemaName(prefix string) string {
	base := strings.ToLower(prefix)
	base = strings.ReplaceAll(base, "-", "_")
	base = nonIdentChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")
	if base == "" {
		base = "test"
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	const maxPostgresIdentLen = 63
	maxBaseLen := maxPostgresIdentLen - len("t__") - len(suffix)
	if maxBaseLen < 1 {
		maxBaseLen = 1
	}
	if len(base) > maxBaseLen {
		base = base[:maxBaseLen]
	}
	return fmt.Sprintf("t_%s_%s", base, suffix)
}
