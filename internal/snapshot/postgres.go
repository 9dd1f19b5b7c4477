package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/postgres"
	"github.com/lib/pq"
)

// PostgresSource reads raw snapshot tables shaped like:
//
//	CREATE TABLE raw.raw_push_stats (
//	    id             BIGSERIAL PRIMARY KEY,
//	    tenant_id      TEXT,
//	    application_id TEXT,
//	    endpoint       TEXT,
//	    source_data    JSONB NOT NULL,
//	    loaded_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type PostgresSource struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewPostgresSource creates a source reading raw tables through db.
func NewPostgresSource(db *postgres.Client) *PostgresSource {
	return &PostgresSource{
		db:     db,
		logger: slog.Default().With("component", "snapshot-source"),
	}
}

// Load reads every snapshot of table in insertion order. table may be
// schema-qualified.
func (s *PostgresSource) Load(ctx context.Context, table string) ([]Raw, error) {
	query := fmt.Sprintf(
		`SELECT id, tenant_id, application_id, endpoint, source_data, loaded_at
		 FROM %s ORDER BY id`, quoteTable(table))

	rows, err := s.db.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	var out []Raw
	for rows.Next() {
		var (
			r             Raw
			tenantID      sql.NullString
			applicationID sql.NullString
			endpoint      sql.NullString
			payload       []byte
		)
		if err := rows.Scan(&r.ID, &tenantID, &applicationID, &endpoint, &payload, &r.LoadedAt); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		r.TenantID = tenantID.String
		r.ApplicationID = applicationID.String
		r.Endpoint = endpoint.String
		r.Payload = payload
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", table, err)
	}

	s.logger.Debug("snapshots loaded", "table", table, "count", len(out))
	return out, nil
}

// quoteTable quotes a possibly schema-qualified table name.
func quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
