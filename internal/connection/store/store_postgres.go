package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"linknet/internal/connection/models"
	"linknet/pkg/domain"
	"linknet/pkg/platform/sentinel"
	txcontext "linknet/pkg/platform/tx"
)

// PostgresStore persists connection records. A partial unique index on
// (pair_key) WHERE status IN ('initiated','accepted') enforces the
// one-active-record-per-pair invariant at the storage layer as well.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const connectionColumns = `id, initiator_id, target_id, status, shared_industries, version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, record *models.ConnectionRecord) error {
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Version == 0 {
		record.Version = 1
	}

	query := `
		INSERT INTO connections (id, initiator_id, target_id, pair_key, status, shared_industries, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		record.ID.String(),
		record.InitiatorID.String(),
		record.TargetID.String(),
		models.PairKey(record.InitiatorID, record.TargetID),
		string(record.Status),
		pq.Array(record.SharedIndustries),
		record.Version,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert connection: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id domain.ConnectionID) (*models.ConnectionRecord, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	record, err := scanConnection(s.execer(ctx).QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select connection: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) GetActiveByPair(ctx context.Context, a, b domain.MemberID) (*models.ConnectionRecord, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE pair_key = $1 AND status IN ('initiated', 'accepted')
	`
	record, err := scanConnection(s.execer(ctx).QueryRowContext(ctx, query, models.PairKey(a, b)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select connection by pair: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) Update(ctx context.Context, record *models.ConnectionRecord, expectedVersion int64) error {
	now := time.Now()
	query := `
		UPDATE connections
		SET status = $2, shared_industries = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $5
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		record.ID.String(),
		string(record.Status),
		pq.Array(record.SharedIndustries),
		now,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		err = s.execer(ctx).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM connections WHERE id = $1)`, record.ID.String()).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check connection existence: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	record.Version = expectedVersion + 1
	record.UpdatedAt = now
	return nil
}

func (s *PostgresStore) ListByMember(ctx context.Context, id domain.MemberID) ([]*models.ConnectionRecord, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE initiator_id = $1 OR target_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, id.String())
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var out []*models.ConnectionRecord
	for rows.Next() {
		record, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*models.ConnectionRecord, error) {
	var (
		record    models.ConnectionRecord
		rawID     string
		rawInit   string
		rawTarget string
		rawStatus string
	)
	err := row.Scan(
		&rawID,
		&rawInit,
		&rawTarget,
		&rawStatus,
		pq.Array(&record.SharedIndustries),
		&record.Version,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if record.ID, err = domain.ParseConnectionID(rawID); err != nil {
		return nil, err
	}
	if record.InitiatorID, err = domain.ParseMemberID(rawInit); err != nil {
		return nil, err
	}
	if record.TargetID, err = domain.ParseMemberID(rawTarget); err != nil {
		return nil, err
	}
	record.Status = models.Status(rawStatus)
	return &record, nil
}
