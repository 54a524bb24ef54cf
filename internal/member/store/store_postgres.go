package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"linknet/internal/member/models"
	"linknet/pkg/domain"
	"linknet/pkg/platform/sentinel"
	txcontext "linknet/pkg/platform/tx"
)

// PostgresStore persists members in the members table. When a transaction is
// present in context it participates in it, so member aggregate writes commit
// atomically with the connection record they belong to.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, member *models.Member) error {
	now := time.Now()
	if member.CreatedAt.IsZero() {
		member.CreatedAt = now
	}
	member.UpdatedAt = now
	if member.Version == 0 {
		member.Version = 1
	}

	query := `
		INSERT INTO members (id, display_name, industries, accepted_connection_count, network_value, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		member.ID.String(),
		member.DisplayName,
		pq.Array(member.Industries),
		member.AcceptedConnectionCount,
		member.NetworkValue,
		member.Version,
		member.CreatedAt,
		member.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.MemberID) (*models.Member, error) {
	query := `
		SELECT id, display_name, industries, accepted_connection_count, network_value, version, created_at, updated_at
		FROM members
		WHERE id = $1
	`
	row := s.execer(ctx).QueryRowContext(ctx, query, id.String())

	var (
		member models.Member
		rawID  string
	)
	err := row.Scan(
		&rawID,
		&member.DisplayName,
		pq.Array(&member.Industries),
		&member.AcceptedConnectionCount,
		&member.NetworkValue,
		&member.Version,
		&member.CreatedAt,
		&member.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select member: %w", err)
	}
	member.ID, err = domain.ParseMemberID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan member id: %w", err)
	}
	return &member, nil
}

func (s *PostgresStore) WriteAggregate(ctx context.Context, id domain.MemberID, acceptedCount int, networkValue float64, expectedVersion int64) error {
	query := `
		UPDATE members
		SET accepted_connection_count = $2, network_value = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $5
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		id.String(), acceptedCount, networkValue, time.Now(), expectedVersion)
	if err != nil {
		return fmt.Errorf("update member aggregate: %w", err)
	}
	return s.checkUpdated(ctx, res, id)
}

func (s *PostgresStore) UpdateIndustries(ctx context.Context, id domain.MemberID, industries []string, expectedVersion int64) error {
	query := `
		UPDATE members
		SET industries = $2, version = version + 1, updated_at = $3
		WHERE id = $1 AND version = $4
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		id.String(), pq.Array(industries), time.Now(), expectedVersion)
	if err != nil {
		return fmt.Errorf("update member industries: %w", err)
	}
	return s.checkUpdated(ctx, res, id)
}

// checkUpdated distinguishes a missing row from a version mismatch so the
// service can report NotFound vs ConcurrentConflict accurately.
func (s *PostgresStore) checkUpdated(ctx context.Context, res sql.Result, id domain.MemberID) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	err = s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM members WHERE id = $1)`, id.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check member existence: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}
