package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const quotaTable = "usage_quota"

// DB is the pgx-compatible surface the repositories need. pgxpool.Pool and
// pgxmock pools satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuotaRepo persists daily usage counters keyed by (user_id, feature, usage_date).
type QuotaRepo struct {
	db   DB
	psql squirrel.StatementBuilderType
}

func NewQuotaRepo(db DB) *QuotaRepo {
	return &QuotaRepo{db: db, psql: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

// Count returns the counter for the given day, 0 when no row exists.
func (r *QuotaRepo) Count(ctx context.Context, userID, feature string, date time.Time) (int, error) {
	query, args, err := r.psql.Select("count").
		From(quotaTable).
		Where(squirrel.Eq{"user_id": userID, "feature": feature, "usage_date": dateOnly(date)}).
		Limit(1).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build quota select: %w", err)
	}
	var counts []int
	if err := pgxscan.Select(ctx, r.db, &counts, query, args...); err != nil {
		return 0, fmt.Errorf("query quota: %w", err)
	}
	if len(counts) == 0 {
		return 0, nil
	}
	return counts[0], nil
}

// Increment upserts the counter and returns its new value.
func (r *QuotaRepo) Increment(ctx context.Context, userID, feature string, date time.Time) (int, error) {
	query, args, err := r.psql.Insert(quotaTable).
		Columns("user_id", "feature", "usage_date", "count").
		Values(userID, feature, dateOnly(date), 1).
		Suffix("ON CONFLICT (user_id, feature, usage_date) DO UPDATE SET " +
			"count = " + quotaTable + ".count + 1, updated_at = now() RETURNING count").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build quota upsert: %w", err)
	}
	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("upsert quota: %w", err)
	}
	return count, nil
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
