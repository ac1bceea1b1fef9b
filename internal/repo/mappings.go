package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/abdusco/shortlink/internal"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const mappingsTable = "mappings"

// pgUniqueViolation is the SQLSTATE postgres reports for unique index conflicts.
const pgUniqueViolation = "23505"

type mappingRow struct {
	ID            int64  `db:"id" goqu:"skipinsert,skipupdate"`
	ShortCode     string `db:"short_code"`
	OriginalURL   string `db:"original_url"`
	CreatedAt     Date   `db:"created_at" goqu:"skipupdate"`
	ClickCount    int64  `db:"click_count"`
	LastClickedAt *Date  `db:"last_clicked_at"`
}

type MappingsRepo struct {
	db      *sql.DB
	dialect string
}

func NewMappingsRepo(db *sql.DB, dialect string) *MappingsRepo {
	return &MappingsRepo{db: db, dialect: dialect}
}

// InsertIfAbsent relies on the unique index on short_code, so of two racing
// inserts for the same code exactly one succeeds.
func (r *MappingsRepo) InsertIfAbsent(ctx context.Context, code, originalURL string) (*internal.Mapping, error) {
	executor := goqu.New(r.dialect, r.db)

	log.Debug().Str("code", code).Str("url", originalURL).Msg("creating mapping")

	now := Date(time.Now().UTC())
	query := executor.Insert(mappingsTable).
		Cols("short_code", "original_url", "created_at", "click_count").
		Vals([]any{code, originalURL, now, 0})

	if _, err := query.Executor().ExecContext(ctx); err != nil {
		if isUniqueViolation(err) {
			log.Debug().Str("code", code).Msg("short code already taken")
			return nil, internal.ErrCodeCollision
		}
		log.Error().Err(err).Str("code", code).Msg("failed to create mapping")
		return nil, &internal.StoreError{Op: "insert", Err: err}
	}

	mapping, err := r.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	log.Info().Int64("id", mapping.ID).Str("code", mapping.ShortCode).Msg("mapping created successfully")

	return mapping, nil
}

func (r *MappingsRepo) FindByCode(ctx context.Context, code string) (*internal.Mapping, error) {
	executor := goqu.New(r.dialect, r.db)

	query := executor.From(mappingsTable).Where(goqu.Ex{"short_code": code}).Select(
		"id", "short_code", "original_url", "created_at", "click_count", "last_clicked_at",
	)

	var row mappingRow
	found, err := query.Executor().ScanStructContext(ctx, &row)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("failed to fetch mapping")
		return nil, &internal.StoreError{Op: "find", Err: err}
	}

	if !found {
		log.Debug().Str("code", code).Msg("mapping not found")
		return nil, internal.ErrNotFound
	}

	return row.toDomain(), nil
}

// IncrementCounter adds one click in a single UPDATE; the new value is
// computed by the database, never read back first.
func (r *MappingsRepo) IncrementCounter(ctx context.Context, id int64) error {
	query := r.incrementQuery(id, Date(time.Now().UTC()))

	res, err := query.Executor().ExecContext(ctx)
	if err != nil {
		log.Error().Err(err).Int64("id", id).Msg("failed to increment click count")
		return &internal.StoreError{Op: "increment", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return &internal.StoreError{Op: "increment", Err: err}
	}
	if affected == 0 {
		return internal.ErrNotFound
	}

	log.Debug().Int64("id", id).Msg("click recorded")

	return nil
}

func (r *MappingsRepo) incrementQuery(id int64, at Date) *goqu.UpdateDataset {
	return goqu.New(r.dialect, r.db).Update(mappingsTable).
		Set(goqu.Record{
			"click_count":     goqu.L("click_count + 1"),
			"last_clicked_at": at,
		}).
		Where(goqu.Ex{"id": id})
}

func (r *MappingsRepo) ListAll(ctx context.Context) ([]*internal.Mapping, error) {
	executor := goqu.New(r.dialect, r.db)

	query := executor.From(mappingsTable).Select(
		"id", "short_code", "original_url", "created_at", "click_count", "last_clicked_at",
	).Order(goqu.C("created_at").Desc(), goqu.C("id").Desc())

	var rows []mappingRow
	if err := query.Executor().ScanStructsContext(ctx, &rows); err != nil {
		log.Error().Err(err).Msg("failed to list mappings")
		return nil, &internal.StoreError{Op: "list", Err: err}
	}

	mappings := make([]*internal.Mapping, len(rows))
	for i := range rows {
		mappings[i] = rows[i].toDomain()
	}

	return mappings, nil
}

func (r *mappingRow) toDomain() *internal.Mapping {
	m := &internal.Mapping{
		ID:          r.ID,
		ShortCode:   r.ShortCode,
		OriginalURL: r.OriginalURL,
		CreatedAt:   r.CreatedAt.Time(),
		ClickCount:  r.ClickCount,
	}
	if r.LastClickedAt != nil {
		t := r.LastClickedAt.Time()
		m.LastClickedAt = &t
	}
	return m
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	return false
}
