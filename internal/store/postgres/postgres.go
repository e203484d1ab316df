package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"bazar/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const serializableAttempts = 5

// inSerializable runs fn inside a serializable transaction, retrying when
// postgres aborts it with a serialization failure. fn must not commit.
func (s *Store) inSerializable(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < serializableAttempts; attempt++ {
		err = s.runSerializable(ctx, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (s *Store) runSerializable(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

var uniqueFields = map[string]string{
	"users_username_key":                  "username",
	"users_email_key":                     "email",
	"suppliers_identification_number_key": "identificationNumber",
	"clients_tax_id_key":                  "taxId",
	"products_sku_key":                    "sku",
	"products_barcode_key":                "barcode",
	"invoices_invoice_number_key":         "invoiceNumber",
}

// mapWriteError turns unique violations into store.ErrDuplicate naming the field.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		field, ok := uniqueFields[pgErr.ConstraintName]
		if !ok {
			field = "value"
		}
		return fmt.Errorf("%w: %s already exists", store.ErrDuplicate, field)
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// whereClause accumulates conditions with positional arguments.
type whereClause struct {
	conds []string
	args  []any
}

func (w *whereClause) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *whereClause) add(cond string) {
	w.conds = append(w.conds, cond)
}

// search adds an ILIKE match over any of the columns.
func (w *whereClause) search(term string, columns ...string) {
	term = strings.TrimSpace(term)
	if term == "" {
		return
	}
	placeholder := w.arg("%" + escapeLike(term) + "%")
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		parts = append(parts, col+" ILIKE "+placeholder)
	}
	w.add("(" + strings.Join(parts, " OR ") + ")")
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}

// orderBy resolves "field" / "-field" against a whitelist of columns.
func orderBy(spec string, fallback string, columns map[string]string) string {
	spec = strings.TrimSpace(spec)
	desc := strings.HasPrefix(spec, "-")
	col, ok := columns[strings.TrimPrefix(spec, "-")]
	if !ok {
		desc = strings.HasPrefix(fallback, "-")
		col = columns[strings.TrimPrefix(fallback, "-")]
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s, id ASC", col, dir)
}

func (s *Store) count(ctx context.Context, table string, where *whereClause) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s %s", table, where.String()), where.args...).Scan(&total)
	return total, err
}

func pageClause(where *whereClause, filter store.ListFilter) string {
	return fmt.Sprintf("LIMIT %s OFFSET %s", where.arg(filter.Limit), where.arg(filter.Offset()))
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}

// toJSON encodes a value for a JSONB parameter.
func toJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func fromJSON(raw []byte, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
