package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/petrijr/fluxnode/pkg/api"
)

// Dialect selects the SQL flavour a SQLStore speaks.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DriverName returns the database/sql driver registered for the dialect:
// modernc.org/sqlite registers "sqlite", github.com/jackc/pgx/v5/stdlib
// registers "pgx".
func (d Dialect) DriverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// SQLStore is a RegistryStore and TraceStore on database/sql.
//
// The caller imports the driver for its side effects and opens the *sql.DB:
//
//	_ "modernc.org/sqlite"
//	_ "github.com/jackc/pgx/v5/stdlib"
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

var (
	_ RegistryStore = (*SQLStore)(nil)
	_ TraceStore    = (*SQLStore)(nil)
)

// NewSQLStore creates the schema if needed and returns the store.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("init %s schema: %w", dialect, err)
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	blob, serial, double := "BLOB", "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL"
	if s.dialect == DialectPostgres {
		blob, serial, double = "BYTEA", "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS optimization_records (
			task_id TEXT PRIMARY KEY,
			signature_hash TEXT NOT NULL,
			instruction_hash TEXT NOT NULL,
			training_hash TEXT NOT NULL DEFAULT '',
			optimization_config_hash TEXT NOT NULL DEFAULT '',
			fitness_score ` + double + `,
			weights_path TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_optimization_records_hashes
			ON optimization_records(signature_hash, instruction_hash)`,
		`CREATE TABLE IF NOT EXISTS trace_entries (
			id ` + serial + `,
			task_id TEXT NOT NULL,
			at BIGINT NOT NULL,
			signature_hash TEXT NOT NULL,
			instruction_hash TEXT NOT NULL,
			model_name TEXT NOT NULL,
			inputs ` + blob + `,
			outputs ` + blob + `,
			training_hash TEXT,
			fitness_score ` + double + `,
			metadata ` + blob + `
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trace_entries_task_id ON trace_entries(task_id, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) SaveRecord(ctx context.Context, rec api.OptimizationRecord) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO optimization_records (task_id, signature_hash, instruction_hash, training_hash,
			optimization_config_hash, fitness_score, weights_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (task_id) DO UPDATE SET
			signature_hash = excluded.signature_hash,
			instruction_hash = excluded.instruction_hash,
			training_hash = excluded.training_hash,
			optimization_config_hash = excluded.optimization_config_hash,
			fitness_score = excluded.fitness_score,
			weights_path = excluded.weights_path,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`),
		rec.TaskID,
		rec.SignatureHash,
		rec.InstructionHash,
		rec.TrainingHash,
		rec.OptimizationConfigHash,
		nullFloat(rec.FitnessScore),
		rec.WeightsPath,
		rec.CreatedAt.UnixNano(),
		rec.UpdatedAt.UnixNano(),
	)
	return err
}

const recordColumns = `task_id, signature_hash, instruction_hash, training_hash,
	optimization_config_hash, fitness_score, weights_path, created_at, updated_at`

func (s *SQLStore) GetRecord(ctx context.Context, taskID string) (api.OptimizationRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+recordColumns+`
		FROM optimization_records WHERE task_id = ?`), taskID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return api.OptimizationRecord{}, ErrRecordNotFound
	}
	return rec, err
}

func (s *SQLStore) ListRecords(ctx context.Context, filter RegistryFilter) ([]api.OptimizationRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM optimization_records`
	var (
		where []string
		args  []any
	)
	if filter.SignatureHash != "" {
		where = append(where, "signature_hash = ?")
		args = append(args, filter.SignatureHash)
	}
	if filter.InstructionHash != "" {
		where = append(where, "instruction_hash = ?")
		args = append(args, filter.InstructionHash)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY task_id ASC"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.OptimizationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteRecord(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM optimization_records WHERE task_id = ?`), taskID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (api.OptimizationRecord, error) {
	var (
		rec              api.OptimizationRecord
		fitness          sql.NullFloat64
		created, updated int64
	)
	err := row.Scan(
		&rec.TaskID,
		&rec.SignatureHash,
		&rec.InstructionHash,
		&rec.TrainingHash,
		&rec.OptimizationConfigHash,
		&fitness,
		&rec.WeightsPath,
		&created,
		&updated,
	)
	if err != nil {
		return api.OptimizationRecord{}, err
	}
	if fitness.Valid {
		f := fitness.Float64
		rec.FitnessScore = &f
	}
	rec.CreatedAt = time.Unix(0, created)
	rec.UpdatedAt = time.Unix(0, updated)
	return rec, nil
}

// AppendTraces inserts entries in one transaction.
func (s *SQLStore) AppendTraces(ctx context.Context, entries []api.TraceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO trace_entries (task_id, at, signature_hash, instruction_hash, model_name,
			inputs, outputs, training_hash, fitness_score, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		in, err := EncodeValue(e.Inputs)
		if err != nil {
			return err
		}
		out, err := EncodeValue(e.Outputs)
		if err != nil {
			return err
		}
		meta, err := encodeMetadata(e.Metadata)
		if err != nil {
			return err
		}
		at := e.Timestamp
		if at.IsZero() {
			at = time.Now()
		}
		var training sql.NullString
		if e.TrainingHash != nil {
			training = sql.NullString{String: *e.TrainingHash, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			e.TaskID,
			at.UnixNano(),
			e.SignatureHash,
			e.InstructionHash,
			e.ModelName,
			in,
			out,
			training,
			nullFloat(e.FitnessScore),
			meta,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) ListTraces(ctx context.Context, taskID string) ([]api.TraceEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT task_id, at, signature_hash, instruction_hash, model_name,
			inputs, outputs, training_hash, fitness_score, metadata
		FROM trace_entries
		WHERE task_id = ?
		ORDER BY id ASC`), taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.TraceEntry
	for rows.Next() {
		var (
			e              api.TraceEntry
			atN            int64
			in, outB, meta []byte
			training       sql.NullString
			fitness        sql.NullFloat64
		)
		if err := rows.Scan(&e.TaskID, &atN, &e.SignatureHash, &e.InstructionHash, &e.ModelName,
			&in, &outB, &training, &fitness, &meta); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(0, atN)
		if e.Inputs, err = DecodeValue(in); err != nil {
			return nil, err
		}
		if e.Outputs, err = DecodeValue(outB); err != nil {
			return nil, err
		}
		if e.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, err
		}
		if training.Valid {
			h := training.String
			e.TrainingHash = &h
		}
		if fitness.Valid {
			f := fitness.Float64
			e.FitnessScore = &f
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
