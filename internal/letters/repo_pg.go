package letters

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateBatch inserts a draft batch. The partial unique index on config_id
// rejects a second unfinished batch for the same config.
func (r *PGRepo) CreateBatch(ctx context.Context, batch Batch) error {
	const query = `
INSERT INTO import_batches (id, config_id, template_id, state, import_completed, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, FALSE, $5, $6, $6)`
	_, err := r.DB.ExecContext(ctx, query,
		batch.ID,
		nullString(batch.ConfigID),
		batch.TemplateID,
		string(StateDraft),
		batch.CreatedBy,
		batch.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrImportAlreadyOpen
		}
		return err
	}
	return nil
}

const batchColumns = `id, config_id, template_id, state, import_completed, created_by, created_at, updated_at, completed_at`

func scanBatch(row rowScanner) (Batch, error) {
	var b Batch
	var configID sql.NullString
	var state string
	var completedAt sql.NullTime
	if err := row.Scan(&b.ID, &configID, &b.TemplateID, &state, &b.ImportCompleted, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt, &completedAt); err != nil {
		return Batch{}, err
	}
	if configID.Valid {
		b.ConfigID = configID.String
	}
	b.State = State(state)
	if completedAt.Valid {
		t := completedAt.Time
		b.CompletedAt = &t
	}
	return b, nil
}

// GetBatch returns a batch by ID.
func (r *PGRepo) GetBatch(ctx context.Context, batchID string) (Batch, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM import_batches WHERE id = $1`, batchID)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Batch{}, ErrNotFound
	}
	return b, err
}

// ListBatches returns batches newest first.
func (r *PGRepo) ListBatches(ctx context.Context, limit, offset int) ([]Batch, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+batchColumns+` FROM import_batches ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Snapshot returns the facts the batch state is derived from.
func (r *PGRepo) Snapshot(ctx context.Context, batchID string) (Snapshot, error) {
	return loadSnapshot(ctx, r.DB, batchID, false)
}

func loadSnapshot(ctx context.Context, q queryer, batchID string, forUpdate bool) (Snapshot, error) {
	query := `SELECT import_completed FROM import_batches WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var snap Snapshot
	if err := q.QueryRowContext(ctx, query, batchID).Scan(&snap.ImportCompleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, err
	}

	rows, err := q.QueryContext(ctx, `SELECT status FROM import_lines WHERE batch_id = $1 ORDER BY seq`, batchID)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()
	snap.LineStatuses = []string{}
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return Snapshot{}, err
		}
		snap.LineStatuses = append(snap.LineStatuses, status)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM letters WHERE batch_id = $1`, batchID).Scan(&snap.LetterCount); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// withBatchTx locks the batch row, runs fn and stores the recomputed state
// before committing.
func (r *PGRepo) withBatchTx(ctx context.Context, batchID string, fn func(tx *sql.Tx, before Snapshot) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	before, err := loadSnapshot(ctx, tx, batchID, true)
	if err != nil {
		return err
	}
	if err := fn(tx, before); err != nil {
		return err
	}
	after, err := loadSnapshot(ctx, tx, batchID, false)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE import_batches SET state = $1, updated_at = now() WHERE id = $2`,
		string(ComputeState(after)), batchID); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendLine inserts a line and commits.
func (r *PGRepo) AppendLine(ctx context.Context, line Line) error {
	const query = `
INSERT INTO import_lines (
	id, batch_id, partner_id, child_id, partner_code, child_code, template_id, status,
	file_name, document_key, preview_key, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	return r.withBatchTx(ctx, line.BatchID, func(tx *sql.Tx, _ Snapshot) error {
		_, err := tx.ExecContext(ctx, query,
			line.ID,
			line.BatchID,
			nullInt64(line.PartnerID),
			nullInt64(line.ChildID),
			line.PartnerCode,
			line.ChildCode,
			line.TemplateID,
			line.Status,
			line.FileName,
			line.DocumentKey,
			line.PreviewKey,
			line.CreatedAt,
		)
		return err
	})
}

const lineColumns = `id, batch_id, partner_id, child_id, partner_code, child_code, template_id, status, file_name, document_key, preview_key, created_at`

func scanLine(row rowScanner) (Line, error) {
	var l Line
	var partnerID, childID sql.NullInt64
	if err := row.Scan(&l.ID, &l.BatchID, &partnerID, &childID, &l.PartnerCode, &l.ChildCode, &l.TemplateID,
		&l.Status, &l.FileName, &l.DocumentKey, &l.PreviewKey, &l.CreatedAt); err != nil {
		return Line{}, err
	}
	l.PartnerID = int64Ptr(partnerID)
	l.ChildID = int64Ptr(childID)
	return l, nil
}

func listLines(ctx context.Context, q queryer, batchID string) ([]Line, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+lineColumns+` FROM import_lines WHERE batch_id = $1 ORDER BY seq`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Line{}
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListLines returns the batch's lines in insertion order.
func (r *PGRepo) ListLines(ctx context.Context, batchID string) ([]Line, error) {
	if _, err := r.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return listLines(ctx, r.DB, batchID)
}

// GetLine returns one line of a batch.
func (r *PGRepo) GetLine(ctx context.Context, batchID, lineID string) (Line, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+lineColumns+` FROM import_lines WHERE batch_id = $1 AND id = $2`, batchID, lineID)
	l, err := scanLine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Line{}, ErrNotFound
	}
	return l, err
}

// UpdateLine applies review corrections to a line.
func (r *PGRepo) UpdateLine(ctx context.Context, batchID, lineID string, update LineUpdate) (Line, error) {
	var updated Line
	err := r.withBatchTx(ctx, batchID, func(tx *sql.Tx, _ Snapshot) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+lineColumns+` FROM import_lines WHERE batch_id = $1 AND id = $2 FOR UPDATE`, batchID, lineID)
		current, err := scanLine(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		updated = applyLineUpdate(current, update)
		_, err = tx.ExecContext(ctx,
			`UPDATE import_lines SET partner_id = $1, child_id = $2, status = $3 WHERE batch_id = $4 AND id = $5`,
			nullInt64(updated.PartnerID), nullInt64(updated.ChildID), updated.Status, batchID, lineID)
		return err
	})
	if err != nil {
		return Line{}, err
	}
	return updated, nil
}

// MarkImportCompleted flags the end of a successful run.
func (r *PGRepo) MarkImportCompleted(ctx context.Context, batchID string) error {
	return r.withBatchTx(ctx, batchID, func(tx *sql.Tx, _ Snapshot) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE import_batches SET import_completed = TRUE, completed_at = now() WHERE id = $1`, batchID)
		return err
	})
}

// PromoteLines replaces a ready batch's lines with letters in one transaction.
func (r *PGRepo) PromoteLines(ctx context.Context, batchID string, build BuildLetters) ([]Letter, error) {
	const insertLetter = `
INSERT INTO letters (id, batch_id, partner_id, child_id, template_id, file_name, document_key, preview_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	var created []Letter
	err := r.withBatchTx(ctx, batchID, func(tx *sql.Tx, before Snapshot) error {
		if err := GuardSave(ComputeState(before), len(before.LineStatuses)); err != nil {
			return err
		}
		lines, err := listLines(ctx, tx, batchID)
		if err != nil {
			return err
		}
		created = build(lines)
		for _, l := range created {
			if _, err := tx.ExecContext(ctx, insertLetter,
				l.ID, l.BatchID, nullInt64(l.PartnerID), nullInt64(l.ChildID),
				l.TemplateID, l.FileName, l.DocumentKey, l.PreviewKey, l.CreatedAt,
			); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM import_lines WHERE batch_id = $1`, batchID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListLetters returns the letters created from a batch.
func (r *PGRepo) ListLetters(ctx context.Context, batchID string) ([]Letter, error) {
	if _, err := r.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, `
SELECT id, batch_id, partner_id, child_id, template_id, file_name, document_key, preview_key, created_at
FROM letters
WHERE batch_id = $1
ORDER BY seq`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Letter{}
	for rows.Next() {
		var l Letter
		var partnerID, childID sql.NullInt64
		if err := rows.Scan(&l.ID, &l.BatchID, &partnerID, &childID, &l.TemplateID, &l.FileName,
			&l.DocumentKey, &l.PreviewKey, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.PartnerID = int64Ptr(partnerID)
		l.ChildID = int64Ptr(childID)
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteBatch removes a batch. Lines and document rows cascade.
func (r *PGRepo) DeleteBatch(ctx context.Context, batchID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM import_batches WHERE id = $1`, batchID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

var _ Repo = (*PGRepo)(nil)
