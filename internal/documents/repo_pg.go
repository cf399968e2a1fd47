package documents

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

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO source_documents (
    id,
    batch_id,
    file_name,
    mime_type,
    size_bytes,
    storage_key,
    checksum,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.BatchID,
		doc.FileName,
		doc.MimeType,
		doc.SizeBytes,
		doc.StorageKey,
		doc.Checksum,
		doc.CreatedAt,
	)
	if err != nil {
		// Concurrent registrations of one key race past KeyExists; the unique
		// storage_key index decides.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrKeyInUse
		}
		return err
	}
	return nil
}

// ListByBatch lists a batch's documents in upload order.
func (r *PGRepo) ListByBatch(ctx context.Context, batchID string) ([]Document, error) {
	const query = `
SELECT id, batch_id, file_name, mime_type, size_bytes, storage_key, checksum, created_at
FROM source_documents
WHERE batch_id = $1
ORDER BY created_at ASC, id ASC`

	rows, err := r.DB.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var doc Document
		var checksum sql.NullString
		if err := rows.Scan(
			&doc.ID,
			&doc.BatchID,
			&doc.FileName,
			&doc.MimeType,
			&doc.SizeBytes,
			&doc.StorageKey,
			&checksum,
			&doc.CreatedAt,
		); err != nil {
			return nil, err
		}
		if checksum.Valid {
			doc.Checksum = checksum.String
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// CountByBatch returns the number of documents attached to a batch.
func (r *PGRepo) CountByBatch(ctx context.Context, batchID string) (int, error) {
	const query = `SELECT COUNT(*) FROM source_documents WHERE batch_id = $1`
	var n int
	if err := r.DB.QueryRowContext(ctx, query, batchID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// KeyExists reports whether any batch references the storage key.
func (r *PGRepo) KeyExists(ctx context.Context, storageKey string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM source_documents WHERE storage_key = $1)`
	var exists bool
	if err := r.DB.QueryRowContext(ctx, query, storageKey).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// DeleteByBatch removes every document row of a batch.
func (r *PGRepo) DeleteByBatch(ctx context.Context, batchID string) (int, error) {
	const query = `DELETE FROM source_documents WHERE batch_id = $1`
	res, err := r.DB.ExecContext(ctx, query, batchID)
	if err != nil {
		return 0, err
	}
	deleted, _ := res.RowsAffected()
	return int(deleted), nil
}

var _ Repo = (*PGRepo)(nil)
