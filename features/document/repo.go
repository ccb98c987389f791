package document

import (
	"context"
	"database/sql"
	"encoding/json"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const selectColumns = `id, filename, file_path, document_type, metadata, processed, num_chunks, error, created_at, updated_at`

func (r *PostgresRepo) Save(ctx context.Context, doc *Document) error {
	md, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	query := `INSERT INTO documents (filename, file_path, document_type, metadata) VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, doc.Filename, doc.FilePath, doc.DocumentType, md).
		Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	query := `SELECT ` + selectColumns + ` FROM documents WHERE id = $1`
	return scanDocument(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepo) List(ctx context.Context) ([]Document, error) {
	query := `SELECT ` + selectColumns + ` FROM documents ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM documents WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) Reset(ctx context.Context, id string) error {
	query := `UPDATE documents SET processed = FALSE, error = '', updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) MarkProcessed(ctx context.Context, id string, numChunks int) error {
	query := `UPDATE documents SET processed = TRUE, num_chunks = $1, error = '', updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, numChunks, id)
	return err
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, reason string) error {
	query := `UPDATE documents SET processed = FALSE, error = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, reason, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM documents`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	d := &Document{}
	var md []byte
	if err := row.Scan(&d.ID, &d.Filename, &d.FilePath, &d.DocumentType, &md, &d.Processed, &d.NumChunks, &d.Error, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if len(md) > 0 {
		if err := json.Unmarshal(md, &d.Metadata); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func marshalMetadata(md map[string]any) ([]byte, error) {
	if md == nil {
		return []byte(`{}`), nil
	}
	return json.Marshal(md)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
