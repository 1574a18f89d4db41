package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/attendance-cam/internal/constants"
	"github.com/kozaktomas/attendance-cam/internal/database"
	"github.com/kozaktomas/attendance-cam/internal/gallery"
	"github.com/pgvector/pgvector-go"
)

// GalleryRepository mirrors the published gallery into a pgvector table so it
// can be inspected and queried with SQL.
type GalleryRepository struct {
	pool *Pool
}

// NewGalleryRepository creates a new PostgreSQL gallery mirror
func NewGalleryRepository(pool *Pool) *GalleryRepository {
	return &GalleryRepository{pool: pool}
}

// ReplaceGallery swaps all mirrored entries in a single transaction
func (r *GalleryRepository) ReplaceGallery(ctx context.Context, entries []gallery.Entry) error {
	for i, e := range entries {
		if len(e.Vector) != constants.EmbeddingDim {
			return fmt.Errorf("gallery entry %d has dimension %d, the mirror column holds %d", i, len(e.Vector), constants.EmbeddingDim)
		}
	}

	return r.pool.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM gallery_entries"); err != nil {
			return fmt.Errorf("clear gallery entries: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO gallery_entries (position, subject_id, embedding) VALUES ($1, $2, $3)`)
		if err != nil {
			return fmt.Errorf("prepare gallery insert: %w", err)
		}
		defer stmt.Close()

		for i, e := range entries {
			if _, err := stmt.ExecContext(ctx, i, e.SubjectID, pgvector.NewVector(e.Vector)); err != nil {
				return fmt.Errorf("insert gallery entry %d: %w", i, err)
			}
		}
		return nil
	})
}

// NearestEntries returns the closest entries by L2 distance
func (r *GalleryRepository) NearestEntries(ctx context.Context, query []float32, limit int) ([]database.StoredGalleryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT position, subject_id, embedding, embedding <-> $1 AS distance
		FROM gallery_entries
		ORDER BY embedding <-> $1, position
		LIMIT $2
	`, pgvector.NewVector(query), limit)
	if err != nil {
		return nil, fmt.Errorf("nearest gallery entries: %w", err)
	}
	defer rows.Close()

	var out []database.StoredGalleryEntry
	for rows.Next() {
		var (
			e   database.StoredGalleryEntry
			vec pgvector.Vector
		)
		if err := rows.Scan(&e.Position, &e.SubjectID, &vec, &e.Distance); err != nil {
			return nil, fmt.Errorf("scan gallery entry: %w", err)
		}
		e.Embedding = vec.Slice()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery entries: %w", err)
	}
	return out, nil
}

// CountGalleryEntries returns the number of mirrored entries
func (r *GalleryRepository) CountGalleryEntries(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM gallery_entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("count gallery entries: %w", err)
	}
	return n, nil
}
