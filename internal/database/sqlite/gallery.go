package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/kozaktomas/attendance-cam/internal/database"
	"github.com/kozaktomas/attendance-cam/internal/facematch"
	"github.com/kozaktomas/attendance-cam/internal/gallery"
)

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func (s *Store) ReplaceGallery(ctx context.Context, entries []gallery.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM gallery_entries`); err != nil {
		return fmt.Errorf("clear gallery entries: %w", err)
	}
	for i, e := range entries {
		_, err := tx.ExecContext(ctx, `INSERT INTO gallery_entries (position, subject_id, embedding) VALUES (?, ?, ?)`,
			i, e.SubjectID, encodeVector(e.Vector))
		if err != nil {
			return fmt.Errorf("insert gallery entry %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// NearestEntries scans every mirrored entry; SQLite has no vector index.
func (s *Store) NearestEntries(ctx context.Context, query []float32, limit int) ([]database.StoredGalleryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT position, subject_id, embedding FROM gallery_entries ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("nearest gallery entries: %w", err)
	}
	defer rows.Close()

	var out []database.StoredGalleryEntry
	for rows.Next() {
		var (
			e    database.StoredGalleryEntry
			blob []byte
		)
		if err := rows.Scan(&e.Position, &e.SubjectID, &blob); err != nil {
			return nil, fmt.Errorf("scan gallery entry: %w", err)
		}
		e.Embedding = decodeVector(blob)
		e.Distance = facematch.EuclideanDistance(e.Embedding, query)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountGalleryEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM gallery_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count gallery entries: %w", err)
	}
	return n, nil
}
