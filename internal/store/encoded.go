package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/checkface/internal/latent"
)

// ErrNoEncoding is returned when no encoder result is cached for a key.
var ErrNoEncoding = errors.New("no cached encoding")

// Encoding is a cached encoder result: the latent registered for an uploaded
// image and whether the encoder managed to align the face.
type Encoding struct {
	RequestKey string
	LatentID   uuid.UUID
	DidAlign   bool
	CreatedAt  time.Time
}

// GetEncoding looks up a cached encoder result.
func (db *DB) GetEncoding(ctx context.Context, key string) (*Encoding, error) {
	var (
		id       string
		didAlign bool
		created  string
	)
	row := db.QueryRowContext(ctx,
		`SELECT latent_id, did_align, created_at FROM encoded_images WHERE request_key = ?`, key)
	if err := row.Scan(&id, &didAlign, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoEncoding
		}
		return nil, fmt.Errorf("get encoding %s: %w", key, err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: stored id %q", latent.ErrInvalidID, id)
	}
	enc := &Encoding{RequestKey: key, LatentID: parsed, DidAlign: didAlign}
	if t, err := parseTime(created); err == nil {
		enc.CreatedAt = t
	}
	return enc, nil
}

// PutEncoding caches an encoder result, replacing any previous one for the key.
func (db *DB) PutEncoding(ctx context.Context, e *Encoding) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO encoded_images (request_key, latent_id, did_align, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(request_key) DO UPDATE SET
			latent_id = excluded.latent_id,
			did_align = excluded.did_align,
			created_at = excluded.created_at
	`, e.RequestKey, e.LatentID.String(), e.DidAlign, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("put encoding %s: %w", e.RequestKey, err)
	}
	return nil
}
