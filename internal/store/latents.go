package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/checkface/internal/latent"
)

// Record is a stored latent with its shape tag.
type Record struct {
	ID        uuid.UUID
	Shape     latent.Shape
	Vector    latent.Vector
	CreatedAt time.Time
}

// Register stores v under a new id, tagging it with the shape inferred from
// its length.
func (db *DB) Register(ctx context.Context, v latent.Vector) (uuid.UUID, error) {
	shape, err := latent.ShapeOf(v)
	if err != nil {
		return uuid.Nil, err
	}
	return db.Put(ctx, shape, v)
}

// Put stores v with an explicit shape tag, which must agree with its length.
func (db *DB) Put(ctx context.Context, shape latent.Shape, v latent.Vector) (uuid.UUID, error) {
	got, err := latent.ShapeOf(v)
	if err != nil {
		return uuid.Nil, err
	}
	if got != shape {
		return uuid.Nil, fmt.Errorf("%w: tagged %s but has length %d", latent.ErrMalformedLatent, shape, len(v))
	}

	id := uuid.New()
	_, err = db.ExecContext(ctx,
		`INSERT INTO latents (id, type, latent, created_at) VALUES (?, ?, ?, ?)`,
		id.String(), string(shape), encodeVector(v), formatTime(time.Now()))
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert latent: %w", err)
	}
	return id, nil
}

// Get loads a stored latent. Unknown ids return latent.ErrNotFound.
func (db *DB) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	var (
		shape   string
		blob    []byte
		created string
	)
	row := db.QueryRowContext(ctx, `SELECT type, latent, created_at FROM latents WHERE id = ?`, id.String())
	if err := row.Scan(&shape, &blob, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("latent %s: %w", id, latent.ErrNotFound)
		}
		return nil, fmt.Errorf("get latent %s: %w", id, err)
	}

	v, err := decodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("latent %s: %w", id, err)
	}
	got, err := latent.ShapeOf(v)
	if err != nil || got != latent.Shape(shape) {
		return nil, fmt.Errorf("%w: latent %s tagged %s has length %d", latent.ErrMalformedLatent, id, shape, len(v))
	}
	rec := &Record{ID: id, Shape: got, Vector: v}
	if t, err := parseTime(created); err == nil {
		rec.CreatedAt = t
	}
	return rec, nil
}

// Latent implements latent.Records.
func (db *DB) Latent(ctx context.Context, id uuid.UUID) (latent.Vector, error) {
	rec, err := db.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Vector, nil
}

// CountLatents returns the number of stored latents.
func (db *DB) CountLatents(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM latents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count latents: %w", err)
	}
	return n, nil
}

// encodeVector packs v as little-endian float64s.
func encodeVector(v latent.Vector) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

func decodeVector(b []byte) (latent.Vector, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("%w: blob of %d bytes", latent.ErrMalformedLatent, len(b))
	}
	v := make(latent.Vector, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v, nil
}
