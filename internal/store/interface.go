package store

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/ShayCichocki/checkface/internal/latent"
)

// LatentStore handles registered latents.
type LatentStore interface {
	latent.Records
	Register(ctx context.Context, v latent.Vector) (uuid.UUID, error)
	Put(ctx context.Context, shape latent.Shape, v latent.Vector) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
}

// EncodingStore caches encoder results by request key.
type EncodingStore interface {
	GetEncoding(ctx context.Context, key string) (*Encoding, error)
	PutEncoding(ctx context.Context, e *Encoding) error
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store is everything the service persists.
type Store interface {
	io.Closer
	Migrator
	LatentStore
	EncodingStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store          = (*DB)(nil)
	_ LatentStore    = (*DB)(nil)
	_ EncodingStore  = (*DB)(nil)
	_ latent.Records = (*DB)(nil)
)
