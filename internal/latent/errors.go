package latent

import "errors"

var (
	// ErrMalformedLatent is returned for vectors that are neither 512 nor 18x512.
	ErrMalformedLatent = errors.New("malformed latent")

	// ErrNotFound is returned when a stored latent id is unknown.
	ErrNotFound = errors.New("latent not found")

	// ErrModelRequired is returned when resolution needs the mapping network but no
	// model context was supplied.
	ErrModelRequired = errors.New("model context required to expand latent")

	// ErrInvalidSeed is returned for seeds outside the unsigned 32-bit range.
	ErrInvalidSeed = errors.New("seed must be a base 10 number between 0 and 4294967295")

	// ErrInvalidID is returned for stored latent ids that are not UUIDs.
	ErrInvalidID = errors.New("invalid latent id")
)
