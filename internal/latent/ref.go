package latent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Ref is a user-supplied reference to a single latent. When several fields are
// set, a stored id wins over a seed, and a seed wins over text.
type Ref struct {
	Seed *uint32
	Text *string
	GUID string
}

// IsZero reports whether no source is set.
func (r Ref) IsZero() bool {
	return r.Seed == nil && r.Text == nil && r.GUID == ""
}

// Proxy turns the reference into a proxy. An empty reference yields the text
// proxy for the empty string.
func (r Ref) Proxy(ctx context.Context, recs Records) (Proxy, error) {
	if r.GUID != "" {
		id, err := ParseGUID(r.GUID)
		if err != nil {
			return nil, err
		}
		return LoadStored(ctx, recs, id)
	}
	if r.Seed != nil {
		return NewSeed(*r.Seed), nil
	}
	if r.Text != nil {
		return NewText(*r.Text), nil
	}
	return NewText(""), nil
}

// ParseGUID parses a stored latent id.
func ParseGUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}
