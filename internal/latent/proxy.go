package latent

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Proxy is something that can become a latent: a seed, a text value, a stored
// record or a blend of other proxies. The set of implementations is closed.
type Proxy interface {
	// Resolve returns the latent. A nil Context is enough for every proxy that
	// never needs the mapping network.
	Resolve(c *Context) (Vector, error)
	// Name is the canonical, collision-resistant name of the proxy.
	Name() string
	// Shard returns the directory segments that keep cache directories small.
	Shard() []string

	expanded(c *Context) (Vector, error)
}

// memo holds the expanded form of a proxy once it has been computed, so that
// frames sharing an endpoint only run the mapping network once.
type memo struct {
	mu sync.Mutex
	v  Vector
}

func (m *memo) expand(c *Context, resolve func(*Context) (Vector, error)) (Vector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.v != nil {
		return m.v, nil
	}
	v, err := resolve(c)
	if err != nil {
		return nil, err
	}
	v, err = c.Expand(v)
	if err != nil {
		return nil, err
	}
	m.v = v
	return v, nil
}

// Seed is a latent drawn from a seeded normal distribution.
type Seed struct {
	memo
	seed   uint32
	latent Vector
}

// NewSeed returns the proxy for seed.
func NewSeed(seed uint32) *Seed {
	return &Seed{seed: seed, latent: newSeededGaussian(seed).vector(CompactDim)}
}

// ParseSeed parses a base 10 seed in the unsigned 32-bit range.
func ParseSeed(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSeed, s)
	}
	return uint32(n), nil
}

func (s *Seed) Resolve(*Context) (Vector, error) { return s.latent, nil }
func (s *Seed) Name() string                     { return "s" + strconv.FormatUint(uint64(s.seed), 10) }
func (s *Seed) Value() uint32                    { return s.seed }

func (s *Seed) Shard() []string {
	return []string{
		"s" + strconv.FormatUint(uint64(s.seed%100), 10),
		strconv.FormatUint(uint64(s.seed%10000), 10),
	}
}

func (s *Seed) expanded(c *Context) (Vector, error) { return s.memo.expand(c, s.Resolve) }

// Text is a latent derived from the SHA-256 of an arbitrary string.
type Text struct {
	memo
	text    string
	hashHex string
	latent  Vector
}

// NewText returns the proxy for a text value. The digest is read as eight
// little-endian uint32 words which seed the generator.
func NewText(text string) *Text {
	sum := sha256.Sum256([]byte(text))
	keys := make([]uint32, len(sum)/4)
	for i := range keys {
		keys[i] = binary.LittleEndian.Uint32(sum[i*4:])
	}
	return &Text{
		text:    text,
		hashHex: hex.EncodeToString(sum[:]),
		latent:  newKeyedGaussian(keys).vector(CompactDim),
	}
}

func (t *Text) Resolve(*Context) (Vector, error) { return t.latent, nil }
func (t *Text) Name() string                     { return "hash-" + t.hashHex }
func (t *Text) HashHex() string                  { return t.hashHex }
func (t *Text) Text() string                     { return t.text }

func (t *Text) Shard() []string {
	name := t.Name()
	return []string{name[:7], name[7:9]}
}

func (t *Text) expanded(c *Context) (Vector, error) { return t.memo.expand(c, t.Resolve) }

// Records looks up previously registered latents.
type Records interface {
	Latent(ctx context.Context, id uuid.UUID) (Vector, error)
}

// Stored is a latent persisted in the record store, typically produced by the
// image encoder.
type Stored struct {
	memo
	id     uuid.UUID
	latent Vector
}

// LoadStored fetches the latent for id. Unknown ids fail with ErrNotFound.
func LoadStored(ctx context.Context, recs Records, id uuid.UUID) (*Stored, error) {
	if recs == nil {
		return nil, fmt.Errorf("load latent %s: no record store configured: %w", id, ErrNotFound)
	}
	v, err := recs.Latent(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewStored(id, v)
}

// NewStored wraps an already loaded vector.
func NewStored(id uuid.UUID, v Vector) (*Stored, error) {
	if _, err := ShapeOf(v); err != nil {
		return nil, fmt.Errorf("latent %s: %w", id, err)
	}
	return &Stored{id: id, latent: v.Clone()}, nil
}

func (s *Stored) Resolve(*Context) (Vector, error) { return s.latent, nil }
func (s *Stored) Name() string                     { return "GUID" + s.id.String() }
func (s *Stored) ID() uuid.UUID                    { return s.id }

func (s *Stored) Shard() []string {
	name := s.Name()
	return []string{name[:6], name[6:8]}
}

func (s *Stored) expanded(c *Context) (Vector, error) { return s.memo.expand(c, s.Resolve) }

// Lerp blends two proxies: From weighted 1-P and To weighted P.
type Lerp struct {
	memo
	From Proxy
	To   Proxy
	P    float64
}

// NewLerp returns the blend of from and to at fraction p.
func NewLerp(from, to Proxy, p float64) *Lerp {
	return &Lerp{From: from, To: to, P: p}
}

// Resolve blends the two endpoints. When one side is expanded and the other is
// compact, the compact side is expanded first; that expansion is memoised on the
// child so repeated blends of the same endpoints reuse it.
func (l *Lerp) Resolve(c *Context) (Vector, error) {
	a, err := l.From.Resolve(c)
	if err != nil {
		return nil, err
	}
	b, err := l.To.Resolve(c)
	if err != nil {
		return nil, err
	}
	sa, err := ShapeOf(a)
	if err != nil {
		return nil, err
	}
	sb, err := ShapeOf(b)
	if err != nil {
		return nil, err
	}
	if sa == ShapeExpanded && sb == ShapeCompact {
		if b, err = l.To.expanded(c); err != nil {
			return nil, err
		}
	}
	if sa == ShapeCompact && sb == ShapeExpanded {
		if a, err = l.From.expanded(c); err != nil {
			return nil, err
		}
	}
	return blend(a, b, l.P), nil
}

func (l *Lerp) Name() string {
	return "LERP_" + FormatWeight(l.P) + "_" + l.From.Name() + "-" + l.To.Name() + "_LERP"
}

func (l *Lerp) Shard() []string {
	return []string{"LERPS", digestHex(l.Name())[:2]}
}

func (l *Lerp) expanded(c *Context) (Vector, error) { return l.memo.expand(c, l.Resolve) }

// Term is one weighted operand of a MultiLerp.
type Term struct {
	Weight float64
	Proxy  Proxy
}

// MultiLerp is a weighted sum of proxies. Its name hashes every operand name and
// weight in order, so reordering the terms yields a different name.
type MultiLerp struct {
	memo
	terms   []Term
	hashHex string
}

// NewMultiLerp builds a weighted sum. At least one term is required.
func NewMultiLerp(terms []Term) (*MultiLerp, error) {
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: multi-lerp needs at least one term", ErrMalformedLatent)
	}
	names := make([]string, len(terms))
	weights := make([]string, len(terms))
	for i, t := range terms {
		if t.Proxy == nil {
			return nil, fmt.Errorf("%w: multi-lerp term %d has no proxy", ErrMalformedLatent, i)
		}
		names[i] = t.Proxy.Name()
		weights[i] = FormatWeight(t.Weight)
	}
	middle := strings.Join(names, "-") + "_" + strings.Join(weights, "-")
	return &MultiLerp{
		terms:   append([]Term(nil), terms...),
		hashHex: digestHex(middle),
	}, nil
}

// Terms returns a copy of the operands.
func (m *MultiLerp) Terms() []Term { return append([]Term(nil), m.terms...) }

// Resolve sums the weighted operands. If any operand is expanded, every compact
// operand is expanded (and memoised) before weighting.
func (m *MultiLerp) Resolve(c *Context) (Vector, error) {
	vs := make([]Vector, len(m.terms))
	weights := make([]float64, len(m.terms))
	anyExpanded := false
	for i, t := range m.terms {
		v, err := t.Proxy.Resolve(c)
		if err != nil {
			return nil, err
		}
		shape, err := ShapeOf(v)
		if err != nil {
			return nil, err
		}
		if shape == ShapeExpanded {
			anyExpanded = true
		}
		vs[i] = v
		weights[i] = t.Weight
	}
	if anyExpanded {
		for i, t := range m.terms {
			if len(vs[i]) == ExpandedDim {
				continue
			}
			v, err := t.Proxy.expanded(c)
			if err != nil {
				return nil, err
			}
			vs[i] = v
		}
	}
	return weightedSum(weights, vs), nil
}

func (m *MultiLerp) Name() string { return "MULTILERP_" + m.hashHex + "_MULTILERP" }

func (m *MultiLerp) Shard() []string {
	name := m.Name()
	return []string{name[:12], name[12:14]}
}

func (m *MultiLerp) expanded(c *Context) (Vector, error) { return m.memo.expand(c, m.Resolve) }

var (
	_ Proxy = (*Seed)(nil)
	_ Proxy = (*Text)(nil)
	_ Proxy = (*Stored)(nil)
	_ Proxy = (*Lerp)(nil)
	_ Proxy = (*MultiLerp)(nil)
)
