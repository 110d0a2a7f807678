package latent

import (
	"encoding/json"
	"fmt"
)

// DecodeJSON reads a latent posted as JSON. Both a flat array of 512 or 18×512
// numbers and a nested array of 18 layers are accepted.
func DecodeJSON(raw json.RawMessage) (Vector, error) {
	var flat []float64
	if err := json.Unmarshal(raw, &flat); err == nil {
		v := Vector(flat)
		if _, err := ShapeOf(v); err != nil {
			return nil, err
		}
		return v, nil
	}
	var rows [][]float64
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: latent must be an array of numbers", ErrMalformedLatent)
	}
	return FromLayers(rows)
}
