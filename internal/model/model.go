// Package model defines the boundary to the generative network. Implementations
// are not safe for concurrent use: exactly one goroutine, the dispatch worker,
// drives a Model for the life of the process.
package model

import (
	"errors"
	"image"

	"github.com/ShayCichocki/checkface/internal/latent"
)

// ErrDeviceLost reports that the accelerator or the process hosting the network
// is gone. It is not recoverable from inside the worker.
var ErrDeviceLost = errors.New("generator device lost")

// Model is the compute resource.
type Model interface {
	// InputDim is the length of a compact latent.
	InputDim() int
	// AverageExpanded is the running average of the expanded latents, read once at startup.
	AverageExpanded() (latent.Vector, error)
	// Expand runs the mapping stage on a compact latent, without truncation.
	Expand(compact latent.Vector) (latent.Vector, error)
	// Infer synthesises one image per expanded latent, in input order.
	Infer(batch []latent.Vector) ([]image.Image, error)
}

// NewContext reads the startup parameters from m and builds the immutable
// resolution context around it.
func NewContext(m Model, t latent.Truncation) (*latent.Context, error) {
	avg, err := m.AverageExpanded()
	if err != nil {
		return nil, err
	}
	return latent.NewContext(m, avg, m.InputDim(), t)
}
