package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/checkface/internal/latent"
)

// refFlags binds --<prefix>seed, --<prefix>value and --<prefix>guid to a
// latent reference.
type refFlags struct {
	prefix string
	seed   string
	value  string
	guid   string
}

func newRefFlags(cmd *cobra.Command, prefix, what string) *refFlags {
	f := &refFlags{prefix: prefix}
	cmd.Flags().StringVar(&f.seed, prefix+"seed", "", "Numeric seed for the "+what)
	cmd.Flags().StringVar(&f.value, prefix+"value", "", "Text value hashed into the "+what)
	cmd.Flags().StringVar(&f.guid, prefix+"guid", "", "Registered latent id for the "+what)
	return f
}

func (f *refFlags) ref(cmd *cobra.Command) (latent.Ref, error) {
	var r latent.Ref
	if f.seed != "" {
		seed, err := latent.ParseSeed(f.seed)
		if err != nil {
			return r, fmt.Errorf("--%sseed: %w", f.prefix, err)
		}
		r.Seed = &seed
	}
	if cmd.Flags().Changed(f.prefix + "value") {
		v := f.value
		r.Text = &v
	}
	r.GUID = f.guid
	return r, nil
}

func (f *refFlags) proxy(ctx context.Context, cmd *cobra.Command, recs latent.Records) (latent.Proxy, error) {
	r, err := f.ref(cmd)
	if err != nil {
		return nil, err
	}
	return r.Proxy(ctx, recs)
}
