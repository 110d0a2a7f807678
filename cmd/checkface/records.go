package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/checkface/internal/config"
	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/store"
)

var hashdataRef *refFlags

var registerCmd = &cobra.Command{
	Use:   "register <file.json>",
	Short: "Register a latent and print its id",
	Long: `Store a latent vector and print the id it can be requested by.

The file holds either a bare array (512 values, or 18 rows of 512) or an
object with the array under "latent". Use - to read standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRegister(cmd, args[0])
	},
}

var hashdataCmd = &cobra.Command{
	Use:   "hashdata",
	Short: "Print the latent behind a seed, value or id",
	Long: `Print the latent a reference resolves to as JSON, in the same shape the
/api/hashdata/ endpoint returns. No generator is started.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHashdata(cmd)
	},
}

func init() {
	hashdataRef = newRefFlags(hashdataCmd, "", "face")
}

// openStore opens and migrates the record store named by cfg.
func openStore(cfg *config.Config) (*store.DB, error) {
	db, err := store.Open(cfg.Store.Driver, cfg.StorePath())
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func runRegister(cmd *cobra.Command, path string) error {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}
	v, err := decodeLatentFile(raw)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := db.Register(cmd.Context(), v)
	if err != nil {
		printStatus("✗", "Latent rejected", color.FgRed)
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id.String())
	return nil
}

// decodeLatentFile accepts a bare latent or {"latent": ...}.
func decodeLatentFile(raw []byte) (latent.Vector, error) {
	var wrapped struct {
		Latent json.RawMessage `json:"latent"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Latent) > 0 {
		raw = wrapped.Latent
	}
	return latent.DecodeJSON(raw)
}

func runHashdata(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ref, err := hashdataRef.ref(cmd)
	if err != nil {
		return err
	}

	var recs latent.Records
	if ref.GUID != "" {
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		recs = db
	}
	p, err := ref.Proxy(cmd.Context(), recs)
	if err != nil {
		return err
	}
	data, err := hashData(p)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// hashData resolves a single, unblended reference. Such references never need
// the mapping network.
func hashData(p latent.Proxy) (map[string]any, error) {
	v, err := p.Resolve(nil)
	if err != nil {
		return nil, err
	}
	shape, err := latent.ShapeOf(v)
	if err != nil {
		return nil, err
	}
	data := map[string]any{}
	if shape == latent.ShapeCompact {
		data[string(shape)] = []float64(v)
	} else {
		data[string(shape)] = v.Rows()
	}
	switch p := p.(type) {
	case *latent.Seed:
		data["seed"] = p.Value()
	case *latent.Text:
		data["hash"] = p.HashHex()
	}
	return data, nil
}
