package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/checkface/internal/cache"
)

var (
	cleanupForce     bool
	cleanupDryRun    bool
	cleanupOlderThan time.Duration
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old cached images and morphs",
	Long: `Delete cached faces, morph frames, videos and previews that have not been
written for a while. Everything removed is regenerated on the next request.

Registered latents and encoder results in the record store are kept.

Examples:
  checkface cleanup                       # Interactive cleanup with confirmation
  checkface cleanup --older-than 168h     # Only files older than a week
  checkface cleanup --force               # Skip confirmation prompt
  checkface cleanup --dry-run             # Show what would be removed`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "Skip confirmation prompt")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be removed without removing")
	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 30*24*time.Hour, "Minimum age of removed files")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	layout := cache.Layout{Root: cfg.Data.Root}
	cutoff := time.Now().Add(-cleanupOlderThan)

	found, err := cache.Cleanup(layout, cutoff, true)
	if err != nil {
		return fmt.Errorf("scan cache: %w", err)
	}
	if found.Files == 0 {
		fmt.Println("No cached files older than " + cleanupOlderThan.String() + ".")
		return nil
	}
	fmt.Printf("Found %d cached file(s), %s, older than %s under %s\n",
		found.Files, formatBytes(found.Bytes), cleanupOlderThan, cfg.Data.Root)

	if cleanupDryRun {
		fmt.Println("Dry run mode - no files were removed.")
		return nil
	}

	if !cleanupForce {
		fmt.Print("Remove these files? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Cleanup cancelled.")
			return nil
		}
	}

	removed, err := cache.Cleanup(layout, cutoff, false)
	if err != nil {
		printStatus("✗", fmt.Sprintf("Removed %d file(s) before failing", removed.Files), color.FgRed)
		return fmt.Errorf("cleanup cache: %w", err)
	}
	printStatus("✓", fmt.Sprintf("Removed %d file(s), %s", removed.Files, formatBytes(removed.Bytes)), color.FgGreen)
	return nil
}

// formatBytes renders a byte count with a binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
