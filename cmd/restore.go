package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"imagecull/internal/logging"
	"imagecull/internal/models"
	"imagecull/internal/relocate"
	"imagecull/internal/storage"
)

var (
	restoreDryRun    bool
	restoreNoConfirm bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore <run-id>",
	Short: "Move a run's quarantined duplicates back",
	Long: `Move the images that a previous run quarantined back into the scanned folder.

Only files that were actually moved and have not been restored yet are
considered. A file is skipped when its original name is taken again.

Example:
  imagecull restore 3f2a            # Restore files moved by run 3f2a...
  imagecull restore 3f2a --dry-run  # Preview only
  imagecull restore 3f2a --yes      # Skip confirmation prompt`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false, "Preview without moving")
	restoreCmd.Flags().BoolVarP(&restoreNoConfirm, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	store, err := storage.NewStorage(cfg.Paths.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	run, err := store.GetRun(args[0])
	if err != nil {
		return err
	}
	if run.DryRun {
		fmt.Printf("Run %s was a dry run; nothing was moved.\n", shortID(run.ID))
		return nil
	}

	moves, err := store.GetMoves(run.ID)
	if err != nil {
		return err
	}
	pending := pendingRestores(moves)
	if len(pending) == 0 {
		fmt.Println("Nothing to restore.")
		return nil
	}

	fmt.Printf("Will restore %d files to %s\n\n", len(pending), run.Folder)

	if restoreDryRun {
		for _, m := range pending {
			fmt.Printf("  %s -> %s\n", m.Destination, m.Source)
		}
		fmt.Println()
		fmt.Println("(Dry run - no files were modified)")
		return nil
	}

	if !restoreNoConfirm {
		fmt.Printf("Restore %d files? [y/N]: ", len(pending))
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	relocator := relocate.New(relocate.WithLogger(logger))
	var restored, failed int
	for _, res := range relocator.Restore(pending) {
		if res.Status != models.MoveMoved {
			fmt.Fprintf(os.Stderr, "Failed to restore %s: %s\n", res.Image, res.Error)
			failed++
			continue
		}
		restored++
		if err := store.MarkRestored(run.ID, res.Image); err != nil {
			logger.Warn("failed to record restore", logging.Image(res.Image), logging.Error(err))
		}
	}

	fmt.Printf("Restored %d files\n", restored)
	if failed > 0 {
		fmt.Printf("Failed: %d files\n", failed)
	}
	return nil
}

// pendingRestores selects moves that put a file in quarantine and were not undone.
func pendingRestores(moves []*storage.Move) []models.MoveResult {
	var out []models.MoveResult
	for _, m := range moves {
		if m.Status != models.MoveMoved || m.Restored {
			continue
		}
		out = append(out, models.MoveResult{
			Image:       m.Image,
			Source:      m.Source,
			Destination: m.Destination,
			Status:      m.Status,
		})
	}
	return out
}
