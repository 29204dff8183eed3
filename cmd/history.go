package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"imagecull/internal/report"
	"imagecull/internal/storage"
)

var (
	historyJSON  bool
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show previous runs",
	Long: `Display the runs recorded in the history database.

Without an argument the most recent runs are listed. With a run id (or a
unique prefix of one) the groups and moves of that run are shown.

Example:
  imagecull history              # Show the last 10 runs
  imagecull history -n 0         # Show all runs
  imagecull history 3f2a         # Show groups and moves of one run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output in JSON format")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Limit number of runs to display (0 = all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := storage.NewStorage(cfg.Paths.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	if len(args) == 1 {
		return showRun(store, args[0])
	}

	runs, err := store.ListRuns(historyLimit)
	if err != nil {
		return err
	}

	if historyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if runs == nil {
			runs = []*storage.Run{}
		}
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		fmt.Println("Run 'imagecull <folder>' to scan a folder for duplicates.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortID(run.ID),
			humanize.Time(run.StartedAt),
			run.Folder,
			strconv.Itoa(run.Images),
			strconv.Itoa(run.Groups),
			strconv.Itoa(run.Moved),
			strconv.Itoa(run.Failed),
			yesNo(run.DryRun),
		})
	}
	fmt.Println(report.RenderTable(
		[]string{"Run", "Started", "Folder", "Images", "Groups", "Moved", "Failed", "Dry run"},
		rows,
		[]report.Alignment{report.AlignLeft, report.AlignLeft, report.AlignLeft, report.AlignRight, report.AlignRight, report.AlignRight, report.AlignRight, report.AlignLeft},
	))
	return nil
}

func showRun(store *storage.Storage, id string) error {
	run, err := store.GetRun(id)
	if err != nil {
		return err
	}
	members, err := store.GetMembers(run.ID)
	if err != nil {
		return err
	}
	moves, err := store.GetMoves(run.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s\n", run.ID)
	fmt.Printf("Folder:    %s\n", run.Folder)
	fmt.Printf("Started:   %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Threshold: %.2f%%\n", run.Threshold)
	if run.DryRun {
		fmt.Println("Dry run:   yes")
	}
	fmt.Println()

	if len(members) > 0 {
		rows := make([][]string, 0, len(members))
		for _, m := range members {
			score := "-"
			if m.Score.Valid {
				score = strconv.FormatFloat(m.Score.Float64, 'f', 2, 64)
			}
			rows = append(rows, []string{
				strconv.Itoa(m.GroupIndex),
				m.Image,
				m.Role,
				score,
				strconv.FormatFloat(m.AvgSimilarity, 'f', 2, 64) + "%",
			})
		}
		fmt.Println(report.RenderTable(
			[]string{"Group", "Image", "Role", "Score", "Avg. similarity"},
			rows,
			[]report.Alignment{report.AlignRight, report.AlignLeft, report.AlignLeft, report.AlignRight, report.AlignRight},
		))
		fmt.Println()
	}

	if len(moves) > 0 {
		rows := make([][]string, 0, len(moves))
		for _, m := range moves {
			status := string(m.Status)
			if m.Restored {
				status = "restored"
			}
			rows = append(rows, []string{m.Image, m.Destination, status, m.Error})
		}
		fmt.Println(report.RenderTable(
			[]string{"Image", "Destination", "Status", "Error"},
			rows,
			nil,
		))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
