package cli

import (
	"github.com/spf13/cobra"

	"github.com/keepsake-dev/keepsake/internal/goals"
	"github.com/keepsake-dev/keepsake/internal/journal"
	"github.com/keepsake-dev/keepsake/internal/memstore"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show counts across the thread's stores",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	th := openThread()
	ctx := cmd.Context()

	memStats, err := th.Memory.Stats(ctx)
	if err != nil {
		exitErr("memory stats", err)
	}
	journalStats, err := th.Journal.Stats(ctx)
	if err != nil {
		exitErr("journal stats", err)
	}
	goalStats, err := th.Goals.Stats(ctx)
	if err != nil {
		exitErr("goal stats", err)
	}

	printJSON(struct {
		Thread  string          `json:"thread"`
		Memory  *memstore.Stats `json:"memory"`
		Journal *journal.Stats  `json:"journal"`
		Goals   *goals.Stats    `json:"goals"`
	}{th.ID, memStats, journalStats, goalStats})
}
