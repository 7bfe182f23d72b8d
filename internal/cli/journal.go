package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keepsake-dev/keepsake/internal/journal"
)

func init() {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Timestamped entries with rollups and semantic search",
	}

	add := &cobra.Command{
		Use:   "add [content]",
		Short: "Record a journal entry",
		Long:  "Record a journal entry. Content can be a positional arg or piped via stdin.",
		Run:   runJournalAdd,
	}
	add.Flags().String("time", "", "Entry timestamp, RFC3339 (default: now)")
	add.Flags().StringToString("meta", nil, "Metadata key=value pairs")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch an entry by id",
		Args:  cobra.ExactArgs(1),
		Run:   runJournalGet,
	}

	children := &cobra.Command{
		Use:   "children <rollup-id>",
		Short: "List the entries folded into a rollup",
		Args:  cobra.ExactArgs(1),
		Run:   runJournalChildren,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List entries, newest first",
		Run:   runJournalList,
	}
	list.Flags().String("type", "", "Filter by entry type")
	list.Flags().String("start", "", "Window start, RFC3339")
	list.Flags().String("end", "", "Window end, RFC3339")
	list.Flags().IntP("limit", "l", 20, "Max results")

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search entries by meaning, falling back to text match",
		Args:  cobra.MinimumNArgs(1),
		Run:   runJournalSearch,
	}
	search.Flags().String("start", "", "Window start, RFC3339")
	search.Flags().String("end", "", "Window end, RFC3339")
	search.Flags().IntP("limit", "l", 20, "Max results")

	rollup := &cobra.Command{
		Use:   "rollup <type>",
		Short: "Summarize a set of entries into one rollup entry",
		Long:  "Summarize entries into a rollup of the given type (hourlyRollup, weeklyRollup, monthlyRollup, yearlyRollup). Children are reparented atomically.",
		Args:  cobra.ExactArgs(1),
		Run:   runJournalRollup,
	}
	rollup.Flags().String("start", "", "Period start, RFC3339 (required)")
	rollup.Flags().String("end", "", "Period end, RFC3339 (required)")
	rollup.Flags().StringSlice("children", nil, "Child entry ids (empty records a quiet period)")
	rollup.MarkFlagRequired("start")
	rollup.MarkFlagRequired("end")

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete entries past their tier's retention window",
		Run:   runJournalPurge,
	}

	journalCmd.AddCommand(add, get, children, list, search, rollup, purge)
	RootCmd.AddCommand(journalCmd)
}

func parseTimeFlag(cmd *cobra.Command, name string) *time.Time {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		exitErr("parse "+name, err)
	}
	return &t
}

func runJournalAdd(cmd *cobra.Command, args []string) {
	meta, _ := cmd.Flags().GetStringToString("meta")

	content := strings.TrimSpace(readContent(args))
	if content == "" {
		exitErr("add", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	p := journal.AddParams{Content: content, Metadata: meta}
	if ts := parseTimeFlag(cmd, "time"); ts != nil {
		p.Timestamp = *ts
	}

	entry, err := openThread().Journal.AddEntry(cmd.Context(), p)
	if err != nil {
		exitErr("add", err)
	}
	printJSON(entry)
}

func runJournalGet(cmd *cobra.Command, args []string) {
	entry, err := openThread().Journal.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}
	if entry == nil {
		exitErr("get", fmt.Errorf("not found: %s", args[0]))
	}
	printJSON(entry)
}

func runJournalChildren(cmd *cobra.Command, args []string) {
	entries, err := openThread().Journal.Children(cmd.Context(), args[0])
	if err != nil {
		exitErr("children", err)
	}
	printJSON(entries)
}

func runJournalList(cmd *cobra.Command, args []string) {
	entryType, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")

	entries, err := openThread().Journal.List(cmd.Context(), journal.ListParams{
		EntryType: entryType,
		Start:     parseTimeFlag(cmd, "start"),
		End:       parseTimeFlag(cmd, "end"),
		Limit:     limit,
	})
	if err != nil {
		exitErr("list", err)
	}
	printJSON(entries)
}

func runJournalSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	hits, err := openThread().Journal.Search(cmd.Context(), journal.SearchParams{
		Query: strings.Join(args, " "),
		Start: parseTimeFlag(cmd, "start"),
		End:   parseTimeFlag(cmd, "end"),
		Limit: limit,
	})
	if err != nil {
		exitErr("search", err)
	}
	printJSON(hits)
}

func runJournalRollup(cmd *cobra.Command, args []string) {
	children, _ := cmd.Flags().GetStringSlice("children")
	start := parseTimeFlag(cmd, "start")
	end := parseTimeFlag(cmd, "end")

	entry, err := openThread().Journal.CreateRollup(cmd.Context(), args[0], *start, *end, children)
	if err != nil {
		exitErr("rollup", err)
	}
	printJSON(entry)
}

func runJournalPurge(cmd *cobra.Command, args []string) {
	n, err := openThread().Journal.PurgeExpired(cmd.Context(), time.Now())
	if err != nil {
		exitErr("purge", err)
	}
	fmt.Printf("purged %d entries\n", n)
}
