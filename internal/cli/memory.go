package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keepsake-dev/keepsake/internal/memstore"
	"github.com/keepsake-dev/keepsake/internal/model"
)

func init() {
	memoryCmd := &cobra.Command{
		Use:   "memory",
		Short: "Versioned keyed facts",
	}

	remember := &cobra.Command{
		Use:   "remember [content]",
		Short: "Store a fact, superseding the key's current version if one exists",
		Long:  "Store a fact. Content can be a positional arg or piped via stdin.",
		Run:   runMemoryRemember,
	}
	remember.Flags().StringP("key", "k", "", "Key (empty for a standalone fact)")
	remember.Flags().String("type", "fact", "Memory type: profile, fact, preference, constraint, style, context")
	remember.Flags().Float64("confidence", 1.0, "Confidence in [0,1]")
	remember.Flags().String("source", "", "Source message id")
	remember.Flags().String("reason", "", "Change reason recorded on the superseded version")
	remember.Flags().Bool("dedupe", false, "Skip the write when an identical fact already exists")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch a memory by id",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoryGet,
	}

	at := &cobra.Command{
		Use:   "at <key>",
		Short: "Read the version of a key that was valid at a point in time",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoryAt,
	}
	at.Flags().String("time", "", "Point in time, RFC3339 (default: now)")

	history := &cobra.Command{
		Use:   "history <key>",
		Short: "Show a key's full version history",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoryHistory,
	}

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search current active memories",
		Args:  cobra.MinimumNArgs(1),
		Run:   runMemorySearch,
	}
	search.Flags().IntP("limit", "l", 20, "Max results")
	search.Flags().Float64("min-confidence", 0, "Minimum confidence")

	list := &cobra.Command{
		Use:   "list",
		Short: "List current memories",
		Run:   runMemoryList,
	}
	list.Flags().String("type", "", "Filter by memory type")
	list.Flags().String("status", "", "Filter by status (default: active)")
	list.Flags().IntP("limit", "l", 20, "Max results")

	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a memory's content, confidence, or status",
		Long:  "Change a memory. A content change supersedes the row and prints the successor; confidence and status change in place.",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoryUpdate,
	}
	update.Flags().String("content", "", "New content (supersedes)")
	update.Flags().Float64("confidence", -1, "New confidence in [0,1]")
	update.Flags().String("status", "", "New status: active, deprecated, deleted")
	update.Flags().String("reason", "", "Change reason")

	forget := &cobra.Command{
		Use:   "forget <id>",
		Short: "Soft-delete a memory",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoryForget,
	}

	memoryCmd.AddCommand(remember, get, at, history, search, list, update, forget)
	RootCmd.AddCommand(memoryCmd)
}

// readContent takes the positional args first, then stdin.
func readContent(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return string(b)
	}
	return ""
}

func runMemoryRemember(cmd *cobra.Command, args []string) {
	key, _ := cmd.Flags().GetString("key")
	memType, _ := cmd.Flags().GetString("type")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	source, _ := cmd.Flags().GetString("source")
	reason, _ := cmd.Flags().GetString("reason")
	dedupe, _ := cmd.Flags().GetBool("dedupe")

	content := strings.TrimSpace(readContent(args))
	if content == "" {
		exitErr("remember", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	th := openThread()

	if dedupe && key == "" {
		existing, err := th.Memory.DedupeByContent(cmd.Context(), content)
		if err != nil {
			exitErr("dedupe", err)
		}
		if existing != nil {
			printJSON(existing)
			return
		}
	}

	mem, err := th.Memory.CreateOrVersion(cmd.Context(), memstore.CreateParams{
		Key:             key,
		Content:         content,
		MemoryType:      memType,
		Confidence:      confidence,
		SourceMessageID: source,
		ChangeReason:    reason,
	})
	if err != nil {
		exitErr("remember", err)
	}
	printJSON(mem)
}

func runMemoryGet(cmd *cobra.Command, args []string) {
	mem, err := openThread().Memory.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}
	if mem == nil {
		exitErr("get", fmt.Errorf("not found: %s", args[0]))
	}
	printJSON(mem)
}

func runMemoryAt(cmd *cobra.Command, args []string) {
	ts := time.Now()
	if v, _ := cmd.Flags().GetString("time"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			exitErr("parse time", err)
		}
		ts = parsed
	}

	mem, err := openThread().Memory.GetAtTime(cmd.Context(), args[0], ts)
	if err != nil {
		exitErr("at", err)
	}
	if mem == nil {
		exitErr("at", fmt.Errorf("no version of %q was valid at %s", args[0], ts.Format(time.RFC3339)))
	}
	printJSON(mem)
}

func runMemoryHistory(cmd *cobra.Command, args []string) {
	history, err := openThread().Memory.GetHistory(cmd.Context(), args[0])
	if err != nil {
		exitErr("history", err)
	}
	printJSON(history)
}

func runMemorySearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	minConf, _ := cmd.Flags().GetFloat64("min-confidence")

	results, err := openThread().Memory.Search(cmd.Context(), memstore.SearchParams{
		Query:         strings.Join(args, " "),
		Limit:         limit,
		MinConfidence: minConf,
	})
	if err != nil {
		exitErr("search", err)
	}
	printJSON(results)
}

func runMemoryList(cmd *cobra.Command, args []string) {
	memType, _ := cmd.Flags().GetString("type")
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")

	mems, err := openThread().Memory.List(cmd.Context(), memstore.ListParams{
		MemoryType: memType,
		Status:     status,
		Limit:      limit,
	})
	if err != nil {
		exitErr("list", err)
	}
	printJSON(mems)
}

func runMemoryUpdate(cmd *cobra.Command, args []string) {
	p := memstore.UpdateParams{ID: args[0]}
	if v, _ := cmd.Flags().GetString("content"); v != "" {
		p.Content = &v
	}
	if v, _ := cmd.Flags().GetFloat64("confidence"); v >= 0 {
		p.Confidence = &v
	}
	if v, _ := cmd.Flags().GetString("status"); v != "" {
		p.Status = &v
	}
	p.ChangeReason, _ = cmd.Flags().GetString("reason")

	mem, err := openThread().Memory.Update(cmd.Context(), p)
	if err != nil {
		exitErr("update", err)
	}
	if mem == nil {
		exitErr("update", fmt.Errorf("not found: %s", args[0]))
	}
	printJSON(mem)
}

func runMemoryForget(cmd *cobra.Command, args []string) {
	status := model.MemoryDeleted
	mem, err := openThread().Memory.Update(cmd.Context(), memstore.UpdateParams{
		ID:     args[0],
		Status: &status,
	})
	if err != nil {
		exitErr("forget", err)
	}
	if mem == nil {
		exitErr("forget", fmt.Errorf("not found: %s", args[0]))
	}
	printJSON(mem)
}
