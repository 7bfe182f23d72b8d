package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/keepsake-dev/keepsake/internal/goals"
)

func init() {
	goalCmd := &cobra.Command{
		Use:   "goal",
		Short: "Goal tracking with progress log and version history",
	}

	add := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a goal",
		Args:  cobra.ExactArgs(1),
		Run:   runGoalAdd,
	}
	add.Flags().String("category", "shortTerm", "Category: shortTerm, mediumTerm, longTerm")
	add.Flags().String("description", "", "Description")
	add.Flags().String("target", "", "Target date, RFC3339")
	add.Flags().Int("priority", 0, "Priority")
	add.Flags().Int("importance", 0, "Importance")
	add.Flags().String("parent", "", "Parent goal id")
	add.Flags().StringSlice("tags", nil, "Tags")
	add.Flags().StringSlice("projects", nil, "Related projects")
	add.Flags().StringSlice("depends-on", nil, "Goal ids this goal depends on")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch a goal by id",
		Args:  cobra.ExactArgs(1),
		Run:   runGoalGet,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List goals",
		Run:   runGoalList,
	}
	list.Flags().String("status", "", "Filter by status (default: everything but deleted)")
	list.Flags().String("category", "", "Filter by category")
	list.Flags().IntP("limit", "l", 50, "Max results")

	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change goal fields, snapshotting the old state first",
		Args:  cobra.ExactArgs(1),
		Run:   runGoalUpdate,
	}
	update.Flags().String("title", "", "New title")
	update.Flags().String("description", "", "New description")
	update.Flags().String("category", "", "New category")
	update.Flags().String("target", "", "New target date, RFC3339")
	update.Flags().String("status", "", "New status: planned, completed, abandoned, deleted")
	update.Flags().Int("priority", -1, "New priority")
	update.Flags().Int("importance", -1, "New importance")
	update.Flags().String("reason", "", "Change reason")

	progress := &cobra.Command{
		Use:   "progress <id> <percent>",
		Short: "Log progress on a goal",
		Args:  cobra.ExactArgs(2),
		Run:   runGoalProgress,
	}
	progress.Flags().String("source", "manual", "Where this observation came from")
	progress.Flags().String("notes", "", "Notes")

	progressLog := &cobra.Command{
		Use:   "progress-log <id>",
		Short: "Show a goal's progress log, newest first",
		Args:  cobra.ExactArgs(1),
		Run:   runGoalProgressLog,
	}
	progressLog.Flags().IntP("limit", "l", 50, "Max entries")

	versions := &cobra.Command{
		Use:   "versions <id>",
		Short: "Show a goal's version snapshots, newest first",
		Args:  cobra.ExactArgs(1),
		Run:   runGoalVersions,
	}
	versions.Flags().IntP("limit", "l", 50, "Max versions")

	restore := &cobra.Command{
		Use:   "restore <id> <version-id>",
		Short: "Rewrite a goal's fields from a stored snapshot",
		Args:  cobra.ExactArgs(2),
		Run:   runGoalRestore,
	}
	restore.Flags().String("reason", "", "Change reason")

	check := &cobra.Command{
		Use:   "check",
		Short: "Flag goals that look stagnant, stalled, or urgent",
		Run:   runGoalCheck,
	}
	check.Flags().Int("stagnant-days", 14, "Days without any activity before a goal is stagnant")
	check.Flags().Int("stalled-days", 30, "Days since the last progress entry before a goal is stalled")
	check.Flags().Int("urgent-days", 7, "Target-date window for urgency")
	check.Flags().Float64("urgent-below", 50, "Progress threshold for urgency")

	goalCmd.AddCommand(add, get, list, update, progress, progressLog, versions, restore, check)
	RootCmd.AddCommand(goalCmd)
}

func runGoalAdd(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	description, _ := cmd.Flags().GetString("description")
	priority, _ := cmd.Flags().GetInt("priority")
	importance, _ := cmd.Flags().GetInt("importance")
	parent, _ := cmd.Flags().GetString("parent")
	tags, _ := cmd.Flags().GetStringSlice("tags")
	projects, _ := cmd.Flags().GetStringSlice("projects")
	dependsOn, _ := cmd.Flags().GetStringSlice("depends-on")

	g, err := openThread().Goals.Create(cmd.Context(), goals.CreateParams{
		Title:           args[0],
		Description:     description,
		Category:        category,
		TargetDate:      parseTimeFlag(cmd, "target"),
		Priority:        priority,
		Importance:      importance,
		ParentGoalID:    parent,
		RelatedProjects: projects,
		DependsOn:       dependsOn,
		Tags:            tags,
	})
	if err != nil {
		exitErr("add", err)
	}
	printJSON(g)
}

func runGoalGet(cmd *cobra.Command, args []string) {
	g, err := openThread().Goals.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}
	if g == nil {
		exitErr("get", fmt.Errorf("not found: %s", args[0]))
	}
	printJSON(g)
}

func runGoalList(cmd *cobra.Command, args []string) {
	status, _ := cmd.Flags().GetString("status")
	category, _ := cmd.Flags().GetString("category")
	limit, _ := cmd.Flags().GetInt("limit")

	list, err := openThread().Goals.List(cmd.Context(), goals.ListParams{
		Status:   status,
		Category: category,
		Limit:    limit,
	})
	if err != nil {
		exitErr("list", err)
	}
	printJSON(list)
}

func runGoalUpdate(cmd *cobra.Command, args []string) {
	p := goals.UpdateParams{}
	p.ChangeReason, _ = cmd.Flags().GetString("reason")
	if v, _ := cmd.Flags().GetString("title"); v != "" {
		p.Title = &v
	}
	if v, _ := cmd.Flags().GetString("description"); v != "" {
		p.Description = &v
	}
	if v, _ := cmd.Flags().GetString("category"); v != "" {
		p.Category = &v
	}
	if v, _ := cmd.Flags().GetString("status"); v != "" {
		p.Status = &v
	}
	if v, _ := cmd.Flags().GetInt("priority"); v >= 0 {
		p.Priority = &v
	}
	if v, _ := cmd.Flags().GetInt("importance"); v >= 0 {
		p.Importance = &v
	}
	p.TargetDate = parseTimeFlag(cmd, "target")

	th := openThread()
	ok, err := th.Goals.Update(cmd.Context(), args[0], p)
	if err != nil {
		exitErr("update", err)
	}
	if !ok {
		exitErr("update", fmt.Errorf("not found: %s", args[0]))
	}
	g, _ := th.Goals.Get(cmd.Context(), args[0])
	printJSON(g)
}

func runGoalProgress(cmd *cobra.Command, args []string) {
	var percent float64
	if _, err := fmt.Sscanf(args[1], "%f", &percent); err != nil {
		exitErr("progress", fmt.Errorf("invalid percent %q", args[1]))
	}
	source, _ := cmd.Flags().GetString("source")
	notes, _ := cmd.Flags().GetString("notes")

	th := openThread()
	ok, err := th.Goals.UpdateProgress(cmd.Context(), args[0], goals.ProgressParams{
		Progress: percent,
		Source:   source,
		Notes:    notes,
	})
	if err != nil {
		exitErr("progress", err)
	}
	if !ok {
		exitErr("progress", fmt.Errorf("not found: %s", args[0]))
	}
	g, _ := th.Goals.Get(cmd.Context(), args[0])
	printJSON(g)
}

func runGoalProgressLog(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	log, err := openThread().Goals.GetProgressHistory(cmd.Context(), args[0], limit)
	if err != nil {
		exitErr("progress-log", err)
	}
	printJSON(log)
}

func runGoalVersions(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	versions, err := openThread().Goals.GetVersionHistory(cmd.Context(), args[0], limit)
	if err != nil {
		exitErr("versions", err)
	}
	printJSON(versions)
}

func runGoalRestore(cmd *cobra.Command, args []string) {
	reason, _ := cmd.Flags().GetString("reason")

	th := openThread()
	ok, err := th.Goals.RestoreFromVersion(cmd.Context(), args[0], args[1], reason)
	if err != nil {
		exitErr("restore", err)
	}
	if !ok {
		exitErr("restore", fmt.Errorf("goal %s has no version %s", args[0], args[1]))
	}
	g, _ := th.Goals.Get(cmd.Context(), args[0])
	printJSON(g)
}

func runGoalCheck(cmd *cobra.Command, args []string) {
	stagnantDays, _ := cmd.Flags().GetInt("stagnant-days")
	stalledDays, _ := cmd.Flags().GetInt("stalled-days")
	urgentDays, _ := cmd.Flags().GetInt("urgent-days")
	urgentBelow, _ := cmd.Flags().GetFloat64("urgent-below")

	th := openThread()
	ctx := cmd.Context()
	now := time.Now()

	report := struct {
		Stagnant []string `json:"stagnant"`
		Stalled  []string `json:"stalled"`
		Urgent   []string `json:"urgent"`
	}{}

	var err error
	if report.Stagnant, err = th.Goals.DetectStagnant(ctx, now, time.Duration(stagnantDays)*24*time.Hour); err != nil {
		exitErr("check stagnant", err)
	}
	if report.Stalled, err = th.Goals.DetectStalledProgress(ctx, now, time.Duration(stalledDays)*24*time.Hour); err != nil {
		exitErr("check stalled", err)
	}
	if report.Urgent, err = th.Goals.DetectUrgent(ctx, now, time.Duration(urgentDays)*24*time.Hour, urgentBelow); err != nil {
		exitErr("check urgent", err)
	}

	printJSON(report)
}
