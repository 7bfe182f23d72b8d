package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	threadCmd := &cobra.Command{
		Use:   "thread",
		Short: "Manage threads",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List threads with data on disk",
		Run:   runThreadList,
	}

	clear := &cobra.Command{
		Use:   "clear <id>",
		Short: "Delete a thread's files; the next use starts it fresh",
		Args:  cobra.ExactArgs(1),
		Run:   runThreadClear,
	}

	threadCmd.AddCommand(list, clear)
	RootCmd.AddCommand(threadCmd)
}

func runThreadList(cmd *cobra.Command, args []string) {
	ids, err := openRegistry().List()
	if err != nil {
		exitErr("list threads", err)
	}
	printJSON(ids)
}

func runThreadClear(cmd *cobra.Command, args []string) {
	if err := openRegistry().Clear(args[0]); err != nil {
		exitErr("clear thread", err)
	}
	fmt.Printf("cleared thread %s\n", args[0])
}
