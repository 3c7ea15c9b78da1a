package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var listLimit int

// threadLister is implemented by stores that can enumerate threads.
type threadLister interface {
	List(ctx context.Context, limit int) ([]string, error)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent threads (sqlite backend)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		application, cleanup, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		lister, ok := application.Store.(threadLister)
		if !ok {
			return fmt.Errorf("the %s backend cannot list threads", application.Config.CheckpointBackend)
		}
		ids, err := lister.List(ctx, listLimit)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum number of threads")
}
