package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	watchPattern   string
	watchIgnoreOwn bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [storage-id]",
	Short: "Watch a mounted storage for change events",
	Long: `Watch registers a watch on a mounted storage and prints each change
event as it is long-polled from the mount daemon, until interrupted
with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchPattern, "pattern", "*", "glob pattern restricting which paths to watch")
	watchCmd.Flags().BoolVar(&watchIgnoreOwn, "ignore-own", false, "ignore events caused by this daemon's own writes")
}

func runWatch(cmd *cobra.Command, args []string) error {
	fc, err := mountClient()
	if err != nil {
		return err
	}

	storageID := args[0]

	addCtx, cancel := withTimeout()
	watchID, err := fc.AddWatch(addCtx, storageID, watchPattern, watchIgnoreOwn)
	cancel()
	if err != nil {
		return fmt.Errorf("registering watch on %s: %w", storageID, err)
	}
	if watchID == "" {
		fmt.Println("This storage backend does not support watching")
		return nil
	}

	fmt.Printf("Watching %s (pattern %s)...\n", storageID, watchPattern)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		events, err := fc.WatchEvents(ctx, watchID)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(os.Stderr, "\nstopped watching")
				return nil
			}
			return fmt.Errorf("polling watch events: %w", err)
		}
		for _, ev := range events {
			fmt.Printf("%d %s\n", ev.Kind, ev.Path)
		}
	}
}
