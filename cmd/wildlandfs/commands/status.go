package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wildland/wildland-go/pkg/config"
	"github.com/wildland/wildland-go/pkg/fsclient"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon-wide parameters (default user)",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	pidPath := GetDefaultPidFile()
	if _, running := isProcessRunning(pidPath); !running {
		fmt.Println("wildlandfs is not running")
		return nil
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	fc := fsclient.New(cfg.ControlSocketPath)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info, err := fc.Status(ctx)
	if err != nil {
		return fmt.Errorf("querying daemon status: %w", err)
	}
	if len(info) == 0 {
		fmt.Println("No daemon parameters set")
		return nil
	}
	for id, status := range info {
		fmt.Fprintf(os.Stdout, "%s: %s\n", id, status)
	}
	return nil
}
