package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wildland/wildland-go/pkg/config"
	"github.com/wildland/wildland-go/pkg/syncclient"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show running sync jobs",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	pidPath := GetDefaultPidFile()
	if _, running := isProcessRunning(pidPath); !running {
		fmt.Println("wlsyncd is not running")
		return nil
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	sc := syncclient.New(cfg.SyncSocketPath)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lines, err := sc.Status(ctx)
	if err != nil {
		return fmt.Errorf("querying daemon status: %w", err)
	}
	if len(lines) == 0 {
		fmt.Println("No sync jobs running")
		return nil
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}
