package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wildland/wildland-go/pkg/syncclient"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Control the wlsyncd replication daemon",
	Long: `sync talks to a running wlsyncd daemon over its control socket to
start, stop and inspect replication jobs between two storage
backends.`,
}

func init() {
	syncCmd.AddCommand(syncStartCmd)
	syncCmd.AddCommand(syncStopCmd)
	syncCmd.AddCommand(syncStopAllCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncJobStatusCmd)
	syncCmd.AddCommand(syncShutdownCmd)
}

var (
	syncJobID          string
	syncContinuous     bool
	syncUnidirectional bool
	syncSigner         string
)

var syncStartCmd = &cobra.Command{
	Use:   "start [container-name] [source-manifest] [target-manifest]",
	Short: "Start a replication job between two storage backends",
	Args:  cobra.ExactArgs(3),
	RunE:  runSyncStart,
}

func init() {
	syncStartCmd.Flags().StringVar(&syncJobID, "job-id", "", "job id (default: generated by the daemon)")
	syncStartCmd.Flags().BoolVar(&syncContinuous, "continuous", false, "keep watching and replicating changes after the initial pass")
	syncStartCmd.Flags().BoolVar(&syncUnidirectional, "unidirectional", false, "only replicate source to target, never target to source")
	syncStartCmd.Flags().StringVar(&syncSigner, "signer", "", "signer public key expected to own the manifests")
}

func runSyncStart(cmd *cobra.Command, args []string) error {
	sourceManifest, err := readManifest(args[1])
	if err != nil {
		return err
	}
	targetManifest, err := readManifest(args[2])
	if err != nil {
		return err
	}

	sc, err := syncClient()
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout()
	defer cancel()

	message, err := sc.Start(ctx, syncclient.StartRequest{
		ContainerName:  args[0],
		JobID:          syncJobID,
		Continuous:     syncContinuous,
		Unidirectional: syncUnidirectional,
		SourceManifest: sourceManifest,
		TargetManifest: targetManifest,
		Signer:         syncSigner,
	})
	if err != nil {
		return fmt.Errorf("starting sync job: %w", err)
	}

	fmt.Println(message)
	return nil
}

var syncStopCmd = &cobra.Command{
	Use:   "stop [job-id]",
	Short: "Stop a running replication job",
	Args:  cobra.ExactArgs(1),
	RunE:  runSyncStop,
}

func runSyncStop(cmd *cobra.Command, args []string) error {
	sc, err := syncClient()
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout()
	defer cancel()

	message, err := sc.Stop(ctx, args[0])
	if err != nil {
		return fmt.Errorf("stopping job %s: %w", args[0], err)
	}

	fmt.Println(message)
	return nil
}

var syncStopAllCmd = &cobra.Command{
	Use:   "stop-all",
	Short: "Stop every running replication job",
	Args:  cobra.NoArgs,
	RunE:  runSyncStopAll,
}

func runSyncStopAll(cmd *cobra.Command, args []string) error {
	sc, err := syncClient()
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout()
	defer cancel()

	if err := sc.StopAll(ctx); err != nil {
		return fmt.Errorf("stopping all jobs: %w", err)
	}

	fmt.Println("Stopped all sync jobs")
	return nil
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show every running replication job",
	Args:  cobra.NoArgs,
	RunE:  runSyncStatus,
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	sc, err := syncClient()
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout()
	defer cancel()

	lines, err := sc.Status(ctx)
	if err != nil {
		return fmt.Errorf("fetching sync status: %w", err)
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

var syncJobStatusCmd = &cobra.Command{
	Use:   "job-status [job-id]",
	Short: "Show one replication job's status",
	Args:  cobra.ExactArgs(1),
	RunE:  runSyncJobStatus,
}

func runSyncJobStatus(cmd *cobra.Command, args []string) error {
	sc, err := syncClient()
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout()
	defer cancel()

	result, err := sc.JobStatus(ctx, args[0])
	if err != nil {
		return fmt.Errorf("fetching status for job %s: %w", args[0], err)
	}

	fmt.Printf("code:   %d\n", result.Code)
	fmt.Printf("status: %s\n", result.Status)
	return nil
}

var syncShutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Stop every job and shut the daemon down",
	Args:  cobra.NoArgs,
	RunE:  runSyncShutdown,
}

func runSyncShutdown(cmd *cobra.Command, args []string) error {
	sc, err := syncClient()
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout()
	defer cancel()

	if err := sc.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down daemon: %w", err)
	}

	fmt.Println("wlsyncd is shutting down")
	return nil
}
