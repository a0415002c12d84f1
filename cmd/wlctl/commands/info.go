package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "List every mounted virtual path",
	RunE:  runPaths,
}

func runPaths(cmd *cobra.Command, args []string) error {
	fc, err := mountClient()
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout()
	defer cancel()

	result, err := fc.Paths(ctx)
	if err != nil {
		return fmt.Errorf("listing paths: %w", err)
	}

	paths := make([]string, 0, len(result))
	for p := range result {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		fmt.Printf("%s\n", p)
		for _, id := range result[p] {
			fmt.Printf("  %s\n", id)
		}
	}
	return nil
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show every mounted storage",
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	fc, err := mountClient()
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout()
	defer cancel()

	result, err := fc.Info(ctx)
	if err != nil {
		return fmt.Errorf("fetching info: %w", err)
	}

	ids := make([]string, 0, len(result))
	for id := range result {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		storage := result[id]
		fmt.Printf("%s\n", id)
		fmt.Printf("  type:      %s\n", storage.Type)
		fmt.Printf("  paths:     %v\n", storage.Paths)
		if len(storage.Extra) > 0 {
			fmt.Printf("  extra:     %v\n", storage.Extra)
		}
	}
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mount daemon parameters",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	fc, err := mountClient()
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout()
	defer cancel()

	result, err := fc.Status(ctx)
	if err != nil {
		return fmt.Errorf("fetching status: %w", err)
	}

	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Printf("%s: %s\n", k, result[k])
	}
	return nil
}

var dirinfoCmd = &cobra.Command{
	Use:   "dirinfo [path]",
	Short: "List the storages contributing content at a virtual path",
	Args:  cobra.ExactArgs(1),
	RunE:  runDirinfo,
}

func runDirinfo(cmd *cobra.Command, args []string) error {
	fc, err := mountClient()
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout()
	defer cancel()

	entries, err := fc.Dirinfo(ctx, args[0])
	if err != nil {
		return fmt.Errorf("fetching dirinfo for %s: %w", args[0], err)
	}

	if len(entries) == 0 {
		fmt.Println("No storages contribute content at this path")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s\n", e.Storage.ID)
		fmt.Printf("  container_path: %s\n", e.Storage.ContainerPath)
		fmt.Printf("  backend_id:     %s\n", e.Storage.BackendID)
		fmt.Printf("  owner:          %s\n", e.Storage.Owner)
		fmt.Printf("  read_only:      %t\n", e.Storage.ReadOnly)
	}
	return nil
}

var fileinfoCmd = &cobra.Command{
	Use:   "fileinfo [path]",
	Short: "Show the storage backing a single virtual file",
	Args:  cobra.ExactArgs(1),
	RunE:  runFileinfo,
}

func runFileinfo(cmd *cobra.Command, args []string) error {
	fc, err := mountClient()
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout()
	defer cancel()

	result, err := fc.Fileinfo(ctx, args[0])
	if err != nil {
		return fmt.Errorf("fetching fileinfo for %s: %w", args[0], err)
	}

	if result.Storage == nil {
		fmt.Println("No storage backs this path")
		return nil
	}
	fmt.Printf("storage_id:     %s\n", result.Storage.ID)
	fmt.Printf("container_path: %s\n", result.Storage.ContainerPath)
	fmt.Printf("backend_id:     %s\n", result.Storage.BackendID)
	fmt.Printf("owner:          %s\n", result.Storage.Owner)
	fmt.Printf("read_only:      %t\n", result.Storage.ReadOnly)
	if result.Token != "" {
		fmt.Printf("token:          %s\n", result.Token)
	}
	return nil
}
