package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wildland/wildland-go/pkg/fsclient"
)

var (
	mountStorageManifest string
	mountSigner          string
	mountPaths           []string
)

var mountCmd = &cobra.Command{
	Use:   "mount [container-manifest]",
	Short: "Mount a container through the mount daemon",
	Long: `Mount asks wildlandfs to register a container's storage under its
virtual paths, returning the assigned storage id.

Example:
  wlctl mount ./container.yaml --storage ./storage.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runMount,
}

func init() {
	mountCmd.Flags().StringVar(&mountStorageManifest, "storage", "", "path to an explicit storage manifest (default: resolved from the container)")
	mountCmd.Flags().StringVar(&mountSigner, "signer", "", "signer public key expected to own the manifests")
	mountCmd.Flags().StringSliceVar(&mountPaths, "path", nil, "restrict the mount to these virtual paths (default: every path in the container manifest)")
}

func runMount(cmd *cobra.Command, args []string) error {
	containerManifest, err := readManifest(args[0])
	if err != nil {
		return err
	}
	storageManifest, err := readManifest(mountStorageManifest)
	if err != nil {
		return err
	}

	fc, err := mountClient()
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout()
	defer cancel()

	storageID, err := fc.Mount(ctx, fsclient.MountRequest{
		ContainerManifest: containerManifest,
		StorageManifest:   storageManifest,
		Signer:            mountSigner,
		Paths:             mountPaths,
	})
	if err != nil {
		return fmt.Errorf("mounting: %w", err)
	}

	fmt.Printf("Mounted as storage %s\n", storageID)
	return nil
}

var unmountCmd = &cobra.Command{
	Use:   "unmount [storage-id]",
	Short: "Unmount a storage from the mount daemon",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnmount,
}

func runUnmount(cmd *cobra.Command, args []string) error {
	fc, err := mountClient()
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout()
	defer cancel()

	if err := fc.Unmount(ctx, args[0]); err != nil {
		return fmt.Errorf("unmounting %s: %w", args[0], err)
	}

	fmt.Printf("Unmounted %s\n", args[0])
	return nil
}
