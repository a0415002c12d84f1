package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wildland/wildland-go/pkg/config"
	"github.com/wildland/wildland-go/pkg/fsclient"
	"github.com/wildland/wildland-go/pkg/syncclient"
)

const requestTimeout = 30 * time.Second

// mountClient loads configuration and dials the wildlandfs control
// socket it names.
func mountClient() (*fsclient.Client, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, err
	}
	return fsclient.New(cfg.ControlSocketPath), nil
}

// syncClient loads configuration and dials the wlsyncd control socket
// it names.
func syncClient() (*syncclient.Client, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, err
	}
	return syncclient.New(cfg.SyncSocketPath), nil
}

// withTimeout returns a context bounded by requestTimeout, for a
// single control-socket round trip.
func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// readManifest reads a signed manifest file from disk as-is: mount and
// sync requests carry manifests as opaque signed bytes, since wlctl
// never decodes or re-signs them itself.
func readManifest(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	return data, nil
}
