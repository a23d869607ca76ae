package main

import (
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	memexfuse "github.com/systemshift/memex-vc/internal/fuse"
)

var mountDebug bool

var mountCmd = &cobra.Command{
	Use:   "mount <mountpoint>",
	Short: "Mount a read-only view of all perspectives",
	Args:  cobra.ExactArgs(1),
	RunE:  runMount,
}

func init() {
	rootCmd.AddCommand(mountCmd)
	mountCmd.Flags().BoolVar(&mountDebug, "debug", false, "Log every FUSE request")
}

func runMount(cmd *cobra.Command, args []string) error {
	mountpoint := args[0]
	if err := os.MkdirAll(mountpoint, 0755); err != nil {
		return fmt.Errorf("create mountpoint: %w", err)
	}
	finder, err := ws.finder()
	if err != nil {
		return err
	}
	server, err := memexfuse.MountFS(mountpoint, &memexfuse.View{
		Client: ws.backends.Router,
		Finder: finder,
		List:   ws.backends,
	}, mountDebug)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}

	go func() {
		<-cmd.Context().Done()
		glog.Info("mxvc: shutting down...")
		server.Unmount()
	}()

	glog.Infof("mxvc: mounted at %s (pid %d)", mountpoint, os.Getpid())
	server.Wait()
	glog.Info("mxvc: stopped")
	return nil
}
