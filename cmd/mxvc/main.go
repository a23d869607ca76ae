// Command mxvc creates, commits, merges and forks perspectives across the
// configured remotes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
)

func main() {
	// glog writes to files by default; the CLI logs to stderr unless told
	// otherwise with --logtostderr=false.
	flag.Set("logtostderr", "true")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	closeWorkspace()
	glog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, "mxvc:", err)
		os.Exit(1)
	}
}
