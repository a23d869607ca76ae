package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systemshift/memex-vc/internal/client"
	"github.com/systemshift/memex-vc/internal/fork"
)

var (
	forkRemote string
	forkOwner  string
	forkParent string
)

var forkCmd = &cobra.Command{
	Use:   "fork <perspective>",
	Short: "Copy a perspective and everything it links to onto a remote",
	Args:  cobra.ExactArgs(1),
	RunE:  runFork,
}

func init() {
	rootCmd.AddCommand(forkCmd)
	forkCmd.Flags().StringVar(&forkRemote, "remote", "", "Remote to fork onto (default from config)")
	forkCmd.Flags().StringVar(&forkOwner, "owner", "", "Owner of the forks (default from config or identity)")
	forkCmd.Flags().StringVar(&forkParent, "parent", "", "Perspective the fork is nested under")
}

func runFork(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	remote := forkRemote
	if remote == "" {
		remote = ws.cfg.DefaultRemote
	}
	owner := forkOwner
	if owner == "" {
		owner = ws.owner()
	}
	stage := client.NewStaging(ws.backends.Router)
	e := fork.New(stage, fork.Config{Owner: owner})
	id, err := e.Fork(ctx, args[0], remote, forkParent)
	if err != nil {
		return err
	}
	if err := stage.Update(ctx, e.Mutation()); err != nil {
		return err
	}
	if err := stage.Flush(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}
