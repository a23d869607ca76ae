package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systemshift/memex-vc/internal/ancestry"
	"github.com/systemshift/memex-vc/internal/client"
	"github.com/systemshift/memex-vc/internal/merge"
	"github.com/systemshift/memex-vc/internal/model"
)

var (
	mergeStrategy        string
	mergeOwnerPreserving bool
	mergeTargetRemote    string
	mergeOwner           string
	mergeMessage         string
	mergeDryRun          bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge <to> <from>",
	Short: "Merge perspective <from> into <to>",
	Long: `Merge perspective <from> into <to>. The recursive strategy also merges
every nested perspective, pairing them by context. With --owner-preserving,
newly linked perspectives owned elsewhere are forked onto the target remote
first.`,
	Args: cobra.ExactArgs(2),
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	f := mergeCmd.Flags()
	f.StringVar(&mergeStrategy, "strategy", "recursive", "Merge strategy (recursive, simple)")
	f.BoolVar(&mergeOwnerPreserving, "owner-preserving", false, "Fork foreign children onto the target remote")
	f.StringVar(&mergeTargetRemote, "target-remote", "", "Remote forks land on (default: the remote of <to>)")
	f.StringVar(&mergeOwner, "owner", "", "Owner of forks (default from config or identity)")
	f.StringVarP(&mergeMessage, "message", "m", "", "Merge commit message")
	f.BoolVar(&mergeDryRun, "dry-run", false, "Print the mutation instead of applying it")
}

func runMerge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	to, from := args[0], args[1]
	stage := client.NewStaging(ws.backends.Router)
	finder, err := ancestry.NewFinder(stage, ancestry.DefaultCacheSize)
	if err != nil {
		return err
	}
	opts := merge.Options{Creator: ws.identity.DID, Message: mergeMessage}

	var strategy merge.Strategy
	switch mergeStrategy {
	case "simple":
		if mergeOwnerPreserving {
			return &model.InvalidConfigError{Reason: "--owner-preserving needs the recursive strategy"}
		}
		strategy = merge.NewSimple(stage, finder, opts)
	case "recursive":
		rec := merge.NewRecursive(stage, finder, opts)
		strategy = rec
		if mergeOwnerPreserving {
			target := merge.Target{Remote: mergeTargetRemote, Owner: mergeOwner}
			if target.Remote == "" {
				if target.Remote, err = stage.RemoteOf(ctx, to); err != nil {
					return err
				}
			}
			if target.Owner == "" {
				target.Owner = ws.owner()
			}
			strategy = merge.NewOwnerPreserving(rec, target)
		}
	default:
		return &model.InvalidConfigError{Reason: fmt.Sprintf("unknown strategy %q", mergeStrategy)}
	}

	m, err := strategy.MergePerspectives(ctx, to, from)
	if err != nil {
		return err
	}
	if err := stage.Update(ctx, m); err != nil {
		return err
	}
	if mergeDryRun {
		defer stage.Discard()
		return printJSON(cmd.OutOrStdout(), stage.Staged())
	}
	if err := stage.Flush(ctx); err != nil {
		return err
	}
	if !m.HasChanges() {
		fmt.Fprintln(cmd.OutOrStdout(), "already up to date")
		return nil
	}
	for _, np := range m.NewPerspectives {
		fmt.Fprintf(cmd.OutOrStdout(), "forked %s -> %s\n", np.Perspective.Object.FromPerspectiveID, np.Perspective.ID)
	}
	for _, up := range m.Updates {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n", up.PerspectiveID, up.OldHeadID, up.NewHeadID)
	}
	return nil
}
