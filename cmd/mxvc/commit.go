package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systemshift/memex-vc/internal/client"
)

var (
	commitFile    string
	commitTitle   string
	commitMessage string
)

var commitCmd = &cobra.Command{
	Use:   "commit <perspective>",
	Short: "Record a new document version on a perspective",
	Args:  cobra.ExactArgs(1),
	RunE:  runCommit,
}

func init() {
	rootCmd.AddCommand(commitCmd)
	commitCmd.Flags().StringVar(&commitFile, "file", "", "Document JSON envelope file, - for stdin")
	commitCmd.Flags().StringVar(&commitTitle, "title", "", "Commit a title document with this text")
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "Commit message")
}

func runCommit(cmd *cobra.Command, args []string) error {
	doc, err := documentFrom(commitFile, commitTitle)
	if err != nil {
		return err
	}
	router := ws.backends.Router
	head, m, err := client.CommitDocument(cmd.Context(), router, args[0], doc, ws.identity.DID, commitMessage)
	if err != nil {
		return err
	}
	if err := router.Update(cmd.Context(), m); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), head)
	return nil
}
