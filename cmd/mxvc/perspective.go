package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systemshift/memex-vc/internal/client"
)

var (
	createRemote  string
	createContext string
	createPath    string
	createParent  string
	createFile    string
	createTitle   string
	createMessage string
)

var perspectiveCmd = &cobra.Command{
	Use:   "perspective",
	Short: "Create and list perspectives",
}

var perspectiveCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a perspective with an initial commit",
	Args:  cobra.NoArgs,
	RunE:  runPerspectiveCreate,
}

var perspectiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List perspectives with a head on any remote",
	Args:  cobra.NoArgs,
	RunE:  runPerspectiveList,
}

func init() {
	rootCmd.AddCommand(perspectiveCmd)
	perspectiveCmd.AddCommand(perspectiveCreateCmd)
	perspectiveCmd.AddCommand(perspectiveListCmd)

	f := perspectiveCreateCmd.Flags()
	f.StringVar(&createRemote, "remote", "", "Remote that owns the perspective (default from config)")
	f.StringVar(&createContext, "context", "", "Logical document id shared by all versions of this document")
	f.StringVar(&createPath, "path", "", "Display path")
	f.StringVar(&createParent, "parent", "", "Perspective this one is nested under")
	f.StringVar(&createFile, "file", "", "Document JSON envelope file, - for stdin")
	f.StringVar(&createTitle, "title", "", "Create a title document with this text")
	f.StringVarP(&createMessage, "message", "m", "", "Commit message")
	perspectiveCreateCmd.MarkFlagRequired("context")
}

func runPerspectiveCreate(cmd *cobra.Command, _ []string) error {
	doc, err := documentFrom(createFile, createTitle)
	if err != nil {
		return err
	}
	remote := createRemote
	if remote == "" {
		remote = ws.cfg.DefaultRemote
	}
	router := ws.backends.Router
	sp, m, err := client.CreatePerspective(cmd.Context(), router, client.NewPerspective{
		Remote:   remote,
		Path:     createPath,
		Context:  createContext,
		Creator:  ws.identity.DID,
		Message:  createMessage,
		ParentID: createParent,
		Document: doc,
	})
	if err != nil {
		return err
	}
	if err := router.Update(cmd.Context(), m); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), sp.ID)
	return nil
}

func runPerspectiveList(cmd *cobra.Command, _ []string) error {
	ids, err := ws.backends.Perspectives(cmd.Context())
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}
