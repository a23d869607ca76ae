package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/systemshift/memex-vc/internal/client"
	"github.com/systemshift/memex-vc/internal/model"
)

var logLimit int

var showCmd = &cobra.Command{
	Use:   "show <perspective>",
	Short: "Show a perspective header, head and document",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var logCmd = &cobra.Command{
	Use:   "log <perspective>",
	Short: "Show first-parent history from the head",
	Args:  cobra.ExactArgs(1),
	RunE:  runLog,
}

var reflogCmd = &cobra.Command{
	Use:   "reflog <perspective>",
	Short: "Show every recorded head move, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runReflog,
}

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(reflogCmd)
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 10, "Maximum number of commits to show")
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	router := ws.backends.Router
	p, err := client.GetPerspectiveHeader(ctx, router, args[0])
	if err != nil {
		return err
	}
	details, err := router.GetPerspective(ctx, args[0])
	if err != nil {
		return err
	}
	out := struct {
		ID          string             `json:"id"`
		Perspective *model.Perspective `json:"perspective"`
		Head        string             `json:"head,omitempty"`
		Type        model.Type         `json:"type,omitempty"`
		Document    model.Document     `json:"document,omitempty"`
	}{ID: args[0], Perspective: p, Head: details.HeadID}
	if details.HeadID != "" {
		doc, _, err := client.GetHeadDocument(ctx, router, args[0])
		if err != nil {
			return err
		}
		out.Document, out.Type = doc, doc.EntityType()
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func runLog(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	head, err := client.GetHead(ctx, ws.backends.Router, args[0])
	if err != nil {
		return err
	}
	finder, err := ws.finder()
	if err != nil {
		return err
	}
	entries, err := finder.Log(ctx, head, logLimit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, e := range entries {
		c := e.Commit
		fmt.Fprintf(w, "%s\t%s\t%s\t%d parents\t%s\n",
			e.ID,
			time.UnixMilli(c.Timestamp).UTC().Format(time.RFC3339),
			strings.Join(c.CreatorsIDs, ","),
			len(c.ParentsIDs),
			c.Message,
		)
	}
	return w.Flush()
}

func runReflog(cmd *cobra.Command, args []string) error {
	entries, err := ws.backends.Reflog(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s -> %s\t%s\n",
			e.Timestamp.Format(time.RFC3339), e.Action, orNone(e.OldHead), orNone(e.NewHead), e.From)
	}
	return w.Flush()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
