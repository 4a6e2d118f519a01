package main

import (
	"fmt"

	"codecollab/backend/internal/models"
	"codecollab/backend/internal/storage"

	"github.com/spf13/cobra"
)

func newSnippetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snippet",
		Short: "Share and inspect snippets in the configured database",
	}
	cmd.AddCommand(newSnippetShareCmd(a), newSnippetShowCmd(a))
	return cmd
}

func (a *app) openStorage() (*storage.Service, error) {
	db, err := storage.Open(a.cfg.DatabaseDriver, a.cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	return storage.NewStorageService(db), nil
}

func newSnippetShareCmd(a *app) *cobra.Command {
	var lang, title string
	cmd := &cobra.Command{
		Use:   "share <file|->",
		Short: "Store a source file and print its share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, language, err := readSource(cmd, args[0], lang)
			if err != nil {
				return err
			}
			store, err := a.openStorage()
			if err != nil {
				return err
			}
			defer store.Close()

			snippet := &models.SharedSnippet{Code: code, Language: language, Title: title}
			if err := store.SaveSnippet(cmd.Context(), snippet); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s/share/%s\n", snippet.ID, a.cfg.PublicBaseURL, snippet.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "language (inferred from the file extension when omitted)")
	cmd.Flags().StringVarP(&title, "title", "t", "", "snippet title")
	return cmd
}

func newSnippetShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a shared snippet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage()
			if err != nil {
				return err
			}
			defer store.Close()

			snippet, err := store.GetSnippet(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "# %s (%s, %s)\n", snippet.Title, snippet.Language, snippet.CreatedAt.Format("2006-01-02 15:04"))
			_, _ = fmt.Fprintln(out, snippet.Code)
			return nil
		},
	}
}
