package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"codecollab/backend/internal/models"

	"github.com/spf13/cobra"
)

// errProgramFailed makes the process exit non-zero without repeating the
// diagnostic, which has already been printed.
var errProgramFailed = errors.New("program failed")

var extensionLanguages = map[string]models.Language{
	".js":   models.LanguageJavaScript,
	".mjs":  models.LanguageJavaScript,
	".py":   models.LanguagePython,
	".java": models.LanguageJava,
	".c":    models.LanguageC,
	".cpp":  models.LanguageCPP,
	".cc":   models.LanguageCPP,
	".cxx":  models.LanguageCPP,
}

func languageFromPath(path string) (models.Language, bool) {
	lang, ok := extensionLanguages[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// readSource reads path, or stdin for "-", and settles the language.
func readSource(cmd *cobra.Command, path, langFlag string) (string, string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", "", fmt.Errorf("read source: %w", err)
	}

	if langFlag != "" {
		return string(data), langFlag, nil
	}
	lang, ok := languageFromPath(path)
	if !ok {
		return "", "", fmt.Errorf("cannot infer language of %q; pass --lang", path)
	}
	return string(data), lang.String(), nil
}

func newRunCmd(a *app) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "run <file|->",
		Short: "Compile and run a source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, language, err := readSource(cmd, args[0], lang)
			if err != nil {
				return err
			}
			res, err := a.exec.Execute(cmd.Context(), code, language)
			if err != nil {
				return err
			}
			return printResult(cmd, res)
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "language (inferred from the file extension when omitted)")
	return cmd
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "analyze <file|->",
		Short: "Syntax-check a JavaScript or Python file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, language, err := readSource(cmd, args[0], lang)
			if err != nil {
				return err
			}
			res, err := a.exec.Analyze(cmd.Context(), code, language)
			if err != nil {
				return err
			}
			return printResult(cmd, res)
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "language (inferred from the file extension when omitted)")
	return cmd
}

func printResult(cmd *cobra.Command, res *models.ExecutionResult) error {
	if res.Succeeded {
		_, _ = fmt.Fprint(cmd.OutOrStdout(), res.Output)
		if !strings.HasSuffix(res.Output, "\n") {
			_, _ = fmt.Fprintln(cmd.OutOrStdout())
		}
		return nil
	}
	_, _ = fmt.Fprintln(cmd.ErrOrStderr(), strings.TrimRight(res.Output, "\n"))
	cmd.SilenceErrors = true
	return errProgramFailed
}

func newLanguagesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported languages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			run, analyze := a.exec.Languages()
			canAnalyze := make(map[models.Language]bool, len(analyze))
			for _, l := range analyze {
				canAnalyze[l] = true
			}
			for _, l := range run {
				suffix := ""
				if canAnalyze[l] {
					suffix = " (analyze)"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", l, suffix)
			}
			return nil
		},
	}
}
