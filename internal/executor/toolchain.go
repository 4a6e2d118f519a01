package executor

import (
	"path/filepath"

	"codecollab/backend/internal/models"
	"codecollab/backend/internal/workspace"
)

// Step is one process in a toolchain pipeline.
type Step struct {
	Binary string
	Args   []string
	Env    []string
}

// Toolchain maps a workspace to the commands that run or check it.
type Toolchain struct {
	Language models.Language
	Run      func(ws *workspace.Workspace) []Step
	// Analyze is nil for languages without a syntax-check mode.
	Analyze func(ws *workspace.Workspace) []Step
}

// pythonSyntaxCheck parses without executing and reports the first error as
// "file:line: kind: message".
const pythonSyntaxCheck = `import ast, os, sys
path = sys.argv[1]
name = os.path.basename(path)
try:
    ast.parse(open(path, encoding="utf-8").read(), name)
except SyntaxError as err:
    sys.stderr.write("%s:%s: %s: %s\n" % (name, err.lineno, type(err).__name__, err.msg))
    sys.exit(1)
`

// Toolchains builds the dispatch table for the given OS family.
func Toolchains(goos string) map[models.Language]Toolchain {
	python := "python3"
	exe := ""
	if goos == "windows" {
		python = "python"
		exe = ".exe"
	}
	binary := func(ws *workspace.Workspace) string {
		return filepath.Join(ws.Dir, ws.Stem+exe)
	}
	native := func(compiler string) func(ws *workspace.Workspace) []Step {
		return func(ws *workspace.Workspace) []Step {
			return []Step{
				{Binary: compiler, Args: []string{ws.Path, "-o", binary(ws)}},
				{Binary: binary(ws)},
			}
		}
	}

	return map[models.Language]Toolchain{
		models.LanguageJavaScript: {
			Language: models.LanguageJavaScript,
			Run: func(ws *workspace.Workspace) []Step {
				return []Step{{Binary: "node", Args: []string{ws.Path}}}
			},
			Analyze: func(ws *workspace.Workspace) []Step {
				return []Step{{Binary: "node", Args: []string{"--check", ws.Path}}}
			},
		},
		models.LanguagePython: {
			Language: models.LanguagePython,
			Run: func(ws *workspace.Workspace) []Step {
				return []Step{{
					Binary: python,
					Args:   []string{ws.Path},
					Env:    []string{"PYTHONDONTWRITEBYTECODE=1", "PYTHONUNBUFFERED=1"},
				}}
			},
			Analyze: func(ws *workspace.Workspace) []Step {
				return []Step{{
					Binary: python,
					Args:   []string{"-c", pythonSyntaxCheck, ws.Path},
					Env:    []string{"PYTHONDONTWRITEBYTECODE=1"},
				}}
			},
		},
		models.LanguageJava: {
			Language: models.LanguageJava,
			Run: func(ws *workspace.Workspace) []Step {
				return []Step{
					{Binary: "javac", Args: []string{ws.DisplayName}},
					{Binary: "java", Args: []string{"-cp", ws.Dir, ws.EntryName}},
				}
			},
		},
		models.LanguageC: {
			Language: models.LanguageC,
			Run:      native("gcc"),
		},
		models.LanguageCPP: {
			Language: models.LanguageCPP,
			Run:      native("g++"),
		},
	}
}
