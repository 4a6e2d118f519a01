// Package workspace allocates an isolated directory per execution request,
// names the source file the way each toolchain expects, and removes the
// source plus every compiled artifact on release.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"

	"codecollab/backend/internal/config"
	"codecollab/backend/internal/models"

	"go.uber.org/zap"
)

var publicClassRe = regexp.MustCompile(`\bpublic\s+(?:(?:final|abstract|sealed|strictfp)\s+)*class\s+([A-Za-z_$][A-Za-z0-9_$]*)`)

var extensions = map[models.Language]string{
	models.LanguageJavaScript: ".js",
	models.LanguagePython:     ".py",
	models.LanguageJava:       ".java",
	models.LanguageC:          ".c",
	models.LanguageCPP:        ".cpp",
}

// Manager hands out workspaces under a base directory.
type Manager struct {
	baseDir string
	seq     atomic.Uint64
	logger  *zap.Logger
}

// NewManager creates a Manager rooted at baseDir (os.TempDir when empty).
func NewManager(baseDir string, logger *zap.Logger) (*Manager, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "codecollab")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace base dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{baseDir: baseDir, logger: logger}, nil
}

// BaseDir returns the directory that holds every workspace.
func (m *Manager) BaseDir() string { return m.baseDir }

// Workspace is one allocated execution sandbox directory.
type Workspace struct {
	// Dir holds the source and every artifact the toolchain produces.
	Dir string
	// Path is the absolute path of the source file.
	Path string
	// DisplayName is the source file's base name.
	DisplayName string
	// EntryName is the fixed entry point some toolchains need (Java class
	// name); empty otherwise.
	EntryName string
	// Stem is the source base name without extension; compiled binaries
	// are named after it.
	Stem string

	logger *zap.Logger
	once   sync.Once
}

// Allocate writes code to a freshly created directory and returns its handle.
// The caller must call Release on every exit path.
func (m *Manager) Allocate(code string, lang models.Language) (*Workspace, error) {
	ext, ok := extensions[lang]
	if !ok {
		return nil, fmt.Errorf("no workspace layout for language %q", lang)
	}

	dir, err := os.MkdirTemp(m.baseDir, config.WorkspaceDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}

	ws := &Workspace{Dir: dir, logger: m.logger}
	if lang == models.LanguageJava {
		ws.EntryName = JavaEntryName(code)
		ws.Stem = ws.EntryName
	} else {
		ws.Stem = config.WorkspaceSourcePrefix + strconv.FormatUint(m.seq.Add(1), 10)
	}
	ws.DisplayName = ws.Stem + ext
	ws.Path = filepath.Join(dir, ws.DisplayName)

	if err := os.WriteFile(ws.Path, []byte(code), 0o644); err != nil {
		ws.Release()
		return nil, fmt.Errorf("write source file: %w", err)
	}

	m.logger.Debug("workspace allocated",
		zap.String("dir", dir),
		zap.String("file", ws.DisplayName),
		zap.String("language", lang.String()))
	return ws, nil
}

// Release removes the source file, toolchain artifacts and the directory.
// Removal failures are logged and swallowed. Safe to call more than once.
func (w *Workspace) Release() {
	w.once.Do(func() {
		w.remove(w.Path)

		for _, artifact := range w.artifacts() {
			w.remove(artifact)
		}

		if err := os.RemoveAll(w.Dir); err != nil {
			w.logger.Warn("workspace cleanup failed", zap.String("path", w.Dir), zap.Error(err))
		}
	})
}

// artifacts lists everything a toolchain may have left next to the source.
func (w *Workspace) artifacts() []string {
	paths := []string{
		filepath.Join(w.Dir, w.Stem),
		filepath.Join(w.Dir, w.Stem+".exe"),
		filepath.Join(w.Dir, "__pycache__"),
	}
	classes, err := filepath.Glob(filepath.Join(w.Dir, "*.class"))
	if err != nil {
		w.logger.Warn("workspace artifact scan failed", zap.String("dir", w.Dir), zap.Error(err))
	}
	return append(paths, classes...)
}

func (w *Workspace) remove(path string) {
	err := os.RemoveAll(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.logger.Warn("workspace cleanup failed", zap.String("path", path), zap.Error(err))
	}
}

// JavaEntryName returns the first public class declared in src, or the
// fallback class name. The scan is textual and ignores comments and strings.
func JavaEntryName(src string) string {
	if m := publicClassRe.FindStringSubmatch(src); m != nil {
		return m[1]
	}
	return config.DefaultJavaEntryClass
}
