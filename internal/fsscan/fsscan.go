// Package fsscan implements the filesystem scan the agentic loop runs at
// each Planning boundary to rebuild IterationContext.ExistingFiles.
package fsscan

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cliengineer/cliengineer/internal/domain"
)

// Scan walks dir and returns a map keyed by path relative to dir,
// describing every regular file found. Hidden directories (leading dot)
// and the artifact manifest itself are skipped.
func Scan(dir string) (map[string]domain.ExistingFile, error) {
	out := make(map[string]domain.ExistingFile)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if info.Name() != "." && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Name() == "manifest.json" {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		out[rel] = domain.ExistingFile{
			Path:  rel,
			Size:  info.Size(),
			MTime: info.ModTime(),
			Type:  typeFor(rel),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// typeFor maps a file extension to a coarse type label included with
// each existing file's size in the planner's prompt.
func typeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go", ".rs", ".py", ".js", ".ts", ".java", ".c", ".cpp", ".rb":
		return "SourceCode"
	case ".md":
		return "Documentation"
	case ".toml", ".json", ".yaml", ".yml":
		return "Configuration"
	case ".sh":
		return "Script"
	default:
		return "Other"
	}
}
