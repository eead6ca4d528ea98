package config

import (
	"os"
	"path/filepath"
	"strings"
)

// contextFileNames are checked in order at each directory level; the first
// match per level wins.
var contextFileNames = []string{"AGENTS.md", "AGENT.md"}

// maxContextFileBytes caps how much of a single context file is loaded.
const maxContextFileBytes = 32 * 1024

// DiscoverContextFiles walks from dir up to the filesystem root collecting
// project context files. Results are ordered outermost first, so the
// nearest file lands last in the prompt and takes precedence.
func DiscoverContextFiles(dir string) []string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil
	}

	var paths []string
	for {
		for _, name := range contextFileNames {
			candidate := filepath.Join(abs, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				paths = append(paths, candidate)
				break
			}
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			break
		}
		abs = parent
	}

	// Reverse into outermost-first order.
	for i, j := 0, len(paths)-1; i < j; i, j = i+1, j-1 {
		paths[i], paths[j] = paths[j], paths[i]
	}
	return paths
}

// LoadContextFiles reads the discovered files and joins them into a prompt
// fragment. Unreadable files are skipped.
func LoadContextFiles(dir string) string {
	var sections []string
	for _, path := range DiscoverContextFiles(dir) {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if len(data) > maxContextFileBytes {
			data = data[:maxContextFileBytes]
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}
		sections = append(sections, "## Project context from "+path+"\n\n"+text)
	}
	return strings.Join(sections, "\n\n")
}
