package skills

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Root is a skill root directory with an assigned source.
type Root struct {
	Path   string
	Source Source
}

// Loader scans skill roots for */SKILL.md documents.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a loader.
func NewLoader() *Loader {
	return &Loader{
		logger: slog.Default().With("component", "skills"),
	}
}

// Load scans all roots in priority order (bundled < managed < workspace <
// plugin < extra; lexicographic by path within a root) and returns the
// merged skill set. On name collision the later root wins and a warning is
// recorded; load failures are recorded as errors and the skill is skipped.
func (l *Loader) Load(ctx context.Context, roots []Root) *LoadReport {
	report := &LoadReport{LoadedAt: time.Now()}

	ordered := make([]Root, len(roots))
	copy(ordered, roots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Source.Priority() < ordered[j].Source.Priority()
	})

	byName := make(map[string]int) // name -> index into report.Skills
	for _, root := range ordered {
		select {
		case <-ctx.Done():
			return report
		default:
		}

		for _, skill := range l.loadRoot(root, report) {
			if prev, ok := byName[skill.Name]; ok {
				warning := fmt.Sprintf("skill %q from %s overrides %s",
					skill.Name, skill.Path, report.Skills[prev].Path)
				report.Warnings = append(report.Warnings, warning)
				l.logger.Warn("skill override", "name", skill.Name,
					"winner", skill.Path, "loser", report.Skills[prev].Path)
				report.Skills[prev] = skill
				continue
			}
			byName[skill.Name] = len(report.Skills)
			report.Skills = append(report.Skills, skill)
		}
	}

	l.logger.Info("loaded skills",
		"count", len(report.Skills),
		"errors", len(report.Errors),
		"roots", len(ordered))
	return report
}

// loadRoot scans a single root for skill directories.
func (l *Loader) loadRoot(root Root, report *LoadReport) []*Skill {
	info, err := os.Stat(root.Path)
	if os.IsNotExist(err) {
		l.logger.Debug("skill root does not exist", "path", root.Path)
		return nil
	}
	if err != nil || !info.IsDir() {
		report.Errors = append(report.Errors, &LoaderError{
			Path:   root.Path,
			Reason: "not a readable directory",
		})
		return nil
	}

	entries, err := os.ReadDir(root.Path)
	if err != nil {
		report.Errors = append(report.Errors, &LoaderError{
			Path:   root.Path,
			Reason: fmt.Sprintf("read directory: %v", err),
		})
		return nil
	}

	// os.ReadDir returns entries sorted by name, which gives us the
	// lexicographic within-root ordering.
	var skills []*Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillPath := filepath.Join(root.Path, entry.Name())
		skillFile := filepath.Join(skillPath, SkillFilename)
		if _, err := os.Stat(skillFile); os.IsNotExist(err) {
			continue
		}

		skill, err := ParseSkillFile(skillFile)
		if err != nil {
			if le, ok := err.(*LoaderError); ok {
				report.Errors = append(report.Errors, le)
			} else {
				report.Errors = append(report.Errors, &LoaderError{Path: skillPath, Reason: err.Error()})
			}
			l.logger.Warn("failed to load skill", "path", skillPath, "error", err)
			continue
		}

		skill.Source = root.Source
		skills = append(skills, skill)
		l.logger.Debug("loaded skill", "name", skill.Name, "path", skillPath)
	}
	return skills
}
