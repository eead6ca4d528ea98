package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeSkill(t *testing.T, root, dir, front, body string) {
	t.Helper()
	skillDir := filepath.Join(root, dir)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	doc := "---\n" + front + "\n---\n" + body
	if err := os.WriteFile(filepath.Join(skillDir, SkillFilename), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoaderLoad(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "bravo", "name: bravo\ndescription: second", "bravo body")
	writeSkill(t, root, "alpha", "name: alpha\ndescription: first", "alpha body")
	writeSkill(t, root, "broken", "name: BROKEN NAME\ndescription: bad", "")

	// Directories without SKILL.md and plain files are ignored.
	if err := os.MkdirAll(filepath.Join(root, "not-a-skill"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	report := NewLoader().Load(context.Background(), []Root{{Path: root, Source: SourceWorkspace}})
	if len(report.Skills) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(report.Skills))
	}
	// os.ReadDir ordering gives lexicographic within-root order.
	if report.Skills[0].Name != "alpha" || report.Skills[1].Name != "bravo" {
		t.Errorf("unexpected order: %s, %s", report.Skills[0].Name, report.Skills[1].Name)
	}
	if report.Skills[0].Source != SourceWorkspace {
		t.Errorf("unexpected source: %s", report.Skills[0].Source)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("expected 1 load error, got %d", len(report.Errors))
	}
}

func TestLoaderCollisionLaterRootWins(t *testing.T) {
	managed := t.TempDir()
	workspace := t.TempDir()
	writeSkill(t, managed, "dup", "name: dup\ndescription: managed copy", "managed")
	writeSkill(t, workspace, "dup", "name: dup\ndescription: workspace copy", "workspace")

	// Roots passed out of priority order; the loader re-sorts them.
	roots := []Root{
		{Path: workspace, Source: SourceWorkspace},
		{Path: managed, Source: SourceManaged},
	}
	report := NewLoader().Load(context.Background(), roots)

	if len(report.Skills) != 1 {
		t.Fatalf("expected 1 skill after collision, got %d", len(report.Skills))
	}
	if report.Skills[0].Description != "workspace copy" {
		t.Errorf("expected workspace root to win, got %q", report.Skills[0].Description)
	}
	if len(report.Warnings) != 1 {
		t.Errorf("expected override warning, got %v", report.Warnings)
	}
}

func TestLoaderMissingRoot(t *testing.T) {
	report := NewLoader().Load(context.Background(), []Root{
		{Path: filepath.Join(t.TempDir(), "does-not-exist"), Source: SourceExtra},
	})
	if len(report.Skills) != 0 || len(report.Errors) != 0 {
		t.Error("missing root should be silently skipped")
	}
}
