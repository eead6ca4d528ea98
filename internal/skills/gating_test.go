package skills

import (
	"strings"
	"testing"
)

func testProbe() *Probe {
	return &Probe{
		Platform: "linux",
		LookPath: func(name string) bool {
			return name == "sh" || name == "git"
		},
		LookupEnv: func(name string) (string, bool) {
			if name == "PRESENT" {
				return "yes", true
			}
			if name == "EMPTY" {
				return "", true
			}
			return "", false
		},
	}
}

func TestCheckEligibility(t *testing.T) {
	cases := []struct {
		name     string
		skill    *Skill
		eligible bool
		reason   string
	}{
		{
			name:     "no requirements",
			skill:    &Skill{Name: "plain"},
			eligible: true,
		},
		{
			name: "always bypasses gating",
			skill: &Skill{Name: "forced", Metadata: &Metadata{
				Always:   true,
				Requires: &Requires{Bins: []string{"definitely-missing"}},
			}},
			eligible: true,
		},
		{
			name: "missing binary",
			skill: &Skill{Name: "needs-bin", Metadata: &Metadata{
				Requires: &Requires{Bins: []string{"git", "terraform"}},
			}},
			reason: "terraform",
		},
		{
			name: "any_bins satisfied",
			skill: &Skill{Name: "any-ok", Metadata: &Metadata{
				Requires: &Requires{AnyBins: []string{"terraform", "git"}},
			}},
			eligible: true,
		},
		{
			name: "any_bins all missing",
			skill: &Skill{Name: "any-bad", Metadata: &Metadata{
				Requires: &Requires{AnyBins: []string{"terraform", "pulumi"}},
			}},
			reason: "one of",
		},
		{
			name: "env present",
			skill: &Skill{Name: "env-ok", Metadata: &Metadata{
				Requires: &Requires{Env: []string{"PRESENT"}},
			}},
			eligible: true,
		},
		{
			name: "env empty counts as missing",
			skill: &Skill{Name: "env-empty", Metadata: &Metadata{
				Requires: &Requires{Env: []string{"EMPTY"}},
			}},
			reason: "EMPTY",
		},
		{
			name: "wrong os",
			skill: &Skill{Name: "mac-only", Metadata: &Metadata{
				Requires: &Requires{OS: []string{"darwin"}},
			}},
			reason: "darwin",
		},
	}

	probe := testProbe()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := CheckEligibility(tc.skill, probe)
			if result.Eligible != tc.eligible {
				t.Fatalf("eligible = %v, want %v (reason: %s)", result.Eligible, tc.eligible, result.Reason)
			}
			if tc.reason != "" && !strings.Contains(result.Reason, tc.reason) {
				t.Errorf("reason %q does not mention %q", result.Reason, tc.reason)
			}
		})
	}
}

func TestCheckEligibilityConfigDisabled(t *testing.T) {
	probe := testProbe()
	disabled := false
	probe.Configs = map[string]*Config{"off": {Enabled: &disabled}}

	result := CheckEligibility(&Skill{Name: "off"}, probe)
	if result.Eligible {
		t.Fatal("expected disabled skill to be ineligible")
	}
	if !strings.Contains(result.Reason, "disabled") {
		t.Errorf("unexpected reason: %q", result.Reason)
	}
}

func TestCheckEligibilityBundledAllowlist(t *testing.T) {
	probe := testProbe()
	probe.BundledAllow = []string{"keeper"}

	if r := CheckEligibility(&Skill{Name: "keeper", Source: SourceBundled}, probe); !r.Eligible {
		t.Errorf("allowlisted bundled skill rejected: %s", r.Reason)
	}
	if r := CheckEligibility(&Skill{Name: "other", Source: SourceBundled}, probe); r.Eligible {
		t.Error("non-allowlisted bundled skill accepted")
	}
	// Allowlist only binds bundled skills.
	if r := CheckEligibility(&Skill{Name: "other", Source: SourceWorkspace}, probe); !r.Eligible {
		t.Errorf("workspace skill rejected by bundled allowlist: %s", r.Reason)
	}
}

func TestFilterEligibleDeterministic(t *testing.T) {
	probe := testProbe()
	all := []*Skill{
		{Name: "c"},
		{Name: "a", Metadata: &Metadata{Requires: &Requires{Bins: []string{"missing"}}}},
		{Name: "b"},
	}

	first := FilterEligible(all, probe)
	second := FilterEligible(all, probe)
	if len(first) != 2 || first[0].Name != "c" || first[1].Name != "b" {
		t.Fatalf("unexpected filter result: %v", first)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("filter output differs across identical runs")
		}
	}

	reasons := IneligibleReasons(all, probe)
	if len(reasons) != 1 || reasons["a"] == "" {
		t.Errorf("unexpected reasons: %v", reasons)
	}
}
