package skills

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Probe bundles the environment lookups the eligibility filter needs so the
// filter itself stays pure and deterministic. The lookup functions must not
// mutate the environment.
type Probe struct {
	// Platform is the current platform id (darwin, linux, windows).
	Platform string

	// LookPath reports whether a binary resolves on PATH.
	LookPath func(name string) bool

	// LookupEnv returns an environment variable and whether it is set.
	LookupEnv func(name string) (string, bool)

	// Configs provides per-skill configuration overrides.
	Configs map[string]*Config

	// BundledAllow is the allowlist for bundled skills. Nil allows all.
	BundledAllow []string
}

// NewProbe creates a probe backed by the real host environment. PATH
// lookups are cached for the lifetime of the probe.
func NewProbe(configs map[string]*Config, bundledAllow []string) *Probe {
	pathCache := make(map[string]bool)
	return &Probe{
		Platform: runtime.GOOS,
		LookPath: func(name string) bool {
			if hit, ok := pathCache[name]; ok {
				return hit
			}
			_, err := exec.LookPath(name)
			pathCache[name] = err == nil
			return pathCache[name]
		},
		LookupEnv:    os.LookupEnv,
		Configs:      configs,
		BundledAllow: bundledAllow,
	}
}

// Eligibility is the result of an eligibility check.
type Eligibility struct {
	Eligible bool
	Reason   string
}

// CheckEligibility evaluates the skill against the probe. Checks run in a
// fixed order and the first failure short-circuits:
// always → disabled-by-config → bundled allowlist → os → bins → any_bins → env.
func CheckEligibility(s *Skill, probe *Probe) Eligibility {
	meta := s.Metadata

	if meta != nil && meta.Always {
		return Eligibility{Eligible: true, Reason: "always enabled"}
	}

	if !s.IsEnabled(probe.Configs) {
		return Eligibility{Reason: "disabled by config"}
	}

	if s.Source == SourceBundled && probe.BundledAllow != nil {
		allowed := false
		for _, name := range probe.BundledAllow {
			if name == s.Name {
				allowed = true
				break
			}
		}
		if !allowed {
			return Eligibility{Reason: "bundled skill not in allowlist"}
		}
	}

	if meta == nil || meta.Requires == nil {
		return Eligibility{Eligible: true}
	}
	req := meta.Requires

	if len(req.OS) > 0 {
		supported := false
		for _, id := range req.OS {
			if id == probe.Platform {
				supported = true
				break
			}
		}
		if !supported {
			return Eligibility{Reason: fmt.Sprintf("requires OS %v, have %s", req.OS, probe.Platform)}
		}
	}

	for _, bin := range req.Bins {
		if !probe.LookPath(bin) {
			return Eligibility{Reason: fmt.Sprintf("missing required binary: %s", bin)}
		}
	}

	if len(req.AnyBins) > 0 {
		found := false
		for _, bin := range req.AnyBins {
			if probe.LookPath(bin) {
				found = true
				break
			}
		}
		if !found {
			return Eligibility{Reason: fmt.Sprintf("requires one of: %s", strings.Join(req.AnyBins, ", "))}
		}
	}

	for _, name := range req.Env {
		if v, ok := probe.LookupEnv(name); !ok || v == "" {
			return Eligibility{Reason: fmt.Sprintf("missing environment variable: %s", name)}
		}
	}

	return Eligibility{Eligible: true}
}

// FilterEligible returns the skills that pass the eligibility check,
// preserving input order.
func FilterEligible(all []*Skill, probe *Probe) []*Skill {
	var eligible []*Skill
	for _, skill := range all {
		if CheckEligibility(skill, probe).Eligible {
			eligible = append(eligible, skill)
		}
	}
	return eligible
}

// IneligibleReasons maps skill names to the reason they were rejected.
func IneligibleReasons(all []*Skill, probe *Probe) map[string]string {
	reasons := make(map[string]string)
	for _, skill := range all {
		if result := CheckEligibility(skill, probe); !result.Eligible {
			reasons[skill.Name] = result.Reason
		}
	}
	return reasons
}
