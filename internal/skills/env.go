package skills

import (
	"fmt"
	"os"
	"strings"
)

// SubprocessEnv composes the environment for a skill's subprocesses:
// the base environment, overlaid with the per-skill config env, overlaid
// with the primary credential variable when the config carries an API key.
// base is in os.Environ form; nil means the host environment.
func SubprocessEnv(s *Skill, cfg *Config, base []string) []string {
	if base == nil {
		base = os.Environ()
	}

	overlay := make(map[string]string)
	if cfg != nil {
		for k, v := range cfg.Env {
			overlay[k] = v
		}
		if primary := s.PrimaryEnv(); primary != "" && cfg.APIKey != "" {
			overlay[primary] = cfg.APIKey
		}
	}
	if len(overlay) == 0 {
		return base
	}

	out := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		name, _, ok := strings.Cut(kv, "=")
		if ok {
			if _, shadowed := overlay[name]; shadowed {
				continue
			}
		}
		out = append(out, kv)
	}
	for k, v := range overlay {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

// InjectEnv applies the skill's config env to the process environment and
// returns a restore function that puts every touched variable back to its
// previous state. Callers must invoke restore when the invocation ends.
func InjectEnv(s *Skill, cfg *Config) (restore func()) {
	type prior struct {
		value string
		set   bool
	}

	overlay := make(map[string]string)
	if cfg != nil {
		for k, v := range cfg.Env {
			overlay[k] = v
		}
		if primary := s.PrimaryEnv(); primary != "" && cfg.APIKey != "" {
			overlay[primary] = cfg.APIKey
		}
	}

	saved := make(map[string]prior, len(overlay))
	for k, v := range overlay {
		old, ok := os.LookupEnv(k)
		saved[k] = prior{value: old, set: ok}
		os.Setenv(k, v)
	}

	return func() {
		for k, p := range saved {
			if p.set {
				os.Setenv(k, p.value)
			} else {
				os.Unsetenv(k)
			}
		}
	}
}
