package engine

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// ResolveEnv merges environment scopes into the effective environment
// of a step. Later layers win on key collision; the expected order is
// base (process), workflow, job (reserved, may be nil), step. The
// result is a fresh map so concurrent steps never share state.
func ResolveEnv(layers ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}

// BaseEnv returns the inherited process environment as a map.
func BaseEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

type EnvVars []string

// ConstructEnvs converts a resolved environment map into an
// exec/docker-friendly []string{"KEY=value", ...} slice, sorted by key
// so output is deterministic.
func ConstructEnvs(env map[string]string) EnvVars {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var vars EnvVars
	for _, k := range keys {
		vars.AddEnv(k, env[k])
	}
	return vars
}

// Slice returns the EnvVars as a []string slice.
func (ev EnvVars) Slice() []string {
	return ev
}

// AddEnv adds a key=value string to the EnvVars.
func (ev *EnvVars) AddEnv(key, value string) {
	*ev = append(*ev, fmt.Sprintf("%s=%s", key, value))
}
