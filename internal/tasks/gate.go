package tasks

import (
	"slices"
	"strings"
	"sync/atomic"

	"github.com/desertthunder/linkea-sync/internal/shared"
)

// Gate decides whether the Sender.net integration may make remote calls.
//
// The integration is enabled only when the feature flag is on, an API key is configured, and the
// running environment is not one of the disabled environments. [Gate.ForceEnable] lifts the
// environment check and nothing else.
type Gate struct {
	flag         bool
	token        string
	env          string
	disabledEnvs []string
	forced       atomic.Bool
}

// NewGate builds a [Gate] from the sender configuration and the running environment name.
func NewGate(cfg shared.SenderConfig, env string) *Gate {
	envs := make([]string, 0, len(cfg.DisabledEnvs))
	for _, e := range cfg.DisabledEnvs {
		envs = append(envs, strings.ToLower(strings.TrimSpace(e)))
	}
	return &Gate{
		flag:         cfg.Enabled,
		token:        strings.TrimSpace(cfg.APIKey),
		env:          strings.ToLower(strings.TrimSpace(env)),
		disabledEnvs: envs,
	}
}

// ForceEnable bypasses the environment check for operator-run commands.
func (g *Gate) ForceEnable() { g.forced.Store(true) }

// Forced reports whether [Gate.ForceEnable] was called.
func (g *Gate) Forced() bool { return g.forced.Load() }

// Enabled reports whether remote calls are allowed. A nil gate is disabled.
func (g *Gate) Enabled() bool {
	return g.Reason() == ""
}

// Reason returns why the gate is closed, or "" when it is open.
func (g *Gate) Reason() string {
	switch {
	case g == nil:
		return "integration not configured"
	case !g.flag:
		return "integration disabled by configuration"
	case g.token == "":
		return "missing Sender.net API key"
	case !g.forced.Load() && slices.Contains(g.disabledEnvs, g.env):
		return "integration disabled in " + g.env + " environment"
	default:
		return ""
	}
}
