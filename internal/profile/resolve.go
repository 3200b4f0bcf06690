package profile

import (
	"os"

	"github.com/parlochat/parlo/internal/config"
)

const DefaultProfileName = "main"

// EnvProfile overrides the configured default profile when set.
const EnvProfile = "PARLO_PROFILE"

// Resolve determines the active profile name using precedence:
// 1. flagOverride (-profile flag)
// 2. PARLO_PROFILE environment variable
// 3. config.toml default_profile
// 4. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if env := os.Getenv(EnvProfile); env != "" {
		return env
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultProfileName
}
