package transport

import (
	"fmt"
	"strings"

	"github.com/samvad-hq/pokedex-seeder/internal/domain"
)

// ConfigError reports a transport that cannot run with the given settings.
// It is fatal: callers must not retry it or fall back to another mode.
type ConfigError struct {
	Mode    domain.Mode
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s transport misconfigured: missing %s", e.Mode, strings.Join(e.Missing, ", "))
}
