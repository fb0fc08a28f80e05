package policy

import (
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/intent"
)

// CheckIntentAllowed enforces the --enable-intents allowlist. An empty list
// allows everything. Conversational intents (confirm, cancel, help, unknown)
// are never blocked; a confirmation is checked against the stored intent.
func CheckIntentAllowed(allowlist []string, in intent.Intent) error {
	if len(allowlist) == 0 || alwaysAllowed(in) {
		return nil
	}
	for _, allowed := range allowlist {
		if normalize(allowed) == normalize(string(in)) {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, fmt.Sprintf("%s is disabled on this deployment.", strings.ToLower(string(in))))
}

// ValidateAllowlist rejects names that are not intents so a typo in config
// does not silently block everything.
func ValidateAllowlist(allowlist []string) error {
	for _, raw := range allowlist {
		if _, ok := intent.Parse(raw); !ok {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown intent in allowlist: %s", raw))
		}
	}
	return nil
}

func alwaysAllowed(in intent.Intent) bool {
	switch in {
	case intent.Confirm, intent.Cancel, intent.Help, intent.Unknown:
		return true
	default:
		return false
	}
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
