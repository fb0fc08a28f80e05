package policy

import (
	"testing"

	clierr "github.com/ggonzalez94/defi-chat/internal/errors"
	"github.com/ggonzalez94/defi-chat/internal/intent"
)

func TestCheckIntentAllowed(t *testing.T) {
	if err := CheckIntentAllowed(nil, intent.Swap); err != nil {
		t.Fatalf("unexpected error with empty allowlist: %v", err)
	}
	if err := CheckIntentAllowed([]string{"price", " Balance "}, intent.Balance); err != nil {
		t.Fatalf("expected intent to be allowed: %v", err)
	}
	err := CheckIntentAllowed([]string{"price"}, intent.Swap)
	if err == nil {
		t.Fatal("expected swap to be blocked")
	}
	if clierr.CodeOf(err) != clierr.CodeBlocked {
		t.Fatalf("expected blocked code, got %v", clierr.CodeOf(err))
	}
}

func TestConversationalIntentsNeverBlocked(t *testing.T) {
	for _, in := range []intent.Intent{intent.Confirm, intent.Cancel, intent.Help, intent.Unknown} {
		if err := CheckIntentAllowed([]string{"price"}, in); err != nil {
			t.Fatalf("%s should not be blocked: %v", in, err)
		}
	}
}

func TestValidateAllowlist(t *testing.T) {
	if err := ValidateAllowlist([]string{"swap", "DCA"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateAllowlist([]string{"lend"}); err == nil {
		t.Fatal("expected unknown intent to be rejected")
	}
}
