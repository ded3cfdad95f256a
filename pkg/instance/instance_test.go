package instance

import "testing"

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv("STICKERLAB_INSTANCE_ID", "desk-1")
	if got := GetID(); got != "desk-1" {
		t.Fatalf("expected desk-1, got %q", got)
	}
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("STICKERLAB_INSTANCE_ID", "")
	if got := GetID(); got == "" {
		t.Fatalf("expected a non-empty fallback id")
	}
}
