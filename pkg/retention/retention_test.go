package retention

import (
	"context"
	"testing"
)

func TestObjectKey(t *testing.T) {
	got := ObjectKey("standard", "20261017", "20261017093000.zip")
	if got != "standard/20261017/20261017093000.zip" {
		t.Fatalf("key = %q", got)
	}
}

func TestNilClientIsNoop(t *testing.T) {
	store := NewStore(nil, "archives")
	if err := store.Keep(context.Background(), "/does/not/exist.zip", "standard", "20261017", "exist.zip"); err != nil {
		t.Fatalf("noop store returned %v", err)
	}
}
