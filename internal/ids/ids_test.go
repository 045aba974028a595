package ids

import (
	"testing"
	"time"
)

func TestNewIsSortableAndValid(t *testing.T) {
	base := time.Now()
	a := NewAt(base)
	b := NewAt(base.Add(time.Millisecond))
	if !(a < b) {
		t.Fatalf("expected %s < %s", a, b)
	}
	if !Valid(New()) {
		t.Fatal("expected generated id to be valid")
	}
	if Valid("not-a-ulid") {
		t.Fatal("expected garbage to be rejected")
	}
}
