package namespace

import "testing"

func TestContainerBundleContainsExpectedFlags(t *testing.T) {
	if !CONTAINER.Contains(NEWNS | NEWPID | NEWUTS | NEWIPC) {
		t.Fatal("CONTAINER must contain NEWNS|NEWPID|NEWUTS|NEWIPC")
	}
	if CONTAINER.Contains(NEWNET) {
		t.Fatal("CONTAINER must not contain NEWNET")
	}
	if CONTAINER.Contains(NEWUSER) {
		t.Fatal("CONTAINER must not contain NEWUSER")
	}
}

func TestFlagsWithWithout(t *testing.T) {
	f := CONTAINER.With(NEWNET)
	if !f.Contains(NEWNET) {
		t.Fatal("With(NEWNET) must add NEWNET")
	}
	f = f.Without(NEWNET)
	if f.Contains(NEWNET) {
		t.Fatal("Without(NEWNET) must remove NEWNET")
	}
	if f != CONTAINER {
		t.Fatalf("round-trip With/Without must return to original set, got %#x want %#x", f, CONTAINER)
	}
}
