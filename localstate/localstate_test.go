package localstate

import "testing"

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLastPathMissing(t *testing.T) {
	s := openTestStore(t)

	path, ok, err := s.LastPath("proj")
	if err != nil {
		t.Fatalf("LastPath: %v", err)
	}
	if ok || path != "" {
		t.Errorf("LastPath on empty store = (%q, %v), want (\"\", false)", path, ok)
	}
}

func TestLastPathRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetLastPath("proj", "private/user/u1"); err != nil {
		t.Fatalf("SetLastPath: %v", err)
	}

	path, ok, err := s.LastPath("proj")
	if err != nil {
		t.Fatalf("LastPath: %v", err)
	}
	if !ok || path != "private/user/u1" {
		t.Errorf("LastPath = (%q, %v), want (%q, true)", path, ok, "private/user/u1")
	}

	// Paths are namespaced by project.
	if _, ok, _ := s.LastPath("other"); ok {
		t.Error("LastPath leaked across project namespaces")
	}
}
