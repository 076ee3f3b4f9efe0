package fixture

import (
	"context"
	"testing"
)

// Setup creates a fixture for t and disposes it when t finishes. A
// construction failure fails the test immediately.
func Setup[T any](t testing.TB, source ConfigSource, opts ...Option) *Fixture[T] {
	t.Helper()

	f, err := New[T](context.Background(), source, opts...)
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	t.Cleanup(func() {
		if err := f.Dispose(context.Background()); err != nil {
			t.Errorf("fixture dispose: %v", err)
		}
	})
	return f
}
