package store

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures SQLite connections and watcher goroutines opened by
// this package's tests don't leak past the test run.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
