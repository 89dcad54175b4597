// Package testing flips the binaries into test mode when imported by a
// test package, so no server or worker starts against live backends.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		if os.Getenv("BODEGA_TEST_MODE") == "" {
			_ = os.Setenv("BODEGA_TEST_MODE", "true")
		}
		if os.Getenv("LOG_FORMAT") == "" {
			_ = os.Setenv("LOG_FORMAT", "json")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
