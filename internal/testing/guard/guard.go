// Package guard forces test mode for packages that would otherwise start
// runtime side effects when imported from tests. Blank-import it before the
// package under test.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("TRANSITOPS_TEST_MODE") == "" {
			_ = os.Setenv("TRANSITOPS_TEST_MODE", "1")
		}
	})
}
