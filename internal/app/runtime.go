package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

const testModeEnv = "AUTOSERVIS_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeInit sync.Once
)

func loadTestMode() {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(err == nil && on)
}

// InTestMode reports whether binaries should return before touching
// Postgres or Redis. AUTOSERVIS_TEST_MODE accepts any strconv.ParseBool form.
func InTestMode() bool {
	testModeInit.Do(loadTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads the environment.
func RefreshTestMode() {
	testModeInit.Do(func() {})
	loadTestMode()
}
