package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

// TestModeEnv is set by internal/testing/guard when a test binary starts.
const TestModeEnv = "BUDGETBLITZ_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether binaries should return before opening
// connections or listeners. The environment is read on first use.
func InTestMode() bool {
	if on := testMode.Load(); on != nil {
		return *on
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads TestModeEnv and returns the new value.
func RefreshTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	testMode.Store(&on)
	return on
}
