package app

import (
	"os"
	"strconv"
)

// TestModeEnv makes both binaries return before dialing Postgres or Redis,
// so image smoke checks can execute them without backing services.
const TestModeEnv = "AUTOBID_TEST_MODE"

// InTestMode reports whether TestModeEnv is set to a true value.
func InTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	return on
}
