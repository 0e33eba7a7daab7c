package flags

import (
	"os"
	"strconv"
)

// Flags holds the process-wide feature switches. They are resolved once at
// startup and passed to constructors; nothing branches on the environment
// per call.
type Flags struct {
	// UseMockProvider selects the in-process provider simulation instead of
	// the live custodial API.
	UseMockProvider bool
	// UseMockRouting selects the seeded mock gas oracle instead of the live
	// price feed.
	UseMockRouting bool
}

// FromEnv reads the feature switches from the environment. Both default to
// mock so a bare checkout runs without credentials.
func FromEnv() Flags {
	return Flags{
		UseMockProvider: envBool("USE_MOCK_PROVIDER", true),
		UseMockRouting:  envBool("USE_MOCK_ROUTING", true),
	}
}

func envBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
