// Package config loads the process-wide Config from environment variables,
// following the teacher's getEnv/getEnvBool pattern (one struct, defaults
// plus a warning log on an unparsable override) generalized to the full
// variable list the gallery core's components read at boot.
package config
