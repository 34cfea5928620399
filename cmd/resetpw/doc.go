// Command resetpw manages the single admin bearer token that protects
// photonix-core's mutating maintenance endpoints.
//
// Usage:
//
//	resetpw <command>
//
// Commands:
//
//	reset   Set a new admin token. Reads ADMIN_TOKEN if set, a single line
//	        piped to stdin otherwise, or generates and prints a random
//	        token if neither is provided.
//
//	status  Report whether an admin token is currently configured.
//
// Environment:
//
//	DATA_DIR    - Path to the catalog data directory (default: /data)
//	ADMIN_TOKEN - New token value for the reset command.
package main
