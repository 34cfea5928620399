package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"photonix-core/internal/adminauth"
	"photonix-core/internal/catalog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "/data"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reg, err := catalog.Open(ctx, catalog.Options{Dir: dataDir})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open catalog in %s: %v\n", dataDir, err)
		os.Exit(1)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close catalog: %v\n", err)
		}
	}()

	switch os.Args[1] {
	case "reset":
		if !resetToken(ctx, reg) {
			os.Exit(1)
		}
	case "status":
		showStatus(ctx, reg)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("photonix-core admin token management")
	fmt.Println("")
	fmt.Println("Usage: resetpw <command>")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  reset   - Generate a new admin token (or read one from ADMIN_TOKEN / stdin)")
	fmt.Println("  status  - Report whether an admin token is currently configured")
	fmt.Println("")
	fmt.Println("Environment:")
	fmt.Println("  DATA_DIR    - Path to the catalog data directory (default: /data)")
	fmt.Println("  ADMIN_TOKEN - If set, used as the new token instead of generating one")
	fmt.Println("                or prompting on stdin.")
}

// resetToken sets the admin credential used by adminauth.RequireBearer. It
// never reads from a TTY: the token comes from ADMIN_TOKEN if set, from a
// single line piped to stdin otherwise, or is generated and printed once.
func resetToken(ctx context.Context, reg *catalog.Registry) bool {
	token := os.Getenv("ADMIN_TOKEN")

	if token == "" {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err == nil || len(line) > 0 {
				token = strings.TrimSpace(line)
			}
		}
	}

	generated := false
	if token == "" {
		var err error
		token, err = adminauth.GenerateToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to generate token: %v\n", err)
			return false
		}
		generated = true
	}

	if len(token) < 16 {
		fmt.Fprintln(os.Stderr, "Error: token must be at least 16 characters")
		return false
	}

	if err := adminauth.SetToken(ctx, reg, token); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to store token: %v\n", err)
		return false
	}

	if generated {
		fmt.Printf("New admin token: %s\n", token)
		fmt.Println("Store this now; it is not recoverable once this process exits.")
	} else {
		fmt.Println("Admin token updated.")
	}
	return true
}

func showStatus(ctx context.Context, reg *catalog.Registry) {
	configured, err := adminauth.Configured(ctx, reg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to check token status: %v\n", err)
		os.Exit(1)
	}
	if configured {
		fmt.Println("Admin token is configured.")
	} else {
		fmt.Println("No admin token configured; maintenance endpoints are unavailable.")
	}
}
