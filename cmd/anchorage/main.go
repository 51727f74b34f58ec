// Command anchorage runs the event-boundary anchoring service.
package main

import (
	"fmt"
	"io"
	"os"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable to allow mocking in tests
var startServer = runServer

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return startServer(stderr)
	}

	switch args[1] {
	case "server", "serve":
		return startServer(stderr)
	case "migrate":
		return runMigrateCmd(stdout, stderr)
	case "export":
		return runExportCmd(args[2:], stdout, stderr)
	case "health":
		return runHealthCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			return startServer(stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "anchorage - event-boundary anchoring service")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  anchorage [server]          Run the HTTP service (default)")
	fmt.Fprintln(w, "  anchorage migrate           Apply database migrations and exit")
	fmt.Fprintln(w, "  anchorage export [flags]    Export an event range as an archive pack")
	fmt.Fprintln(w, "  anchorage health            Probe the local service health endpoint")
	fmt.Fprintln(w, "  anchorage help              Show this help")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Configuration is taken from the environment: PORT, DATABASE_URL,")
	fmt.Fprintln(w, "REDIS_ADDR, GRID_PRECISION, DEDUP_WINDOW_SECS, CHECKPOINT_INTERVAL_SECS,")
	fmt.Fprintln(w, "JWT_SECRET, API_TOKEN_BCRYPT, ARCHIVE_BUCKET, OTLP_ENDPOINT, LOG_LEVEL.")
}
