// ABOUTME: Help display for the maild CLI: usage, environment variables, and provider status.
package main

import (
	"fmt"
	"io"
)

// printHelp writes a formatted help message to w.
func printHelp(w io.Writer, ver string) {
	fmt.Fprintf(w, "maild %s — Multi-Agent Interface Layer daemon\n", ver)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  maild [serve]              Start the HTTP server (default)")
	fmt.Fprintln(w, "  maild setup                Interactive setup wizard")
	fmt.Fprintln(w, "  maild setup --check-env    Report unresolved swarm auth token references")
	fmt.Fprintln(w, "  maild -version             Print version and exit")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  MAIL_HOME                 Data directory (default: ~/.mail)")
	fmt.Fprintln(w, "  MAIL_BIND                 Listen address (default: 127.0.0.1:8770)")
	fmt.Fprintln(w, "  MAIL_ALLOW_REMOTE         Allow non-loopback binds (requires MAIL_AUTH_TOKEN)")
	fmt.Fprintln(w, "  MAIL_AUTH_TOKEN           Static admin bearer token")
	fmt.Fprintln(w, "  MAIL_DEFAULT_PROVIDER     LLM provider: openai, anthropic, gemini (default: openai)")
	fmt.Fprintln(w, "  MAIL_DEFAULT_MODEL        LLM model override")
	fmt.Fprintln(w, "  MAIL_DEFAULT_ENTRYPOINT   Agent new tasks address absent an explicit target (default: supervisor)")
	fmt.Fprintln(w, "  SWARM_NAME                This swarm's name for interswarm federation (default: local)")
	fmt.Fprintln(w, "  BASE_URL                  This server's externally-reachable URL")
	fmt.Fprintln(w, "  SWARM_REGISTRY_FILE       Path to the registry persistence file")
	fmt.Fprintln(w, "  AUTH_ENDPOINT             Identity oracle auth endpoint")
	fmt.Fprintln(w, "  TOKEN_INFO_ENDPOINT       Identity oracle token-info endpoint")
	fmt.Fprintln(w)
}
