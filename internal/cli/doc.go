// Package cli implements the gpustat command-line interface.
//
// Each Cobra command loads the config, builds the monitor stack through
// newApp and hands off to a server, a one-shot poll or the watch dashboard.
//
//	gpustat serve     - HTTP endpoint with periodic connection sweeping
//	gpustat poll      - Poll once and print a table or JSON
//	gpustat watch     - Live terminal dashboard
//	gpustat init      - Create a config file interactively
//
// Global flags (--config, --debug, --no-color) are defined on the root
// command and apply to every subcommand.
package cli
