// Package cli wires together the Cobra command tree for the vigil binary.
//
// It defines the root command and all subcommands (serve, review, status,
// config, version), binds flags, reads configuration, assembles the monitor
// and returns deterministic exit codes.
package cli
