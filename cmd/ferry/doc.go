// Package main hosts the ferry CLI entrypoint and command graph.
//
// The Cobra command tree starts the upload daemon, runs the storage verifier
// and preflight checks, and offers queue maintenance that talks to the queue
// database directly. Configuration resolution lives in commandContext so
// subcommands only deal with their own flags.
package main
