// Vigil is a daemon that watches an SVN repository for new commits, reviews
// each diff with an AI model and posts the results to a DingTalk group.
//
// It detects commits by polling and, optionally, through a post-commit
// webhook. Every commit is tracked in a durable ledger so reviews survive
// restarts and failures are retried.
//
// Usage:
//
//	vigil serve                  # run the monitor daemon
//	vigil review 501533          # review one revision immediately
//	vigil status --recent 10     # show ledger statistics
//	vigil config init            # write a default config file
package main
