// Package cmd implements the command-line interface of the dMap client. It
// provides a hierarchical command structure for working with the named maps of
// a cache proxy from the terminal.
//
// The package is organized into several subpackages:
//
//   - maps: Commands for named map operations (get, put, keys, listen, perf, etc.)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set with an environment variable prefixed with DMAP_,
// e.g. DMAP_ENDPOINTS=host1:1408,host2:1408. Variables are also read from .env
// and .env.local in the working directory.
//
// See dmap -help for a list of all commands.
package cmd
