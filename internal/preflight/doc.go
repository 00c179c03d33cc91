// Package preflight checks the local environment before indexing or
// serving:
//   - the data directory exists and holds a captions or stories root
//   - the state directory (tracker, locks) is writable
//   - the memory store directory is writable when that backend is selected
//   - free disk space under the state directory (minimum 100MB)
//   - the file descriptor limit, which watch mode depends on
//
// Network dependencies are probed by the health checks, not here.
//
//	results := preflight.New().RunAll(ctx, cfg)
//	if preflight.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
