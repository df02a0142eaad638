// Package internal contains the core implementation packages for kiln.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the kiln CLI tool.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - asset: Asset classes, specs and the development/production mode
//   - config: Configuration loading with viper and ozzo validation
//   - scanner: Glob resolution over the project filesystem
//   - transform: Per-class transform chains (templates, sass, esbuild, images)
//   - build: Change filter, output memory, pipeline runs and the transform cache
//   - scheduler: Class ordering, watch routing and per-class workers
//   - watcher: File system monitoring with debouncing
//   - server, websocket: Dev server and live reload
//   - notify: Console and desktop error notifications
//   - mcpserver: Build tools over the Model Context Protocol
//   - errors, logging, version: Ambient support
//
// # Inter-Package Communication
//
// Packages communicate through small interfaces:
//
//   - Watcher emits debounced batches of project-relative change events
//   - Scheduler routes events to classes and drives the pipeline (Runner)
//   - Pipeline reports outputs that changed to the websocket hub (Reloader)
//   - Per-file failures flow through the error handler to a Notifier
//
// # Incremental Builds
//
// A source is transformed only when its signature differs from the one
// recorded in output memory, or when its output has disappeared. Deleted
// sources are forgotten without running any transform, and bundles are
// reassembled from the remembered artifacts.
//
// For detailed documentation, see the individual package documentation.
package internal
