/*
Package log provides structured logging for meta-manager using zerolog.

The package wraps a single global zerolog.Logger with component-scoped child
loggers. Logging is a side-channel: no library operation depends on a log
call succeeding, and tests run with the logger silenced via Nop.

# Output

Init picks the encoder from the destination:

  - JSON when Config.JSONOutput is set or the writer is not a terminal
  - zerolog.ConsoleWriter (RFC3339 timestamps) when writing to a TTY

Terminal detection uses go-isatty, so piping `metamgr list 2>log.json`
produces machine-readable lines without extra flags.

# Component loggers

	storage  - bbolt transactions, backups, export/import
	archive  - codec dispatch, external 7z tool probing
	deploy   - deploy/undeploy state transitions
	library  - facade operations and catalogue events
	config   - data directory resolution

Use WithComponent for package loggers and WithEntryID when a log line is
about one catalogue entry:

	logger := log.WithComponent("deploy")
	logger.Info().Str("entry_id", rec.ID).Str("target", target).Msg("Deploying entry")

# Levels

debug, info, warn and error map directly onto zerolog levels. Unknown values
fall back to info.
*/
package log
