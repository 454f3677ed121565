// Package logging provides a simple leveled logging interface for the
// pattern synchronization service.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable or
// [SetLevel]. Every line carries a timestamp and is written through one
// mutex-guarded sink; [SetFile] tees it into an append-only rotating file.
package logging
