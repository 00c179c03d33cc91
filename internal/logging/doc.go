// Package logging sets up structured JSON logging for storyvec.
//
// Logs go to stderr and, when logging.file is configured, to a size-rotated
// file that `storyvec logs` can tail and filter.
package logging
