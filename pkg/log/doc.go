// Package log is the logging layer shared by all labeld components.
//
// Loggers are constructed explicitly and passed by dependency injection;
// there is no package-level default. The BaseLogger bridges into log/slog so
// that third-party libraries emitting through slog or the standard library
// logger (see RedirectStdLog) land in the same formatter/output pipeline.
package log
