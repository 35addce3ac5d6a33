// Package logger provides structured logging functionality for the toolkit.
//
// It utilizes Go's standard library log/slog package to implement structured
// JSON (or text) logging with configurable log levels, plus helpers that let
// tests capture and inspect log records.
package logger
