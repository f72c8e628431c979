package logging

import "log/slog"

// Common field names for consistent logging across the gateway.
const (
	FieldHandle   = "handle"
	FieldEngine   = "engine"
	FieldDuration = "duration_ms"
	FieldError    = "error"
	FieldQuery    = "query"
)

// Handle returns a slog attribute for an index handle.
func Handle(handle string) slog.Attr {
	return slog.String(FieldHandle, handle)
}

// Engine returns a slog attribute for an engine kind.
func Engine(kind string) slog.Attr {
	return slog.String(FieldEngine, kind)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Query returns a slog attribute for a search query string.
func Query(query string) slog.Attr {
	return slog.String(FieldQuery, query)
}
