package logger

import (
	"log/slog"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// JobID records a job identifier under the key "job_id".
func JobID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("job_id", id)
}

// WorkerID records a worker identifier under the key "worker_id".
func WorkerID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("worker_id", id)
}

// Channel records a delivery channel under the key "channel".
func Channel(ch string) slog.Attr {
	if ch == "" {
		return slog.Attr{}
	}
	return slog.String("channel", ch)
}

// Attempt records the current delivery attempt under the key "attempt".
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}
