// Package logger provides a small factory over log/slog plus typed attribute
// helpers shared by the queue, scheduler and worker components.
//
// The factory produces JSON logs at info level by default; development
// setups can switch to text output:
//
//	log := logger.New(logger.WithDevelopment("notifyq"))
//	logger.SetAsDefault(log)
//
// The attribute helpers keep log keys consistent across the codebase
// (job_id, worker_id, channel, attempt, error).
package logger
