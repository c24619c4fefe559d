package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/akessl/schleuse/pkg/api"
)

// Middleware wraps a JobRunner with additional behavior.
type Middleware func(JobRunner) JobRunner

// Chain applies middlewares to a runner in order: the first middleware is
// the outermost.
func Chain(runner JobRunner, mws ...Middleware) JobRunner {
	for i := len(mws) - 1; i >= 0; i-- {
		runner = mws[i](runner)
	}
	return runner
}

// Recovery returns middleware that catches panics in the handler and
// converts them to errors. The worker continues to accept new jobs after
// a panic is recovered.
func Recovery() Middleware {
	return func(next JobRunner) JobRunner {
		return JobRunnerFunc(func(ctx context.Context, job *api.Job, w BatchWriter) (retErr error) {
			defer func() {
				if r := recover(); r != nil {
					retErr = fmt.Errorf("internal error handling job %s: %v", job.ID, r)
				}
			}()
			return next.RunJob(ctx, job, w)
		})
	}
}

// Logging returns middleware that emits structured log entries for each job.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next JobRunner) JobRunner {
		return JobRunnerFunc(func(ctx context.Context, job *api.Job, w BatchWriter) error {
			start := time.Now()

			err := next.RunJob(ctx, job, w)

			attrs := []slog.Attr{
				slog.String("job_id", job.ID),
				slog.Bool("openai_route", job.OpenAIRoute),
				slog.Duration("duration", time.Since(start)),
			}
			if id := RequestIDFromContext(ctx); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "job failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "job completed", attrs...)
			}
			return err
		})
	}
}
