// Package cronrunner wraps robfig/cron with a context-aware job signature
// and an explicit start/stop lifecycle. Jobs are chained through
// SkipIfStillRunning so a slow tick is skipped instead of overlapping the
// previous one.
package cronrunner

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	cronLog := cron.DiscardLogger
	if logger != nil {
		cronLog = &zapCronLogger{logger: logger}
	}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cronLog)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		ctx := r.baseCtx
		if ctx == nil {
			ctx = context.Background()
		}
		job(ctx)
	})
}

func (r *Runner) Start() {
	if r.logger != nil {
		r.logger.Info("cron started")
	}
	r.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	if r.logger != nil {
		r.logger.Info("cron stopped")
	}
}

type zapCronLogger struct {
	logger *zap.Logger
}

func (l *zapCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Infow(msg, keysAndValues...)
}

func (l *zapCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
