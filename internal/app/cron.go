package app

import (
	"context"
	"fmt"
	"time"

	pkgcron "github.com/casevine/core/internal/pkg/cron"
	pkgredis "github.com/casevine/core/internal/pkg/redis"
	"github.com/casevine/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

const taskRetention = 7 * 24 * time.Hour

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, rc *pkgredis.Client, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")
	taskSvc := taskqueue.NewService(rc)

	sched.Register(pkgcron.Job{
		Name:        "cleanup_tasks",
		Description: "remove finished generation tasks older than 7 days",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			cutoff := time.Now().Add(-taskRetention).UnixMilli()
			if err := taskSvc.DeleteCompleted(ctx, cutoff); err != nil {
				cronLogger.Warn("task cleanup failed", zap.Error(err))
				return err
			}
			cronLogger.Info(fmt.Sprintf("task cleanup done, removed entries older than %s", taskRetention))
			return nil
		},
	})
}
