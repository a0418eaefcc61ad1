package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/plumekit/core/internal/config"
	"github.com/plumekit/core/internal/modules/content/post"
	"github.com/plumekit/core/internal/modules/storage/backup"
	pkgcron "github.com/plumekit/core/internal/pkg/cron"
)

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, cfg *config.AppConfig, posts *post.Service, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")

	sched.Register(pkgcron.Job{
		Name:        "publish_scheduled",
		Description: "promote scheduled posts whose publish time has passed",
		Interval:    cfg.PublishInterval,
		Fn: func(ctx context.Context) error {
			promoted, err := posts.PublishDue(ctx, time.Now())
			if err != nil {
				cronLogger.Warn("scheduled publish scan failed", zap.Error(err))
				return err
			}
			if promoted > 0 {
				cronLogger.Info(fmt.Sprintf("scheduled publish scan promoted %d post(s)", promoted))
			}
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "auto_backup",
		Description: "snapshot the content root to a local ZIP archive",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			path, err := backup.CreateLocalBackup(cfg.ContentDir, cfg.BackupsDir, time.Now())
			if err != nil {
				cronLogger.Warn("content backup failed", zap.Error(err))
				return err
			}
			cronLogger.Info("content backup written", zap.String("path", path))
			return backup.Prune(cfg.BackupsDir, cfg.BackupKeep)
		},
	})
}
