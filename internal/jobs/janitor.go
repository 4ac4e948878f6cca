package jobs

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/apollo-api/internal/metrics"
)

// ExpiredCodePurger deletes one-time codes that expired before now.
type ExpiredCodePurger interface {
	DeleteExpired(now time.Time) (int64, error)
}

// Janitor periodically removes expired signup and password reset codes.
type Janitor struct {
	cron    *cron.Cron
	codes   ExpiredCodePurger
	metrics *metrics.Metrics
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewJanitor schedules the purge with a standard cron spec or descriptor such as "@hourly".
func NewJanitor(schedule string, codes ExpiredCodePurger, m *metrics.Metrics, log logrus.FieldLogger) (*Janitor, error) {
	j := &Janitor{
		cron:    cron.New(),
		codes:   codes,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
	if _, err := j.cron.AddFunc(schedule, j.PurgeExpiredCodes); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	return j, nil
}

func (j *Janitor) Start() {
	j.cron.Start()
	j.log.Info("Janitor started")
}

// Stop waits for a running purge to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// PurgeExpiredCodes runs one purge.
func (j *Janitor) PurgeExpiredCodes() {
	deleted, err := j.codes.DeleteExpired(j.now())
	if err != nil {
		j.log.WithError(err).Error("Failed to purge expired codes")
		return
	}
	j.metrics.Event(metrics.EventCodesPurged, int(deleted))
	if deleted > 0 {
		j.log.WithField("deleted", deleted).Info("Purged expired codes")
	}
}
