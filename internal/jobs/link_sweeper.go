package jobs

import (
	"context"
	"time"

	"github.com/emrgen/ormstore/internal/orm"
	"github.com/sirupsen/logrus"
)

const DefaultSweepSchedule = "@every 10m"

// LinkSweeper removes generic link rows and relation rows whose source
// object no longer exists. Bulk deletes of non transactional entities can
// leave them behind.
type LinkSweeper struct {
	models  *orm.Factory
	cron    string
	timeout time.Duration
}

var _ CronJob = (*LinkSweeper)(nil)

func NewLinkSweeper(schedule string, models *orm.Factory) *LinkSweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &LinkSweeper{
		models:  models,
		cron:    schedule,
		timeout: time.Minute,
	}
}

func (l *LinkSweeper) Name() string {
	return "link_sweeper"
}

func (l *LinkSweeper) Schedule() string {
	return l.cron
}

func (l *LinkSweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	removed, err := l.Sweep(ctx)
	if err != nil {
		logrus.Errorf("link sweep failed: %v", err)
		return
	}
	if removed > 0 {
		logrus.Infof("link sweep removed %d orphan rows", removed)
	}
}

// Sweep runs one pass over every writable entity and returns the number of
// removed rows.
func (l *LinkSweeper) Sweep(ctx context.Context) (int64, error) {
	models, err := l.models.Models()
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, m := range models {
		cfg := m.Config()
		if cfg.ReadOnly {
			continue
		}

		n, err := m.Master().DeleteOrphanLinks(ctx, m.Name(), m.Table(), m.PrimaryKey())
		if err != nil {
			return removed, err
		}
		removed += n

		for _, field := range cfg.MultiLinkFields() {
			if !cfg.Fields[field].IsManyToMany() {
				continue
			}
			table, err := m.RelationTable(field)
			if err != nil {
				return removed, err
			}
			n, err := m.Master().DeleteOrphanRelations(ctx, table, m.Table(), m.PrimaryKey())
			if err != nil {
				return removed, err
			}
			removed += n
		}
	}

	return removed, nil
}
