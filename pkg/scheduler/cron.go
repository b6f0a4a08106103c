package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// Cron robfig/cron 包装，任务 panic 会被恢复
type Cron struct {
	c   *cron.Cron
	loc *time.Location
}

func NewCron(loc *time.Location) *Cron {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Cron{c: c, loc: loc}
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { ctx := cr.c.Stop(); <-ctx.Done() }

// Add 支持标准 5 段表达式以及 @every 1m 之类的描述符
func (cr *Cron) Add(expr string, job Job) (cron.EntryID, error) {
	return cr.c.AddFunc(expr, func() { job.Run(context.Background()) })
}

func (cr *Cron) Remove(id cron.EntryID) { cr.c.Remove(id) }

func (cr *Cron) Entries() []cron.Entry { return cr.c.Entries() }
