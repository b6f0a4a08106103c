package scheduler

import (
	"context"
	"sync"
	"time"
)

type Job interface{ Run(ctx context.Context) }

type FuncJob func(ctx context.Context)

func (f FuncJob) Run(ctx context.Context) { f(ctx) }

// CancelFunc 停止单个任务，可重复调用
type CancelFunc func()

// Scheduler 基于 goroutine 的轻量调度器，Stop 会取消全部任务并等待其退出
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{ctx: ctx, cancel: cancel}
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Every 每隔 d 执行一次 job；同一任务的执行不会重叠
func (s *Scheduler) Every(d time.Duration, job Job) CancelFunc {
	ctx, cancel := context.WithCancel(s.ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				job.Run(ctx)
			}
		}
	}()
	return CancelFunc(cancel)
}

// OnceAfter d 之后执行一次；在触发前取消则不执行
func (s *Scheduler) OnceAfter(d time.Duration, job Job) CancelFunc {
	ctx, cancel := context.WithCancel(s.ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
			job.Run(ctx)
		}
	}()
	return CancelFunc(cancel)
}
