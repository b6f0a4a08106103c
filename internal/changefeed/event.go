// Package changefeed 行变更事件源：订阅某张表的 insert/update/delete 通知。
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"RescueDesk/internal/models"

	"github.com/spf13/cast"
)

// Kind 变更类型
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// ParseKind 兼容 INSERT/UPDATE/DELETE 与 Debezium 的 c/r/u/d
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "insert", "c", "r", "create":
		return KindInsert, true
	case "update", "u":
		return KindUpdate, true
	case "delete", "d":
		return KindDelete, true
	}
	return "", false
}

// Event 一次行变更；delete 事件只保证 Old 中带 id
type Event struct {
	Table string     `json:"table"`
	Kind  Kind       `json:"kind"`
	New   models.Row `json:"new,omitempty"`
	Old   models.Row `json:"old,omitempty"`
	At    time.Time  `json:"at"`
}

// ID 变更行的主键
func (e Event) ID() string {
	if id := e.New.ID(); id != "" {
		return id
	}
	return e.Old.ID()
}

// Validate 拒绝无表名、无类型或无主键的事件
func (e Event) Validate() error {
	if e.Table == "" {
		return fmt.Errorf("event without table")
	}
	if _, ok := ParseKind(string(e.Kind)); !ok {
		return fmt.Errorf("event with unknown kind %q", e.Kind)
	}
	if e.ID() == "" {
		return fmt.Errorf("%s event on %s without id", e.Kind, e.Table)
	}
	return nil
}

// Filter 单列等值过滤，语义同 realtime 的 column=eq.value
type Filter struct {
	Column string
	Value  string
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.Column + "=eq." + f.Value
}

// Matches delete 事件按 Old 判断，其余按 New
func (f *Filter) Matches(e Event) bool {
	if f == nil || f.Column == "" {
		return true
	}
	row := e.New
	if e.Kind == KindDelete || row == nil {
		row = e.Old
	}
	v, ok := row[f.Column]
	if !ok {
		// 部分 delete 负载只含主键，放行交给上层处理
		return e.Kind == KindDelete
	}
	return cast.ToString(v) == f.Value
}

// Source 变更事件源
type Source interface {
	Subscribe(ctx context.Context, table string, filter *Filter) (*Subscription, error)
	Close() error
}

// Publisher 向事件源写入变更，用于本进程写操作的回显
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

const defaultBuffer = 256

// Subscription 单个表的订阅。Unsubscribe 可重复调用，调用后不再投递并关闭 Events。
type Subscription struct {
	table  string
	filter *Filter

	ch   chan Event
	done chan struct{}
	once sync.Once

	mu      sync.RWMutex
	closed  bool
	release func()
}

func newSubscription(table string, filter *Filter, release func()) *Subscription {
	return &Subscription{
		table:   table,
		filter:  filter,
		ch:      make(chan Event, defaultBuffer),
		done:    make(chan struct{}),
		release: release,
	}
}

func (s *Subscription) Table() string { return s.table }

// Events 按到达顺序投递的事件流
func (s *Subscription) Events() <-chan Event { return s.ch }

// Done 在 Unsubscribe 后关闭
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Unsubscribe 停止投递并释放底层资源
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		if s.release != nil {
			s.release()
		}
	})
}

// deliver 订阅已关闭时返回 false
func (s *Subscription) deliver(ctx context.Context, e Event) bool {
	if !s.filter.Matches(e) {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- e:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func encodeEvent(e Event) ([]byte, error) { return json.Marshal(e) }

func decodeEvent(data []byte, table string) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return e, err
	}
	if e.Table == "" {
		e.Table = table
	}
	if k, ok := ParseKind(string(e.Kind)); ok {
		e.Kind = k
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return e, e.Validate()
}
