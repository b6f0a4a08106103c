// Package reconciler 维护每张表唯一的内存集合，把快照与实时变更合并到一起。
package reconciler

import (
	"fmt"
	"sync"

	"RescueDesk/internal/changefeed"
	"RescueDesk/internal/models"
	"RescueDesk/pkg/errors"
	"RescueDesk/pkg/metrics"
)

// State 表的水合状态
type State int32

const (
	Uninitialized State = iota
	Hydrating
	Live
)

func (s State) String() string {
	switch s {
	case Hydrating:
		return "hydrating"
	case Live:
		return "live"
	}
	return "uninitialized"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ChangeKind 观察者收到的变更类型
type ChangeKind string

const (
	ChangeInsert  ChangeKind = "insert"
	ChangeUpdate  ChangeKind = "update"
	ChangeDelete  ChangeKind = "delete"
	ChangeHydrate ChangeKind = "hydrate"
	ChangeReset   ChangeKind = "reset"
)

// Change 单次变更；Hydrate/Reset 时 ID 为空
type Change[T any] struct {
	Table string
	Kind  ChangeKind
	ID    string
	Item  T
	Prev  *T
}

// Decoder 原始行到类型化条目的投影，ok=false 表示该行不可用
type Decoder[T any] func(models.Row) (T, bool)

// Guard 合并后的行写入前调用，可修正非法转换
type Guard func(id string, prev, next models.Row) models.Row

// Table 单一写者的内存表：按 ID 存原始行（用于部分更新合并）和解码后的条目。
// 顺序为最新插入在前；更新不改变位置。
type Table[T any] struct {
	name    string
	decode  Decoder[T]
	guard   Guard
	metrics *metrics.Metrics

	// emitMu 串行化“修改+通知”，保证观察者看到的顺序与修改顺序一致
	emitMu sync.Mutex
	mu     sync.RWMutex

	state   State
	order   []string
	rows    map[string]models.Row
	items   map[string]T
	version uint64
	// deleted 进入 live 之前收到的删除，快照中的同 ID 行不再插入
	deleted map[string]bool

	observers []func(Change[T])
}

// Option 表选项
type Option[T any] func(*Table[T])

func WithGuard[T any](g Guard) Option[T] { return func(t *Table[T]) { t.guard = g } }

func WithMetrics[T any](m *metrics.Metrics) Option[T] { return func(t *Table[T]) { t.metrics = m } }

func NewTable[T any](name string, decode Decoder[T], opts ...Option[T]) *Table[T] {
	t := &Table[T]{
		name:    name,
		decode:  decode,
		rows:    make(map[string]models.Row),
		items:   make(map[string]T),
		deleted: make(map[string]bool),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Table[T]) Name() string { return t.name }

// OnChange 注册观察者。观察者在修改完成后同步调用，不得再调用本表的修改方法。
func (t *Table[T]) OnChange(fn func(Change[T])) {
	t.emitMu.Lock()
	t.observers = append(t.observers, fn)
	t.emitMu.Unlock()
}

func (t *Table[T]) emit(changes ...Change[T]) {
	for _, c := range changes {
		for _, fn := range t.observers {
			fn(c)
		}
	}
}

// mutate 在 emitMu 内执行修改并通知
func (t *Table[T]) mutate(fn func() []Change[T]) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	t.mu.Lock()
	changes := fn()
	if len(changes) > 0 {
		t.version++
	}
	n := len(t.order)
	t.mu.Unlock()
	t.metrics.TableSize(t.name, n)
	t.emit(changes...)
}

// BeginHydrate uninitialized -> hydrating；其他状态不变
func (t *Table[T]) BeginHydrate() {
	t.mu.Lock()
	if t.state == Uninitialized {
		t.state = Hydrating
	}
	t.mu.Unlock()
}

// Hydrate 合并快照：只插入不存在且未被删除的 ID，已有条目（可能来自更新的实时事件）保持不变。
// 快照行按给定顺序追加在实时插入之后。完成后进入 live 并清空删除记录。
func (t *Table[T]) Hydrate(rows []models.Row) int {
	added := 0
	t.mutate(func() []Change[T] {
		for _, r := range rows {
			id := r.ID()
			if id == "" {
				continue
			}
			if _, exists := t.rows[id]; exists || t.deleted[id] {
				continue
			}
			item, ok := t.decode(r)
			if !ok {
				continue
			}
			t.rows[id] = r.Clone()
			t.items[id] = item
			t.order = append(t.order, id)
			added++
		}
		t.state = Live
		t.deleted = make(map[string]bool)
		return []Change[T]{{Table: t.name, Kind: ChangeHydrate}}
	})
	return added
}

// ApplyInsert 新 ID 插到最前；已存在则原位替换
func (t *Table[T]) ApplyInsert(row models.Row) error {
	id := row.ID()
	if id == "" {
		return errors.WithCodef(errors.CodeMalformedRow, "%s insert without id", t.name)
	}
	var err error
	t.mutate(func() []Change[T] {
		delete(t.deleted, id)
		prevRow, exists := t.rows[id]
		next := row.Clone()
		if exists && t.guard != nil {
			next = t.guard(id, prevRow, next)
		}
		item, ok := t.decode(next)
		if !ok {
			err = errors.WithCodef(errors.CodeMalformedRow, "%s row %s rejected by decoder", t.name, id)
			return nil
		}
		if exists {
			prev := t.items[id]
			t.rows[id], t.items[id] = next, item
			return []Change[T]{{Table: t.name, Kind: ChangeUpdate, ID: id, Item: item, Prev: &prev}}
		}
		t.rows[id], t.items[id] = next, item
		t.order = append([]string{id}, t.order...)
		return []Change[T]{{Table: t.name, Kind: ChangeInsert, ID: id, Item: item}}
	})
	return err
}

// ApplyUpdate 合并字段，负载中未出现的字段保留；ID 不存在时按插入处理
func (t *Table[T]) ApplyUpdate(row models.Row) error {
	id := row.ID()
	if id == "" {
		return errors.WithCodef(errors.CodeMalformedRow, "%s update without id", t.name)
	}
	t.mu.RLock()
	_, exists := t.rows[id]
	t.mu.RUnlock()
	if !exists {
		return t.ApplyInsert(row)
	}

	var err error
	t.mutate(func() []Change[T] {
		prevRow, ok := t.rows[id]
		if !ok {
			// 并发删除后按插入处理
			next := row.Clone()
			item, ok := t.decode(next)
			if !ok {
				err = errors.WithCodef(errors.CodeMalformedRow, "%s row %s rejected by decoder", t.name, id)
				return nil
			}
			t.rows[id], t.items[id] = next, item
			t.order = append([]string{id}, t.order...)
			return []Change[T]{{Table: t.name, Kind: ChangeInsert, ID: id, Item: item}}
		}
		next := prevRow.Merge(row)
		if t.guard != nil {
			next = t.guard(id, prevRow, next)
		}
		item, ok := t.decode(next)
		if !ok {
			err = errors.WithCodef(errors.CodeMalformedRow, "%s row %s rejected by decoder", t.name, id)
			return nil
		}
		prev := t.items[id]
		t.rows[id], t.items[id] = next, item
		return []Change[T]{{Table: t.name, Kind: ChangeUpdate, ID: id, Item: item, Prev: &prev}}
	})
	return err
}

// ApplyDelete 不存在时为空操作；live 之前的删除会被记住，避免随后的快照把该行带回来
func (t *Table[T]) ApplyDelete(id string) {
	if id == "" {
		return
	}
	t.mutate(func() []Change[T] {
		if t.state != Live {
			t.deleted[id] = true
		}
		prev, ok := t.items[id]
		if !ok {
			return nil
		}
		delete(t.rows, id)
		delete(t.items, id)
		for i, v := range t.order {
			if v == id {
				t.order = append(t.order[:i:i], t.order[i+1:]...)
				break
			}
		}
		return []Change[T]{{Table: t.name, Kind: ChangeDelete, ID: id, Prev: &prev}}
	})
}

// Apply 分发一个变更事件
func (t *Table[T]) Apply(e changefeed.Event) error {
	t.metrics.ChangeEvent(t.name, string(e.Kind))
	switch e.Kind {
	case changefeed.KindInsert:
		return t.ApplyInsert(e.New)
	case changefeed.KindUpdate:
		row := e.New
		if row.ID() == "" && e.Old.ID() != "" {
			row = row.Merge(models.Row{"id": e.Old.ID()})
		}
		return t.ApplyUpdate(row)
	case changefeed.KindDelete:
		t.ApplyDelete(e.ID())
		return nil
	}
	return fmt.Errorf("unknown change kind %q", e.Kind)
}

// Reset 清空并回到 uninitialized
func (t *Table[T]) Reset() {
	t.mutate(func() []Change[T] {
		t.order = nil
		t.rows = make(map[string]models.Row)
		t.items = make(map[string]T)
		t.state = Uninitialized
		t.deleted = make(map[string]bool)
		return []Change[T]{{Table: t.name, Kind: ChangeReset}}
	})
}

func (t *Table[T]) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Version 每次实际修改递增，可用于判断视图是否过期
func (t *Table[T]) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

func (t *Table[T]) Get(id string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item, ok := t.items[id]
	return item, ok
}

// Row 返回合并后原始行的副本
func (t *Table[T]) Row(id string) (models.Row, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Snapshot 按当前顺序返回条目副本，调用方可自由修改返回的切片
func (t *Table[T]) Snapshot() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.items[id])
	}
	return out
}

// IDs 当前顺序
func (t *Table[T]) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.order...)
}
