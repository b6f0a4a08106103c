package util

import (
	"sync"

	"go.uber.org/zap"
)

// SigHandler 信号处理函数，sender 为触发方，params 为附带参数
type SigHandler func(sender any, params ...any)

// Signals 进程内同步信号总线
type Signals struct {
	mu       sync.RWMutex
	handlers map[string][]SigHandler
}

var (
	sigOnce sync.Once
	sig     *Signals
)

// Sig 返回进程级信号总线
func Sig() *Signals {
	sigOnce.Do(func() { sig = NewSignals() })
	return sig
}

func NewSignals() *Signals {
	return &Signals{handlers: make(map[string][]SigHandler)}
}

// Connect 注册信号处理
func (s *Signals) Connect(name string, h SigHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = append(s.handlers[name], h)
}

// Emit 依次调用处理函数；单个处理函数 panic 不影响其他处理函数
func (s *Signals) Emit(name string, sender any, params ...any) {
	s.mu.RLock()
	hs := append([]SigHandler(nil), s.handlers[name]...)
	s.mu.RUnlock()
	for _, h := range hs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					zap.L().Error("signal handler panic", zap.String("signal", name), zap.Any("recover", r))
				}
			}()
			h(sender, params...)
		}()
	}
}

// Clear 清除某信号的所有处理函数
func (s *Signals) Clear(name string) {
	s.mu.Lock()
	delete(s.handlers, name)
	s.mu.Unlock()
}
