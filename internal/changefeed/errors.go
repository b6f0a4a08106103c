package changefeed

import "RescueDesk/pkg/errors"

// ErrClosed 事件源已关闭
var ErrClosed = errors.WithCode(errors.CodeRejected, "change feed closed")
