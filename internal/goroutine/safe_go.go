package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoveryHandler запускает фоновые горутины с перехватом panic, чтобы
// сбой побочного эффекта (генерация договора, уведомление) не ронял процесс.
type RecoveryHandler struct {
	log *logrus.Logger
}

func NewRecoveryHandler(log *logrus.Logger) *RecoveryHandler {
	return &RecoveryHandler{log: log}
}

// SafeGo запускает горутину с обработкой panic.
func (rh *RecoveryHandler) SafeGo(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				rh.log.WithField("stack", string(debug.Stack())).
					Errorf("panic в фоновой горутине: %v", r)
			}
		}()
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и обработкой panic.
func (rh *RecoveryHandler) SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	rh.SafeGo(func() { fn(ctx) })
}
