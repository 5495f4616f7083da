package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/gigmarket-backend/internal/models"
)

// AuditSink принимает записи аудита денежных и спорных операций.
type AuditSink interface {
	Event(ctx context.Context, name string, fields map[string]interface{})
}

// LogAuditSink пишет аудит в структурированный лог.
type LogAuditSink struct {
	log *logrus.Logger
}

func NewLogAuditSink(log *logrus.Logger) *LogAuditSink {
	return &LogAuditSink{log: log}
}

func (s *LogAuditSink) Event(_ context.Context, name string, fields map[string]interface{}) {
	s.log.WithFields(logrus.Fields(fields)).WithField("audit_event", name).Info("audit")
}

// NopAuditSink — заглушка для случаев, когда аудит не подключён.
type NopAuditSink struct{}

func (NopAuditSink) Event(context.Context, string, map[string]interface{}) {}

// EventPublisher публикует события жизненного цикла заказа во внешнюю шину.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, routingKey string, order *models.Order) error
}

// Notifier доставляет уведомления пользователям в реальном времени.
type Notifier interface {
	NotifyUser(userID uuid.UUID, event string, payload interface{})
}
