package events

import (
	"context"
	"time"

	"github.com/apex/log"

	"github.com/ruby4mag/firewatch-backend/internal/metrics"
	"github.com/ruby4mag/firewatch-backend/internal/models"
)

// ReportEvent is the message body for every report routing key.
type ReportEvent struct {
	Type       string             `json:"type"`
	ReportID   string             `json:"report_id"`
	AlarmLevel string             `json:"alarm_level,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
	Report     *models.FireReport `json:"report,omitempty"`
}

// Notify publishes a report event. Delivery is best effort: a failure is
// logged and counted, never returned.
func Notify(ctx context.Context, p Publisher, routingKey, id string, r *models.FireReport) {
	ev := ReportEvent{
		Type:       routingKey,
		ReportID:   id,
		OccurredAt: time.Now().UTC(),
		Report:     r,
	}
	if r != nil {
		ev.AlarmLevel = r.AlarmLevel
	}
	if err := p.Publish(ctx, routingKey, ev); err != nil {
		metrics.EventPublishErrorsTotal.Inc()
		log.WithError(err).WithFields(log.Fields{
			"routing_key": routingKey,
			"report_id":   id,
		}).Warn("report event not published")
	}
}
