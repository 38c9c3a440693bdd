package service

import (
	"context"
	"fmt"

	"github.com/garyjia/receipt-scan/internal/application/dispatcher"
	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/garyjia/receipt-scan/internal/domain/event"
)

// NotificationService posts a summary when a job run ends
type NotificationService interface {
	// Register subscribes to terminal job events
	Register(d dispatcher.Dispatcher)
	NotifyJobFinished(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	notifier port.Notifier
	logger   Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(notifier port.Notifier, logger Logger) NotificationService {
	return &notificationServiceImpl{
		notifier: notifier,
		logger:   logger,
	}
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.SubscribeMany(
		[]event.Type{event.TypeJobCompleted, event.TypeJobFailed, event.TypeJobCanceled},
		"job-notifier",
		s.NotifyJobFinished,
	)
}

// NotifyJobFinished formats evt and sends it through the notifier
func (s *notificationServiceImpl) NotifyJobFinished(ctx context.Context, evt *event.Event) error {
	if !evt.Type.IsTerminal() {
		return nil
	}

	text := FormatJobSummary(evt)
	if err := s.notifier.Notify(ctx, text); err != nil {
		s.logger.Error("Failed to send job notification", "error", err, "job_id", evt.JobID)
		return fmt.Errorf("notify job %s: %w", evt.JobID, err)
	}

	s.logger.Info("Job notification sent",
		"job_id", evt.JobID,
		"event", evt.Type.String(),
	)
	return nil
}

// FormatJobSummary renders the Japanese chat message for a terminal job event
func FormatJobSummary(evt *event.Event) string {
	switch evt.Type {
	case event.TypeJobCompleted:
		text := fmt.Sprintf("✅ 読み取り完了 (job %s)\n領収書: %d件 / 要確認: %d件 / 合計: ¥%s",
			evt.JobID,
			evt.GetPayloadInt("detected_receipt_count"),
			evt.GetPayloadInt("needs_review_count"),
			formatYen(evt.GetPayloadInt("total_amount_sum")))
		if code := evt.GetPayloadString("error_code"); code == entity.ErrorCodePartialIngest {
			text += "\n⚠ 一部の領収書を保存できませんでした"
		}
		return text
	case event.TypeJobFailed:
		return fmt.Sprintf("❌ 読み取り失敗 (job %s)\n%s: %s",
			evt.JobID,
			evt.GetPayloadString("error_code"),
			evt.GetPayloadString("error_message"))
	default:
		return fmt.Sprintf("⏹ 読み取りをキャンセルしました (job %s)", evt.JobID)
	}
}

func formatYen(v int64) string {
	s := fmt.Sprintf("%d", v)
	neg := false
	if v < 0 {
		neg = true
		s = s[1:]
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
