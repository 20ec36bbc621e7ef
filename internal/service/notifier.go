// internal/service/notifier.go
package service

import (
	"context"
	"fmt"
	"time"

	"learn_track/internal/config"
	"learn_track/internal/middleware"
	"learn_track/internal/model"

	"github.com/go-resty/resty/v2"
)

// Notifier は提出結果を外部の自動化エンドポイントへ通知します。
// 通知はベストエフォート: 失敗しても提出の成否には影響しない。
// 提出の成功は assessment_attempts の行が completed になった時点で確定する。
type Notifier interface {
	NotifySubmission(ctx context.Context, notice *model.SubmissionNotice) error
}

// --- LogNotifier ---
// 開発・テスト用。送信せずログに出すのみ。
type LogNotifier struct{}

func (n *LogNotifier) NotifySubmission(ctx context.Context, notice *model.SubmissionNotice) error {
	logger := middleware.GetLogger(ctx)
	logger.Info("--- Submission notice (LogNotifier) ---",
		"test_id", notice.TestID,
		"attempt_id", notice.AttemptID,
		"score", notice.Score,
		"passed", notice.Passed,
	)
	return nil
}

// --- WebhookNotifier ---
type WebhookNotifier struct {
	client *resty.Client
	cfg    *config.WebhookConfig
}

func NewWebhookNotifier(cfg *config.Config) Notifier {
	client := resty.New().
		SetTimeout(time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second).
		SetRetryCount(cfg.Webhook.MaxRetries).
		SetRetryWaitTime(time.Duration(cfg.Webhook.WaitSeconds) * time.Second)

	return &WebhookNotifier{
		client: client,
		cfg:    &cfg.Webhook,
	}
}

func (n *WebhookNotifier) NotifySubmission(ctx context.Context, notice *model.SubmissionNotice) error {
	logger := middleware.GetLogger(ctx)

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(notice).
		Post(n.cfg.URL)
	if err != nil {
		logger.Error("Failed to post submission notice", "attempt_id", notice.AttemptID, "error", err)
		return err
	}

	// 2xx以外は失敗扱い (リトライはrestyが済ませている)
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		logger.Error("Submission notice rejected by webhook",
			"attempt_id", notice.AttemptID,
			"status", resp.StatusCode(),
		)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}

	logger.Info("Submission notice delivered", "attempt_id", notice.AttemptID, "status", resp.StatusCode())
	return nil
}
