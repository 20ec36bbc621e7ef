// internal/service/mailer.go
package service

import (
	"context"

	"learn_track/internal/middleware"
)

// Mailer は修了証発行などの通知メールを送信します。
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// --- LogMailer ---
// 開発・テスト用。送信せずログに出すのみ。
type LogMailer struct{}

func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	logger := middleware.GetLogger(ctx)
	logger.Info("--- Sending Email (LogMailer) ---", "to", to, "subject", subject, "body", body)
	return nil
}
