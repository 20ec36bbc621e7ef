// internal/config/constants.go
package config

// アプリケーション情報
const (
	AppName    = "learn_track"
	AppVersion = "1.1.0"
)

// デフォルト設定値
const (
	DefaultServerPort = ":8080"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"

	// 視聴進捗まわりのしきい値
	DefaultCompletionPercent    = 90 // これを超えたら視聴完了とみなす
	DefaultProgressDeltaPercent = 5  // 前回保存からの進捗率の差がこれ以下なら保存しない
	DefaultProgressDeltaSeconds = 5  // 前回保存からの再生位置の差(秒)がこれ以下なら保存しない

	// 記述式回答の自動保存デバウンス時間 (ミリ秒)
	DefaultEssayDebounceMs = 1000

	// assessments.passing_percentage が未設定(0)の場合の合格ライン
	DefaultPassingPercent = 80

	// Webhook通知のリトライ回数と待ち時間(秒)
	DefaultWebhookMaxRetries  = 3
	DefaultWebhookWaitSeconds = 1
	DefaultWebhookTimeoutSec  = 10
)
