// internal/middleware/auth.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"learn_track/internal/config"
	"learn_track/internal/model"
	"learn_track/internal/webutil"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTAuthMiddleware は Authorization ヘッダーの Bearer トークンを検証するミドルウェア。
// トークンは外部の認証プロバイダが発行したもので、sub(ユーザーID)・email・name の
// クレームを model.UserContext としてリクエストコンテキストに積みます。
func JWTAuthMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := GetLogger(r.Context())

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("JWT auth failed: Authorization header missing")
				webutil.HandleError(w, logger, model.NewAppError("UNAUTHORIZED", "Authorization header is required.", "", model.ErrForbidden))
				return
			}

			// "Bearer {token}" の形式を検証
			headerParts := strings.Split(authHeader, " ")
			if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" {
				logger.Warn("JWT auth failed: Invalid Authorization header format")
				webutil.HandleError(w, logger, model.NewAppError("UNAUTHORIZED", "Authorization header format is invalid.", "", model.ErrForbidden))
				return
			}
			tokenString := headerParts[1]

			// jwt.Parse は署名と有効期限(exp)の両方を検証してくれる
			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(cfg.JWT.SecretKey), nil
			})
			if err != nil {
				logger.Warn("JWT auth failed: Invalid token", "error", err)
				webutil.HandleError(w, logger, model.NewAppError("INVALID_TOKEN", "Token is invalid or expired.", "", model.ErrForbidden))
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				logger.Warn("JWT auth failed: Unknown claims type or invalid token")
				webutil.HandleError(w, logger, model.NewAppError("INVALID_TOKEN", "Token is invalid.", "", model.ErrForbidden))
				return
			}

			subject, err := claims.GetSubject()
			if err != nil {
				logger.Warn("JWT auth failed: Subject (sub) claim missing", "error", err)
				webutil.HandleError(w, logger, model.NewAppError("INVALID_TOKEN", "Token does not carry user information.", "", model.ErrForbidden))
				return
			}

			userID, err := uuid.Parse(subject)
			if err != nil {
				logger.Warn("JWT auth failed: Invalid subject (sub) format", "subject", subject, "error", err)
				webutil.HandleError(w, logger, model.NewAppError("INVALID_TOKEN", "Token user information is malformed.", "", model.ErrForbidden))
				return
			}

			user := model.UserContext{ID: userID}
			if email, ok := claims["email"].(string); ok {
				user.Email = email
			}
			if name, ok := claims["name"].(string); ok {
				user.FullName = name
			}

			ctx := context.WithValue(r.Context(), model.UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext はコンテキストから認証済みユーザーを取得します。
func GetUserFromContext(ctx context.Context) (model.UserContext, error) {
	value, ok := ctx.Value(model.UserContextKey).(model.UserContext)
	if !ok {
		// ミドルウェアが正しく適用されていない場合の内部エラー
		return model.UserContext{}, model.NewAppError("INTERNAL_SERVER_ERROR", "Could not resolve user from context.", "", model.ErrInternalServer)
	}
	return value, nil
}
