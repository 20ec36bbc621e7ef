// internal/model/user.go
package model

import "github.com/google/uuid"

type ContextKey string

const (
	UserContextKey ContextKey = "userContext"
)

// UserContext は認証プロバイダ(外部)が発行したJWTから復元した利用者情報。
// このサービス自体はユーザーを管理しない (読み取り専用の依存)。
type UserContext struct {
	ID       uuid.UUID
	Email    string
	FullName string
}
