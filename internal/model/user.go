package model

import "time"

// UserPublic — публичный профиль собеседника, как его отдаёт API.
type UserPublic struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// Presence — статус присутствия пользователя (GET /user-status/{id}).
type Presence struct {
	UserID     string    `json:"user_id"`
	IsOnline   bool      `json:"is_online"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
