package models

import "time"

type User struct {
	ID           int32
	Balance      int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
