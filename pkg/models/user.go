// Package models contains shared data models used across the framewatch codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User owns jobs and API keys. Jobs submitted without a key are stored
// unowned ("anonymous").
type User struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
