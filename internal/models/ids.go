package models

import "github.com/google/uuid"

// NewSnowflakeID returns a fresh identifier for an entity, message or device.
func NewSnowflakeID() string {
	return uuid.NewString()
}
