package models

import (
	"time"

	"github.com/google/uuid"
)

// AudioClip references a raw audio chunk uploaded by a node agent. The bytes
// themselves live in spool storage until the worker moves them to S3; the
// clip row carries only the opaque object key.
type AudioClip struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	PiID       string    `json:"pi_id"`
	ObjectKey  string    `json:"object_key,omitempty"`
	AudioLevel float64   `json:"audio_level"`
	RecordedAt time.Time `json:"recorded_at"`
	Uploaded   bool      `json:"uploaded"`
	CreatedAt  time.Time `json:"created_at"`
}
