// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type SessionID string
type BackupID string

// PostID is the registry sequence number of a post record. It is assigned
// by the registry on append and never reused.
type PostID int64

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}
