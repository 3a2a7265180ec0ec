package domain

import "time"

// PushToken is a device notification token. Ciphertext holds the
// sealed token value; Fingerprint deduplicates repeated saves.
type PushToken struct {
	Fingerprint string
	Ciphertext  []byte
	CreatedAt   time.Time
}
