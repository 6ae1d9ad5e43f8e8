package models

// MediaType identifies the kind of payload carried inside a message envelope.
type MediaType string

const (
	MediaText  MediaType = "text"
	MediaImage MediaType = "image"
	MediaAudio MediaType = "audio"
)

// Valid reports whether t is one of the known media types.
func (t MediaType) Valid() bool {
	switch t {
	case MediaText, MediaImage, MediaAudio:
		return true
	}
	return false
}

// Message is a relayed ciphertext queued for exactly one recipient. The relay
// never sees plaintext: Content is an opaque envelope produced by the sending
// client. A message is immutable once created and is destroyed exactly once,
// when the recipient acknowledges it as seen.
type Message struct {
	ID        string    `json:"id"` // ULID
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   string    `json:"content"` // encrypted envelope (base64)
	MediaType MediaType `json:"mediaType"`
	Timestamp int64     `json:"timestamp"` // Unix ms
}
