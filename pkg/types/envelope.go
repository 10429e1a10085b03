package types

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"
)

// Envelope is the metadata of one message as stored by one backend.
// The ID is backend-assigned and opaque; the same logical message
// carries different IDs on different backends.
type Envelope struct {
	ID        string    `json:"id"`
	Flags     FlagSet   `json:"flags"`
	MessageID string    `json:"message_id"`
	Sender    string    `json:"sender"`
	Subject   string    `json:"subject"`
	Date      time.Time `json:"date"`
}

// ContentHash derives the backend-independent identity of the message
// from its headers. It is the join key between backends and across sync
// runs, so its input must survive transport verbatim: Message-Id,
// sender address, subject and the header date.
func (e Envelope) ContentHash() string {
	h := sha256.New()
	io.WriteString(h, e.MessageID)
	io.WriteString(h, "\x00")
	io.WriteString(h, e.Sender)
	io.WriteString(h, "\x00")
	io.WriteString(h, e.Subject)
	io.WriteString(h, "\x00")
	io.WriteString(h, e.Date.UTC().Format(time.RFC3339))
	return hex.EncodeToString(h.Sum(nil))
}

// Message is a full message: envelope plus raw RFC 5322 content.
type Message struct {
	Envelope
	Raw []byte `json:"raw"`
}
