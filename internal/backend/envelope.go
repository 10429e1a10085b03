package backend

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/driftmail/driftmail/pkg/types"
)

// EnvelopeFromRaw recovers an envelope from raw RFC 5322 content. Both
// on-disk backends and tests use it, so every side derives identical
// header values (and therefore identical content hashes) from the same
// message bytes.
func EnvelopeFromRaw(raw []byte) (types.Envelope, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("parsing message: %w", err)
	}

	e := types.Envelope{
		MessageID: strings.TrimSpace(env.GetHeader("Message-Id")),
		Sender:    CanonicalAddress(env.GetHeader("From")),
		Subject:   env.GetHeader("Subject"),
		Flags:     types.NewFlagSet(),
	}

	if date := env.GetHeader("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			e.Date = t
		}
	}

	return e, nil
}

// CanonicalAddress reduces a From header to the bare address, lowercased,
// so display-name differences between backends do not change the hash.
func CanonicalAddress(header string) string {
	addr, err := mail.ParseAddress(header)
	if err != nil {
		return strings.TrimSpace(header)
	}
	return strings.ToLower(addr.Address)
}
