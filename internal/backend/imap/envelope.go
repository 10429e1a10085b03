package imap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"

	"github.com/driftmail/driftmail/pkg/types"
)

var (
	errNoUID       = errors.New("appended message not found by Message-Id")
	errNoMessageID = errors.New("message has no Message-Id header")
)

// nowFunc is swapped out in tests.
var nowFunc = time.Now

// envelopeFromFetch maps a fetched message to the engine's envelope
// type. The sender is reduced to the bare lowercased address so it
// hashes identically to what the maildir side reads from the From
// header.
func envelopeFromFetch(msg *imap.Message) types.Envelope {
	e := types.Envelope{
		ID:    strconv.FormatUint(uint64(msg.Uid), 10),
		Flags: fromIMAPFlags(msg.Flags),
	}

	env := msg.Envelope
	if env == nil {
		return e
	}

	e.MessageID = strings.TrimSpace(env.MessageId)
	e.Subject = env.Subject
	e.Date = env.Date

	from := env.From
	if len(from) == 0 {
		from = env.Sender
	}
	if len(from) > 0 && from[0] != nil {
		e.Sender = strings.ToLower(from[0].Address())
	}

	return e
}

func uidSeqSet(ids []string) (*imap.SeqSet, error) {
	seq := new(imap.SeqSet)
	for _, id := range ids {
		uid, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid message id %q: %w", id, err)
		}
		seq.AddNum(uint32(uid))
	}
	return seq, nil
}
