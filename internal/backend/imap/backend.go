// Package imap implements the remote backend over IMAP using a bounded
// pool of server sessions.
package imap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/textproto"
	"sort"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/driftmail/driftmail/internal/backend"
	"github.com/driftmail/driftmail/internal/config"
	"github.com/driftmail/driftmail/pkg/types"
)

// Backend is an IMAP-backed mail store. Message ids are folder UIDs in
// decimal form.
type Backend struct {
	cfg  config.IMAPConfig
	pool *pool
	log  *logrus.Entry
}

var _ backend.Backend = (*Backend)(nil)

func New(account string, cfg config.IMAPConfig, logger *logrus.Logger) *Backend {
	return &Backend{
		cfg:  cfg,
		pool: newPool(cfg),
		log: logger.WithFields(logrus.Fields{
			"backend": "imap",
			"account": account,
		}),
	}
}

func (b *Backend) Name() string { return "imap" }

// Connect validates the configuration by dialing one session, which is
// kept for later operations.
func (b *Backend) Connect(ctx context.Context) error {
	c, err := b.pool.acquire(ctx)
	if err != nil {
		return b.err("connect", "", "", err)
	}
	b.pool.release(c)
	b.log.Debug("connected to IMAP server")
	return nil
}

func (b *Backend) Disconnect() error {
	if err := b.pool.close(); err != nil {
		return b.err("disconnect", "", "", err)
	}
	return nil
}

func (b *Backend) ListFolders(ctx context.Context) ([]types.Folder, error) {
	var folders []types.Folder

	err := b.withConn(ctx, func(c *client.Client) error {
		mailboxes := make(chan *imap.MailboxInfo, 10)
		done := make(chan error, 1)
		go func() {
			done <- c.List("", "*", mailboxes)
		}()

		for m := range mailboxes {
			folders = append(folders, types.Folder{
				Delim: m.Delimiter,
				Name:  m.Name,
			})
		}
		return <-done
	})
	if err != nil {
		return nil, b.err("list folders", "", "", err)
	}

	return folders, nil
}

func (b *Backend) AddFolder(ctx context.Context, name string) error {
	err := b.withConn(ctx, func(c *client.Client) error {
		return c.Create(name)
	})
	if err != nil {
		return b.err("add folder", name, "", err)
	}
	return nil
}

func (b *Backend) PurgeFolder(ctx context.Context, name string) error {
	err := b.withConn(ctx, func(c *client.Client) error {
		mbox, err := c.Select(name, false)
		if err != nil {
			return err
		}
		if mbox.Messages == 0 {
			return nil
		}

		seq := new(imap.SeqSet)
		seq.AddRange(1, mbox.Messages)
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.Store(seq, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
			return err
		}
		return c.Expunge(nil)
	})
	if err != nil {
		return b.err("purge folder", name, "", err)
	}
	return nil
}

func (b *Backend) ListEnvelopes(ctx context.Context, folder string, page, pageSize int) ([]types.Envelope, error) {
	var envelopes []types.Envelope

	err := b.withConn(ctx, func(c *client.Client) error {
		mbox, err := c.Select(folder, true)
		if err != nil {
			return err
		}
		if mbox.Messages == 0 {
			return nil
		}

		// Sequence numbers grow oldest to newest, so the requested
		// page counts back from the top of the mailbox.
		total := int64(mbox.Messages)
		from, to := int64(1), total
		if pageSize > 0 {
			to = total - int64(page)*int64(pageSize)
			if to <= 0 {
				return nil
			}
			from = to - int64(pageSize) + 1
			if from < 1 {
				from = 1
			}
		}

		seq := new(imap.SeqSet)
		seq.AddRange(uint32(from), uint32(to))
		items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid, imap.FetchInternalDate}

		messages := make(chan *imap.Message, 10)
		done := make(chan error, 1)
		go func() {
			done <- c.Fetch(seq, items, messages)
		}()

		for msg := range messages {
			envelopes = append(envelopes, envelopeFromFetch(msg))
		}
		if err := <-done; err != nil {
			return err
		}

		// Fetch yields ascending sequence numbers; flip to newest
		// first before the stable date sort so equal dates keep the
		// mailbox order.
		for i, j := 0, len(envelopes)-1; i < j; i, j = i+1, j-1 {
			envelopes[i], envelopes[j] = envelopes[j], envelopes[i]
		}
		sort.SliceStable(envelopes, func(i, j int) bool {
			return envelopes[i].Date.After(envelopes[j].Date)
		})
		return nil
	})
	if err != nil {
		return nil, b.err("list envelopes", folder, "", err)
	}

	return envelopes, nil
}

func (b *Backend) GetMessages(ctx context.Context, folder string, ids []string) ([]types.Message, error) {
	seq, err := uidSeqSet(ids)
	if err != nil {
		return nil, b.err("get messages", folder, strings.Join(ids, ","), err)
	}

	var messages []types.Message
	err = b.withConn(ctx, func(c *client.Client) error {
		if _, err := c.Select(folder, true); err != nil {
			return err
		}

		section := &imap.BodySectionName{Peek: true}
		items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid, section.FetchItem()}

		ch := make(chan *imap.Message, 10)
		done := make(chan error, 1)
		go func() {
			done <- c.UidFetch(seq, items, ch)
		}()

		for msg := range ch {
			m := types.Message{Envelope: envelopeFromFetch(msg)}
			if literal := msg.GetBody(section); literal != nil {
				var buf bytes.Buffer
				if _, err := buf.ReadFrom(literal); err != nil {
					return err
				}
				m.Raw = buf.Bytes()
			}
			messages = append(messages, m)
		}
		return <-done
	})
	if err != nil {
		return nil, b.err("get messages", folder, strings.Join(ids, ","), err)
	}

	return messages, nil
}

// AddMessage appends raw content to the folder. APPEND without UIDPLUS
// reports no UID, so the new message is re-found by searching for its
// Message-Id header.
func (b *Backend) AddMessage(ctx context.Context, folder string, raw []byte, flags types.FlagSet) (string, error) {
	env, err := backend.EnvelopeFromRaw(raw)
	if err != nil {
		return "", b.err("add message", folder, "", err)
	}
	// Without a Message-Id the UID search below would match arbitrary
	// messages and cache a wrong UID.
	if env.MessageID == "" {
		return "", b.err("add message", folder, "", errNoMessageID)
	}

	var uid uint32
	err = b.withConn(ctx, func(c *client.Client) error {
		date := env.Date
		if date.IsZero() {
			date = nowFunc()
		}
		if err := c.Append(folder, toIMAPFlags(flags), date, bytes.NewBuffer(raw)); err != nil {
			return err
		}

		if _, err := c.Select(folder, true); err != nil {
			return err
		}
		criteria := imap.NewSearchCriteria()
		criteria.Header = textproto.MIMEHeader{}
		criteria.Header.Add("Message-Id", env.MessageID)
		uids, err := c.UidSearch(criteria)
		if err != nil {
			return err
		}
		for _, u := range uids {
			if u > uid {
				uid = u
			}
		}
		return nil
	})
	if err != nil {
		return "", b.err("add message", folder, "", err)
	}
	if uid == 0 {
		return "", b.err("add message", folder, "", errNoUID)
	}

	return strconv.FormatUint(uint64(uid), 10), nil
}

func (b *Backend) SetFlags(ctx context.Context, folder, id string, flags types.FlagSet) error {
	seq, err := uidSeqSet([]string{id})
	if err != nil {
		return b.err("set flags", folder, id, err)
	}

	err = b.withConn(ctx, func(c *client.Client) error {
		if _, err := c.Select(folder, false); err != nil {
			return err
		}
		item := imap.FormatFlagsOp(imap.SetFlags, true)
		return c.UidStore(seq, item, toIMAPFlagsInterface(flags), nil)
	})
	if err != nil {
		return b.err("set flags", folder, id, err)
	}
	return nil
}

func (b *Backend) CopyMessage(ctx context.Context, fromFolder, toFolder, id string) error {
	seq, err := uidSeqSet([]string{id})
	if err != nil {
		return b.err("copy message", fromFolder, id, err)
	}

	err = b.withConn(ctx, func(c *client.Client) error {
		if _, err := c.Select(fromFolder, false); err != nil {
			return err
		}
		return c.UidCopy(seq, toFolder)
	})
	if err != nil {
		return b.err("copy message", fromFolder, id, err)
	}
	return nil
}

// MoveMessage is copy plus expunge; the MOVE extension is not assumed.
func (b *Backend) MoveMessage(ctx context.Context, fromFolder, toFolder, id string) error {
	seq, err := uidSeqSet([]string{id})
	if err != nil {
		return b.err("move message", fromFolder, id, err)
	}

	err = b.withConn(ctx, func(c *client.Client) error {
		if _, err := c.Select(fromFolder, false); err != nil {
			return err
		}
		if err := c.UidCopy(seq, toFolder); err != nil {
			return err
		}
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.UidStore(seq, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
			return err
		}
		return c.Expunge(nil)
	})
	if err != nil {
		return b.err("move message", fromFolder, id, err)
	}
	return nil
}

func (b *Backend) DeleteMessage(ctx context.Context, folder, id string) error {
	seq, err := uidSeqSet([]string{id})
	if err != nil {
		return b.err("delete message", folder, id, err)
	}

	err = b.withConn(ctx, func(c *client.Client) error {
		if _, err := c.Select(folder, false); err != nil {
			return err
		}
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.UidStore(seq, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
			return err
		}
		return c.Expunge(nil)
	})
	if err != nil {
		return b.err("delete message", folder, id, err)
	}
	return nil
}

func (b *Backend) withConn(ctx context.Context, fn func(*client.Client) error) error {
	c, err := b.pool.acquire(ctx)
	if err != nil {
		return err
	}

	err = fn(c)
	if err != nil && (c.State() == imap.LogoutState || isConnError(err)) {
		b.pool.discard(c)
		return err
	}
	b.pool.release(c)
	return err
}

// isConnError reports whether the failure indicates a dead connection
// rather than a server response. Such sessions are discarded instead of
// being put back in the pool.
func isConnError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func (b *Backend) err(op, folder, id string, err error) *backend.Error {
	return &backend.Error{Backend: "imap", Op: op, Folder: folder, ID: id, Err: err}
}
