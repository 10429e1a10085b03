package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/driftmail/driftmail/internal/backend"
	"github.com/driftmail/driftmail/internal/cache"
	"github.com/driftmail/driftmail/pkg/types"
)

// envelopeSyncer reconciles the messages of one folder between the
// local and remote side, using the cache as the base of a three-way
// merge. Conflict policy is fixed: deletions always propagate, new
// messages always propagate, remote wins when both sides changed flags
// independently.
type envelopeSyncer struct {
	account string
	folder  folderState
	local   backend.Backend
	remote  backend.Backend
	store   *cache.Cache
	dryRun  bool
	log     *logrus.Entry
}

// hashed pairs a live envelope with its content hash so the hash is
// computed once per listing.
type hashed struct {
	env  types.Envelope
	hash string
}

func indexByHash(envelopes []types.Envelope) ([]hashed, map[string]types.Envelope) {
	list := make([]hashed, 0, len(envelopes))
	byHash := make(map[string]types.Envelope, len(envelopes))
	for _, env := range envelopes {
		h := env.ContentHash()
		list = append(list, hashed{env: env, hash: h})
		if _, ok := byHash[h]; !ok {
			byHash[h] = env
		}
	}
	return list, byHash
}

// run computes and (unless dry-run) applies the patch for the folder.
// Every applied operation is immediately followed by its cache write;
// the first failure aborts the rest of the folder, leaving everything
// applied so far durable and the remainder safe to re-run.
func (s *envelopeSyncer) run(ctx context.Context) ([]Operation, error) {
	remoteKey := s.account
	localKey := cache.LocalKey(s.account)

	cachedRemote, err := s.store.ListFolder(ctx, remoteKey, s.folder.name)
	if err != nil {
		return nil, err
	}
	cachedLocal, err := s.store.ListFolder(ctx, localKey, s.folder.name)
	if err != nil {
		return nil, err
	}

	var localLive, remoteLive []types.Envelope
	if s.folder.onLocal {
		localLive, err = s.local.ListEnvelopes(ctx, s.folder.name, 0, 0)
		if err != nil {
			return nil, err
		}
	}
	if s.folder.onRemote {
		remoteLive, err = s.remote.ListEnvelopes(ctx, s.folder.name, 0, 0)
		if err != nil {
			return nil, err
		}
	}

	remoteList, remoteByHash := indexByHash(remoteLive)
	localList, localByHash := indexByHash(localLive)

	order := mergeOrder(remoteList, localList, cachedRemote, cachedLocal)

	var ops []Operation
	for _, h := range order {
		hashOps, err := s.reconcileHash(ctx, h, localByHash, remoteByHash, cachedLocal, cachedRemote)
		ops = append(ops, hashOps...)
		if err != nil {
			return ops, fmt.Errorf("hash %s: %w", h, err)
		}
	}

	return ops, nil
}

// mergeOrder produces the union of all known hashes, newest first.
// Live envelopes come before cache-only leftovers; ties on date keep
// the backend-reported order (remote listing first).
func mergeOrder(remoteList, localList []hashed, cachedRemote, cachedLocal map[string]cache.Row) []string {
	type entry struct {
		hash string
		date time.Time
	}

	var entries []entry
	seen := make(map[string]bool)
	add := func(hash string, date time.Time) {
		if !seen[hash] {
			seen[hash] = true
			entries = append(entries, entry{hash: hash, date: date})
		}
	}

	for _, h := range remoteList {
		add(h.hash, h.env.Date)
	}
	for _, h := range localList {
		add(h.hash, h.env.Date)
	}

	// Cache maps iterate in random order; sort the leftovers for a
	// deterministic pass.
	var stale []cache.Row
	for _, row := range cachedRemote {
		stale = append(stale, row)
	}
	for _, row := range cachedLocal {
		stale = append(stale, row)
	}
	sort.Slice(stale, func(i, j int) bool {
		if stale[i].Date != stale[j].Date {
			return stale[i].Date > stale[j].Date
		}
		return stale[i].Hash < stale[j].Hash
	})
	for _, row := range stale {
		add(row.Hash, row.Envelope().Date)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].date.After(entries[j].date)
	})

	order := make([]string, 0, len(entries))
	for _, e := range entries {
		order = append(order, e.hash)
	}
	return order
}

// reconcileHash classifies one hash into exactly one case and emits
// (and applies) the resulting operations.
func (s *envelopeSyncer) reconcileHash(
	ctx context.Context,
	hash string,
	localByHash, remoteByHash map[string]types.Envelope,
	cachedLocal, cachedRemote map[string]cache.Row,
) ([]Operation, error) {
	localEnv, onLocal := localByHash[hash]
	remoteEnv, onRemote := remoteByHash[hash]
	localRow, localCached := cachedLocal[hash]
	remoteRow, remoteCached := cachedRemote[hash]
	cached := localCached || remoteCached

	switch {
	case onLocal && onRemote:
		return s.reconcileFlags(ctx, hash, localEnv, remoteEnv, localRow, localCached, remoteRow, remoteCached)

	case cached && onLocal:
		// Known message gone from the remote side: the deletion is
		// honored, not resurrected.
		return s.applyDelete(ctx, hash, TargetLocal, localEnv)

	case cached && onRemote:
		return s.applyDelete(ctx, hash, TargetRemote, remoteEnv)

	case onLocal:
		// Genuinely new on the local side.
		return s.applyAdd(ctx, hash, TargetRemote, localEnv)

	case onRemote:
		return s.applyAdd(ctx, hash, TargetLocal, remoteEnv)

	default:
		// Stale cache row: absent from both live sides, drop silently.
		if s.dryRun {
			return nil, nil
		}
		if localCached {
			if err := s.store.Delete(ctx, cache.LocalKey(s.account), s.folder.name, hash); err != nil {
				return nil, err
			}
		}
		if remoteCached {
			if err := s.store.Delete(ctx, s.account, s.folder.name, hash); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
}

// reconcileFlags handles a message present on both sides: last-observed
// flags win over cached flags, and if both sides changed since the last
// sync the remote side is the system of record.
func (s *envelopeSyncer) reconcileFlags(
	ctx context.Context,
	hash string,
	localEnv, remoteEnv types.Envelope,
	localRow cache.Row, localCached bool,
	remoteRow cache.Row, remoteCached bool,
) ([]Operation, error) {
	remoteChanged := !remoteCached || !remoteEnv.Flags.Equal(remoteRow.FlagSet())
	localChanged := !localCached || !localEnv.Flags.Equal(localRow.FlagSet())

	want := remoteEnv.Flags
	if !remoteChanged && localChanged {
		want = localEnv.Flags
	}

	var ops []Operation
	if !localEnv.Flags.Equal(want) {
		op := Operation{
			Kind:     OpSetFlags,
			Target:   TargetLocal,
			Folder:   s.folder.name,
			Hash:     hash,
			ID:       localEnv.ID,
			Flags:    want.Clone(),
			Envelope: localEnv,
		}
		ops = append(ops, op)
		if !s.dryRun {
			if err := s.local.SetFlags(ctx, s.folder.name, localEnv.ID, want); err != nil {
				return ops, err
			}
		}
	}
	if !remoteEnv.Flags.Equal(want) {
		op := Operation{
			Kind:     OpSetFlags,
			Target:   TargetRemote,
			Folder:   s.folder.name,
			Hash:     hash,
			ID:       remoteEnv.ID,
			Flags:    want.Clone(),
			Envelope: remoteEnv,
		}
		ops = append(ops, op)
		if !s.dryRun {
			if err := s.remote.SetFlags(ctx, s.folder.name, remoteEnv.ID, want); err != nil {
				return ops, err
			}
		}
	}

	if s.dryRun {
		return ops, nil
	}

	// Refresh the cache rows so the next run sees this state as the
	// merge base. Unchanged rows are skipped to keep no-op syncs
	// write-free.
	wantRemote := remoteEnv
	wantRemote.Flags = want
	newRemoteRow := cache.NewRow(s.account, s.folder.name, wantRemote)
	if !remoteCached || remoteRow != newRemoteRow {
		if err := s.store.Upsert(ctx, newRemoteRow); err != nil {
			return ops, err
		}
	}

	wantLocal := localEnv
	wantLocal.Flags = want
	newLocalRow := cache.NewRow(cache.LocalKey(s.account), s.folder.name, wantLocal)
	if !localCached || localRow != newLocalRow {
		if err := s.store.Upsert(ctx, newLocalRow); err != nil {
			return ops, err
		}
	}

	return ops, nil
}

// applyAdd propagates a genuinely new message to the side lacking it.
// If the target side already holds the same content in another folder
// (per the cache), a same-backend copy avoids the cross-backend
// transfer; otherwise the raw content is fetched from the source side
// and inserted on the target. Either way both sides' rows are cached.
func (s *envelopeSyncer) applyAdd(ctx context.Context, hash string, target Target, sourceEnv types.Envelope) ([]Operation, error) {
	targetKey := cache.LocalKey(s.account)
	if target == TargetRemote {
		targetKey = s.account
	}
	if row, ok, err := s.store.FindHash(ctx, targetKey, hash, s.folder.name); err != nil {
		return nil, err
	} else if ok {
		ops, done, err := s.applyCopy(ctx, hash, target, sourceEnv, row)
		if err != nil || done {
			return ops, err
		}
		// Copy source vanished; fall back to a cross-backend add.
	}

	op := Operation{
		Kind:     OpAdd,
		Target:   target,
		Folder:   s.folder.name,
		Hash:     hash,
		SourceID: sourceEnv.ID,
		Flags:    sourceEnv.Flags.Clone(),
		Envelope: sourceEnv,
	}
	ops := []Operation{op}
	if s.dryRun {
		return ops, nil
	}

	source, dest := s.remote, s.local
	if target == TargetRemote {
		source, dest = s.local, s.remote
	}

	messages, err := source.GetMessages(ctx, s.folder.name, []string{sourceEnv.ID})
	if err != nil {
		return ops, err
	}
	if len(messages) == 0 {
		return ops, fmt.Errorf("message %s vanished from %s during sync", sourceEnv.ID, source.Name())
	}

	newID, err := dest.AddMessage(ctx, s.folder.name, messages[0].Raw, sourceEnv.Flags)
	if err != nil {
		return ops, err
	}

	localEnv, remoteEnv := sourceEnv, sourceEnv
	if target == TargetLocal {
		localEnv.ID = newID
	} else {
		remoteEnv.ID = newID
	}

	if err := s.store.Upsert(ctx, cache.NewRow(s.account, s.folder.name, remoteEnv)); err != nil {
		return ops, err
	}
	if err := s.store.Upsert(ctx, cache.NewRow(cache.LocalKey(s.account), s.folder.name, localEnv)); err != nil {
		return ops, err
	}

	s.log.WithFields(logrus.Fields{"folder": s.folder.name, "target": target.String(), "id": newID}).
		Debug("propagated new message")
	return ops, nil
}

// applyCopy duplicates a message the target side already stores in
// another folder. Returns done=false when the cached copy source no
// longer exists, in which case the caller falls back to a fetch+add.
func (s *envelopeSyncer) applyCopy(ctx context.Context, hash string, target Target, sourceEnv types.Envelope, row cache.Row) ([]Operation, bool, error) {
	op := Operation{
		Kind:      OpCopy,
		Target:    target,
		Folder:    row.Folder,
		DstFolder: s.folder.name,
		Hash:      hash,
		ID:        row.InternalID,
		Flags:     sourceEnv.Flags.Clone(),
		Envelope:  sourceEnv,
	}
	ops := []Operation{op}
	if s.dryRun {
		return ops, true, nil
	}

	dest := s.local
	if target == TargetRemote {
		dest = s.remote
	}

	if err := dest.CopyMessage(ctx, row.Folder, s.folder.name, row.InternalID); err != nil {
		// Only a vanished copy source falls back to a cross-backend
		// add; any other backend failure aborts the folder.
		if !errors.Is(err, fs.ErrNotExist) {
			return ops, true, err
		}
		s.log.WithFields(logrus.Fields{"folder": row.Folder, "id": row.InternalID}).
			Debug("cached copy source vanished")
		return nil, false, nil
	}

	// The copy got a fresh id on the destination; re-list to find it.
	envelopes, err := dest.ListEnvelopes(ctx, s.folder.name, 0, 0)
	if err != nil {
		return ops, true, err
	}
	var copied types.Envelope
	for _, env := range envelopes {
		if env.ContentHash() == hash {
			copied = env
			break
		}
	}
	if copied.ID == "" {
		return ops, true, fmt.Errorf("copied message %s not found in %s", row.InternalID, s.folder.name)
	}

	if !copied.Flags.Equal(sourceEnv.Flags) {
		if err := dest.SetFlags(ctx, s.folder.name, copied.ID, sourceEnv.Flags); err != nil {
			return ops, true, err
		}
		copied.Flags = sourceEnv.Flags.Clone()
	}

	localEnv, remoteEnv := sourceEnv, sourceEnv
	if target == TargetLocal {
		localEnv.ID = copied.ID
	} else {
		remoteEnv.ID = copied.ID
	}
	if err := s.store.Upsert(ctx, cache.NewRow(s.account, s.folder.name, remoteEnv)); err != nil {
		return ops, true, err
	}
	if err := s.store.Upsert(ctx, cache.NewRow(cache.LocalKey(s.account), s.folder.name, localEnv)); err != nil {
		return ops, true, err
	}

	return ops, true, nil
}

// applyDelete removes the message from the side that still has it and
// drops both cache rows.
func (s *envelopeSyncer) applyDelete(ctx context.Context, hash string, target Target, env types.Envelope) ([]Operation, error) {
	op := Operation{
		Kind:     OpDelete,
		Target:   target,
		Folder:   s.folder.name,
		Hash:     hash,
		ID:       env.ID,
		Envelope: env,
	}
	ops := []Operation{op}
	if s.dryRun {
		return ops, nil
	}

	side := s.local
	if target == TargetRemote {
		side = s.remote
	}
	if err := side.DeleteMessage(ctx, s.folder.name, env.ID); err != nil {
		return ops, err
	}

	if err := s.store.Delete(ctx, s.account, s.folder.name, hash); err != nil {
		return ops, err
	}
	if err := s.store.Delete(ctx, cache.LocalKey(s.account), s.folder.name, hash); err != nil {
		return ops, err
	}

	s.log.WithFields(logrus.Fields{"folder": s.folder.name, "target": target.String(), "id": env.ID}).
		Debug("propagated deletion")
	return ops, nil
}
