package sync

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/driftmail/driftmail/internal/backend"
)

// folderState tracks on which sides a folder currently exists. In
// dry-run mode planned creations leave the flags untouched, so the
// envelope pass knows not to list the missing side.
type folderState struct {
	name     string
	onLocal  bool
	onRemote bool
}

// syncFolders equalizes the folder sets of both sides. Folders are only
// ever created, never deleted: a folder present on one side and absent
// on the other always means "create", deleting a folder is too
// destructive to automate. The first creation failure aborts the whole
// account sync, since a consistent folder set is the precondition for
// envelope reconciliation.
func syncFolders(ctx context.Context, local, remote backend.Backend, dryRun bool, report *Report, log *logrus.Entry) ([]folderState, error) {
	localFolders, err := local.ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	remoteFolders, err := remote.ListFolders(ctx)
	if err != nil {
		return nil, err
	}

	union := make(map[string]*folderState)
	for _, f := range localFolders {
		union[f.Name] = &folderState{name: f.Name, onLocal: true}
	}
	for _, f := range remoteFolders {
		if state, ok := union[f.Name]; ok {
			state.onRemote = true
		} else {
			union[f.Name] = &folderState{name: f.Name, onRemote: true}
		}
	}

	names := make([]string, 0, len(union))
	for name := range union {
		names = append(names, name)
	}
	sort.Strings(names)

	states := make([]folderState, 0, len(names))
	for _, name := range names {
		state := union[name]

		if !state.onLocal {
			report.CreatedFolders = append(report.CreatedFolders, FolderCreation{Name: name, Target: TargetLocal})
			if !dryRun {
				if err := local.AddFolder(ctx, name); err != nil {
					return nil, fmt.Errorf("creating local folder %s: %w", name, err)
				}
				state.onLocal = true
				log.WithField("folder", name).Info("created local folder")
			}
		}
		if !state.onRemote {
			report.CreatedFolders = append(report.CreatedFolders, FolderCreation{Name: name, Target: TargetRemote})
			if !dryRun {
				if err := remote.AddFolder(ctx, name); err != nil {
					return nil, fmt.Errorf("creating remote folder %s: %w", name, err)
				}
				state.onRemote = true
				log.WithField("folder", name).Info("created remote folder")
			}
		}

		states = append(states, *state)
	}

	return states, nil
}
