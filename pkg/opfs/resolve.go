package opfs

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ResolveDir walks from the storage area root through |dirs|, creating
// each missing directory, and returns the handle of the last one (or of
// the root, if |dirs| is empty). Directories created before a failing step
// are left in place: creation is additive and idempotent, so a later
// attempt simply resumes.
func ResolveDir(ctx context.Context, sm StorageManager, dirs []string) (DirectoryHandle, error) {
	for _, name := range dirs {
		if !validSegment(name) {
			return nil, invalidInput("resolve", fmt.Sprintf("non-normal component in path: %q", name))
		}
	}

	dir, err := sm.GetDirectory(ctx)
	if err != nil {
		return nil, errors.WithMessage(withOp("getDirectory", err), "resolving storage root")
	}

	for i, name := range dirs {
		if dir, err = dir.GetDirectoryHandle(ctx, name, GetOptions{Create: true}); err != nil {
			return nil, errors.WithMessagef(withOp("getDirectoryHandle", err),
				"resolving directory %q", strings.Join(dirs[:i+1], "/"))
		}
		log.WithFields(log.Fields{
			"dir":   strings.Join(dirs[:i+1], "/"),
			"depth": i + 1,
		}).Trace("opfs: resolved directory")
	}
	return dir, nil
}
