package opfs

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Acquire opens the file |name| within |dir|, creating it if missing, and
// upgrades it to an exclusive SyncAccessHandle. A handle already held by
// another context fails with a Contention Error. Acquire does not retry:
// whether and when to try again is the caller's decision.
func Acquire(ctx context.Context, dir DirectoryHandle, name string) (SyncAccessHandle, error) {
	if !validSegment(name) {
		return nil, invalidInput("acquire", fmt.Sprintf("invalid file name: %q", name))
	}

	file, err := dir.GetFileHandle(ctx, name, GetOptions{Create: true})
	if err != nil {
		return nil, errors.WithMessagef(withOp("getFileHandle", err), "opening file %q", name)
	}

	handle, err := file.CreateSyncAccessHandle(ctx)
	if err != nil {
		err = translateAcquire(err)

		if IsKind(err, Contention) {
			log.WithFields(log.Fields{"file": name, "err": err}).
				Warn("opfs: sync access handle is held by another context")
		}
		return nil, errors.WithMessagef(err, "acquiring sync access handle for %q", name)
	}
	return handle, nil
}
