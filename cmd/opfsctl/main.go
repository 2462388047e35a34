// opfsctl inspects and edits files of an origin private storage area
// emulated on the local file system, or served by another opfsctl.
package main

import (
	"context"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/cobaltdb/opfs/pkg/opfs/hostfs"
	"github.com/cobaltdb/opfs/pkg/server"
	"github.com/cobaltdb/opfs/pkg/storage"
	"github.com/cobaltdb/opfs/pkg/store"
)

var (
	baseCfg = new(struct {
		Root    string    `long:"root" env:"OPFS_ROOT" default:"opfs-data" description:"Directory holding the emulated storage area"`
		Backend string    `long:"backend" env:"OPFS_BACKEND" default:"opfs" choice:"opfs" choice:"disk" description:"Access files beneath --root through the emulated storage area, or as plain files"`
		Server  string    `long:"server" env:"OPFS_SERVER" description:"Address of an 'opfsctl serve' process to use instead of --root"`
		Log     LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
	})

	// stdout receives command output.
	stdout io.Writer = os.Stdout
)

// PathArg is the positional path argument of file commands.
type PathArg struct {
	Path string `positional-arg-name:"PATH" required:"yes" description:"Slash-separated path of the file within the storage area"`
}

func startup() {
	initLog(baseCfg.Log)
}

// rootFs returns the file system beneath --root, creating its directory
// if needed.
func rootFs() (afero.Fs, error) {
	var osFs = afero.NewOsFs()
	if err := osFs.MkdirAll(baseCfg.Root, 0755); err != nil {
		return nil, errors.WithMessagef(err, "creating root %s", baseCfg.Root)
	}
	return afero.NewBasePathFs(osFs, baseCfg.Root), nil
}

// area returns the emulated storage area at --root.
func area() (*hostfs.Area, error) {
	var fs, err = rootFs()
	if err != nil {
		return nil, err
	}
	return hostfs.New(fs), nil
}

// withBackend opens |path| through --server or beneath --root, runs |fn|
// with it, and closes it.
func withBackend(ctx context.Context, path string, fn func(storage.Backend) error) error {
	var st store.Store
	var opener store.Opener

	if baseCfg.Server != "" {
		client, err := server.Dial(ctx, baseCfg.Server)
		if err != nil {
			return err
		}
		defer client.Close()

		opener = func(ctx context.Context) (storage.Backend, error) {
			var b, err = client.Open(ctx, path)
			if err != nil {
				return nil, err
			}
			return b, nil
		}
	} else if baseCfg.Backend == "disk" {
		var fs, err = rootFs()
		if err != nil {
			return err
		}
		opener = func(context.Context) (storage.Backend, error) {
			var b, err = storage.OpenDisk(fs, path)
			if err != nil {
				return nil, err
			}
			return b, nil
		}
	} else {
		var a, err = area()
		if err != nil {
			return err
		}
		opener = store.OpenerFor(a, path)
	}

	if err := st.Init(ctx, opener); err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.WithFields(log.Fields{"path": path, "err": err}).Warn("failed to close backend")
		}
	}()

	var b, err = st.Backend()
	if err != nil {
		return err
	}
	return fn(b)
}

func mustAddCmd(cmd *flags.Command, name, short, long string, cfg interface{}) *flags.Command {
	var added, err = cmd.AddCommand(name, short, long, cfg)
	if err != nil {
		log.WithField("err", err).Fatal("failed to add command")
	}
	return added
}

func newParser() *flags.Parser {
	var parser = flags.NewParser(baseCfg, flags.Default)
	parser.LongDescription = `opfsctl is a tool for inspecting and editing files of an origin private
storage area. By default it operates on an emulation of the storage area rooted
at the --root directory. With --server, it operates on the storage area of a
running 'opfsctl serve' process instead.

Every command opens its file exactly as an embedded engine would: directories
of the path are created as needed, and the file's exclusive access handle is
held for the command's duration.`

	mustAddCmd(parser.Command, "len", "Print the length of a file", "", &cmdLen{})
	mustAddCmd(parser.Command, "stat", "Describe a file", "", &cmdStat{})
	mustAddCmd(parser.Command, "read", "Read bytes of a file", `
Read --length bytes of the file at --offset, and print them as a hex dump or,
with --raw, as-is. A --length of zero reads through the end of the file.
`, &cmdRead{})
	mustAddCmd(parser.Command, "write", "Write bytes to a file", `
Write DATA, or the content of --input if DATA is not given, to the file at
--offset. The file is extended as needed, and synced after the write.
`, &cmdWrite{})
	mustAddCmd(parser.Command, "truncate", "Set the length of a file", `
Shrink or zero-extend the file to exactly LENGTH bytes, and sync it.
`, &cmdTruncate{})
	mustAddCmd(parser.Command, "serve", "Serve the storage area to other clients", `
Serve files of the --root storage area over the wire protocol to clients
such as 'opfsctl --server'. Files opened by a client are released when
it disconnects.
`, &cmdServe{})

	return parser
}

func main() {
	if _, err := newParser().Parse(); err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
