package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/cobaltdb/opfs/pkg/opfs"
	"github.com/cobaltdb/opfs/pkg/opfs/hostfs"
	"github.com/cobaltdb/opfs/pkg/server"
)

func TestCommandsAgainstRoot(t *testing.T) {
	var root = t.TempDir()
	var run = runner(t, "--root", root)

	_, err := run("write", "app/data.db", "hello")
	require.NoError(t, err)
	require.Equal(t, "5\n", mustRun(t, run, "len", "app/data.db"))

	_, err = run("write", "--offset", "5", "app/data.db", ", world")
	require.NoError(t, err)
	require.Equal(t, "hello, world", mustRun(t, run, "read", "--raw", "app/data.db"))
	require.Equal(t, "world", mustRun(t, run, "read", "--raw", "-o", "7", "-n", "5", "app/data.db"))

	_, err = run("truncate", "app/data.db", "2048")
	require.NoError(t, err)
	require.Equal(t, "path: app/data.db\nlength: 2,048 bytes (2.0 KiB)\n",
		mustRun(t, run, "stat", "app/data.db"))
	require.Equal(t, hex.Dump([]byte("he")), mustRun(t, run, "read", "-n", "2", "app/data.db"))

	// The file is an ordinary file beneath --root.
	data, err := os.ReadFile(filepath.Join(root, "app", "data.db"))
	require.NoError(t, err)
	require.Len(t, data, 2048)
	require.Equal(t, "hello, world", string(data[:12]))
}

func TestDiskBackend(t *testing.T) {
	var root = t.TempDir()
	var run = runner(t, "--root", root, "--backend", "disk")

	_, err := run("write", "-o", "2", "plain/data.db", "xy")
	require.NoError(t, err)
	require.Equal(t, "\x00\x00xy", mustRun(t, run, "read", "--raw", "plain/data.db"))

	data, err := os.ReadFile(filepath.Join(root, "plain", "data.db"))
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 'x', 'y'}, data)
}

func TestCommandErrors(t *testing.T) {
	var run = runner(t, "--root", t.TempDir())

	_, err := run("read", "-n", "4", "empty.db")
	require.True(t, opfs.IsKind(err, opfs.Other), "%v", err)
	require.Contains(t, err.Error(), "failed to fill whole buffer")

	_, err = run("read", "-o", "9", "empty.db")
	require.EqualError(t, err, "offset 9 is beyond the file length 0")

	_, err = run("len", "a/../b.db")
	require.True(t, opfs.IsKind(err, opfs.InvalidInput), "%v", err)

	_, err = run("truncate", "big.db", "9007199254740992")
	require.True(t, opfs.IsKind(err, opfs.InvalidInput), "%v", err)
}

func TestCommandsAgainstServer(t *testing.T) {
	var area = hostfs.NewMem()
	var srv = server.New(area)
	defer srv.Close()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(listener)

	var run = runner(t, "--server", listener.Addr().String())

	_, err = run("write", "remote/data.db", "abc")
	require.NoError(t, err)
	require.Equal(t, "3\n", mustRun(t, run, "len", "remote/data.db"))

	data, err := afero.ReadFile(area.Fs(), "/remote/data.db")
	require.NoError(t, err)
	require.Equal(t, "abc", string(data))

	// A file held elsewhere is reported as contended.
	held, err := opfs.Open(context.Background(), area, "remote/data.db")
	require.NoError(t, err)
	defer held.Close()

	_, err = run("len", "remote/data.db")
	require.True(t, opfs.IsKind(err, opfs.Contention), "%v", err)
}

func runner(t *testing.T, global ...string) func(args ...string) (string, error) {
	var buf bytes.Buffer
	stdout = &buf

	t.Cleanup(func() {
		stdout = os.Stdout
		baseCfg.Server = ""
	})

	return func(args ...string) (string, error) {
		buf.Reset()
		baseCfg.Server = ""

		var _, err = newParser().ParseArgs(append(append([]string{}, global...), args...))
		return buf.String(), err
	}
}

func mustRun(t *testing.T, run func(...string) (string, error), args ...string) string {
	var out, err = run(args...)
	require.NoError(t, err)
	return out
}
