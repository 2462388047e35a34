package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/cobaltdb/opfs/pkg/storage"
)

type cmdLen struct {
	Args PathArg `positional-args:"yes"`
}

func (cmd *cmdLen) Execute([]string) error {
	startup()

	return withBackend(context.Background(), cmd.Args.Path, func(b storage.Backend) error {
		var n, err = b.Len()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, n)
		return err
	})
}

type cmdStat struct {
	Args PathArg `positional-args:"yes"`
}

func (cmd *cmdStat) Execute([]string) error {
	startup()

	return withBackend(context.Background(), cmd.Args.Path, func(b storage.Backend) error {
		var n, err = b.Len()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "path: %s\nlength: %s bytes (%s)\n",
			cmd.Args.Path, humanize.Comma(int64(n)), humanize.IBytes(n))
		return err
	})
}

type cmdRead struct {
	Offset uint64 `long:"offset" short:"o" default:"0" description:"Byte offset to read from"`
	Length uint64 `long:"length" short:"n" default:"0" description:"Number of bytes to read. Zero reads through the end of the file"`
	Raw    bool   `long:"raw" description:"Write bytes as-is rather than as a hex dump"`

	Args PathArg `positional-args:"yes"`
}

func (cmd *cmdRead) Execute([]string) error {
	startup()

	return withBackend(context.Background(), cmd.Args.Path, func(b storage.Backend) error {
		var length = cmd.Length
		if length == 0 {
			var n, err = b.Len()
			if err != nil {
				return err
			} else if cmd.Offset > n {
				return errors.Errorf("offset %d is beyond the file length %d", cmd.Offset, n)
			}
			length = n - cmd.Offset
		}

		var out = make([]byte, length)
		if err := b.Read(cmd.Offset, out); err != nil {
			return err
		}

		if cmd.Raw {
			var _, err = stdout.Write(out)
			return err
		}
		var w = hex.Dumper(stdout)
		if _, err := w.Write(out); err != nil {
			return err
		}
		return w.Close()
	})
}

type cmdWrite struct {
	Offset uint64 `long:"offset" short:"o" default:"0" description:"Byte offset to write at"`
	Input  string `long:"input" short:"i" default:"-" description:"Input file to write if DATA is not given. Use '-' for stdin"`

	Args struct {
		Path string `positional-arg-name:"PATH" required:"yes" description:"Slash-separated path of the file within the storage area"`
		Data string `positional-arg-name:"DATA" description:"Bytes to write"`
	} `positional-args:"yes"`
}

func (cmd *cmdWrite) Execute([]string) error {
	startup()

	var data = []byte(cmd.Args.Data)
	if cmd.Args.Data == "" {
		var err error
		if data, err = cmd.readInput(); err != nil {
			return err
		}
	}

	return withBackend(context.Background(), cmd.Args.Path, func(b storage.Backend) error {
		if err := b.Write(cmd.Offset, data); err != nil {
			return err
		}
		return b.SyncData()
	})
}

func (cmd *cmdWrite) readInput() ([]byte, error) {
	if cmd.Input == "-" {
		return io.ReadAll(os.Stdin)
	}
	var data, err = os.ReadFile(cmd.Input)
	return data, errors.WithMessage(err, "reading input")
}

type cmdTruncate struct {
	Args struct {
		Path   string `positional-arg-name:"PATH" required:"yes" description:"Slash-separated path of the file within the storage area"`
		Length uint64 `positional-arg-name:"LENGTH" required:"yes" description:"New length of the file in bytes"`
	} `positional-args:"yes"`
}

func (cmd *cmdTruncate) Execute([]string) error {
	startup()

	return withBackend(context.Background(), cmd.Args.Path, func(b storage.Backend) error {
		if err := b.SetLen(cmd.Args.Length); err != nil {
			return err
		}
		return b.SyncData()
	})
}
