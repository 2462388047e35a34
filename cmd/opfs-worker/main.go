//go:build js && wasm

// opfs-worker runs within a dedicated worker and serves files of the
// origin private file system.
//
// It installs globalThis.opfsBackend, whose open(path) returns a Promise of
// a backend object with len, read, write, setLen, syncData and close
// methods, each also returning a Promise. Rejections are native Errors
// whose "name" is the error kind and whose "cause" chain follows the
// underlying failures.
//
// It also answers wire protocol frames posted to the worker as
// {id, frame: Uint8Array} with a message {id, frame} carrying the reply,
// for pages which relay an engine's storage calls.
package main

import (
	"context"
	"fmt"
	"math"
	"syscall/js"

	log "github.com/sirupsen/logrus"

	"github.com/cobaltdb/opfs/pkg/opfs"
	"github.com/cobaltdb/opfs/pkg/opfs/jshost"
	"github.com/cobaltdb/opfs/pkg/server"
	"github.com/cobaltdb/opfs/pkg/storage"
)

func main() {
	var ctx = context.Background()
	var sm = jshost.StorageManager{}
	var session = server.New(sm).NewSession()

	var api = js.Global().Get("Object").New()
	api.Set("open", js.FuncOf(func(_ js.Value, args []js.Value) any {
		return promise(func() (any, error) {
			if len(args) == 0 || args[0].Type() != js.TypeString {
				return nil, &opfs.Error{Kind: opfs.InvalidInput, Op: "open", Msg: "path must be a string"}
			}
			var b, err = opfs.Open(ctx, sm, args[0].String())
			if err != nil {
				return nil, err
			}
			return backendObject(b), nil
		})
	}))
	js.Global().Set("opfsBackend", api)

	js.Global().Call("addEventListener", "message", js.FuncOf(func(_ js.Value, args []js.Value) any {
		var data = args[0].Get("data")
		if data.Type() != js.TypeObject || !data.Get("frame").InstanceOf(js.Global().Get("Uint8Array")) {
			return nil
		}
		var id, src = data.Get("id"), data.Get("frame")

		var frame = make([]byte, src.Get("length").Int())
		js.CopyBytesToGo(frame, src)

		go func() {
			var reply, err = session.HandleFrame(ctx, frame)
			if err != nil {
				log.WithFields(log.Fields{"id": id.String(), "err": err}).Error("failed to encode reply")
				return
			}
			var out = js.Global().Get("Uint8Array").New(len(reply))
			js.CopyBytesToJS(out, reply)

			var msg = js.Global().Get("Object").New()
			msg.Set("id", id)
			msg.Set("frame", out)
			js.Global().Call("postMessage", msg)
		}()
		return nil
	}))

	log.Info("opfs-worker ready")
	select {}
}

// backendObject exposes |b| to JavaScript.
func backendObject(b storage.Backend) js.Value {
	var obj = js.Global().Get("Object").New()

	obj.Set("len", js.FuncOf(func(js.Value, []js.Value) any {
		return promise(func() (any, error) {
			var n, err = b.Len()
			return float64(n), err
		})
	}))
	obj.Set("read", js.FuncOf(func(_ js.Value, args []js.Value) any {
		return promise(func() (any, error) {
			offset, err := uint64Arg(args, 0, "offset")
			if err != nil {
				return nil, err
			}
			length, err := uint64Arg(args, 1, "length")
			if err != nil {
				return nil, err
			} else if length > math.MaxInt32 {
				return nil, &opfs.Error{Kind: opfs.InvalidInput, Op: "read",
					Msg: fmt.Sprintf("length %d is too large", length)}
			}

			var buf = make([]byte, length)
			if err = b.Read(offset, buf); err != nil {
				return nil, err
			}
			var out = js.Global().Get("Uint8Array").New(len(buf))
			js.CopyBytesToJS(out, buf)
			return out, nil
		})
	}))
	obj.Set("write", js.FuncOf(func(_ js.Value, args []js.Value) any {
		return promise(func() (any, error) {
			offset, err := uint64Arg(args, 0, "offset")
			if err != nil {
				return nil, err
			} else if len(args) < 2 || !args[1].InstanceOf(js.Global().Get("Uint8Array")) {
				return nil, &opfs.Error{Kind: opfs.InvalidInput, Op: "write", Msg: "data must be a Uint8Array"}
			}

			var data = make([]byte, args[1].Get("length").Int())
			js.CopyBytesToGo(data, args[1])
			return nil, b.Write(offset, data)
		})
	}))
	obj.Set("setLen", js.FuncOf(func(_ js.Value, args []js.Value) any {
		return promise(func() (any, error) {
			var n, err = uint64Arg(args, 0, "length")
			if err != nil {
				return nil, err
			}
			return nil, b.SetLen(n)
		})
	}))
	obj.Set("syncData", js.FuncOf(func(js.Value, []js.Value) any {
		return promise(func() (any, error) { return nil, b.SyncData() })
	}))
	obj.Set("close", js.FuncOf(func(js.Value, []js.Value) any {
		return promise(func() (any, error) { return nil, b.Close() })
	}))

	return obj
}

// promise runs |fn| on its own goroutine, settling the returned Promise
// with its result.
func promise(fn func() (any, error)) js.Value {
	var executor js.Func
	executor = js.FuncOf(func(_ js.Value, args []js.Value) any {
		var resolve, reject = args[0], args[1]

		go func() {
			defer executor.Release()

			var v, err = fn()
			if err != nil {
				reject.Invoke(jshost.ToJS(err))
				return
			}
			resolve.Invoke(v)
		}()
		return nil
	})
	return js.Global().Get("Promise").New(executor)
}

// uint64Arg returns argument |i| as an integer in [0, 2^53-1].
func uint64Arg(args []js.Value, i int, name string) (uint64, error) {
	if len(args) <= i || args[i].Type() != js.TypeNumber {
		return 0, &opfs.Error{Kind: opfs.InvalidInput, Msg: fmt.Sprintf("%s must be a number", name)}
	}
	var f = args[i].Float()

	if f < 0 || f != math.Trunc(f) || f > opfs.MaxSafeInteger {
		return 0, &opfs.Error{Kind: opfs.InvalidInput,
			Msg: fmt.Sprintf("%s must be an integer between 0 and %d", name, uint64(opfs.MaxSafeInteger))}
	}
	return uint64(f), nil
}
