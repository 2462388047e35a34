//go:build js && wasm

// Package jshost implements the opfs host interfaces over the browser's
// origin private file system, through syscall/js.
//
// Asynchronous host calls block the calling goroutine until their promise
// settles, yielding to the JavaScript event loop meanwhile. They must not be
// made from within a js.Func callback, which cannot block; run them on their
// own goroutine instead. Sync access handles are only available within a
// dedicated worker: elsewhere, acquiring one fails with
// opfs.ErrSyncAccessUnavailable.
package jshost

import (
	"context"
	"syscall/js"

	"github.com/pkg/errors"

	"github.com/cobaltdb/opfs/pkg/opfs"
)

// StorageManager is the browser's navigator.storage.
type StorageManager struct{}

var _ opfs.StorageManager = StorageManager{}

// GetDirectory resolves navigator.storage.getDirectory().
func (StorageManager) GetDirectory(ctx context.Context) (opfs.DirectoryHandle, error) {
	var storage = js.Undefined()
	if nav := js.Global().Get("navigator"); nav.Type() == js.TypeObject {
		storage = nav.Get("storage")
	}
	if storage.Type() != js.TypeObject || storage.Get("getDirectory").Type() != js.TypeFunction {
		return nil, errors.New("navigator.storage.getDirectory is not available in this context")
	}

	promise, err := call(storage, "getDirectory")
	if err != nil {
		return nil, err
	}
	dir, err := await(ctx, promise, nil)
	if err != nil {
		return nil, err
	}
	return dirHandle{v: dir}, nil
}

type dirHandle struct{ v js.Value }

func (d dirHandle) Name() string { return d.v.Get("name").String() }

func (d dirHandle) GetDirectoryHandle(ctx context.Context, name string, opts opfs.GetOptions) (opfs.DirectoryHandle, error) {
	promise, err := call(d.v, "getDirectoryHandle", name, getOptions(opts))
	if err != nil {
		return nil, err
	}
	dir, err := await(ctx, promise, nil)
	if err != nil {
		return nil, err
	}
	return dirHandle{v: dir}, nil
}

func (d dirHandle) GetFileHandle(ctx context.Context, name string, opts opfs.GetOptions) (opfs.FileHandle, error) {
	promise, err := call(d.v, "getFileHandle", name, getOptions(opts))
	if err != nil {
		return nil, err
	}
	file, err := await(ctx, promise, nil)
	if err != nil {
		return nil, err
	}
	return fileHandle{v: file}, nil
}

type fileHandle struct{ v js.Value }

func (f fileHandle) Name() string { return f.v.Get("name").String() }

func (f fileHandle) CreateSyncAccessHandle(ctx context.Context) (opfs.SyncAccessHandle, error) {
	if f.v.Get("createSyncAccessHandle").Type() != js.TypeFunction {
		return nil, opfs.ErrSyncAccessUnavailable
	}

	promise, err := call(f.v, "createSyncAccessHandle")
	if err != nil {
		return nil, err
	}
	// If the caller stops waiting, a handle which arrives later is closed
	// so that the file is not left locked.
	handle, err := await(ctx, promise, func(v js.Value) { _, _ = call(v, "close") })
	if err != nil {
		return nil, err
	}
	return syncHandle{v: handle}, nil
}

type syncHandle struct{ v js.Value }

func (h syncHandle) GetSize() (uint64, error) {
	var size, err = call(h.v, "getSize")
	if err != nil {
		return 0, err
	}
	return uint64(size.Float()), nil
}

func (h syncHandle) Truncate(size uint64) error {
	var _, err = call(h.v, "truncate", float64(size))
	return err
}

func (h syncHandle) Flush() error {
	var _, err = call(h.v, "flush")
	return err
}

func (h syncHandle) Read(p []byte, at uint64) (int, error) {
	var buf = js.Global().Get("Uint8Array").New(len(p))

	ret, err := call(h.v, "read", buf, map[string]any{"at": float64(at)})
	if err != nil {
		return 0, err
	}
	var n = ret.Int()
	js.CopyBytesToGo(p[:n], buf)
	return n, nil
}

func (h syncHandle) Write(p []byte, at uint64) (int, error) {
	var buf = js.Global().Get("Uint8Array").New(len(p))
	js.CopyBytesToJS(buf, p)

	ret, err := call(h.v, "write", buf, map[string]any{"at": float64(at)})
	if err != nil {
		return 0, err
	}
	return ret.Int(), nil
}

func (h syncHandle) Close() error {
	var _, err = call(h.v, "close")
	return err
}

func getOptions(opts opfs.GetOptions) map[string]any {
	return map[string]any{"create": opts.Create}
}

// call invokes |method| of |v|, returning a JavaScript exception as an error.
func call(v js.Value, method string, args ...any) (ret js.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if jsErr, ok := r.(js.Error); ok {
				err = FromJS(jsErr.Value)
				return
			}
			panic(r)
		}
	}()
	return v.Call(method, args...), nil
}

// await blocks until |promise| settles or |ctx| is done. If |ctx| ends
// first, |abandoned| (if non-nil) receives the value the promise later
// fulfills with.
func await(ctx context.Context, promise js.Value, abandoned func(js.Value)) (js.Value, error) {
	type result struct {
		v   js.Value
		err error
	}
	var ch = make(chan result, 1)

	var onFulfilled = js.FuncOf(func(_ js.Value, args []js.Value) any {
		ch <- result{v: arg0(args)}
		return nil
	})
	var onRejected = js.FuncOf(func(_ js.Value, args []js.Value) any {
		ch <- result{err: FromJS(arg0(args))}
		return nil
	})
	var release = func() {
		onFulfilled.Release()
		onRejected.Release()
	}
	promise.Call("then", onFulfilled, onRejected)

	select {
	case r := <-ch:
		release()
		return r.v, r.err
	case <-ctx.Done():
		go func() {
			var r = <-ch
			release()
			if r.err == nil && abandoned != nil {
				abandoned(r.v)
			}
		}()
		return js.Undefined(), ctx.Err()
	}
}

func arg0(args []js.Value) js.Value {
	if len(args) == 0 {
		return js.Undefined()
	}
	return args[0]
}

// FromJS converts a thrown or rejected JavaScript value into an error.
// A DOMException becomes an *opfs.DOMException; any other value becomes
// an *opfs.ForeignError, following the chain of its "cause" properties.
func FromJS(v js.Value) error {
	if ctor := js.Global().Get("DOMException"); ctor.Type() == js.TypeFunction && v.InstanceOf(ctor) {
		return &opfs.DOMException{
			Name:    v.Get("name").String(),
			Code:    v.Get("code").Int(),
			Message: v.Get("message").String(),
		}
	}
	return foreignFromJS(v, 0)
}

// maxCauseDepth bounds the walk of a (possibly cyclic) cause chain.
const maxCauseDepth = 32

func foreignFromJS(v js.Value, depth int) *opfs.ForeignError {
	if v.Type() != js.TypeObject || !v.InstanceOf(js.Global().Get("Error")) {
		return &opfs.ForeignError{
			Name:    "Error",
			Message: js.Global().Get("String").Invoke(v).String(),
		}
	}

	var out = &opfs.ForeignError{
		Name:    v.Get("name").String(),
		Message: v.Get("message").String(),
	}
	if cause := v.Get("cause"); !cause.IsUndefined() && depth < maxCauseDepth {
		out.Cause = foreignFromJS(cause, depth+1)
	}
	return out
}

// ToJS converts err into a native JavaScript Error whose "cause" chain
// mirrors err's, and whose name is the opfs Kind of err.
func ToJS(err error) js.Value {
	if err == nil {
		return js.Null()
	}
	return foreignToJS(opfs.ToForeign(err))
}

func foreignToJS(f *opfs.ForeignError) js.Value {
	var out = js.Global().Get("Error").New(f.Message)
	out.Set("name", f.Name)

	if f.Cause != nil {
		out.Set("cause", foreignToJS(f.Cause))
	}
	return out
}
