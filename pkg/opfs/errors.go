package opfs

import (
	"strings"

	"github.com/pkg/errors"
)

// Kind is the portable category of an Error.
type Kind int

const (
	Other Kind = iota
	NotFound
	PermissionDenied
	InvalidInput
	TypeMismatch
	Contention
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case PermissionDenied:
		return "PermissionDenied"
	case InvalidInput:
		return "InvalidInput"
	case TypeMismatch:
		return "TypeMismatch"
	case Contention:
		return "Contention"
	default:
		return "Other"
	}
}

// Name is the error name used when the Kind crosses to the host.
func (k Kind) Name() string { return k.String() + "Error" }

// ParseKind returns the Kind whose Name is |name|.
func ParseKind(name string) (Kind, bool) {
	for k := Other; k <= Contention; k++ {
		if k.Name() == name {
			return k, true
		}
	}
	return Other, false
}

func (k Kind) describe() string {
	switch k {
	case NotFound:
		return "entity not found"
	case PermissionDenied:
		return "permission denied"
	case InvalidInput:
		return "invalid input parameter"
	case TypeMismatch:
		return "type mismatch"
	case Contention:
		return "resource busy"
	default:
		return "other error"
	}
}

// Error is a portable failure of the adapter. Err, if set, is the
// underlying cause and remains reachable through errors.Is and errors.As.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var head = e.head()
	if e.Err == nil {
		return head
	} else if head == "" {
		return e.Err.Error()
	}
	return head + ": " + e.Err.Error()
}

// head is the message of this level only, excluding its cause.
func (e *Error) head() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	} else if e.Err == nil {
		parts = append(parts, e.Kind.describe())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error { return e.Err }

// Cause implements the github.com/pkg/errors causer interface.
func (e *Error) Cause() error { return e.Err }

// KindOf returns the Kind of the first Error in err's chain,
// or Other if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// IsKind reports whether err's chain carries an Error of Kind |k|.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// ErrSyncAccessUnavailable is returned when the host cannot provide
// synchronous access handles, as on a browser's main thread.
var ErrSyncAccessUnavailable = errors.New(
	"synchronous access handles are only available in a dedicated worker")

// Translate maps a host failure into an *Error, preserving |err| as its
// cause. Errors which already carry an *Error are returned unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}

	var portable *Error
	if errors.As(err, &portable) {
		return err
	}

	var dom *DOMException
	if !errors.As(err, &dom) {
		return &Error{Kind: Other, Err: err}
	}

	switch {
	case dom.Code == NotFoundErr:
		return &Error{Kind: NotFound, Err: err}
	case dom.Code == NoDataAllowedErr,
		dom.Code == NoModificationAllowedErr,
		dom.Code == SecurityErr,
		dom.Name == "NotAllowedError":
		return &Error{Kind: PermissionDenied, Err: err}
	case dom.Code == TypeMismatchErr:
		return &Error{Kind: TypeMismatch, Err: err}
	default:
		return &Error{Kind: Other, Err: err}
	}
}

// translateAcquire is Translate for failures to create a sync access
// handle, where the host reports a handle held elsewhere as a refused
// modification or an invalid state.
func translateAcquire(err error) error {
	var dom *DOMException
	if errors.As(err, &dom) &&
		(dom.Code == NoModificationAllowedErr || dom.Code == InvalidStateErr) {
		return &Error{Kind: Contention, Op: "createSyncAccessHandle",
			Msg: "sync access handle is held elsewhere", Err: err}
	}
	return withOp("createSyncAccessHandle", err)
}

// withOp translates err and attributes it to |op|.
func withOp(op string, err error) error {
	err = Translate(err)

	var e *Error
	if errors.As(err, &e) && e == err && e.Op == "" {
		var cp = *e
		cp.Op = op
		return &cp
	}
	return err
}

// invalidInput builds an InvalidInput *Error for |op|.
func invalidInput(op, msg string) error {
	return &Error{Kind: InvalidInput, Op: op, Msg: msg}
}

// ForeignError is an error in the host's native shape: a name, a message,
// and an optional cause. It represents host errors received by the
// adapter and adapter errors handed back to the host.
type ForeignError struct {
	Name    string
	Message string
	Cause   *ForeignError
}

func (e *ForeignError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *ForeignError) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Depth is the number of levels in the chain.
func (e *ForeignError) Depth() int {
	var n int
	for ; e != nil; e = e.Cause {
		n++
	}
	return n
}

// ToForeign rebuilds err's causal chain as a *ForeignError, one level per
// wrapped error, each carrying only its own message. The outermost level
// is named after the Kind of err.
func ToForeign(err error) *ForeignError {
	if err == nil {
		return nil
	}
	var out = toForeign(err)
	out.Name = KindOf(err).Name()
	return out
}

func toForeign(err error) *ForeignError {
	var cause = errors.Unwrap(err)
	var out = &ForeignError{
		Name:    foreignName(err),
		Message: levelMessage(err, cause),
	}
	if cause != nil {
		out.Cause = toForeign(cause)
	}
	return out
}

func foreignName(err error) string {
	switch e := err.(type) {
	case *Error:
		return e.Kind.Name()
	case *DOMException:
		return e.Name
	case *ForeignError:
		return e.Name
	default:
		return "Error"
	}
}

func levelMessage(err, cause error) string {
	switch e := err.(type) {
	case *Error:
		if h := e.head(); h != "" {
			return h
		}
		return e.Kind.describe()
	case *DOMException:
		return e.Message
	case *ForeignError:
		return e.Message
	}

	var msg = err.Error()
	if cause != nil {
		msg = strings.TrimSuffix(msg, ": "+cause.Error())
	}
	return msg
}
