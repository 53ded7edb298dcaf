// Package errs provides a structured error type that carries the operation
// stack, an error kind and optional request parameter through the layers of
// the service, so that the transport layer can map it to a HTTP response.
//
// Inspired by:
// - https://commandcenter.blogspot.com/2017/12/error-handling-in-upspin.html
// - https://github.com/gilcrest/diygoapi/tree/main/errs
package errs

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
)

// Error is the type that implements the error interface.
type Error struct {
	// Op is the operation being performed, usually the name of the method
	// being invoked, e.g., socrataService.StartImport
	Op Op
	// User is the name of the actor attempting the operation.
	User UserName
	// Kind is the class of error, such as permission failure,
	// or "Other" if its class is unknown or irrelevant.
	Kind Kind
	// Param represents the parameter related to the error.
	Param Parameter
	// The underlying error that triggered this one, if any.
	Err error
}

// Unwrap method allows for unwrapping errors using errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}

	return e.Err.Error()
}

// Op describes an operation, usually as the package and method,
// such as "socrataService.Preview".
type Op string

// UserName is the identifier of the actor attempting the operation.
type UserName string

// Parameter represents the parameter related to the error.
type Parameter string

// Kind defines the kind of error this is.
type Kind uint8

// Kinds of errors.
//
// The values of the error kinds are common between both
// clients and servers. Do not reorder this list or remove
// any items since that will change their values.
// New items must be added only to the end.
const (
	Other           Kind = iota // Unclassified error. This value is not printed in the error message.
	Invalid                     // Invalid operation for this type of item.
	IO                          // External I/O error such as network failure.
	Exist                       // Item already exists.
	NotExist                    // Item does not exist.
	Internal                    // Internal error or inconsistency.
	Validation                  // Input validation error.
	InvalidRequest              // Invalid Request
	Unauthenticated             // Unauthenticated Request
	Unauthorized                // Unauthorized Request
	Database                    // Error from database.
	Unavailable                 // Resource temporarily unavailable, e.g. low disk space.
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other_error"
	case Invalid:
		return "invalid_operation"
	case IO:
		return "I/O_error"
	case Exist:
		return "item_already_exists"
	case NotExist:
		return "item_does_not_exist"
	case Internal:
		return "internal_error"
	case Validation:
		return "input_validation_error"
	case InvalidRequest:
		return "invalid_request_error"
	case Unauthenticated:
		return "unauthenticated_request"
	case Unauthorized:
		return "unauthorized_request"
	case Database:
		return "database_error"
	case Unavailable:
		return "unavailable"
	}

	return "unknown_error_kind"
}

// E builds an error value from its arguments.
// There must be at least one argument or E panics.
// The type of each argument determines its meaning.
// If more than one argument of a given type is presented,
// only the last one is recorded.
//
// The types are:
//
//	Op
//		The operation being performed, usually the method
//		being invoked (Get, Put, etc.).
//	UserName
//		The name of the actor attempting the operation.
//	string
//		Treated as an error message and assigned to the
//		Err field after a call to errors.New.
//	errs.Kind
//		The class of error, such as permission failure.
//	errs.Parameter
//		The parameter related to the error.
//	error
//		The underlying error that triggered this one.
//
// If the error is printed, only those items that have been
// set to non-zero values will appear in the result.
//
// If Kind is not specified or Other, we set it to the Kind of
// the underlying error.
func E(args ...interface{}) error {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}

	if len(args) == 0 {
		panic("call to errs.E with no arguments")
	}

	e := &Error{}
	for _, arg := range args {
		switch arg := arg.(type) {
		case Op:
			e.Op = arg
		case UserName:
			e.User = arg
		case string:
			e.Err = errors.New(arg)
		case Kind:
			e.Kind = arg
		case Parameter:
			e.Param = arg
		case *Error:
			errorCopy := *arg
			e.Err = &errorCopy
		case error:
			// if the error implements stackTracer, then it is
			// a pkg/errors error type and does not need to have
			// the stack added
			_, ok := arg.(stackTracer)
			if ok {
				e.Err = arg
			} else {
				e.Err = errors.WithStack(arg)
			}
		default:
			_, file, line, _ := runtime.Caller(1)
			return fmt.Errorf("errs.E: bad call from %s:%d: %v, unknown type %T, value %v in error call", file, line, args, arg, arg)
		}
	}

	prev, ok := e.Err.(*Error)
	if !ok {
		return e
	}

	// If this error has Kind unset or Other, pull up the inner one.
	if e.Kind == Other {
		e.Kind = prev.Kind
		prev.Kind = Other
	}

	if prev.Param == e.Param {
		prev.Param = ""
	}

	if e.Param == "" {
		e.Param = prev.Param
		prev.Param = ""
	}

	if prev.User == e.User {
		prev.User = ""
	}

	if e.User == "" {
		e.User = prev.User
		prev.User = ""
	}

	return e
}

// Str returns an error that formats as the given text. It is intended to
// be used as the error-typed argument to the E function.
func Str(text string) error {
	return errors.New(text)
}

// Match compares its two error arguments. It can be used to check
// for expected errors in tests. Both arguments must have underlying
// type *Error or Match will return false. Otherwise, it returns true
// iff every non-zero element of the first error is equal to the
// corresponding element of the second.
// If the Err field is a *Error, Match recurs on that field;
// otherwise it compares the strings returned by the Error methods.
// Elements that are in the second argument but not present in
// the first are ignored.
func Match(err1, err2 error) bool {
	e1, ok := err1.(*Error)
	if !ok {
		return false
	}

	e2, ok := err2.(*Error)
	if !ok {
		return false
	}

	if e1.Op != "" && e2.Op != e1.Op {
		return false
	}

	if e1.User != "" && e2.User != e1.User {
		return false
	}

	if e1.Kind != Other && e2.Kind != e1.Kind {
		return false
	}

	if e1.Param != "" && e2.Param != e1.Param {
		return false
	}

	if e1.Err != nil {
		if _, ok := e1.Err.(*Error); ok {
			return Match(e1.Err, e2.Err)
		}

		if e2.Err == nil || e2.Err.Error() != e1.Err.Error() {
			return false
		}
	}

	return true
}

// KindIs reports whether err is an *Error of the given Kind.
// If err is nil then KindIs returns false.
func KindIs(kind Kind, err error) bool {
	var e *Error

	if errors.As(err, &e) {
		if e.Kind != Other {
			return e.Kind == kind
		}

		if e.Err != nil {
			return KindIs(kind, e.Err)
		}
	}

	return false
}

// OpStack returns the operations the error has passed through, outermost
// first.
func OpStack(err error) []string {
	var ops []string

	var e *Error
	for errors.As(err, &e) {
		if e.Op != "" {
			ops = append(ops, string(e.Op))
		}

		err = e.Err
		e = nil
	}

	return ops
}

// Message returns the innermost error message that is not an *Error, which
// is the part of the error that is meant for humans.
func Message(err error) string {
	var e *Error
	for errors.As(err, &e) {
		if e.Err == nil {
			return e.Kind.String()
		}

		if _, ok := e.Err.(*Error); !ok {
			return errors.Cause(e.Err).Error()
		}

		err = e.Err
		e = nil
	}

	if err == nil {
		return ""
	}

	return err.Error()
}
