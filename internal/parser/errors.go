package parser

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error carries exactly one of these, matchable with errors.Is.
var (
	ErrFileNotFound         = errors.New("file not found")
	ErrInvalidKeys          = errors.New("invalid keys")
	ErrDependenciesNotReady = errors.New("dependencies not ready")
	ErrUnsupportedFormat    = errors.New("unsupported format")
	ErrOpenFailed           = errors.New("open failed")
	ErrEntryNotFound        = errors.New("entry not found")
	ErrEntryOpenFailed      = errors.New("entry open failed")
	ErrInnerEntryNotFound   = errors.New("inner entry not found")
	ErrInnerOpenFailed      = errors.New("inner entry open failed")
	ErrReadSizeMismatch     = errors.New("read size mismatch")
	ErrDecodeFailed         = errors.New("decode failed")
	ErrInvalidLanguage      = errors.New("invalid language")
)

// Code is the fine-grained failure code recorded for a ROM.
type Code int

const (
	CodeUnknown Code = iota
	CodeKeysProdNotFound
	CodeKeysProdInvalid
	CodeKeysTitleNotFound
	CodeKeysTitleInvalid
	CodeKeysMissing
	CodeRomUnknownFormat
	CodeRomReadDependenciesNotComplete
	CodeXciLoadRootFsError
	CodeNspLoadRootFsError
	CodeCnmtNcaNotFound
	CodeCnmtNcaReadError
	CodeCnmtReadDependenciesNotComplete
	CodeCnmtNotFound
	CodeCnmtReadError
	CodeControlNcaNotFound
	CodeControlNcaReadError
	CodeControlReadDependenciesNotComplete
	CodeNacpNotFound
	CodeNacpReadError
	CodeNacpParseError
	CodeNacpReadDependenciesNotComplete
	CodeIdReadDependenciesNotComplete
	CodeNameReadDependenciesNotComplete
	CodeIconReadDependenciesNotComplete
)

var codeNames = [...]string{
	"Unknown",
	"KeysProdNotFound",
	"KeysProdInvalid",
	"KeysTitleNotFound",
	"KeysTitleInvalid",
	"KeysMissing",
	"RomUnknownFormat",
	"RomReadDependenciesNotComplete",
	"XciLoadRootFsError",
	"NspLoadRootFsError",
	"CnmtNcaNotFound",
	"CnmtNcaReadError",
	"CnmtReadDependenciesNotComplete",
	"CnmtNotFound",
	"CnmtReadError",
	"ControlNcaNotFound",
	"ControlNcaReadError",
	"ControlReadDependenciesNotComplete",
	"NacpNotFound",
	"NacpReadError",
	"NacpParseError",
	"NacpReadDependenciesNotComplete",
	"IdReadDependenciesNotComplete",
	"NameReadDependenciesNotComplete",
	"IconReadDependenciesNotComplete",
}

func (c Code) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// ParseCode is the inverse of Code.String.
func ParseCode(s string) (Code, error) {
	for i, name := range codeNames {
		if name == s {
			return Code(i), nil
		}
	}
	return CodeUnknown, fmt.Errorf("unknown parser error code %q", s)
}

// Error is returned by every parser operation.
type Error struct {
	Op   string // operation that failed, e.g. "LoadControl"
	Code Code
	Kind error
	Err  error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parser: %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("parser: %s: %s: %v", e.Op, e.Code, e.Kind)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, code Code, kind, cause error) *Error {
	return &Error{Op: op, Code: code, Kind: kind, Err: cause}
}

// CodeOf extracts the failure code from err, or CodeUnknown.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeUnknown
}
