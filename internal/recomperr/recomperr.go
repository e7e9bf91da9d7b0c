// Package recomperr defines the fatal and non-fatal error kinds produced by
// the recompiler core, per spec section 7 (Error Handling Design).
//
// The core never retries and never produces partial success: every fatal
// error aborts the process after one diagnostic line is written, and
// partial output files are left on disk for the caller to clean up.
package recomperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind distinguishes the fatal error categories the CLI driver needs to
// turn into the right exit code and stderr line.
type Kind int

const (
	// KindBadArgs is soft: the caller prints a usage line and exits 0.
	KindBadArgs Kind = iota
	KindElfLoadFailed
	KindWrongElfClass
	KindWrongEndianness
	KindNoSymbolTable
	KindBadEntrypoint
	KindMissingEntrypoint
	KindUnknownOpcode
	KindNestedBranchInDelaySlot
)

func (k Kind) String() string {
	switch k {
	case KindBadArgs:
		return "BadArgs"
	case KindElfLoadFailed:
		return "ElfLoadFailed"
	case KindWrongElfClass:
		return "WrongElfClass"
	case KindWrongEndianness:
		return "WrongEndianness"
	case KindNoSymbolTable:
		return "NoSymbolTable"
	case KindBadEntrypoint:
		return "BadEntrypoint"
	case KindMissingEntrypoint:
		return "MissingEntrypoint"
	case KindUnknownOpcode:
		return "UnknownOpcode"
	case KindNestedBranchInDelaySlot:
		return "NestedBranchInDelaySlot"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a typed, wrapped error carrying a Kind so cmd/n64recomp can map
// it to the right exit status without string-matching messages.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// New builds a bare Error of the given kind with a stack-annotated message.
func New(kind Kind, msg string) error {
	return errors.WithStack(&Error{Kind: kind, msg: msg})
}

// Newf is New with Printf-style formatting.
func Newf(kind Kind, format string, args ...interface{}) error {
	return errors.WithStack(&Error{Kind: kind, msg: fmt.Sprintf(format, args...)})
}

// Wrap attaches a Kind to an existing error, preserving its stack via
// pkg/errors.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&Error{Kind: kind, msg: msg, err: err})
}

// UnknownOpcode builds the spec's UnknownOpcode(mnemonic, vram) error.
func UnknownOpcode(mnemonic string, vram uint32) error {
	return Newf(KindUnknownOpcode, "unimplemented opcode %q at vram 0x%08X", mnemonic, vram)
}

// NestedBranchInDelaySlot builds the spec's NestedBranchInDelaySlot(vram) error.
func NestedBranchInDelaySlot(vram uint32) error {
	return Newf(KindNestedBranchInDelaySlot, "branch instruction in delay slot at vram 0x%08X", vram)
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, and reports ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
