package types

import "fmt"

// CmdError pairs a human-readable message with the err_code the
// daemon must surface on the wire for it. No package in this module
// constructs one: query and expansion code return sentinel errors,
// which internal/daemon maps to err_codes.
type CmdError struct {
	Code ErrCode
	Msg  string
}

func (e *CmdError) Error() string {
	return e.Msg
}

// NewCmdError builds a CmdError with a formatted message.
func NewCmdError(code ErrCode, format string, args ...any) *CmdError {
	return &CmdError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// AsCmdError extracts the CmdError from err, if any, along with
// whether the extraction succeeded.
func AsCmdError(err error) (*CmdError, bool) {
	ce, ok := err.(*CmdError)
	return ce, ok
}
