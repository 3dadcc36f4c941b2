package spec

import "fmt"

// ParseError reports a malformed spec: bad structure, an unknown pipe token,
// or a bad numeric argument.
//
// Path is the dotted key path of the offending field ("" for the root).
type ParseError struct {
	Path string
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Path == "" {
		return "spec: " + msg
	}
	return fmt.Sprintf("spec: %s: %s", e.Path, msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErrorf(path, format string, args ...any) *ParseError {
	return &ParseError{Path: path, Msg: fmt.Sprintf(format, args...)}
}
