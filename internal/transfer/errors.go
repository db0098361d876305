package transfer

import "strconv"

// SourceOpenError reports that the source object could not be opened. No
// destination writer was opened.
type SourceOpenError struct {
	Path string
	Err  error
}

func (e *SourceOpenError) Error() string {
	return "open source " + strconv.Quote(e.Path) + ": " + e.Err.Error()
}

func (e *SourceOpenError) Unwrap() error { return e.Err }

// DestOpenError reports that the destination writer could not be created.
type DestOpenError struct {
	Path string
	Err  error
}

func (e *DestOpenError) Error() string {
	return "open destination " + strconv.Quote(e.Path) + ": " + e.Err.Error()
}

func (e *DestOpenError) Unwrap() error { return e.Err }

// StreamError reports an I/O failure while copying. The destination writer
// was aborted, not finalized: backends that stage writes keep the previous
// object, others may hold a partial one.
type StreamError struct {
	// Op is "read" or "write".
	Op      string
	Written int64
	Err     error
}

func (e *StreamError) Error() string {
	return e.Op + " failed after " + strconv.FormatInt(e.Written, 10) + " bytes: " + e.Err.Error()
}

func (e *StreamError) Unwrap() error { return e.Err }

// FinalizeError reports that every byte was written but the destination
// could not be committed.
type FinalizeError struct {
	Path string
	Err  error
}

func (e *FinalizeError) Error() string {
	return "finalize destination " + strconv.Quote(e.Path) + ": " + e.Err.Error()
}

func (e *FinalizeError) Unwrap() error { return e.Err }
