package transfer

import "fmt"

type ErrorKind int

const (
	KindConnect ErrorKind = iota
	KindStat
	KindSegmentIO
	KindSizeMismatch
	KindRemoteDelete
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindStat:
		return "stat"
	case KindSegmentIO:
		return "segment-io"
	case KindSizeMismatch:
		return "size-mismatch"
	case KindRemoteDelete:
		return "remote-delete"
	}
	return "unknown"
}

// Error is a per-file transfer failure tagged with the stage it occurred at.
type Error struct {
	Kind ErrorKind
	File string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transfer %s failed (%s): %v", e.File, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
