package batchkv

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrEmptyAddr = errors.New("address should not be empty")
	ErrNilValue  = errors.New("nil value")
)

// ClientError is connection or construction error raised by the client
// itself, never by the store.
type ClientError struct {
	Code uint32
	Msg  string
	Err  error
}

func (clierr ClientError) Error() string {
	if clierr.Err != nil {
		return fmt.Sprintf("%s: %s (0x%x)", clierr.Msg, clierr.Err, clierr.Code)
	}
	return fmt.Sprintf("%s (0x%x)", clierr.Msg, clierr.Code)
}

func (clierr ClientError) Unwrap() error {
	return clierr.Err
}

// Temporary returns true if the error may go away when the store
// becomes reachable again.
func (clierr ClientError) Temporary() bool {
	return clierr.Code == ErrCodeConnect
}

// ChunkError records the failure of one chunk's pipeline.
type ChunkError struct {
	// Op is the encoding label of the failed write, e.g. "mset+expire".
	Op string
	// Len is the number of items in the chunk.
	Len int
	Err error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("failed to sync %d items via %s: %s", e.Len, e.Op, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Cause returns the store-side cause of the failure.
func (e *ChunkError) Cause() error {
	return e.Err
}

func connectError(addr string, err error) error {
	return &ClientError{
		Code: ErrCodeConnect,
		Msg:  "connect to " + addr + " failed",
		Err:  errors.WithStack(err),
	}
}
