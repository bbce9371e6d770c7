package batchkv

// DefaultPort is used when an address carries no port.
const DefaultPort = 6379

// Command names as sent on the wire.
const (
	MSetCommand     = "MSET"
	ExpireAtCommand = "EXPIREAT"
	SetCommand      = "SET"
	ExpiryAtOption  = "EXAT"
)

// Client error codes.
const (
	ErrCodeConnect = 0x4000 + iota
	ErrCodeConfig
	ErrCodeClosed
)
