package buffer

import "errors"

var (
	ErrAssemblyOverflow = errors.New("assembly buffer exceeded configured maximum")
	ErrNilPacket        = errors.New("invalid nil packet")
)
