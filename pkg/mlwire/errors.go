// Package mlwire implements the framed worker-coordinator wire protocol:
// a 4-byte big-endian length prefix around a "<sender_id>\r\n<cmd>\r\n
// <arg1>%<arg2>%..." body. The manifest JSON carried in response_manifest
// arguments is encoded and decoded by the mlmanifest package.
package mlwire

import "cosmossdk.io/errors"

// Error kinds for the mlwire module, claiming code range 5370-5399.
var (
	ErrInvalidArgument = errors.Register("mlwire", 5370, "argument contains a reserved separator")
	ErrMalformedFrame  = errors.Register("mlwire", 5371, "malformed frame body")
	ErrFrameTooLarge   = errors.Register("mlwire", 5372, "frame exceeds maximum length")
	ErrChannelClosed   = errors.Register("mlwire", 5373, "framed channel closed")
)
