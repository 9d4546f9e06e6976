package upstream

import (
	sdkerrors "cosmossdk.io/errors"
)

var (
	codespace = "xrpl_upstream"

	ErrNotConnected     = sdkerrors.Register(codespace, 1, "websocket connection is not established")
	ErrSubscribeFailed  = sdkerrors.Register(codespace, 2, "stream subscription rejected by server")
	ErrRequestFailed    = sdkerrors.Register(codespace, 3, "upstream request returned an error result")
	ErrMalformedEvent   = sdkerrors.Register(codespace, 4, "malformed stream event payload")
	ErrUnknownEventType = sdkerrors.Register(codespace, 5, "unknown stream event type")
	ErrProbeTimeout     = sdkerrors.Register(codespace, 6, "liveness probe timed out")
)
