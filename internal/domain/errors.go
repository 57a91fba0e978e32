package domain

import "errors"

var (
	ErrOracleTimeout   = errors.New("oracle call timed out")
	ErrMalformedOracle = errors.New("malformed oracle response")
	ErrWSDisconnect    = errors.New("websocket disconnected")
)
