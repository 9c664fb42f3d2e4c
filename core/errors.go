package core

import "errors"

var (
	ErrPeerNotFound    = errors.New("pos peer not found")
	ErrDeliveryFailure = errors.New("scan delivery failed")
	ErrBridgeClosed    = errors.New("bridge closed")
)
