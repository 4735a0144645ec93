package broker

import "errors"

// ErrChannelClosed is returned by a send/receive against a subscription
// whose channel has already been closed, which happens when the ctx
// passed to Subscribe is cancelled.
var ErrChannelClosed = errors.New("broker: channel closed")
