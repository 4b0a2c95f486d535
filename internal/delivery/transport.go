package delivery

import (
	"context"
	"errors"
)

// ErrRejected marks a send the remote service refused.
var ErrRejected = errors.New("delivery: send rejected")

// Transport sends rendered alerts. Both methods may fail for unreachable or
// deleted targets; callers treat failures as soft.
type Transport interface {
	SendToChannel(ctx context.Context, channelID string, msg Message) error
	SendToUser(ctx context.Context, userID string, msg Message) error
}
