package push

import (
	"context"
	"encoding/hex"
)

// Router picks a transport per message. Raw 64-hex device tokens go to the
// direct APNs transport when one is configured, everything else to the default.
type Router struct {
	Default Transport
	APNs    Transport
}

// Send implements Transport
func (r *Router) Send(ctx context.Context, msg *Message) (string, error) {
	if r.APNs != nil && IsRawAPNsToken(msg.Token) {
		return r.APNs.Send(ctx, msg)
	}
	return r.Default.Send(ctx, msg)
}

// IsRawAPNsToken reports whether token looks like a raw APNs device token
func IsRawAPNsToken(token string) bool {
	if len(token) != 64 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}
