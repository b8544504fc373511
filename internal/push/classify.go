package push

import (
	"strings"
	"unicode"
)

// Legacy GCM registration ids
var androidPrefixes = []string{"APA91"}

// First characters seen on legacy iOS-formatted registrations
const iosPrefixes = "cdef"

// Classify guesses the channel of a raw token. It is a best-effort heuristic:
// modern tokens look alike on every platform and end up as universal.
func Classify(token string) Channel {
	if len(token) < 10 {
		return ChannelUnknown
	}
	for _, p := range androidPrefixes {
		if strings.HasPrefix(token, p) {
			return ChannelAndroid
		}
	}
	if strings.IndexByte(iosPrefixes, token[0]) >= 0 {
		return ChannelIOS
	}
	if len(token) > 140 {
		return ChannelUniversal
	}
	return ChannelAndroid
}

// EffectiveChannel applies the operator platform override to a classified channel
func EffectiveChannel(c Channel, forcePlatform string) Channel {
	switch forcePlatform {
	case PlatformAndroid:
		return ChannelAndroid
	case PlatformIOS:
		return ChannelIOS
	}
	if c == "" {
		return ChannelUnknown
	}
	return c
}

// ValidateToken is the boundary check applied before a token enters a run
func ValidateToken(token string) error {
	n := len(token)
	if n <= 10 || n >= 4096 {
		return ErrInvalidToken
	}
	if strings.IndexFunc(token, unicode.IsSpace) >= 0 {
		return ErrInvalidToken
	}
	return nil
}

// FilterTokens splits tokens into accepted and rejected ones
func FilterTokens(tokens []RecipientToken) (valid, rejected []RecipientToken) {
	for _, t := range tokens {
		if ValidateToken(t.Value) != nil {
			rejected = append(rejected, t)
			continue
		}
		valid = append(valid, t)
	}
	return valid, rejected
}
