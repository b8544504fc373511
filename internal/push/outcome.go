package push

import "fmt"

// Outcome is the result of one send: Delivered, TransientError or InvalidToken
type Outcome interface {
	outcome()
}

// Delivered means the transport accepted the message
type Delivered struct {
	ReceiptID string
}

// TransientError is any failure that says nothing definitive about the token
type TransientError struct {
	Message string
}

// InvalidToken is an explicit invalid/unregistered signal. The token is reported, not removed.
type InvalidToken struct {
	Message string
}

func (Delivered) outcome()      {}
func (TransientError) outcome() {}
func (InvalidToken) outcome()   {}

// OutcomeLabel returns a stable lowercase name for o
func OutcomeLabel(o Outcome) string {
	switch o.(type) {
	case Delivered:
		return "delivered"
	case InvalidToken:
		return "invalid_token"
	default:
		return "transient_error"
	}
}

// Summary holds run counters. Success always equals the sum of the per-channel counters.
type Summary struct {
	Success          int `json:"success"`
	Errors           int `json:"errors"`
	Pruned           int `json:"pruned"`
	IOSSuccess       int `json:"ios_success"`
	AndroidSuccess   int `json:"android_success"`
	UniversalSuccess int `json:"universal_success"`
}

// Merge adds other into s field by field
func (s *Summary) Merge(other Summary) {
	s.Success += other.Success
	s.Errors += other.Errors
	s.Pruned += other.Pruned
	s.IOSSuccess += other.IOSSuccess
	s.AndroidSuccess += other.AndroidSuccess
	s.UniversalSuccess += other.UniversalSuccess
}

// Processed returns the number of tokens accounted for
func (s Summary) Processed() int {
	return s.Success + s.Errors + s.Pruned
}

// record counts one outcome for a token sent on channel
func (s *Summary) record(o Outcome, channel Channel) {
	switch o.(type) {
	case Delivered:
		s.Success++
		switch channel {
		case ChannelIOS:
			s.IOSSuccess++
		case ChannelUniversal:
			s.UniversalSuccess++
		default:
			s.AndroidSuccess++
		}
	case InvalidToken:
		s.Pruned++
	default:
		s.Errors++
	}
}

// ErrorRecord describes one non-delivered token
type ErrorRecord struct {
	Token   string `json:"token"`
	Message string `json:"message"`
	Invalid bool   `json:"invalid"`
}

// Prefix returns a shortened token for display
func (e ErrorRecord) Prefix() string {
	return TokenPrefix(e.Token)
}

func (e ErrorRecord) String() string {
	if e.Invalid {
		return fmt.Sprintf("%s: invalid/expired, not auto-removed: %s", e.Prefix(), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Prefix(), e.Message)
}

// TokenPrefix shortens a token to its first eight characters
func TokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
