// alert.go defines the TLS alert record payload: two bytes, level and
// description.
package protocol

import "github.com/grahamking/ort/internal/errors"

// AlertLevel is warning (1) or fatal (2).
type AlertLevel uint8

const (
	AlertLevelWarning AlertLevel = 1
	AlertLevelFatal   AlertLevel = 2
)

// AlertDescription identifies the alert.
type AlertDescription uint8

// The subset of alert codes the client sends or cares to name.
const (
	AlertCloseNotify            AlertDescription = 0
	AlertUnexpectedMessage      AlertDescription = 10
	AlertBadRecordMAC           AlertDescription = 20
	AlertHandshakeFailure       AlertDescription = 40
	AlertIllegalParameter       AlertDescription = 47
	AlertDecodeError            AlertDescription = 50
	AlertDecryptError           AlertDescription = 51
	AlertProtocolVersion        AlertDescription = 70
	AlertInternalError          AlertDescription = 80
	AlertUserCanceled           AlertDescription = 90
	AlertMissingExtension       AlertDescription = 109
	AlertUnsupportedExtension   AlertDescription = 110
	AlertUnrecognizedName       AlertDescription = 112
	AlertNoApplicationProtocol  AlertDescription = 120
)

// String returns the RFC name for the description.
func (d AlertDescription) String() string {
	switch d {
	case AlertCloseNotify:
		return "close_notify"
	case AlertUnexpectedMessage:
		return "unexpected_message"
	case AlertBadRecordMAC:
		return "bad_record_mac"
	case AlertHandshakeFailure:
		return "handshake_failure"
	case AlertIllegalParameter:
		return "illegal_parameter"
	case AlertDecodeError:
		return "decode_error"
	case AlertDecryptError:
		return "decrypt_error"
	case AlertProtocolVersion:
		return "protocol_version"
	case AlertInternalError:
		return "internal_error"
	case AlertUserCanceled:
		return "user_canceled"
	case AlertMissingExtension:
		return "missing_extension"
	case AlertUnsupportedExtension:
		return "unsupported_extension"
	case AlertUnrecognizedName:
		return "unrecognized_name"
	case AlertNoApplicationProtocol:
		return "no_application_protocol"
	default:
		return "unknown"
	}
}

// Alert is a parsed alert payload.
type Alert struct {
	Level       AlertLevel
	Description AlertDescription
}

// Marshal encodes the alert.
func (a Alert) Marshal() []byte {
	return []byte{byte(a.Level), byte(a.Description)}
}

// UnmarshalAlert parses an alert payload.
func UnmarshalAlert(data []byte) (Alert, error) {
	if len(data) != 2 {
		return Alert{}, errors.ErrBufferTooSmall
	}
	return Alert{
		Level:       AlertLevel(data[0]),
		Description: AlertDescription(data[1]),
	}, nil
}

// IsCloseNotify reports a clean shutdown alert.
func (a Alert) IsCloseNotify() bool {
	return a.Description == AlertCloseNotify
}
