package cryptoutil

import (
	"encoding/base64"
	"strings"
	"time"
)

// ============================================================================
// WIRE ENCODERS — base64url, XML escaping, timestamps
// ============================================================================

// Base64URLEncode encodes bytes as unpadded base64url (RFC 4648 §5, no '=').
// This is the encoding used by JWS segments and detached signatures.
func Base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// Base64URLDecode decodes an unpadded base64url string.
func Base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// Base64Encode encodes bytes as standard padded base64, the encoding the
// UIDAI envelope and the AA encrypted-FI blob use.
func Base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Base64Decode decodes standard base64, tolerating missing padding.
func Base64Decode(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

var xmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// XMLEscape escapes the five XML entities. Applied to every attribute value
// and text node of the PID and Auth envelopes.
func XMLEscape(s string) string {
	return xmlReplacer.Replace(s)
}

// istZone is the fixed +05:30 offset the UIDAI envelope requires.
var istZone = time.FixedZone("IST", 5*3600+30*60)

// TimestampIST formats t as YYYY-MM-DDTHH:MM:SS+05:30.
func TimestampIST(t time.Time) string {
	return t.In(istZone).Format("2006-01-02T15:04:05-07:00")
}

// TimestampUTC formats t as ISO-8601 with a trailing Z, the format used
// everywhere outside the Aadhaar envelope.
func TimestampUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// TimestampUTCMillis formats t as ISO-8601 with millisecond precision.
func TimestampUTCMillis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
