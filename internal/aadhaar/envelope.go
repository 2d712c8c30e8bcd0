package aadhaar

import (
	"fmt"
	"time"

	"github.com/novascore/engine/internal/cryptoutil"
)

// ============================================================================
// UIDAI ENVELOPE CONSTRUCTION — PID block and Auth XML
// ============================================================================

// BuildPIDXML renders the personal-identity-data block. The timestamp is
// IST (+05:30); otp is empty on initiate and the 6-digit code on verify.
func BuildPIDXML(ts time.Time, otp string) string {
	return fmt.Sprintf(`<Pid ts="%s" ver="2.0" wadh=""><Pv otp="%s"/></Pid>`,
		cryptoutil.XMLEscape(cryptoutil.TimestampIST(ts)),
		cryptoutil.XMLEscape(otp))
}

// EnvelopeParts carries the three cryptographic payloads of an Auth
// envelope: the wrapped session key, the PID MAC and the sealed PID block,
// all base64-encoded, plus the key-identifier timestamp for Skey ci.
type EnvelopeParts struct {
	SkeyB64 string
	HmacB64 string
	DataB64 string
	KeyCI   string
}

// BuildAuthXML renders the outer Auth envelope around the sealed PID block.
func BuildAuthXML(uid, auaCode, subAUA, licenseKey, txnID string, parts EnvelopeParts) string {
	esc := cryptoutil.XMLEscape
	return fmt.Sprintf(
		`<Auth uid="%s" ac="%s" sa="%s" ver="2.5" txn="%s" lk="%s" rc="Y" tid="public">`+
			`<Uses pi="n" pa="n" pfa="n" bio="n" bt="n" pin="n" otp="y"/>`+
			`<Tkn type="001" value=""/>`+
			`<Meta udc="AADHAAR_OTP_AUTH" fdc="" idc="" pip="" lot="P" lov=""/>`+
			`<Skey ci="%s">%s</Skey>`+
			`<Hmac>%s</Hmac>`+
			`<Data type="X">%s</Data>`+
			`</Auth>`,
		esc(uid), esc(auaCode), esc(subAUA), esc(txnID), esc(licenseKey),
		esc(parts.KeyCI), parts.SkeyB64, parts.HmacB64, parts.DataB64)
}

// AuthEndpoint builds the UIDAI POST URL: {base}{aua}/{uid[0]}/{uid[1]}.
func AuthEndpoint(baseURL, auaCode, uid string) string {
	if len(uid) < 2 {
		return baseURL + auaCode
	}
	return fmt.Sprintf("%s%s/%c/%c", baseURL, auaCode, uid[0], uid[1])
}
