package cryptoutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := RandomBytes(AESKeySize)
	require.NoError(t, err)
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey(t)

	plaintexts := [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte(`<Pid ts="2026-01-01T10:00:00+05:30" ver="2.0" wadh=""><Pv otp="123456"/></Pid>`),
		make([]byte, 4096),
	}

	for _, p := range plaintexts {
		iv, ct, tag, err := SealAESGCM(key, p)
		require.NoError(t, err)
		assert.Len(t, iv, GCMIVSize)
		assert.Len(t, tag, GCMTagSize)

		got, err := OpenAESGCM(key, iv, ct, tag)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestSealDrawsFreshIV(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("same plaintext twice")

	iv1, ct1, _, err := SealAESGCM(key, plaintext)
	require.NoError(t, err)
	iv2, ct2, _, err := SealAESGCM(key, plaintext)
	require.NoError(t, err)

	assert.NotEqual(t, iv1, iv2, "each seal must draw a fresh IV")
	assert.NotEqual(t, ct1, ct2, "fresh IVs must yield distinct ciphertexts")
}

func TestOpenRejectsTampering(t *testing.T) {
	key := testKey(t)
	iv, ct, tag, err := SealAESGCM(key, []byte("integrity matters"))
	require.NoError(t, err)

	// Flip one bit of the ciphertext.
	badCT := append([]byte(nil), ct...)
	badCT[0] ^= 0x01
	_, err = OpenAESGCM(key, iv, badCT, tag)
	assert.ErrorIs(t, err, ErrDecryptFailed)

	// Flip one bit of the tag.
	badTag := append([]byte(nil), tag...)
	badTag[len(badTag)-1] ^= 0x80
	_, err = OpenAESGCM(key, iv, ct, badTag)
	assert.ErrorIs(t, err, ErrDecryptFailed)

	// Wrong key.
	_, err = OpenAESGCM(testKey(t), iv, ct, tag)
	assert.ErrorIs(t, err, ErrDecryptFailed)

	// Truncated shapes.
	_, err = OpenAESGCM(key, iv[:4], ct, tag)
	assert.ErrorIs(t, err, ErrDecryptFailed)
	_, err = OpenAESGCM(key, iv, ct, tag[:8])
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestSealRejectsBadKeySize(t *testing.T) {
	_, _, _, err := SealAESGCM([]byte("short"), []byte("x"))
	assert.Error(t, err)
}

func TestWrapRSAOAEP(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	sessionKey := testKey(t)
	wrapped, err := WrapRSAOAEP(pubPEM, sessionKey)
	require.NoError(t, err)

	got, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, got)
}

func TestWrapRSAOAEPBadPEM(t *testing.T) {
	_, err := WrapRSAOAEP("not a pem", []byte("key"))
	assert.ErrorIs(t, err, ErrKeyUnavailable)

	_, err = WrapRSAOAEP("-----BEGIN PUBLIC KEY-----\nZ29vZA==\n-----END PUBLIC KEY-----", []byte("key"))
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestHMACSHA256(t *testing.T) {
	key := testKey(t)
	mac1 := HMACSHA256(key, []byte("payload"))
	mac2 := HMACSHA256(key, []byte("payload"))
	assert.Len(t, mac1, 32)
	assert.True(t, SecureCompare(mac1, mac2))

	mac3 := HMACSHA256(key, []byte("payload!"))
	assert.False(t, SecureCompare(mac1, mac3))
}

func TestSHA256Hex(t *testing.T) {
	// Known vector for the empty string.
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		SHA256Hex(nil))
	assert.Len(t, SHA256Hex([]byte("123456789012")), 64)
}

func TestBase64URLRoundTrip(t *testing.T) {
	inputs := [][]byte{
		nil,
		{0xfb, 0xff, 0xfe},
		[]byte("any carnal pleasure."),
		make([]byte, 257),
	}
	for _, b := range inputs {
		enc := Base64URLEncode(b)
		assert.NotContains(t, enc, "=")
		assert.NotContains(t, enc, "+")
		assert.NotContains(t, enc, "/")

		dec, err := Base64URLDecode(enc)
		require.NoError(t, err)
		if len(b) == 0 {
			assert.Empty(t, dec)
		} else {
			assert.Equal(t, b, dec)
		}
	}
}

func TestXMLEscape(t *testing.T) {
	assert.Equal(t,
		"&lt;a b=&quot;c&amp;d&apos;s&quot;&gt;",
		XMLEscape(`<a b="c&d's">`))
	assert.Equal(t, "plain", XMLEscape("plain"))
}

func TestTimestamps(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	assert.Equal(t, "2026-03-14T14:56:53+05:30", TimestampIST(at))
	assert.Equal(t, "2026-03-14T09:26:53Z", TimestampUTC(at))
	assert.True(t, strings.HasSuffix(TimestampUTCMillis(at), "Z"))
}
