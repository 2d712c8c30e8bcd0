// Package aa drives the Account Aggregator pipeline: signed FI requests,
// session tracking, encrypted FI fetch and decryption, and hand-off to the
// transaction analyser.
package aa

import (
	"time"

	"github.com/novascore/engine/internal/cryptoutil"
)

// FIRequestInput is the caller-facing request shape.
type FIRequestInput struct {
	ConsentID     string `json:"consent_id"`
	FIType        string `json:"fi_type"`
	MaskedAccount string `json:"masked_account,omitempty"`
	LinkRef       string `json:"link_ref,omitempty"`
	From          string `json:"from,omitempty"`
	To            string `json:"to,omitempty"`
	FipID         string `json:"fip_id,omitempty"`
}

// Wire shapes for the AA FI-request body.
type fiRequestPayload struct {
	Ver         string         `json:"ver"`
	Timestamp   string         `json:"timestamp"`
	TxnID       string         `json:"txnid"`
	Consent     consentRef     `json:"Consent"`
	FIDataRange fiDataRange    `json:"FIDataRange"`
	KeyMaterial keyMaterial    `json:"KeyMaterial"`
	FI          []fiDescriptor `json:"FI"`
}

type consentRef struct {
	ID               string `json:"id"`
	DigitalSignature string `json:"digitalSignature"`
}

type fiDataRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type keyMaterial struct {
	CryptoAlg   string      `json:"cryptoAlg"`
	Curve       string      `json:"curve"`
	Params      keyParams   `json:"params"`
	DHPublicKey dhPublicKey `json:"DHPublicKey"`
	Nonce       string      `json:"Nonce"`
}

type keyParams struct {
	KeyPairGenerator string `json:"KeyPairGenerator"`
}

type dhPublicKey struct {
	Expiry     string `json:"expiry"`
	Parameters string `json:"Parameters"`
	KeyValue   string `json:"KeyValue"`
}

type fiDescriptor struct {
	FipID string          `json:"fipId"`
	Data  []fiAccountData `json:"data"`
}

type fiAccountData struct {
	LinkRefNumber   string `json:"linkRefNumber"`
	MaskedAccNumber string `json:"maskedAccNumber"`
	FIType          string `json:"fiType"`
}

type fiFetchPayload struct {
	Ver           string   `json:"ver"`
	Timestamp     string   `json:"timestamp"`
	TxnID         string   `json:"txn_id"`
	SessionID     string   `json:"session_id"`
	FipID         string   `json:"fip_id,omitempty"`
	LinkRefNumber []string `json:"link_ref_number"`
}

// buildRequestPayload assembles the AA-gateway FI request body. The nonce seeds
// the per-transfer session-key derivation.
func buildRequestPayload(in FIRequestInput, txnID, nonce string, now time.Time) fiRequestPayload {
	from := in.From
	if from == "" {
		from = now.AddDate(-1, 0, 0).UTC().Format(time.RFC3339)
	}
	to := in.To
	if to == "" {
		to = now.UTC().Format(time.RFC3339)
	}
	fipID := in.FipID
	if fipID == "" {
		fipID = "FIP-1"
	}

	return fiRequestPayload{
		Ver:       "2.0.0",
		Timestamp: cryptoutil.TimestampUTC(now),
		TxnID:     txnID,
		Consent:   consentRef{ID: in.ConsentID},
		FIDataRange: fiDataRange{
			From: from,
			To:   to,
		},
		KeyMaterial: keyMaterial{
			CryptoAlg: "ECDH",
			Curve:     "Curve25519",
			Params:    keyParams{KeyPairGenerator: "ECDH"},
			DHPublicKey: dhPublicKey{
				Expiry: now.AddDate(0, 0, 30).UTC().Format(time.RFC3339),
			},
			Nonce: nonce,
		},
		FI: []fiDescriptor{{
			FipID: fipID,
			Data: []fiAccountData{{
				LinkRefNumber:   in.LinkRef,
				MaskedAccNumber: in.MaskedAccount,
				FIType:          in.FIType,
			}},
		}},
	}
}
