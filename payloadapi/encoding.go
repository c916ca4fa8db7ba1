package payloadapi

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Payload is the raw bytes sent to the auction coordinator: a formatted
// payload, or the COSE_Sign1 envelope around one.
type Payload []byte

// PayloadBase64 is a Payload in standard base64, as carried in JSON.
type PayloadBase64 string

// PayloadURLBase64 is a Payload in unpadded URL-safe base64, for query
// strings.
type PayloadURLBase64 string

// EncodeBase64 encodes p with standard base64.
func (p Payload) EncodeBase64() PayloadBase64 {
	return PayloadBase64(base64.StdEncoding.EncodeToString(p))
}

// EncodeURLSafe encodes p with unpadded URL-safe base64.
func (p Payload) EncodeURLSafe() PayloadURLBase64 {
	return PayloadURLBase64(base64.RawURLEncoding.EncodeToString(p))
}

// Decode returns the raw payload bytes.
func (b PayloadBase64) Decode() (Payload, error) {
	data, err := base64.StdEncoding.DecodeString(string(b))
	if err != nil {
		return nil, fmt.Errorf("decode payload base64: %w", err)
	}
	return Payload(data), nil
}

func (b PayloadBase64) String() string { return string(b) }

// Decode returns the raw payload bytes. Padding is accepted but not required.
func (b PayloadURLBase64) Decode() (Payload, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(string(b), "="))
	if err != nil {
		return nil, fmt.Errorf("decode payload base64url: %w", err)
	}
	return Payload(data), nil
}

func (b PayloadURLBase64) String() string { return string(b) }
