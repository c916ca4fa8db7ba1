package inspection

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cloudx-io/protectedauction/payloadapi"
)

// Input encodings accepted by DecodeInput.
const (
	EncodingRaw      = "raw"
	EncodingBase64   = "base64"
	EncodingResponse = "response"
)

// Input is a payload recovered from a capture, with whatever the capture
// said about it.
type Input struct {
	Payload []byte
	Sealed  bool
	Digest  string
}

// DecodeInput interprets captured bytes. EncodingRaw takes them as is,
// EncodingBase64 decodes standard base64, and EncodingResponse reads a
// payload_response message from the payload service.
func DecodeInput(data []byte, encoding string) (*Input, error) {
	switch encoding {
	case EncodingRaw:
		return &Input{Payload: data}, nil

	case EncodingBase64:
		payload, err := payloadapi.PayloadBase64(bytes.TrimSpace(data)).Decode()
		if err != nil {
			return nil, err
		}
		return &Input{Payload: payload}, nil

	case EncodingResponse:
		var resp payloadapi.PayloadResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("parse payload response: %w", err)
		}
		if resp.Type != payloadapi.TypePayloadResponse {
			return nil, fmt.Errorf("expected %s message, got %q", payloadapi.TypePayloadResponse, resp.Type)
		}
		if !resp.Success {
			return nil, fmt.Errorf("payload response reports failure: %s", resp.Message)
		}
		payload, err := resp.Payload.Decode()
		if err != nil {
			return nil, err
		}
		return &Input{Payload: payload, Sealed: resp.Sealed, Digest: resp.Digest}, nil

	default:
		return nil, fmt.Errorf("unknown input encoding %q (want %s, %s or %s)",
			encoding, EncodingRaw, EncodingBase64, EncodingResponse)
	}
}
