// Package payloadapi defines the JSON messages exchanged with the payload
// service over vsock.
package payloadapi

import (
	"time"

	"github.com/cloudx-io/protectedauction/buyerinput"
	"github.com/cloudx-io/protectedauction/core"
)

// Message types carried in the "type" field of every request and response.
const (
	TypePing            = "ping"
	TypePong            = "pong"
	TypeKeyRequest      = "key_request"
	TypeKeyResponse     = "key_response"
	TypePayloadRequest  = "payload_request"
	TypePayloadResponse = "payload_response"
	TypeError           = "error"
)

// Request is the envelope common to every request; the service dispatches
// on Type before decoding the rest.
type Request struct {
	Type string `json:"type"`
}

// OptimizationRequest enables size control for a payload request.
type OptimizationRequest struct {
	MaxBuyerInputSizeBytes int            `json:"max_buyer_input_size_bytes"`
	AllowList              []string       `json:"allow_list,omitempty"`
	PerBuyerTargets        map[string]int `json:"per_buyer_targets,omitempty"`
}

// Context converts the request into an optimization context. A nil request
// disables optimizations.
func (o *OptimizationRequest) Context() (buyerinput.OptimizationContext, error) {
	if o == nil {
		return buyerinput.DisabledOptimizations(), nil
	}

	allowList := make([]core.BuyerID, 0, len(o.AllowList))
	for _, buyer := range o.AllowList {
		allowList = append(allowList, core.BuyerID(buyer))
	}
	targets := make(map[core.BuyerID]int, len(o.PerBuyerTargets))
	for buyer, target := range o.PerBuyerTargets {
		targets[core.BuyerID(buyer)] = target
	}
	return buyerinput.NewOptimizationContext(o.MaxBuyerInputSizeBytes, allowList, targets)
}

// PayloadRequest asks the service for one ad-selection payload.
type PayloadRequest struct {
	Type                 string               `json:"type"`
	PublisherName        string               `json:"publisher_name"`
	EnableDebugReporting bool                 `json:"enable_debug_reporting,omitempty"`
	Optimization         *OptimizationRequest `json:"optimization,omitempty"`
	Timestamp            time.Time            `json:"timestamp"`
}

// PayloadResponse carries the generated payload.
type PayloadResponse struct {
	Type               string            `json:"type"`
	Success            bool              `json:"success"`
	Message            string            `json:"message"`
	GenerationID       string            `json:"generation_id,omitempty"`
	Payload            PayloadBase64     `json:"payload,omitempty"`
	Sealed             bool              `json:"sealed,omitempty"`
	Digest             string            `json:"digest,omitempty"`
	BuyerCount         int               `json:"buyer_count"`
	BuyerDigests       map[string]string `json:"buyer_digests,omitempty"`
	FormatVersion      uint8             `json:"format_version"`
	CompressionVersion uint8             `json:"compression_version"`
	ProcessingTime     int64             `json:"processing_time_ms"`
}

// KeyResponse publishes the key that verifies sealed payloads.
type KeyResponse struct {
	Type      string `json:"type"`
	PublicKey string `json:"public_key"` // PEM format
	KeyID     string `json:"key_id,omitempty"`
	Algorithm string `json:"algorithm"`
}

// PongResponse answers a ping.
type PongResponse struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorResponse reports a request that could not be processed.
type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorResponse builds an error response.
func NewErrorResponse(message string) *ErrorResponse {
	return &ErrorResponse{Type: TypeError, Message: message}
}
