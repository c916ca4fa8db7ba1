package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/protectedauction/adselection"
	"github.com/cloudx-io/protectedauction/clock"
	"github.com/cloudx-io/protectedauction/core"
	"github.com/cloudx-io/protectedauction/payloadapi"
)

// maxRequestBytes bounds a single JSON request.
const maxRequestBytes = 1 << 20

// PayloadServer answers payload requests over vsock.
type PayloadServer struct {
	port               uint32
	maxWorkers         int
	readTimeout        time.Duration
	generator          *adselection.PayloadGenerator
	keyManager         *KeyManager
	formatVersion      uint8
	compressionVersion uint8
	clock              clock.Clock
}

// Start listens on the configured vsock port and serves until the listener
// fails.
func (s *PayloadServer) Start() error {
	listener, err := vsock.Listen(s.port, nil)
	if err != nil {
		return fmt.Errorf("failed to create vsock listener: %w", err)
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Printf("ERROR: Failed to close listener: %v", err)
		}
	}()

	log.Printf("INFO: Payload server listening on vsock port %d", s.port)
	return s.Serve(listener)
}

// Serve accepts connections from listener. At most maxWorkers connections
// are handled at once; connections arriving while all workers are busy are
// closed without a response.
func (s *PayloadServer) Serve(listener net.Listener) error {
	semaphore := make(chan struct{}, s.maxWorkers)
	log.Printf("INFO: Worker pool initialized with %d max concurrent workers", s.maxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("ERROR: Failed to accept connection: %v", err)
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }()
				s.handleConnection(c)
			}(conn)
		default:
			log.Printf("INFO: No workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				log.Printf("ERROR: Failed to close rejected connection: %v", err)
			}
		}
	}
}

func (s *PayloadServer) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Panic recovered in handleConnection: %v", r)
		}
		if err := conn.Close(); err != nil {
			log.Printf("ERROR: Failed to close connection: %v", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))

	var raw json.RawMessage
	decoder := json.NewDecoder(io.LimitReader(conn, maxRequestBytes))
	if err := decoder.Decode(&raw); err != nil {
		log.Printf("ERROR: Failed to read request: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.readTimeout)
	defer cancel()
	response, requestType := s.handleRequest(ctx, raw)

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(response); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	} else {
		log.Printf("INFO: Successfully sent response for %s", requestType)
	}
}

// handleRequest dispatches one decoded request and returns the response to
// encode along with the request type.
func (s *PayloadServer) handleRequest(ctx context.Context, raw []byte) (any, string) {
	var baseReq payloadapi.Request
	if err := json.Unmarshal(raw, &baseReq); err != nil {
		log.Printf("ERROR: Failed to decode base request: %v", err)
		return payloadapi.NewErrorResponse(fmt.Sprintf("Failed to decode request: %v", err)), ""
	}

	log.Printf("INFO: Received request type: %s", baseReq.Type)

	switch baseReq.Type {
	case payloadapi.TypePing:
		log.Printf("INFO: Responding to ping with pong")
		return &payloadapi.PongResponse{
			Type:      payloadapi.TypePong,
			Message:   "Payload server is healthy",
			Timestamp: s.clock.Now().Unix(),
		}, baseReq.Type

	case payloadapi.TypeKeyRequest:
		keyResp, err := HandleKeyRequest(s.keyManager)
		if err != nil {
			log.Printf("ERROR: Key request failed: %v", err)
			return payloadapi.NewErrorResponse(fmt.Sprintf("Key request failed: %v", err)), baseReq.Type
		}
		log.Printf("INFO: Key request processed successfully")
		return keyResp, baseReq.Type

	case payloadapi.TypePayloadRequest:
		var payloadReq payloadapi.PayloadRequest
		if err := json.Unmarshal(raw, &payloadReq); err != nil {
			log.Printf("ERROR: Failed to decode payload request: %v", err)
			return payloadapi.NewErrorResponse(fmt.Sprintf("Failed to decode payload request: %v", err)), baseReq.Type
		}
		return s.ProcessPayloadRequest(ctx, payloadReq), baseReq.Type

	default:
		return payloadapi.NewErrorResponse(fmt.Sprintf("Unknown request type: %s", baseReq.Type)), baseReq.Type
	}
}

// ProcessPayloadRequest generates one payload. Failures are reported in the
// response rather than as errors.
func (s *PayloadServer) ProcessPayloadRequest(ctx context.Context, req payloadapi.PayloadRequest) *payloadapi.PayloadResponse {
	start := s.clock.Now()
	response := &payloadapi.PayloadResponse{
		Type:               payloadapi.TypePayloadResponse,
		FormatVersion:      s.formatVersion,
		CompressionVersion: s.compressionVersion,
	}
	fail := func(message string) *payloadapi.PayloadResponse {
		response.Message = message
		response.ProcessingTime = s.clock.Now().Sub(start).Milliseconds()
		return response
	}

	octx, err := req.Optimization.Context()
	if err != nil {
		log.Printf("ERROR: Invalid optimization request: %v", err)
		return fail(fmt.Sprintf("Invalid optimization request: %v", err))
	}

	result, err := s.generator.GetAdSelectionData(ctx, adselection.Request{
		PublisherName:        req.PublisherName,
		EnableDebugReporting: req.EnableDebugReporting,
		Optimization:         octx,
	})
	if err != nil {
		log.Printf("ERROR: Payload generation failed: %v", err)
		if errors.Is(err, core.ErrPayloadTooLarge) {
			return fail("Payload exceeds every allowed size")
		}
		return fail(fmt.Sprintf("Payload generation failed: %v", err))
	}

	buyerDigests := make(map[string]string, len(result.BuyerDigests))
	for buyer, digest := range result.BuyerDigests {
		buyerDigests[string(buyer)] = digest
	}

	response.Success = true
	response.Message = "Payload generated"
	response.GenerationID = result.GenerationID.String()
	response.Payload = payloadapi.Payload(result.Bytes()).EncodeBase64()
	response.Sealed = result.Sealed != nil
	response.Digest = result.Digest
	response.BuyerCount = result.BuyerCount
	response.BuyerDigests = buyerDigests
	response.ProcessingTime = s.clock.Now().Sub(start).Milliseconds()

	log.Printf("INFO: Payload %s generated for %d buyers (%s)", response.GenerationID, response.BuyerCount, response.Digest)
	return response
}
