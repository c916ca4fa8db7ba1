package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/protectedauction/adselection"
	"github.com/cloudx-io/protectedauction/buyerinput"
	"github.com/cloudx-io/protectedauction/compression"
	"github.com/cloudx-io/protectedauction/config"
	"github.com/cloudx-io/protectedauction/core"
	"github.com/cloudx-io/protectedauction/envelope"
	"github.com/cloudx-io/protectedauction/format"
	"github.com/cloudx-io/protectedauction/payloadapi"
)

func decodeCandidates(t *testing.T, formatted format.FormattedData) map[core.BuyerID][]string {
	t.Helper()
	header, unformatted, err := format.ExtractHeader(formatted)
	assert.NoError(t, err)

	compressor, err := compression.New(header.CompressionVersion)
	assert.NoError(t, err)

	input, err := adselection.UnmarshalProtectedAudienceInput(unformatted.Bytes())
	assert.NoError(t, err)

	names := make(map[core.BuyerID][]string)
	for buyer, compressed := range input.CompressedInputs() {
		raw, err := compressor.Decompress(compressed)
		assert.NoError(t, err)
		message, err := buyerinput.UnmarshalBuyerInput(raw.Bytes())
		assert.NoError(t, err)
		for _, ca := range message.CustomAudiences {
			names[buyer] = append(names[buyer], ca.Name)
		}
		if message.ProtectedAppSignals != nil {
			names[buyer] = append(names[buyer], "<signals>")
		}
	}
	return names
}

func TestHandleRequest_Ping(t *testing.T) {
	server := newTestServer(t, nil)

	resp, requestType := server.handleRequest(context.Background(), []byte(`{"type":"ping"}`))
	check.Equal(t, payloadapi.TypePing, requestType)

	pong, ok := resp.(*payloadapi.PongResponse)
	assert.True(t, ok)
	check.Equal(t, payloadapi.TypePong, pong.Type)
	check.Equal(t, fixtureNow.Unix(), pong.Timestamp)
}

func TestHandleRequest_KeyRequest(t *testing.T) {
	server := newTestServer(t, nil)

	resp, _ := server.handleRequest(context.Background(), []byte(`{"type":"key_request"}`))
	keyResp, ok := resp.(*payloadapi.KeyResponse)
	assert.True(t, ok)
	check.Equal(t, "test-key", keyResp.KeyID)
	check.NotEqual(t, "", keyResp.PublicKey)
}

func TestHandleRequest_Errors(t *testing.T) {
	server := newTestServer(t, nil)

	tests := []struct {
		name string
		raw  string
	}{
		{name: "malformed json", raw: `{"type":`},
		{name: "unknown type", raw: `{"type":"auction_request"}`},
		{name: "malformed payload request", raw: `{"type":"payload_request","publisher_name":7}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := server.handleRequest(context.Background(), []byte(tt.raw))
			errResp, ok := resp.(*payloadapi.ErrorResponse)
			assert.True(t, ok)
			check.Equal(t, payloadapi.TypeError, errResp.Type)
			check.NotEqual(t, "", errResp.Message)
		})
	}
}

func TestProcessPayloadRequest_Unoptimized(t *testing.T) {
	server := newTestServer(t, nil)

	resp := server.ProcessPayloadRequest(context.Background(), payloadapi.PayloadRequest{
		Type:          payloadapi.TypePayloadRequest,
		PublisherName: "news.example",
	})
	assert.True(t, resp.Success)
	check.Equal(t, 2, resp.BuyerCount)
	check.False(t, resp.Sealed)
	check.Equal(t, format.VersionBucketList, resp.FormatVersion)
	check.Equal(t, compression.VersionGzip, resp.CompressionVersion)
	check.Equal(t, int64(0), resp.ProcessingTime)

	raw, err := resp.Payload.Decode()
	assert.NoError(t, err)
	check.Equal(t, core.ComputePayloadDigest(raw), resp.Digest)
	check.Equal(t, 1024, len(raw))

	names := decodeCandidates(t, format.NewFormattedData(raw))
	check.Equal(t, []string{"shoes"}, names["buyer-a.example"])
	check.Equal(t, []string{"hats", "<signals>"}, names["buyer-b.example"])
	check.Equal(t, 2, len(resp.BuyerDigests))
}

func TestProcessPayloadRequest_AllowList(t *testing.T) {
	server := newTestServer(t, nil)

	resp := server.ProcessPayloadRequest(context.Background(), payloadapi.PayloadRequest{
		Type:          payloadapi.TypePayloadRequest,
		PublisherName: "news.example",
		Optimization: &payloadapi.OptimizationRequest{
			MaxBuyerInputSizeBytes: 4096,
			AllowList:              []string{"buyer-b.example"},
		},
	})
	assert.True(t, resp.Success)
	check.Equal(t, 1, resp.BuyerCount)

	raw, err := resp.Payload.Decode()
	assert.NoError(t, err)
	names := decodeCandidates(t, format.NewFormattedData(raw))
	check.Equal(t, []string{"hats", "<signals>"}, names["buyer-b.example"])
}

func TestProcessPayloadRequest_Sealed(t *testing.T) {
	server := newTestServer(t, func(cfg *config.Config) { cfg.Server.Seal = true })

	resp := server.ProcessPayloadRequest(context.Background(), payloadapi.PayloadRequest{
		Type: payloadapi.TypePayloadRequest,
	})
	assert.True(t, resp.Success)
	check.True(t, resp.Sealed)

	raw, err := resp.Payload.Decode()
	assert.NoError(t, err)
	opened, err := envelope.Open(raw, server.keyManager.PublicKey)
	assert.NoError(t, err)
	check.Equal(t, 2, len(decodeCandidates(t, opened)))
}

func TestProcessPayloadRequest_Failures(t *testing.T) {
	server := newTestServer(t, func(cfg *config.Config) {
		cfg.Format.BucketSizes = []int{64}
	})

	resp := server.ProcessPayloadRequest(context.Background(), payloadapi.PayloadRequest{
		Type: payloadapi.TypePayloadRequest,
	})
	check.False(t, resp.Success)
	check.Equal(t, "Payload exceeds every allowed size", resp.Message)
	check.Equal(t, "", resp.Payload.String())

	resp = server.ProcessPayloadRequest(context.Background(), payloadapi.PayloadRequest{
		Type:         payloadapi.TypePayloadRequest,
		Optimization: &payloadapi.OptimizationRequest{MaxBuyerInputSizeBytes: -5},
	})
	check.False(t, resp.Success)
	check.NotEqual(t, "", resp.Message)
}

func TestHandleConnection_OverPipe(t *testing.T) {
	server := newTestServer(t, nil)
	client, conn := net.Pipe()
	defer client.Close()

	go server.handleConnection(conn)

	assert.NoError(t, json.NewEncoder(client).Encode(payloadapi.PayloadRequest{
		Type:          payloadapi.TypePayloadRequest,
		PublisherName: "news.example",
	}))

	var resp payloadapi.PayloadResponse
	assert.NoError(t, json.NewDecoder(client).Decode(&resp))
	check.True(t, resp.Success)
	check.Equal(t, payloadapi.TypePayloadResponse, resp.Type)
	check.NotEqual(t, "", resp.GenerationID)
}

func TestServe_RejectsWhenPoolFull(t *testing.T) {
	server := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.MaxWorkers = 1
		cfg.Server.ReadTimeout = time.Minute
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- server.Serve(listener) }()

	// The first connection holds the only worker while it waits for a
	// request.
	busy, err := net.Dial("tcp", listener.Addr().String())
	assert.NoError(t, err)
	defer busy.Close()
	_, err = busy.Write([]byte(`{"type":`))
	assert.NoError(t, err)

	rejected, err := net.Dial("tcp", listener.Addr().String())
	assert.NoError(t, err)
	defer rejected.Close()
	_ = rejected.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = rejected.Read(make([]byte, 1))
	check.True(t, errors.Is(err, io.EOF))

	// Completing the first request frees the worker.
	_, err = busy.Write([]byte(`"ping"}`))
	assert.NoError(t, err)
	var pong payloadapi.PongResponse
	assert.NoError(t, json.NewDecoder(busy).Decode(&pong))
	check.Equal(t, payloadapi.TypePong, pong.Type)

	assert.NoError(t, listener.Close())
	check.NoError(t, <-served)
}
