package core

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// ComputePayloadDigest returns the hex-encoded BLAKE3-256 digest of a payload.
// The payload service logs it and returns it to callers; the inspector prints it
// so a captured payload can be matched to the request that produced it.
func ComputePayloadDigest(payload []byte) string {
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// ComputeBuyerInputDigests digests each buyer's input independently.
func ComputeBuyerInputDigests(inputs map[BuyerID][]byte) map[BuyerID]string {
	digests := make(map[BuyerID]string, len(inputs))
	for _, buyer := range SortedBuyers(inputs) {
		digests[buyer] = ComputePayloadDigest(inputs[buyer])
	}
	return digests
}
