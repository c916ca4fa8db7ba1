// Package codec is the deterministic CBOR encoding used for every structured
// message that ends up inside an auction payload. Identical values always
// encode to identical bytes, which keeps payload assembly reproducible.
package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/protectedauction/core"
)

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v using core deterministic encoding (RFC 8949 §4.2.1).
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v. Malformed input fails with core.ErrDecode.
func Unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: cbor: %v", core.ErrDecode, err)
	}
	return nil
}

// RawMessage is a raw encoded CBOR value, used to decode arrays element by
// element.
type RawMessage = cbor.RawMessage

// Diagnose returns the CBOR extended diagnostic notation of data.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
