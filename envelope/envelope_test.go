package envelope

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/protectedauction/codec"
	"github.com/cloudx-io/protectedauction/core"
	"github.com/cloudx-io/protectedauction/format"
)

func newKey(t *testing.T, curve elliptic.Curve) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	assert.NoError(t, err)
	return key
}

func samplePayload(t *testing.T) format.FormattedData {
	t.Helper()
	formatted, err := format.NewPowerOfTwoFormatter().Apply(format.NewUnformattedData([]byte("buyer inputs")), 2)
	assert.NoError(t, err)
	return formatted
}

func TestSealOpen_RoundTrip(t *testing.T) {
	for name, curve := range map[string]elliptic.Curve{"P-256": elliptic.P256(), "P-384": elliptic.P384()} {
		t.Run(name, func(t *testing.T) {
			key := newKey(t, curve)
			sealer, err := NewSealer(key, "seller-key-1")
			assert.NoError(t, err)

			payload := samplePayload(t)
			sealed, err := sealer.Seal(payload)
			assert.NoError(t, err)

			opened, err := Open(sealed, &key.PublicKey)
			assert.NoError(t, err)
			check.True(t, opened.Equal(payload))

			envelope, err := Parse(sealed)
			assert.NoError(t, err)
			check.Equal(t, "seller-key-1", envelope.KeyID)
			check.Equal(t, sealer.Algorithm(), envelope.Algorithm)
		})
	}
}

func TestSeal_Algorithm(t *testing.T) {
	sealer, err := NewSealer(newKey(t, elliptic.P256()), "")
	assert.NoError(t, err)
	check.Equal(t, cose.AlgorithmES256, sealer.Algorithm())

	sealer, err = NewSealer(newKey(t, elliptic.P384()), "")
	assert.NoError(t, err)
	check.Equal(t, cose.AlgorithmES384, sealer.Algorithm())
}

func TestNewSealer_Invalid(t *testing.T) {
	_, err := NewSealer(nil, "k")
	check.True(t, errors.Is(err, core.ErrConfiguration))

	_, err = NewSealer(newKey(t, elliptic.P521()), "k")
	check.True(t, errors.Is(err, core.ErrConfiguration))
}

func TestOpen_WrongKey(t *testing.T) {
	sealer, err := NewSealer(newKey(t, elliptic.P256()), "k")
	assert.NoError(t, err)
	sealed, err := sealer.Seal(samplePayload(t))
	assert.NoError(t, err)

	other := newKey(t, elliptic.P256())
	_, err = Open(sealed, &other.PublicKey)
	check.True(t, errors.Is(err, ErrInvalidSignature))

	p384 := newKey(t, elliptic.P384())
	_, err = Open(sealed, &p384.PublicKey)
	check.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestOpen_TamperedPayload(t *testing.T) {
	key := newKey(t, elliptic.P256())
	sealer, err := NewSealer(key, "k")
	assert.NoError(t, err)
	sealed, err := sealer.Seal(samplePayload(t))
	assert.NoError(t, err)

	var parts []codec.RawMessage
	assert.NoError(t, codec.Unmarshal(sealed, &parts))
	var payload []byte
	assert.NoError(t, codec.Unmarshal(parts[2], &payload))
	payload[len(payload)-1] ^= 0xFF

	tamperedPayload, err := codec.Marshal(payload)
	assert.NoError(t, err)
	parts[2] = tamperedPayload
	tampered, err := codec.Marshal(parts)
	assert.NoError(t, err)

	_, err = Open(tampered, &key.PublicKey)
	check.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte{0xff})
	check.True(t, errors.Is(err, core.ErrDecode))

	threeElements, err := codec.Marshal([]any{[]byte{}, map[int64][]byte{}, []byte{}})
	assert.NoError(t, err)
	_, err = Parse(threeElements)
	check.True(t, errors.Is(err, core.ErrDecode))
}
