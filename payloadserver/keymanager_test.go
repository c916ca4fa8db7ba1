package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/protectedauction/envelope"
	"github.com/cloudx-io/protectedauction/format"
	"github.com/cloudx-io/protectedauction/payloadapi"
)

func TestKeyManager_PublicKeyPEM(t *testing.T) {
	km, err := NewKeyManager("kid-1")
	assert.NoError(t, err)

	pemStr, err := km.PublicKeyPEM()
	assert.NoError(t, err)

	block, _ := pem.Decode([]byte(pemStr))
	assert.NotNil(t, block)
	check.Equal(t, "PUBLIC KEY", block.Type)

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	assert.NoError(t, err)
	check.True(t, km.PublicKey.Equal(parsed))
}

func TestKeyManager_SealerVerifiesWithPublicKey(t *testing.T) {
	km, err := NewKeyManager("kid-1")
	assert.NoError(t, err)

	payload := format.NewFormattedData([]byte{0x40, 0, 0, 0, 1, 0xAA, 0, 0})
	sealed, err := km.Sealer().Seal(payload)
	assert.NoError(t, err)

	opened, err := envelope.Open(sealed, km.PublicKey)
	assert.NoError(t, err)
	check.True(t, payload.Equal(opened))
}

func TestLoadKeyManager_PEMForms(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)

	sec1, err := x509.MarshalECPrivateKey(key)
	assert.NoError(t, err)
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	assert.NoError(t, err)

	for name, block := range map[string]*pem.Block{
		"sec1":  {Type: "EC PRIVATE KEY", Bytes: sec1},
		"pkcs8": {Type: "PRIVATE KEY", Bytes: pkcs8},
	} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, "key.pem", string(pem.EncodeToMemory(block)))

			km, err := LoadKeyManager(path, "loaded")
			assert.NoError(t, err)
			check.True(t, key.PublicKey.Equal(km.PublicKey))
			check.Equal(t, "loaded", km.Sealer().KeyID())
		})
	}
}

func TestParseECPrivateKeyPEM_Invalid(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.NoError(t, err)
	rsaDER, err := x509.MarshalPKCS8PrivateKey(rsaKey)
	assert.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "not pem", data: []byte("plain text")},
		{name: "wrong block type", data: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1}})},
		{name: "corrupt ec key", data: pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: []byte{1, 2}})},
		{name: "rsa key", data: pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: rsaDER})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseECPrivateKeyPEM(tt.data)
			check.NotNil(t, err)
			check.Nil(t, key)
		})
	}
}

func TestHandleKeyRequest(t *testing.T) {
	km, err := NewKeyManager("kid-7")
	assert.NoError(t, err)

	resp, err := HandleKeyRequest(km)
	assert.NoError(t, err)
	check.Equal(t, payloadapi.TypeKeyResponse, resp.Type)
	check.Equal(t, "kid-7", resp.KeyID)
	check.Equal(t, "ES256", resp.Algorithm)
	check.NotEqual(t, "", resp.PublicKey)
}
