package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/cloudx-io/protectedauction/envelope"
	"github.com/cloudx-io/protectedauction/payloadapi"
)

// KeyManager holds the EC key that seals payloads.
type KeyManager struct {
	privateKey *ecdsa.PrivateKey // Keep private - sensitive!
	PublicKey  *ecdsa.PublicKey
	sealer     *envelope.Sealer
}

// NewKeyManager generates a fresh P-256 key.
func NewKeyManager(keyID string) (*KeyManager, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return newKeyManager(privateKey, keyID)
}

// LoadKeyManager reads a PEM-encoded EC private key in SEC 1 or PKCS #8 form.
func LoadKeyManager(path, keyID string) (*KeyManager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	privateKey, err := ParseECPrivateKeyPEM(data)
	if err != nil {
		return nil, err
	}
	return newKeyManager(privateKey, keyID)
}

func newKeyManager(privateKey *ecdsa.PrivateKey, keyID string) (*KeyManager, error) {
	sealer, err := envelope.NewSealer(privateKey, keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to create sealer: %w", err)
	}
	return &KeyManager{
		privateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		sealer:     sealer,
	}, nil
}

// ParseECPrivateKeyPEM decodes the first PEM block of data as an EC key.
func ParseECPrivateKeyPEM(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in signing key")
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse EC private key: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS #8 private key: %w", err)
		}
		key, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("signing key is %T, want ECDSA", parsed)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

// Sealer returns the sealer bound to the managed key.
func (km *KeyManager) Sealer() *envelope.Sealer { return km.sealer }

// PublicKeyPEM returns the public key in PEM format
func (km *KeyManager) PublicKeyPEM() (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(km.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	pemBlock := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: derBytes,
	}

	return string(pem.EncodeToMemory(pemBlock)), nil
}

// HandleKeyRequest returns the public key that verifies sealed payloads.
func HandleKeyRequest(keyManager *KeyManager) (*payloadapi.KeyResponse, error) {
	publicKeyPEM, err := keyManager.PublicKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("failed to export public key: %w", err)
	}

	return &payloadapi.KeyResponse{
		Type:      payloadapi.TypeKeyResponse,
		PublicKey: publicKeyPEM,
		KeyID:     keyManager.sealer.KeyID(),
		Algorithm: keyManager.sealer.Algorithm().String(),
	}, nil
}
