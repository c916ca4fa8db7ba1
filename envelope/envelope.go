// Package envelope signs formatted auction payloads as untagged COSE_Sign1
// structures and verifies them.
//
// COSE_Sign1 layout: [protected, unprotected, payload, signature]. The
// protected header carries the algorithm and the unprotected header carries
// the signing key ID.
package envelope

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/veraison/go-cose"

	"github.com/cloudx-io/protectedauction/codec"
	"github.com/cloudx-io/protectedauction/core"
	"github.com/cloudx-io/protectedauction/format"
)

// ErrInvalidSignature is returned when an envelope's signature does not
// verify against the supplied key.
var ErrInvalidSignature = errors.New("invalid envelope signature")

const (
	headerLabelAlgorithm int64 = 1
	headerLabelKeyID     int64 = 4
)

// Sealer signs formatted payloads with one ECDSA key.
type Sealer struct {
	signer    cose.Signer
	algorithm cose.Algorithm
	keyID     string
	protected []byte
}

// NewSealer returns a Sealer for a P-256 (ES256) or P-384 (ES384) key.
func NewSealer(key *ecdsa.PrivateKey, keyID string) (*Sealer, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: nil signing key", core.ErrConfiguration)
	}
	algorithm, err := algorithmFor(key.Curve)
	if err != nil {
		return nil, err
	}

	signer, err := cose.NewSigner(algorithm, key)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}

	protected, err := codec.Marshal(map[int64]int64{headerLabelAlgorithm: int64(algorithm)})
	if err != nil {
		return nil, fmt.Errorf("encode protected header: %w", err)
	}

	return &Sealer{signer: signer, algorithm: algorithm, keyID: keyID, protected: protected}, nil
}

// Algorithm returns the COSE algorithm used for signing.
func (s *Sealer) Algorithm() cose.Algorithm { return s.algorithm }

// KeyID returns the key ID written into each envelope.
func (s *Sealer) KeyID() string { return s.keyID }

// Seal signs data and returns the encoded COSE_Sign1 envelope.
func (s *Sealer) Seal(data format.FormattedData) ([]byte, error) {
	payload := data.Bytes()

	toBeSigned, err := sigStructure(s.protected, payload)
	if err != nil {
		return nil, err
	}
	signature, err := s.signer.Sign(rand.Reader, toBeSigned)
	if err != nil {
		return nil, fmt.Errorf("sign payload: %w", err)
	}

	unprotected := map[int64][]byte{}
	if s.keyID != "" {
		unprotected[headerLabelKeyID] = []byte(s.keyID)
	}

	sealed, err := codec.Marshal([]any{s.protected, unprotected, payload, signature})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return sealed, nil
}

// Envelope is a decoded, not yet verified, COSE_Sign1 structure.
type Envelope struct {
	Algorithm cose.Algorithm
	KeyID     string
	Payload   format.FormattedData

	protected []byte
	signature []byte
}

// Parse decodes an envelope without verifying it. Malformed input fails
// with core.ErrDecode.
func Parse(sealed []byte) (*Envelope, error) {
	var parts []codec.RawMessage
	if err := codec.Unmarshal(sealed, &parts); err != nil {
		return nil, fmt.Errorf("parse COSE array: %w", err)
	}
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: invalid COSE_Sign1 structure: expected 4 elements, got %d", core.ErrDecode, len(parts))
	}

	var protected, payload, signature []byte
	var unprotected map[int64][]byte
	if err := codec.Unmarshal(parts[0], &protected); err != nil {
		return nil, fmt.Errorf("invalid protected headers: %w", err)
	}
	if err := codec.Unmarshal(parts[1], &unprotected); err != nil {
		return nil, fmt.Errorf("invalid unprotected headers: %w", err)
	}
	if err := codec.Unmarshal(parts[2], &payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if err := codec.Unmarshal(parts[3], &signature); err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}

	var headers map[int64]int64
	if err := codec.Unmarshal(protected, &headers); err != nil {
		return nil, fmt.Errorf("invalid protected header map: %w", err)
	}
	algorithm, ok := headers[headerLabelAlgorithm]
	if !ok {
		return nil, fmt.Errorf("%w: protected header has no algorithm", core.ErrDecode)
	}

	return &Envelope{
		Algorithm: cose.Algorithm(algorithm),
		KeyID:     string(unprotected[headerLabelKeyID]),
		Payload:   format.NewFormattedData(payload),
		protected: protected,
		signature: signature,
	}, nil
}

// Verify checks the envelope's signature against publicKey.
func (e *Envelope) Verify(publicKey *ecdsa.PublicKey) error {
	if publicKey == nil {
		return fmt.Errorf("%w: nil verification key", core.ErrConfiguration)
	}
	algorithm, err := algorithmFor(publicKey.Curve)
	if err != nil {
		return err
	}
	if algorithm != e.Algorithm {
		return fmt.Errorf("%w: envelope uses %s but key is for %s", ErrInvalidSignature, e.Algorithm, algorithm)
	}

	verifier, err := cose.NewVerifier(algorithm, publicKey)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}

	toBeSigned, err := sigStructure(e.protected, e.Payload.Bytes())
	if err != nil {
		return err
	}
	if err := verifier.Verify(toBeSigned, e.signature); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// Open parses and verifies an envelope and returns its payload.
func Open(sealed []byte, publicKey *ecdsa.PublicKey) (format.FormattedData, error) {
	envelope, err := Parse(sealed)
	if err != nil {
		return format.FormattedData{}, err
	}
	if err := envelope.Verify(publicKey); err != nil {
		return format.FormattedData{}, err
	}
	return envelope.Payload, nil
}

// sigStructure builds ["Signature1", protected, external_aad, payload] with
// empty external_aad.
func sigStructure(protected, payload []byte) ([]byte, error) {
	encoded, err := codec.Marshal([]any{"Signature1", protected, []byte{}, payload})
	if err != nil {
		return nil, fmt.Errorf("marshal Sig_structure: %w", err)
	}
	return encoded, nil
}

func algorithmFor(curve elliptic.Curve) (cose.Algorithm, error) {
	switch curve {
	case elliptic.P256():
		return cose.AlgorithmES256, nil
	case elliptic.P384():
		return cose.AlgorithmES384, nil
	default:
		return 0, fmt.Errorf("%w: unsupported curve %s", core.ErrConfiguration, curve.Params().Name)
	}
}
