// Package inspection decodes and checks auction payloads after the fact, for
// operators debugging what a seller actually sent.
package inspection

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/cloudx-io/protectedauction/adselection"
	"github.com/cloudx-io/protectedauction/buyerinput"
	"github.com/cloudx-io/protectedauction/compression"
	"github.com/cloudx-io/protectedauction/core"
	"github.com/cloudx-io/protectedauction/envelope"
	"github.com/cloudx-io/protectedauction/format"
)

// Options controls what Inspect checks beyond the framing itself.
type Options struct {
	// Sealed marks the input as a COSE_Sign1 envelope around the payload.
	Sealed bool

	// PublicKey verifies a sealed input. Without it the envelope is opened
	// but its signature is reported as unchecked.
	PublicKey *ecdsa.PublicKey

	// ExpectedDigest, when set, must equal the digest of the input bytes.
	ExpectedDigest string
}

// BuyerReport describes one buyer's decoded input.
type BuyerReport struct {
	Buyer             core.BuyerID `json:"buyer"`
	CompressedBytes   int          `json:"compressed_bytes"`
	DecompressedBytes int          `json:"decompressed_bytes"`
	Candidates        int          `json:"candidates"`
	Ads               int          `json:"ads"`
	SignalsBytes      int          `json:"signals_bytes"`
	Digest            string       `json:"digest"`
	Error             string       `json:"error,omitempty"`
}

// Report is the outcome of inspecting one payload. A check that was not
// performed is left false and explained in ValidationDetails.
type Report struct {
	Digest    string `json:"digest"`
	TotalSize int    `json:"total_size"`

	Sealed           bool   `json:"sealed"`
	KeyID            string `json:"key_id,omitempty"`
	Algorithm        string `json:"algorithm,omitempty"`
	SignatureChecked bool   `json:"signature_checked"`

	FormatVersion      uint8  `json:"format_version"`
	CompressionVersion uint8  `json:"compression_version"`
	Compression        string `json:"compression"`
	DataLength         uint32 `json:"data_length"`
	PaddingBytes       int    `json:"padding_bytes"`

	GenerationID         string        `json:"generation_id,omitempty"`
	PublisherName        string        `json:"publisher_name,omitempty"`
	EnableDebugReporting bool          `json:"enable_debug_reporting"`
	Buyers               []BuyerReport `json:"buyers"`

	EnvelopeValid  bool `json:"envelope_valid"`
	SignatureValid bool `json:"signature_valid"`
	HeaderValid    bool `json:"header_valid"`
	PaddingValid   bool `json:"padding_valid"`
	SizeValid      bool `json:"size_valid"`
	InputValid     bool `json:"input_valid"`
	BuyersValid    bool `json:"buyers_valid"`
	DigestMatch    bool `json:"digest_match"`

	ValidationDetails []string `json:"details"`
}

// IsValid reports whether every performed check passed. An unverified
// envelope signature and an absent expected digest do not fail the report.
func (r *Report) IsValid() bool {
	if r.Sealed && (!r.EnvelopeValid || (r.SignatureChecked && !r.SignatureValid)) {
		return false
	}
	return r.HeaderValid && r.PaddingValid && r.SizeValid && r.InputValid && r.BuyersValid && r.DigestMatch
}

func (r *Report) detail(msg string, args ...any) {
	r.ValidationDetails = append(r.ValidationDetails, fmt.Sprintf(msg, args...))
}

// Inspect decodes data and reports every check. It returns an error only
// when there is nothing to inspect; malformed payloads produce an invalid
// report.
func Inspect(data []byte, opts Options) (*Report, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", core.ErrDecode)
	}

	report := &Report{
		Digest:    core.ComputePayloadDigest(data),
		TotalSize: len(data),
		Sealed:    opts.Sealed,
	}

	report.DigestMatch = opts.ExpectedDigest == "" || opts.ExpectedDigest == report.Digest
	if opts.ExpectedDigest != "" && !report.DigestMatch {
		report.detail("Digest mismatch: expected %s, computed %s", opts.ExpectedDigest, report.Digest)
	}

	formatted := format.NewFormattedData(data)
	if opts.Sealed {
		payload, ok := inspectEnvelope(data, opts.PublicKey, report)
		if !ok {
			return report, nil
		}
		formatted = payload
	}

	unformatted, ok := inspectFraming(formatted, report)
	if !ok {
		return report, nil
	}

	input, err := adselection.UnmarshalProtectedAudienceInput(unformatted.Bytes())
	if err != nil {
		report.detail("Protected audience input could not be decoded: %v", err)
		return report, nil
	}
	report.InputValid = true
	report.GenerationID = input.GenerationID
	report.PublisherName = input.PublisherName
	report.EnableDebugReporting = input.EnableDebugReporting

	inspectBuyers(input, report)
	return report, nil
}

func inspectEnvelope(data []byte, publicKey *ecdsa.PublicKey, report *Report) (format.FormattedData, bool) {
	env, err := envelope.Parse(data)
	if err != nil {
		report.detail("Envelope could not be parsed: %v", err)
		return format.FormattedData{}, false
	}
	report.EnvelopeValid = true
	report.KeyID = env.KeyID
	report.Algorithm = env.Algorithm.String()

	if publicKey == nil {
		report.detail("Envelope signature not checked: no public key supplied")
		return env.Payload, true
	}

	report.SignatureChecked = true
	if err := env.Verify(publicKey); err != nil {
		report.detail("Envelope signature invalid: %v", err)
		return env.Payload, true
	}
	report.SignatureValid = true
	report.detail("Envelope signature valid (%s, key %q)", report.Algorithm, report.KeyID)
	return env.Payload, true
}

func inspectFraming(formatted format.FormattedData, report *Report) (format.UnformattedData, bool) {
	header, unformatted, err := format.ExtractHeader(formatted)
	if err != nil {
		report.detail("Header invalid: %v", err)
		return format.UnformattedData{}, false
	}
	report.HeaderValid = true
	report.FormatVersion = header.FormatVersion
	report.CompressionVersion = header.CompressionVersion
	report.Compression = compression.VersionName(header.CompressionVersion)
	report.DataLength = header.DataLength

	raw := formatted.Bytes()
	padding := raw[format.HeaderLength+int(header.DataLength):]
	report.PaddingBytes = len(padding)
	report.PaddingValid = bytes.Count(padding, []byte{0}) == len(padding)
	if !report.PaddingValid {
		report.detail("Padding contains non-zero bytes")
	}

	switch header.FormatVersion {
	case format.VersionPowerOfTwo:
		want := format.PowerOfTwoBucket(format.HeaderLength + int(header.DataLength))
		report.SizeValid = len(raw) == want
		if !report.SizeValid {
			report.detail("Power-of-two payload is %d bytes, want %d", len(raw), want)
		}
	case format.VersionBucketList, format.VersionExactSize:
		report.SizeValid = true
		report.detail("Format version %d payload of %d bytes; bucket sizes are deployment configuration", header.FormatVersion, len(raw))
	default:
		report.detail("Unknown format version %d", header.FormatVersion)
	}
	return unformatted, true
}

func inspectBuyers(input *adselection.ProtectedAudienceInput, report *Report) {
	compressor, err := compression.New(report.CompressionVersion)
	if err != nil {
		report.detail("Buyer inputs not decoded: %v", err)
		return
	}

	inputs := input.CompressedInputs()
	digests := core.ComputeBuyerInputDigests(input.BuyerInput)
	report.BuyersValid = true
	for _, buyer := range core.SortedBuyers(inputs) {
		compressed := inputs[buyer]
		buyerReport := BuyerReport{
			Buyer:           buyer,
			CompressedBytes: compressed.Len(),
			Digest:          digests[buyer],
		}

		raw, err := compressor.Decompress(compressed)
		if err == nil {
			buyerReport.DecompressedBytes = raw.Len()
			var message *buyerinput.BuyerInput
			message, err = buyerinput.UnmarshalBuyerInput(raw.Bytes())
			if err == nil {
				buyerReport.Candidates = len(message.CustomAudiences)
				for _, ca := range message.CustomAudiences {
					buyerReport.Ads += len(ca.AdRenderIDs)
				}
				if message.ProtectedAppSignals != nil {
					buyerReport.SignalsBytes = len(message.ProtectedAppSignals.AppInstallSignals)
				}
			}
		}
		if err != nil {
			buyerReport.Error = err.Error()
			report.BuyersValid = false
			report.detail("Buyer %s input invalid: %v", buyer, err)
		}
		report.Buyers = append(report.Buyers, buyerReport)
	}
	report.detail("Decoded %d buyer inputs", len(report.Buyers))
}

// ParsePublicKeyPEM decodes a PKIX "PUBLIC KEY" PEM block holding an ECDSA
// key.
func ParsePublicKeyPEM(data []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in public key")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want ECDSA", parsed)
	}
	return key, nil
}
