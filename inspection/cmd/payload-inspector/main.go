// payload-inspector decodes a captured auction payload and checks its
// framing, buyer inputs and optional COSE envelope.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/cloudx-io/protectedauction/inspection"
)

// Exit codes.
const (
	exitValid      = 0
	exitInvalid    = 1
	exitInputError = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var (
		inputPath     string
		encoding      string
		sealed        bool
		publicKeyPath string
		digest        string
		outputFormat  string
	)

	flagSet := pflag.NewFlagSet("payload-inspector", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&inputPath, "input", "i", "", "captured payload file, or - for stdin")
	flagSet.StringVarP(&encoding, "encoding", "e", inspection.EncodingRaw, "input encoding: raw, base64 or response")
	flagSet.BoolVar(&sealed, "sealed", false, "input is a COSE_Sign1 envelope around the payload")
	flagSet.StringVar(&publicKeyPath, "public-key", "", "PEM public key that verifies a sealed payload")
	flagSet.StringVar(&digest, "digest", "", "expected hex BLAKE3 digest of the input")
	flagSet.StringVar(&outputFormat, "format", "text", "output format: text or json")
	help := flagSet.BoolP("help", "h", false, "show usage information")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			showUsage(stdout, flagSet)
			return exitValid
		}
		return exitInputError
	}
	if *help {
		showUsage(stdout, flagSet)
		return exitValid
	}
	if inputPath == "" {
		showUsage(stderr, flagSet)
		fmt.Fprintf(stderr, "\nError: --input is required\n")
		return exitInputError
	}
	if outputFormat != "text" && outputFormat != "json" {
		fmt.Fprintf(stderr, "Error: unknown output format %q\n", outputFormat)
		return exitInputError
	}

	data, err := readInput(inputPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading input: %v\n", err)
		return exitInputError
	}

	input, err := inspection.DecodeInput(data, encoding)
	if err != nil {
		fmt.Fprintf(stderr, "Error decoding input: %v\n", err)
		return exitInputError
	}

	opts := inspection.Options{
		Sealed:         sealed || input.Sealed,
		ExpectedDigest: digest,
	}
	if opts.ExpectedDigest == "" {
		opts.ExpectedDigest = input.Digest
	}
	if publicKeyPath != "" {
		pemData, err := os.ReadFile(publicKeyPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error reading public key: %v\n", err)
			return exitInputError
		}
		opts.PublicKey, err = inspection.ParsePublicKeyPEM(pemData)
		if err != nil {
			fmt.Fprintf(stderr, "Error parsing public key: %v\n", err)
			return exitInputError
		}
	}

	report, err := inspection.Inspect(input.Payload, opts)
	if err != nil {
		fmt.Fprintf(stderr, "Inspection error: %v\n", err)
		return exitInputError
	}

	if outputFormat == "json" {
		if err := outputJSON(stdout, report); err != nil {
			fmt.Fprintf(stderr, "Error marshaling JSON: %v\n", err)
			return exitInputError
		}
	} else {
		outputText(stdout, report)
	}

	if !report.IsValid() {
		return exitInvalid
	}
	return exitValid
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func showUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintln(w, "Auction Payload Inspector")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Decodes a captured auction payload and validates its framing and buyer inputs.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  payload-inspector --input <file> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, flagSet.FlagUsages())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  # A payload_response message captured from the payload server")
	fmt.Fprintln(w, "  payload-inspector --input response.json --encoding response --public-key signing.pub")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  # Raw payload bytes from stdin, as JSON")
	fmt.Fprintln(w, "  payload-inspector --input - --format json < payload.bin")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Exit Codes:")
	fmt.Fprintln(w, "  0 - Payload valid")
	fmt.Fprintln(w, "  1 - Payload invalid")
	fmt.Fprintln(w, "  2 - Invalid input or runtime error")
}

func outputText(w io.Writer, report *inspection.Report) {
	fmt.Fprintln(w, "Auction Payload Inspector")
	fmt.Fprintln(w, "=========================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Payload:")
	fmt.Fprintf(w, "  Digest:                  %s\n", report.Digest)
	fmt.Fprintf(w, "  Total Size:              %d\n", report.TotalSize)
	if report.Sealed {
		fmt.Fprintf(w, "  Envelope:                %s, key %q\n", report.Algorithm, report.KeyID)
	}
	fmt.Fprintf(w, "  Format Version:          %d\n", report.FormatVersion)
	fmt.Fprintf(w, "  Compression:             %s (%d)\n", report.Compression, report.CompressionVersion)
	fmt.Fprintf(w, "  Data Length:             %d\n", report.DataLength)
	fmt.Fprintf(w, "  Padding:                 %d\n", report.PaddingBytes)
	fmt.Fprintf(w, "  Generation ID:           %s\n", report.GenerationID)
	fmt.Fprintf(w, "  Publisher:               %s\n", report.PublisherName)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Buyers:")
	for _, buyer := range report.Buyers {
		fmt.Fprintf(w, "  - %s: %d candidates, %d ads, %d signal bytes, %d -> %d bytes\n",
			buyer.Buyer, buyer.Candidates, buyer.Ads, buyer.SignalsBytes, buyer.CompressedBytes, buyer.DecompressedBytes)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	if report.Sealed {
		fmt.Fprintf(w, "  Envelope Valid:          %v\n", report.EnvelopeValid)
		fmt.Fprintf(w, "  Signature Valid:         %v\n", report.SignatureValid)
	}
	fmt.Fprintf(w, "  Header Valid:            %v\n", report.HeaderValid)
	fmt.Fprintf(w, "  Padding Valid:           %v\n", report.PaddingValid)
	fmt.Fprintf(w, "  Size Valid:              %v\n", report.SizeValid)
	fmt.Fprintf(w, "  Input Valid:             %v\n", report.InputValid)
	fmt.Fprintf(w, "  Buyers Valid:            %v\n", report.BuyersValid)
	fmt.Fprintf(w, "  Digest Match:            %v\n", report.DigestMatch)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Details:")
	for _, detail := range report.ValidationDetails {
		fmt.Fprintf(w, "  - %s\n", detail)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=========================")
	if report.IsValid() {
		fmt.Fprintln(w, "INSPECTION: ✓ PASSED")
	} else {
		fmt.Fprintln(w, "INSPECTION: ✗ FAILED")
	}
}

func outputJSON(w io.Writer, report *inspection.Report) error {
	output := struct {
		Valid bool `json:"valid"`
		*inspection.Report
	}{
		Valid:  report.IsValid(),
		Report: report,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
