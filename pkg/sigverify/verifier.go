package sigverify

import (
	"errors"
)

const (
	// SignatureLength is the length of an Ethereum signature (r || s || v)
	SignatureLength = 65

	nonceSeparator = "\n\nNonce: "
)

// LoginMessage builds the text a wallet signs to log in.
// Format: {statement}\n\nNonce: {nonce}
func LoginMessage(statement, nonce string) string {
	return statement + nonceSeparator + nonce
}

// Verifier defines the interface for wallet signature verification
type Verifier interface {
	// VerifyPersonalSign checks that signature is an EIP-191 personal_sign
	// signature of message produced by address.
	VerifyPersonalSign(address, message string, signature []byte) (bool, error)
}

// Error definitions
var (
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrInvalidAddress      = errors.New("invalid ethereum address")
	ErrInvalidChecksum     = errors.New("invalid address checksum")
	ErrAddressMismatch     = errors.New("recovered address does not match")
	ErrInvalidSignatureLen = errors.New("signature must be 65 bytes")
)
