package sigverify

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// EthVerifier implements Verifier interface using go-ethereum
type EthVerifier struct {
	logger *zap.Logger
}

// Compile-time interface compliance check
var _ Verifier = (*EthVerifier)(nil)

// NewEthVerifier creates a new personal_sign verifier
func NewEthVerifier(logger *zap.Logger) *EthVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EthVerifier{logger: logger}
}

// VerifyPersonalSign recovers the signer of an EIP-191 message and compares it to address
func (v *EthVerifier) VerifyPersonalSign(address, message string, signature []byte) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, ErrInvalidAddress
	}
	if len(signature) != SignatureLength {
		return false, ErrInvalidSignatureLen
	}

	// 1. "\x19Ethereum Signed Message:\n" + len + message, keccak256
	digest := accounts.TextHash([]byte(message))

	// 2. Normalize v value (27/28 -> 0/1)
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	// 3. Recover public key from signature
	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return false, fmt.Errorf("failed to recover public key: %w", err)
	}

	// 4. Compare as addresses, so checksum casing does not matter
	recovered := crypto.PubkeyToAddress(*pubKey)
	if recovered != common.HexToAddress(address) {
		v.logger.Debug("signature signer mismatch",
			zap.String("expected", address),
			zap.String("recovered", recovered.Hex()),
		)
		return false, nil
	}
	return true, nil
}

// SignPersonal produces an EIP-191 signature with v in {27, 28}, the form
// browser wallets return from personal_sign.
func SignPersonal(key *ecdsa.PrivateKey, message string) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// ValidateAddress validates Ethereum address format
func ValidateAddress(address string) error {
	// Check basic format (0x + 40 hex chars)
	if len(address) != 42 || !common.IsHexAddress(address) {
		return ErrInvalidAddress
	}

	// Check checksum if mixed case (EIP-55)
	checksummed := common.HexToAddress(address).Hex()
	if address != strings.ToLower(address) && address != checksummed {
		return ErrInvalidChecksum
	}

	return nil
}

// ParseSignature parses a 0x-prefixed hex signature
func ParseSignature(sig string) ([]byte, error) {
	raw, err := hexutil.Decode(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(raw) != SignatureLength {
		return nil, ErrInvalidSignatureLen
	}
	return raw, nil
}
