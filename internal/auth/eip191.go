package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// personalHash applies the EIP-191 personal_sign prefix:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg)
func personalHash(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return crypto.Keccak256([]byte(prefix), msg)
}

// RecoverSigner extracts the wallet address from a personal_sign signature.
// sig must be 65 bytes (R || S || V), V in {0,1} or {27,28}.
func RecoverSigner(msg []byte, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, errors.New("invalid signature length")
	}

	sigCopy := make([]byte, 65)
	copy(sigCopy, sig)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}

	pub, err := crypto.SigToPub(personalHash(msg), sigCopy)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyWallet checks that sig over msg recovers to claimed (case-insensitive).
func VerifyWallet(claimed string, msg []byte, sig []byte) bool {
	recovered, err := RecoverSigner(msg, sig)
	if err != nil {
		return false
	}
	return strings.EqualFold(recovered.Hex(), claimed)
}
