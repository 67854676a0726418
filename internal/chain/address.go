package chain

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cometbft/cometbft/crypto/ed25519"
	"github.com/cosmos/cosmos-sdk/types/bech32"
)

const ed25519PubKeyType = "/cosmos.crypto.ed25519.PubKey"

// ValidateOperatorAddress checks that address is bech32 with the expected human readable prefix
func ValidateOperatorAddress(address, prefix string) error {
	address = strings.TrimSpace(address)
	if !strings.HasPrefix(address, prefix+"1") {
		return fmt.Errorf("address must start with %s", prefix)
	}
	hrp, data, err := bech32.DecodeAndConvert(address)
	if err != nil {
		return fmt.Errorf("invalid bech32 address: %w", err)
	}
	if hrp != prefix {
		return fmt.Errorf("address prefix %s does not match %s", hrp, prefix)
	}
	if len(data) != 20 && len(data) != 32 {
		return fmt.Errorf("unexpected address length %d", len(data))
	}
	return nil
}

// ConsensusAddress derives the bech32 consensus address of an ed25519 consensus key.
// key is the base64 encoding found in the staking API.
func ConsensusAddress(pubKey *PubKey, prefix string) (string, error) {
	if pubKey == nil {
		return "", fmt.Errorf("validator has no consensus pubkey")
	}
	if pubKey.Type != ed25519PubKeyType {
		return "", fmt.Errorf("unsupported consensus key type %s", pubKey.Type)
	}
	raw, err := base64.StdEncoding.DecodeString(pubKey.Key)
	if err != nil {
		return "", fmt.Errorf("invalid consensus key encoding: %w", err)
	}
	if len(raw) != ed25519.PubKeySize {
		return "", fmt.Errorf("invalid ed25519 key length %d", len(raw))
	}
	return bech32.ConvertAndEncode(prefix, ed25519.PubKey(raw).Address())
}
