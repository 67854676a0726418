package chain

import (
	"encoding/base64"
	"testing"

	"github.com/cosmos/cosmos-sdk/types/bech32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOperatorAddress(t *testing.T) {
	addr, err := bech32.ConvertAndEncode("cosmosvaloper", make([]byte, 20))
	require.NoError(t, err)

	assert.NoError(t, ValidateOperatorAddress(addr, "cosmosvaloper"))
	assert.Error(t, ValidateOperatorAddress(addr, "osmovaloper"))
	assert.Error(t, ValidateOperatorAddress("cosmosvaloper1notbech32", "cosmosvaloper"))

	short, err := bech32.ConvertAndEncode("cosmosvaloper", make([]byte, 5))
	require.NoError(t, err)
	assert.Error(t, ValidateOperatorAddress(short, "cosmosvaloper"))
}

func TestConsensusAddress(t *testing.T) {
	key := &PubKey{Type: ed25519PubKeyType, Key: base64.StdEncoding.EncodeToString(testPubKey)}
	addr, err := ConsensusAddress(key, "cosmosvalcons")
	require.NoError(t, err)
	assert.Equal(t, testConsAddress(t), addr)

	_, err = ConsensusAddress(&PubKey{Type: "/cosmos.crypto.secp256k1.PubKey", Key: key.Key}, "cosmosvalcons")
	assert.Error(t, err)

	_, err = ConsensusAddress(&PubKey{Type: ed25519PubKeyType, Key: "AAAA"}, "cosmosvalcons")
	assert.Error(t, err)

	_, err = ConsensusAddress(nil, "cosmosvalcons")
	assert.Error(t, err)
}
