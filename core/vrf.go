package core

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/crypto"
)

// Campaign is the leader-election weight derived from a VRF-style
// signature: the big-endian integer value of a signature over the
// decimal string form of a block number.
type Campaign = big.Int

// GenerateCampaign signs the decimal representation of blockNumber with
// priv and returns the resulting signature's big-endian integer value
// together with the raw signature bytes the signature is carried as on
// the wire (CAMPAIGN payload's "campaign" hex field is the signature,
// not a derived score).
func GenerateCampaign(priv *ecdsa.PrivateKey, blockNumber uint64) (sig []byte, campaign *Campaign, err error) {
	msg := []byte(strconv.FormatUint(blockNumber, 10))
	digest := crypto.Keccak256(msg)
	sig, err = crypto.Sign(digest, priv)
	if err != nil {
		return nil, nil, fmt.Errorf("vrf: sign: %w", err)
	}
	campaign = new(big.Int).SetBytes(sig)
	return sig, campaign, nil
}

// VerifyCampaign recovers the signer of sig over blockNumber and reports
// whether it matches claimedSigner, returning the campaign value derived
// from sig so callers can feed it straight into the leader schedule.
func VerifyCampaign(sig []byte, blockNumber uint64, claimedSigner Address) (*Campaign, error) {
	msg := []byte(strconv.FormatUint(blockNumber, 10))
	digest := crypto.Keccak256(msg)
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return nil, fmt.Errorf("vrf: recover: %w", err)
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != claimedSigner {
		return nil, fmt.Errorf("vrf: signature does not belong to claimed signer %s", claimedSigner.Hex())
	}
	return new(big.Int).SetBytes(sig), nil
}

// CampaignHex renders a raw VRF signature as the 0x-prefixed hex string
// carried in a CAMPAIGN wire payload.
func CampaignHex(sig []byte) string {
	return "0x" + bytesToHexNoPrefix(sig)
}

// CampaignFromHex parses a CAMPAIGN payload's hex field back into raw
// signature bytes.
func CampaignFromHex(s string) ([]byte, error) {
	return hexDecode(s)
}
