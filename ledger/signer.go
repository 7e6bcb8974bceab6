package ledger

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the submission key for one caller identity. Key material never
// leaves this type.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	signer  gethtypes.Signer
}

// NewSigner constructs a signer for chainID.
func NewSigner(key *ecdsa.PrivateKey, chainID *big.Int) (*Signer, error) {
	if key == nil {
		return nil, errors.New("ledger: nil signing key")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("ledger: chain id must be positive")
	}
	id := new(big.Int).Set(chainID)
	return &Signer{
		key:     key,
		address: gethcrypto.PubkeyToAddress(key.PublicKey),
		chainID: id,
		signer:  gethtypes.LatestSignerForChainID(id),
	}, nil
}

// Address returns the caller identity derived from the key.
func (s *Signer) Address() common.Address { return s.address }

// ChainID returns a copy of the chain identifier.
func (s *Signer) ChainID() *big.Int { return new(big.Int).Set(s.chainID) }

// SignTx signs tx for the configured chain.
func (s *Signer) SignTx(tx *gethtypes.Transaction) (*gethtypes.Transaction, error) {
	return gethtypes.SignTx(tx, s.signer, s.key)
}
