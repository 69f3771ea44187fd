package chain

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
)

// ErrNoSigner is returned when signing material is missing.
var ErrNoSigner = errors.New("no signer configured")

// Wallet wraps an ECDSA key and the chain id it signs for.
type Wallet struct {
	key     *ecdsa.PrivateKey
	chainID *big.Int
}

// NewWallet builds a wallet from a hex-encoded private key.
func NewWallet(hexKey string, chainID int64) (*Wallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, ErrNoSigner
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, err
	}
	return &Wallet{key: key, chainID: big.NewInt(chainID)}, nil
}

// LoadWalletFromEnv reads SWAPWALLET_PRIVATE_KEY, loading a .env file first if present.
func LoadWalletFromEnv(chainID int64) (*Wallet, error) {
	_ = godotenv.Load() // best-effort
	return NewWallet(os.Getenv("SWAPWALLET_PRIVATE_KEY"), chainID)
}

// Address returns the signer's account address.
func (w *Wallet) Address() common.Address {
	return crypto.PubkeyToAddress(w.key.PublicKey)
}

// SignTx signs a transaction for the wallet's chain id.
func (w *Wallet) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	if w == nil || w.key == nil {
		return nil, ErrNoSigner
	}
	return types.SignTx(tx, types.NewEIP155Signer(w.chainID), w.key)
}
