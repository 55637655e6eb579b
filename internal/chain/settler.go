package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/blues/piggybank/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
)

// Backend 结算所需的节点接口，*ethclient.Client 满足该接口
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Settler 用托管私钥签名并广播原生币转账
type Settler struct {
	mu         sync.Mutex // 保证 nonce 顺序
	backend    Backend
	key        *ecdsa.PrivateKey
	from       common.Address
	chainID    *big.Int
	weiPerUnit *big.Int
}

// NewSettler 创建结算器，privateKey 为十六进制私钥（可带 0x 前缀）
func NewSettler(backend Backend, privateKey string, chainID, weiPerUnit int64) (*Settler, error) {
	key, err := ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	if weiPerUnit <= 0 {
		return nil, fmt.Errorf("wei per unit must be positive, got %d", weiPerUnit)
	}

	return &Settler{
		backend:    backend,
		key:        key,
		from:       crypto.PubkeyToAddress(key.PublicKey),
		chainID:    big.NewInt(chainID),
		weiPerUnit: big.NewInt(weiPerUnit),
	}, nil
}

// ParsePrivateKey 解析私钥
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// Address 托管账户地址
func (s *Settler) Address() common.Address {
	return s.from
}

// Settle 实现 custody.Settler。fee 只在账本中扣除，链上 gas 由托管账户承担。
func (s *Settler) Settle(ctx context.Context, receiver common.Address, amount, fee uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to suggest gas price: %w", err)
	}

	value := new(big.Int).Mul(new(big.Int).SetUint64(amount), s.weiPerUnit)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &receiver,
		Value:    value,
		Gas:      params.TxGas,
		GasPrice: gasPrice,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	logger.Info("Settled %d units (%s wei) to %s, tx %s", amount, value, receiver.Hex(), signed.Hash().Hex())
	return signed.Hash().Hex(), nil
}
