package chain

import (
	"context"
	"fmt"

	"github.com/blues/piggybank/internal/config"
	"github.com/blues/piggybank/internal/logger"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Dial 连接 RPC 节点并校验链 ID
func Dial(ctx context.Context, cfg config.ChainConfig) (*ethclient.Client, error) {
	if cfg.RpcUrl == "" {
		return nil, fmt.Errorf("no RPC URL configured")
	}

	logger.Info("Creating chain client connection (RPC: %s)", cfg.RpcUrl)
	client, err := ethclient.DialContext(ctx, cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.RpcUrl, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("client connection test failed: %w", err)
	}
	if chainID.Int64() != cfg.ChainId {
		client.Close()
		return nil, fmt.Errorf("chain id mismatch: node reports %s, configured %d", chainID, cfg.ChainId)
	}

	logger.Info("Connected to chain %d", cfg.ChainId)
	return client, nil
}
