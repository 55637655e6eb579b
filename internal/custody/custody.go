// Package custody 托管账户的收付款与代币原语
package custody

import (
	"context"
	"errors"
	"math"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotCustodial             = errors.New("payment is not addressed to the custodial account")
	ErrInsufficientFunds        = errors.New("custodial account has insufficient funds")
	ErrUnknownAsset             = errors.New("unknown asset")
	ErrInsufficientAssetBalance = errors.New("insufficient asset balance")
	ErrLiquidityOverflow        = errors.New("custodial liquidity would exceed the storable maximum")
)

// MaxAmount 可存储的最大金额，数据库整数列为有符号 64 位
const MaxAmount uint64 = math.MaxInt64

// Payment 一笔随调用提交的付款
type Payment struct {
	Sender   common.Address `json:"sender"`
	Receiver common.Address `json:"receiver"`
	Amount   uint64         `json:"amount"`
}

// AssetParams 创建同质化代币的参数
type AssetParams struct {
	Total    uint64
	Decimals uint32
	UnitName string
	Name     string
	URL      string
	Manager  common.Address
	Reserve  common.Address
	Freeze   common.Address
	Clawback common.Address
	Fee      uint64
}

// Collector 执行转入托管账户的付款
type Collector interface {
	Collect(ctx context.Context, p Payment) error
}

// Payer 从托管账户无条件付款
type Payer interface {
	Pay(ctx context.Context, receiver common.Address, amount, fee uint64) error
}

// AssetIssuer 创建与转移托管账户持有的代币
type AssetIssuer interface {
	CreateAsset(ctx context.Context, params AssetParams) (uint64, error)
	TransferAsset(ctx context.Context, receiver common.Address, amount, assetID, fee uint64) error
}

// Settler 将已提交的付款广播到外部网络，返回交易哈希
type Settler interface {
	Settle(ctx context.Context, receiver common.Address, amount, fee uint64) (string, error)
}

// Host 账本依赖的全部外部原语
type Host struct {
	Address common.Address
	Collector
	Payer
	Assets AssetIssuer
}

// NewHost 使用 Book 提供全部原语
func NewHost(book *Book) Host {
	return Host{
		Address:   book.Address(),
		Collector: book,
		Payer:     book,
		Assets:    book,
	}
}
