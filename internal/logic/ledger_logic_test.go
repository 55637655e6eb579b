package logic

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/blues/piggybank/internal/config"
	"github.com/blues/piggybank/internal/custody"
	"github.com/blues/piggybank/internal/database"
	"github.com/blues/piggybank/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	custodial = common.HexToAddress("0x00000000000000000000000000000000000c0ffe")
	creator   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	alice     = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob       = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	carol     = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Init(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestLedger(t *testing.T, opts ...custody.Option) (*LedgerLogic, *custody.Book, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	book := custody.NewBook(db, custodial, opts...)
	return NewLedgerLogic(db, custody.NewHost(book)), book, db
}

func pay(from common.Address, amount uint64) custody.Payment {
	return custody.Payment{Sender: from, Receiver: custodial, Amount: amount}
}

func initialize(t *testing.T, l *LedgerLogic, tokenEnabled bool, supply, goal uint64) uint64 {
	t.Helper()
	id, err := l.Initialize(context.Background(), creator, InitializeParams{
		Name:         "Holiday fund",
		Description:  "Saving together",
		TokenName:    "Piggy",
		TokenSymbol:  "PIG",
		TokenSupply:  supply,
		TokenEnabled: tokenEnabled,
		Goal:         goal,
		Reserve:      pay(creator, AssetCreationReserve),
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return id
}

// checkConservation 校验累计存款等于账本之和，且没有零余额条目
func checkConservation(t *testing.T, l *LedgerLogic, db *gorm.DB) {
	t.Helper()
	project, err := l.GetProject(context.Background())
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	var deposits []model.DepositModel
	if err := db.Find(&deposits).Error; err != nil {
		t.Fatalf("failed to load deposits: %v", err)
	}
	var sum uint64
	for _, d := range deposits {
		if d.Amount == 0 {
			t.Errorf("zero balance entry for %s", d.Address)
		}
		sum += d.Amount
	}
	if sum != project.TotalDeposited {
		t.Errorf("total deposited = %d, ledger sum = %d", project.TotalDeposited, sum)
	}
}

func TestGoalScenario(t *testing.T) {
	ctx := context.Background()
	l, _, db := newTestLedger(t)

	if id := initialize(t, l, false, 0, 1_000_000); id != 0 {
		t.Fatalf("token id = %d, want 0 for a project without token", id)
	}

	if bal, err := l.Deposit(ctx, pay(alice, 600_000)); err != nil || bal != 600_000 {
		t.Fatalf("Deposit(alice) = %d, %v", bal, err)
	}
	if bal, err := l.Deposit(ctx, pay(bob, 500_000)); err != nil || bal != 500_000 {
		t.Fatalf("Deposit(bob) = %d, %v", bal, err)
	}

	info, err := l.GetProjectInfo(ctx)
	if err != nil {
		t.Fatalf("GetProjectInfo() error = %v", err)
	}
	if info.TotalDeposited != 1_100_000 {
		t.Errorf("total deposited = %d, want 1100000", info.TotalDeposited)
	}
	if reached, _ := l.IsGoalReached(ctx); !reached {
		t.Error("goal should be reached")
	}

	remaining, err := l.Withdraw(ctx, alice, 600_000)
	if err != nil || remaining != 0 {
		t.Fatalf("Withdraw(alice) = %d, %v", remaining, err)
	}
	if _, exists, _ := l.LookupDeposit(ctx, alice); exists {
		t.Error("alice's entry should be removed after a full withdrawal")
	}
	info, _ = l.GetProjectInfo(ctx)
	if info.TotalDeposited != 500_000 {
		t.Errorf("total deposited = %d, want 500000", info.TotalDeposited)
	}
	if reached, _ := l.IsGoalReached(ctx); reached {
		t.Error("goal should no longer be reached")
	}
	checkConservation(t, l, db)
}

func TestEntitlementScenario(t *testing.T) {
	ctx := context.Background()
	l, book, _ := newTestLedger(t)

	tokenID := initialize(t, l, true, 1_000_000, 10_000)
	if tokenID == 0 {
		t.Fatal("token should have been created")
	}

	if _, err := l.Deposit(ctx, pay(carol, 3_500)); err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}

	if got, err := l.Claim(ctx, carol, 3); err != nil || got != 3 {
		t.Fatalf("Claim(3) = %d, %v", got, err)
	}
	if _, err := l.Claim(ctx, carol, 4); !errors.Is(err, ErrClaimExceedsEntitlement) {
		t.Fatalf("Claim(4) error = %v, want ErrClaimExceedsEntitlement", err)
	}

	held, err := book.Holding(ctx, tokenID, carol)
	if err != nil {
		t.Fatalf("Holding() error = %v", err)
	}
	if held != 3 {
		t.Errorf("carol holds %d tokens, want 3", held)
	}

	// 领取不扣减存款
	if bal, _ := l.GetDeposit(ctx, carol); bal != 3_500 {
		t.Errorf("carol's balance = %d, want 3500", bal)
	}
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		params  InitializeParams
		wantErr error
	}{
		{
			name:    "wrong receiver",
			params:  InitializeParams{Name: "x", Reserve: custody.Payment{Sender: creator, Receiver: alice, Amount: AssetCreationReserve}},
			wantErr: ErrWrongReceiver,
		},
		{
			name:    "reserve below asset creation threshold",
			params:  InitializeParams{Name: "x", TokenEnabled: true, TokenSupply: 10, Reserve: pay(creator, AssetCreationReserve-1)},
			wantErr: ErrInsufficientReserve,
		},
		{
			name:    "goal above storable maximum",
			params:  InitializeParams{Name: "x", Goal: 1 << 63, Reserve: pay(creator, 1)},
			wantErr: ErrAmountOverflow,
		},
		{
			name:    "supply above storable maximum",
			params:  InitializeParams{Name: "x", TokenEnabled: true, TokenSupply: 1 << 63, Reserve: pay(creator, AssetCreationReserve)},
			wantErr: ErrAmountOverflow,
		},
		{
			name:    "reserve above storable maximum",
			params:  InitializeParams{Name: "x", Reserve: pay(creator, 1<<63)},
			wantErr: ErrAmountOverflow,
		},
		{
			name:   "small reserve is fine without token",
			params: InitializeParams{Name: "x", Reserve: pay(creator, 1)},
		},
		{
			name:   "token enabled",
			params: InitializeParams{Name: "x", TokenEnabled: true, TokenSupply: 10, TokenName: "T", TokenSymbol: "T", Reserve: pay(creator, AssetCreationReserve)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, book, _ := newTestLedger(t)
			_, err := l.Initialize(ctx, creator, tt.params)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Initialize() error = %v, want %v", err, tt.wantErr)
			}

			project, _ := l.GetProject(ctx)
			liquidity, _ := book.Liquidity(ctx)
			if tt.wantErr != nil {
				if project.IsActive() {
					t.Error("project should stay uninitialized")
				}
				if liquidity != 0 {
					t.Errorf("liquidity = %d after rejected initialize", liquidity)
				}
				return
			}
			if !project.IsActive() || project.Creator != creator.Hex() {
				t.Errorf("project = %+v", project)
			}
			if liquidity != tt.params.Reserve.Amount {
				t.Errorf("liquidity = %d, want %d", liquidity, tt.params.Reserve.Amount)
			}
		})
	}
}

func TestInitializeOnlyOnce(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)
	initialize(t, l, false, 0, 100)

	_, err := l.Initialize(ctx, alice, InitializeParams{Name: "other", Goal: 5, Reserve: pay(alice, 1)})
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second Initialize() error = %v, want ErrAlreadyInitialized", err)
	}

	project, _ := l.GetProject(ctx)
	if project.Name != "Holiday fund" || project.GoalAmount != 100 || project.Creator != creator.Hex() {
		t.Errorf("project changed by rejected initialize: %+v", project)
	}
}

func TestInitializeTokenParams(t *testing.T) {
	ctx := context.Background()
	l, book, db := newTestLedger(t)
	tokenID := initialize(t, l, true, 5_000, 0)

	var asset model.AssetModel
	if err := db.First(&asset, tokenID).Error; err != nil {
		t.Fatalf("failed to load asset: %v", err)
	}
	if asset.Total != 5_000 || asset.Decimals != TokenDecimals || asset.URL != TokenURL {
		t.Errorf("asset = %+v", asset)
	}
	if asset.UnitName != "PIG" || asset.Name != "Piggy" {
		t.Errorf("asset names = %s/%s", asset.UnitName, asset.Name)
	}
	for _, authority := range []string{asset.Manager, asset.Reserve, asset.Freeze, asset.Clawback} {
		if authority != creator.Hex() {
			t.Errorf("authority = %s, want creator", authority)
		}
	}

	held, _ := book.Holding(ctx, tokenID, custodial)
	if held != 5_000 {
		t.Errorf("custodial holding = %d, want full supply", held)
	}
}

func TestNotActive(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)

	if _, err := l.Deposit(ctx, pay(alice, 10)); !errors.Is(err, ErrProjectNotActive) {
		t.Errorf("Deposit() error = %v", err)
	}
	if _, err := l.Withdraw(ctx, alice, 10); !errors.Is(err, ErrProjectNotActive) {
		t.Errorf("Withdraw() error = %v", err)
	}
	if _, err := l.Claim(ctx, alice, 1); !errors.Is(err, ErrProjectNotActive) {
		t.Errorf("Claim() error = %v", err)
	}

	// 查询在未初始化状态下返回零值
	info, err := l.GetProjectInfo(ctx)
	if err != nil || info != (ProjectInfo{}) {
		t.Errorf("GetProjectInfo() = %+v, %v", info, err)
	}
	if bal, err := l.GetDeposit(ctx, alice); err != nil || bal != 0 {
		t.Errorf("GetDeposit() = %d, %v", bal, err)
	}
	if reached, err := l.IsGoalReached(ctx); err != nil || !reached {
		t.Errorf("IsGoalReached() = %v, %v; zero total meets zero goal", reached, err)
	}
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	l, _, db := newTestLedger(t)
	initialize(t, l, false, 0, 1_000)

	tests := []struct {
		name    string
		payment custody.Payment
		want    uint64
		wantErr error
	}{
		{"first deposit", pay(alice, 100), 100, nil},
		{"second deposit accumulates", pay(alice, 50), 150, nil},
		{"other sender", pay(bob, 7), 7, nil},
		{"zero amount", pay(alice, 0), 0, ErrZeroAmount},
		{"wrong receiver", custody.Payment{Sender: alice, Receiver: bob, Amount: 10}, 0, ErrWrongReceiver},
		{"above storable maximum", pay(alice, 1<<63), 0, ErrAmountOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Deposit(ctx, tt.payment)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Deposit() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Deposit() = %d, want %d", got, tt.want)
			}
			checkConservation(t, l, db)
		})
	}
}

// acceptingCollector 接受任意付款，不限制托管余额
type acceptingCollector struct{}

func (acceptingCollector) Collect(context.Context, custody.Payment) error {
	return nil
}

func TestDepositOverflow(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	host := custody.NewHost(custody.NewBook(db, custodial))
	host.Collector = acceptingCollector{}
	l := NewLedgerLogic(db, host)
	initialize(t, l, false, 0, 0)

	if bal, err := l.Deposit(ctx, pay(alice, custody.MaxAmount)); err != nil || bal != custody.MaxAmount {
		t.Fatalf("Deposit() = %d, %v", bal, err)
	}

	tests := []struct {
		name    string
		payment custody.Payment
	}{
		{"balance past maximum", pay(alice, 1)},
		{"total past maximum", pay(bob, 1)},
		{"amount past maximum", pay(carol, custody.MaxAmount+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Deposit(ctx, tt.payment)
			if !errors.Is(err, ErrAmountOverflow) {
				t.Fatalf("Deposit() error = %v, want ErrAmountOverflow", err)
			}
			if !IsRejection(err) {
				t.Error("overflow should be a rejection")
			}
		})
	}

	if bal, _ := l.GetDeposit(ctx, alice); bal != custody.MaxAmount {
		t.Errorf("alice's balance = %d, want %d", bal, custody.MaxAmount)
	}
	checkConservation(t, l, db)
}

func TestDepositLiquidityOverflow(t *testing.T) {
	ctx := context.Background()
	l, book, db := newTestLedger(t)
	initialize(t, l, false, 0, 0)

	// 托管账户已持有初始化储备，存入后恰好达到上限
	largest := custody.MaxAmount - AssetCreationReserve
	if _, err := l.Deposit(ctx, pay(alice, largest)); err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}

	_, err := l.Deposit(ctx, pay(bob, 1))
	if !errors.Is(err, custody.ErrLiquidityOverflow) || !IsRejection(err) {
		t.Fatalf("Deposit() error = %v, want ErrLiquidityOverflow", err)
	}
	if bal, exists, _ := l.LookupDeposit(ctx, bob); exists || bal != 0 {
		t.Errorf("bob's balance = %d (exists %v) after rejected deposit", bal, exists)
	}
	if liquidity, _ := book.Liquidity(ctx); liquidity != custody.MaxAmount {
		t.Errorf("liquidity = %d, want %d", liquidity, custody.MaxAmount)
	}
	checkConservation(t, l, db)
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	l, book, db := newTestLedger(t)
	initialize(t, l, false, 0, 1_000)
	if _, err := l.Deposit(ctx, pay(alice, 100)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		caller  common.Address
		amount  uint64
		want    uint64
		wantErr error
	}{
		{"no deposit", bob, 10, 0, ErrNoDeposit},
		{"zero amount", alice, 0, 0, ErrZeroAmount},
		{"overdraw", alice, 101, 0, ErrInsufficientBalance},
		{"partial", alice, 40, 60, nil},
		{"overdraw remaining", alice, 61, 0, ErrInsufficientBalance},
		{"rest", alice, 60, 0, nil},
		{"after full withdrawal", alice, 1, 0, ErrNoDeposit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Withdraw(ctx, tt.caller, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Withdraw() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Withdraw() = %d, want %d", got, tt.want)
			}
			checkConservation(t, l, db)
		})
	}

	// 只剩初始化储备
	liquidity, _ := book.Liquidity(ctx)
	if liquidity != AssetCreationReserve {
		t.Errorf("liquidity = %d, want %d", liquidity, AssetCreationReserve)
	}
}

type failingPayer struct{}

func (failingPayer) Pay(context.Context, common.Address, uint64, uint64) error {
	return errors.New("node unavailable")
}

func TestWithdrawRollsBackOnPaymentFailure(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	book := custody.NewBook(db, custodial)
	host := custody.NewHost(book)
	host.Payer = failingPayer{}
	l := NewLedgerLogic(db, host)
	initialize(t, l, false, 0, 1_000)
	if _, err := l.Deposit(ctx, pay(alice, 100)); err != nil {
		t.Fatal(err)
	}
	before, _ := book.Liquidity(ctx)

	if _, err := l.Withdraw(ctx, alice, 100); err == nil {
		t.Fatal("Withdraw() should fail when payment fails")
	} else if IsRejection(err) {
		t.Errorf("payment failure reported as rejection: %v", err)
	}

	if bal, exists, _ := l.LookupDeposit(ctx, alice); !exists || bal != 100 {
		t.Errorf("alice's balance = %d (exists %v), want 100", bal, exists)
	}
	if after, _ := book.Liquidity(ctx); after != before {
		t.Errorf("liquidity = %d, want %d", after, before)
	}
	var withdrawals int64
	db.Model(&model.JournalEntryModel{}).Where("kind = ?", model.JournalKindWithdraw).Count(&withdrawals)
	if withdrawals != 0 {
		t.Errorf("journal has %d withdrawals after rollback", withdrawals)
	}
	checkConservation(t, l, db)
}

type recordingSettler struct {
	calls []uint64
}

func (s *recordingSettler) Settle(_ context.Context, _ common.Address, amount, _ uint64) (string, error) {
	s.calls = append(s.calls, amount)
	return "0x01", nil
}

func TestWithdrawSettlesOnlyAfterCommit(t *testing.T) {
	ctx := context.Background()
	l, book, db := newTestLedger(t, custody.WithDeferredSettlement())
	initialize(t, l, false, 0, 1_000)
	if _, err := l.Deposit(ctx, pay(alice, 100)); err != nil {
		t.Fatal(err)
	}
	settler := &recordingSettler{}

	// 付款已记账，但之后的流水写入失败
	if err := db.Migrator().DropTable(&model.JournalEntryModel{}); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Withdraw(ctx, alice, 60); err == nil {
		t.Fatal("Withdraw() should fail when the journal cannot be written")
	}
	if n, err := book.SettlePending(ctx, settler, 10); err != nil || n != 0 {
		t.Errorf("SettlePending() = %d, %v; want nothing to settle", n, err)
	}
	if len(settler.calls) != 0 {
		t.Fatalf("rolled back withdrawal was broadcast: %v", settler.calls)
	}
	if bal, _ := l.GetDeposit(ctx, alice); bal != 100 {
		t.Errorf("alice's balance = %d, want 100", bal)
	}

	if err := database.Migrate(db); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Withdraw(ctx, alice, 60); err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if len(settler.calls) != 0 {
		t.Error("withdrawal broadcast before settlement ran")
	}
	if n, err := book.SettlePending(ctx, settler, 10); err != nil || n != 1 {
		t.Errorf("SettlePending() = %d, %v; want 1", n, err)
	}
	if len(settler.calls) != 1 || settler.calls[0] != 60 {
		t.Errorf("settler calls = %v, want [60]", settler.calls)
	}
	checkConservation(t, l, db)
}

type failingAssets struct{}

func (failingAssets) CreateAsset(context.Context, custody.AssetParams) (uint64, error) {
	return 0, errors.New("asset creation failed")
}

func (failingAssets) TransferAsset(context.Context, common.Address, uint64, uint64, uint64) error {
	return errors.New("asset transfer failed")
}

func TestInitializeRollsBackOnAssetFailure(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	book := custody.NewBook(db, custodial)
	host := custody.NewHost(book)
	host.Assets = failingAssets{}
	l := NewLedgerLogic(db, host)

	_, err := l.Initialize(ctx, creator, InitializeParams{
		Name:         "x",
		TokenEnabled: true,
		TokenSupply:  10,
		Reserve:      pay(creator, AssetCreationReserve),
	})
	if err == nil {
		t.Fatal("Initialize() should fail")
	}

	project, _ := l.GetProject(ctx)
	if project.IsActive() {
		t.Error("project should remain uninitialized")
	}
	if liquidity, _ := book.Liquidity(ctx); liquidity != 0 {
		t.Errorf("reserve collected despite rollback: %d", liquidity)
	}
}

func TestClaim(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)
	initialize(t, l, true, 1_000_000, 0)
	if _, err := l.Deposit(ctx, pay(alice, 5_999)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		caller  common.Address
		amount  uint64
		wantErr error
	}{
		{"at entitlement", alice, 5, nil},
		{"above entitlement", alice, 6, ErrClaimExceedsEntitlement},
		{"zero", alice, 0, nil},
		{"repeated claim keeps the same ceiling", alice, 5, nil},
		{"no deposit", bob, 1, ErrNoDeposit},
		{"creator claims without deposit", creator, 1_000, nil},
		{"creator capped by supply", creator, 1_000_001, ErrClaimExceedsEntitlement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Claim(ctx, tt.caller, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Claim() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && got != tt.amount {
				t.Errorf("Claim() = %d, want %d", got, tt.amount)
			}
		})
	}
}

// unissuedAssets 接受创建请求但不分配代币 id
type unissuedAssets struct{}

func (unissuedAssets) CreateAsset(context.Context, custody.AssetParams) (uint64, error) {
	return 0, nil
}

func (unissuedAssets) TransferAsset(context.Context, common.Address, uint64, uint64, uint64) error {
	return errors.New("no asset to transfer")
}

func TestClaimTokenNotCreated(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	host := custody.NewHost(custody.NewBook(db, custodial))
	host.Assets = unissuedAssets{}
	l := NewLedgerLogic(db, host)

	if id := initialize(t, l, true, 1_000_000, 0); id != 0 {
		t.Fatalf("token id = %d, want 0", id)
	}
	if _, err := l.Deposit(ctx, pay(alice, 5_000)); err != nil {
		t.Fatal(err)
	}

	for _, caller := range []common.Address{alice, creator} {
		_, err := l.Claim(ctx, caller, 1)
		if !errors.Is(err, ErrTokenNotCreated) {
			t.Errorf("Claim(%s) error = %v, want ErrTokenNotCreated", caller.Hex(), err)
		}
	}
	if ceiling, err := l.ClaimCeiling(ctx, creator); err != nil || ceiling != 0 {
		t.Errorf("ClaimCeiling(creator) = %d, %v; want 0", ceiling, err)
	}
}

func TestClaimCeiling(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)

	if ceiling, err := l.ClaimCeiling(ctx, creator); err != nil || ceiling != 0 {
		t.Fatalf("ClaimCeiling() before initialize = %d, %v", ceiling, err)
	}

	initialize(t, l, true, 1_000_000, 0)
	if _, err := l.Deposit(ctx, pay(alice, 5_999)); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Deposit(ctx, pay(creator, 2_000)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		address common.Address
		want    uint64
	}{
		{"depositor", alice, 5},
		{"no deposit", bob, 0},
		{"creator gets the full supply", creator, 1_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.ClaimCeiling(ctx, tt.address)
			if err != nil {
				t.Fatalf("ClaimCeiling() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ClaimCeiling() = %d, want %d", got, tt.want)
			}
			if tt.want > 0 {
				if _, err := l.Claim(ctx, tt.address, tt.want+1); !errors.Is(err, ErrClaimExceedsEntitlement) {
					t.Errorf("Claim(%d) error = %v", tt.want+1, err)
				}
			}
		})
	}
}

func TestClaimTokenDisabled(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)
	initialize(t, l, false, 0, 0)
	if _, err := l.Deposit(ctx, pay(alice, 5_000)); err != nil {
		t.Fatal(err)
	}

	if _, err := l.Claim(ctx, alice, 1); !errors.Is(err, ErrTokenDisabled) {
		t.Errorf("Claim() error = %v, want ErrTokenDisabled", err)
	}
	if _, err := l.OptInToken(ctx, alice, 1, pay(alice, OptInReserve)); !errors.Is(err, ErrTokenDisabled) {
		t.Errorf("OptInToken() error = %v, want ErrTokenDisabled", err)
	}
}

func TestEntitlementBoundary(t *testing.T) {
	balances := []uint64{1, 999, 1_000, 1_001, 3_500, 999_999, 1_000_000}

	for _, balance := range balances {
		l, _, _ := newTestLedger(t)
		initialize(t, l, true, 10_000_000, 0)
		ctx := context.Background()
		if _, err := l.Deposit(ctx, pay(alice, balance)); err != nil {
			t.Fatal(err)
		}

		limit := balance / 1_000
		if limit != Entitlement(balance) {
			t.Fatalf("Entitlement(%d) = %d, want %d", balance, Entitlement(balance), limit)
		}
		if _, err := l.Claim(ctx, alice, limit); err != nil {
			t.Errorf("balance %d: Claim(%d) error = %v", balance, limit, err)
		}
		if _, err := l.Claim(ctx, alice, limit+1); !errors.Is(err, ErrClaimExceedsEntitlement) {
			t.Errorf("balance %d: Claim(%d) error = %v", balance, limit+1, err)
		}
	}
}

func TestOptInToken(t *testing.T) {
	ctx := context.Background()
	l, _, db := newTestLedger(t)
	tokenID := initialize(t, l, true, 1_000, 0)

	tests := []struct {
		name    string
		assetID uint64
		reserve custody.Payment
		wantErr error
	}{
		{"ok", tokenID, pay(alice, OptInReserve), nil},
		{"wrong receiver", tokenID, custody.Payment{Sender: alice, Receiver: bob, Amount: OptInReserve}, ErrWrongReceiver},
		{"reserve too small", tokenID, pay(alice, OptInReserve-1), ErrInsufficientReserve},
		{"wrong asset", tokenID + 1, pay(alice, OptInReserve), ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := l.OptInToken(ctx, alice, tt.assetID, tt.reserve)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("OptInToken() error = %v, want %v", err, tt.wantErr)
			}
			if ok != (tt.wantErr == nil) {
				t.Errorf("OptInToken() = %v", ok)
			}
		})
	}

	// opt-in 不修改账本
	if _, exists, _ := l.LookupDeposit(ctx, alice); exists {
		t.Error("opt-in should not create a ledger entry")
	}
	checkConservation(t, l, db)
}

func TestQueriesAreIdempotent(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)
	initialize(t, l, true, 1_000, 500)
	if _, err := l.Deposit(ctx, pay(alice, 300)); err != nil {
		t.Fatal(err)
	}

	info1, _ := l.GetProjectInfo(ctx)
	dep1, _ := l.GetDeposit(ctx, alice)
	goal1, _ := l.IsGoalReached(ctx)
	for i := 0; i < 3; i++ {
		info, _ := l.GetProjectInfo(ctx)
		dep, _ := l.GetDeposit(ctx, alice)
		goal, _ := l.IsGoalReached(ctx)
		if info != info1 || dep != dep1 || goal != goal1 {
			t.Fatalf("query results changed: %+v %d %v", info, dep, goal)
		}
	}
}

func TestConcurrentDeposits(t *testing.T) {
	ctx := context.Background()
	l, _, db := newTestLedger(t)
	initialize(t, l, false, 0, 0)

	senders := []common.Address{alice, bob, carol}
	const rounds = 20

	var wg sync.WaitGroup
	for _, sender := range senders {
		for i := 0; i < rounds; i++ {
			wg.Add(1)
			go func(from common.Address) {
				defer wg.Done()
				if _, err := l.Deposit(ctx, pay(from, 10)); err != nil {
					t.Errorf("Deposit() error = %v", err)
				}
			}(sender)
		}
	}
	wg.Wait()

	for _, sender := range senders {
		if bal, _ := l.GetDeposit(ctx, sender); bal != rounds*10 {
			t.Errorf("%s balance = %d, want %d", sender.Hex(), bal, rounds*10)
		}
	}
	checkConservation(t, l, db)
}

func TestIsRejection(t *testing.T) {
	if !IsRejection(ErrNoDeposit) {
		t.Error("ErrNoDeposit should be a rejection")
	}
	if !IsRejection(custody.ErrInsufficientFunds) {
		t.Error("custody.ErrInsufficientFunds should be a rejection")
	}
	if IsRejection(errors.New("connection reset")) {
		t.Error("infrastructure error should not be a rejection")
	}
}
