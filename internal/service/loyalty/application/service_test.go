package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"lumen/internal/service/loyalty/domain"
)

// --- 内存实现的测试替身 ---

type memLedger struct {
	mu       sync.Mutex
	nextTxID int64
	statuses map[string]*domain.MemberLoyaltyStatus // key: tenant/member
	txs      []*domain.PointsTransaction
	orders   map[string]int64 // key: tenant/order → ordinal
}

func newMemLedger() *memLedger {
	return &memLedger{
		nextTxID: 1,
		statuses: make(map[string]*domain.MemberLoyaltyStatus),
		orders:   make(map[string]int64),
	}
}

func statusKey(tenantID, memberID string) string { return tenantID + "/" + memberID }

func (l *memLedger) seedStatus(s *domain.MemberLoyaltyStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses[statusKey(s.TenantID, s.MemberID)] = s
}

func (l *memLedger) Credit(ctx context.Context, cmd *domain.CreditCommand) (*domain.PointsTransaction, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// 入账幂等键 (member, type, reference)
	if cmd.Reference != "" {
		for _, tx := range l.txs {
			if tx.MemberID == cmd.MemberID && tx.Type == cmd.Type && tx.Reference == cmd.Reference {
				return tx, false, nil
			}
		}
	}

	status, ok := l.statuses[statusKey(cmd.TenantID, cmd.MemberID)]
	if !ok {
		status = &domain.MemberLoyaltyStatus{
			TenantID: cmd.TenantID, MemberID: cmd.MemberID, Tier: domain.TierBronze,
		}
		l.statuses[statusKey(cmd.TenantID, cmd.MemberID)] = status
	}
	status.Balance += cmd.Points

	tx := &domain.PointsTransaction{
		ID:           l.nextTxID,
		TenantID:     cmd.TenantID,
		MemberID:     cmd.MemberID,
		Type:         cmd.Type,
		Points:       cmd.Points,
		BalanceAfter: status.Balance,
		Reference:    cmd.Reference,
		OrderID:      cmd.OrderID,
		CreatedAt:    time.Now(),
	}
	l.nextTxID++
	l.txs = append(l.txs, tx)
	return tx, true, nil
}

func (l *memLedger) RecordPaidOrder(ctx context.Context, cmd *domain.PaidOrderCommand) (*domain.PaidOrderRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	orderKey := cmd.TenantID + "/" + cmd.OrderID
	if ordinal, ok := l.orders[orderKey]; ok {
		return &domain.PaidOrderRecord{Ordinal: ordinal, Duplicate: true}, nil
	}

	status, ok := l.statuses[statusKey(cmd.TenantID, cmd.MemberID)]
	if !ok {
		status = &domain.MemberLoyaltyStatus{
			TenantID: cmd.TenantID, MemberID: cmd.MemberID, Email: cmd.Email, Tier: domain.TierBronze,
		}
		l.statuses[statusKey(cmd.TenantID, cmd.MemberID)] = status
	}
	status.PaidOrderCount++
	status.LifetimeSpend += cmd.OrderAmount
	if newTier := domain.TierForSpend(status.LifetimeSpend); newTier.Multiplier() > status.Tier.Multiplier() {
		status.Tier = newTier
	}
	l.orders[orderKey] = status.PaidOrderCount
	return &domain.PaidOrderRecord{Ordinal: status.PaidOrderCount}, nil
}

func (l *memLedger) FindStatus(ctx context.Context, tenantID, memberID string) (*domain.MemberLoyaltyStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if status, ok := l.statuses[statusKey(tenantID, memberID)]; ok {
		return status, nil
	}
	return nil, domain.ErrMemberNotFound
}

func (l *memLedger) FindStatusByEmail(ctx context.Context, tenantID, email string) (*domain.MemberLoyaltyStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, status := range l.statuses {
		if status.TenantID == tenantID && status.Email == email {
			return status, nil
		}
	}
	return nil, domain.ErrMemberNotFound
}

func (l *memLedger) ListTransactions(ctx context.Context, tenantID, memberID string, limit int) ([]*domain.PointsTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.PointsTransaction
	for i := len(l.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if l.txs[i].TenantID == tenantID && l.txs[i].MemberID == memberID {
			out = append(out, l.txs[i])
		}
	}
	return out, nil
}

func (l *memLedger) txCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.txs)
}

type memPrograms struct {
	program *domain.Program
}

func (p *memPrograms) GetProgram(ctx context.Context, tenantID string) (*domain.Program, error) {
	if p.program != nil {
		return p.program, nil
	}
	return domain.DefaultProgram(tenantID), nil
}

type memCache struct {
	mu          sync.Mutex
	values      map[string]int64
	sets        int
	invalidates int
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string]int64)}
}

func (c *memCache) Get(ctx context.Context, tenantID, memberID string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[tenantID+"/"+memberID]
	return v, ok
}

func (c *memCache) Set(ctx context.Context, tenantID, memberID string, balance int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[tenantID+"/"+memberID] = balance
	c.sets++
}

func (c *memCache) Invalidate(ctx context.Context, tenantID, memberID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, tenantID+"/"+memberID)
	c.invalidates++
}

// --- 组装 ---

const tenant = "shop.example.com"

type loyaltyFixture struct {
	svc      *LoyaltyService
	ledger   *memLedger
	programs *memPrograms
	cache    *memCache
}

func newLoyaltyFixture() *loyaltyFixture {
	f := &loyaltyFixture{
		ledger:   newMemLedger(),
		programs: &memPrograms{},
		cache:    newMemCache(),
	}
	f.svc = NewLoyaltyService(f.ledger, f.programs, f.cache, otel.Tracer("test"))
	return f
}

// --- 测试 ---

func TestCreditPointsAppliesTierMultiplier(t *testing.T) {
	f := newLoyaltyFixture()
	f.ledger.seedStatus(&domain.MemberLoyaltyStatus{
		TenantID: tenant, MemberID: "mem-1", Tier: domain.TierGold, Balance: 100,
	})

	resp, err := f.svc.CreditPoints(context.Background(), &CreditPointsRequest{
		TenantID: tenant, MemberID: "mem-1", OrderID: "ord-1",
		OrderAmount: 99, EarnRate: 1, EarnDivisor: 10, Reference: "alloc-1",
	})
	if err != nil {
		t.Fatalf("CreditPoints: %v", err)
	}
	// base = floor(99/10) = 9，gold ×1.5 → floor(13.5) = 13
	if resp.PointsCredited != 13 {
		t.Errorf("credited = %d, want 13", resp.PointsCredited)
	}
	if resp.NewBalance != 113 {
		t.Errorf("balance = %d, want 113", resp.NewBalance)
	}
	if f.cache.invalidates != 1 {
		t.Errorf("cache invalidations = %d, want 1", f.cache.invalidates)
	}
}

func TestCreditPointsUnknownMemberDefaultsBronze(t *testing.T) {
	f := newLoyaltyFixture()

	resp, err := f.svc.CreditPoints(context.Background(), &CreditPointsRequest{
		TenantID: tenant, MemberID: "mem-new", OrderID: "ord-1",
		OrderAmount: 250, EarnRate: 1, EarnDivisor: 10, Reference: "alloc-1",
	})
	if err != nil {
		t.Fatalf("CreditPoints: %v", err)
	}
	if resp.PointsCredited != 25 {
		t.Errorf("credited = %d, want 25 (bronze ×1.0)", resp.PointsCredited)
	}
	if _, err := f.ledger.FindStatus(context.Background(), tenant, "mem-new"); err != nil {
		t.Error("crediting must create the member status row")
	}
}

func TestCreditPointsZeroResultWritesNothing(t *testing.T) {
	f := newLoyaltyFixture()
	f.ledger.seedStatus(&domain.MemberLoyaltyStatus{
		TenantID: tenant, MemberID: "mem-1", Tier: domain.TierBronze, Balance: 40,
	})

	resp, err := f.svc.CreditPoints(context.Background(), &CreditPointsRequest{
		TenantID: tenant, MemberID: "mem-1", OrderID: "ord-1",
		OrderAmount: 5, EarnRate: 1, EarnDivisor: 10, Reference: "alloc-1",
	})
	if err != nil {
		t.Fatalf("CreditPoints: %v", err)
	}
	if resp.PointsCredited != 0 || resp.NewBalance != 40 {
		t.Errorf("resp = %+v, want 0 credited at balance 40", resp)
	}
	if f.ledger.txCount() != 0 {
		t.Errorf("transactions = %d, want 0", f.ledger.txCount())
	}
}

func TestCreditIsIdempotentByReference(t *testing.T) {
	f := newLoyaltyFixture()
	ctx := context.Background()
	req := &CreditPointsRequest{
		TenantID: tenant, MemberID: "mem-1", OrderID: "ord-1",
		OrderAmount: 250, EarnRate: 1, EarnDivisor: 10, Reference: "alloc-1",
	}

	first, err := f.svc.CreditPoints(ctx, req)
	if err != nil {
		t.Fatalf("first credit: %v", err)
	}
	second, err := f.svc.CreditPoints(ctx, req)
	if err != nil {
		t.Fatalf("second credit: %v", err)
	}
	if second.NewBalance != first.NewBalance {
		t.Errorf("balance after duplicate = %d, want %d", second.NewBalance, first.NewBalance)
	}
	if f.ledger.txCount() != 1 {
		t.Errorf("transactions = %d, want 1", f.ledger.txCount())
	}
}

func TestCreditBonusIsFixedAmount(t *testing.T) {
	f := newLoyaltyFixture()
	// 即使会员是高等级，bonus 也不过倍率
	f.ledger.seedStatus(&domain.MemberLoyaltyStatus{
		TenantID: tenant, MemberID: "mem-1", Tier: domain.TierPlatinum,
	})

	resp, err := f.svc.CreditBonus(context.Background(), &CreditBonusRequest{
		TenantID: tenant, MemberID: "mem-1", Points: 500,
		TransactionType: "referral", Reference: "referral-1",
	})
	if err != nil {
		t.Fatalf("CreditBonus: %v", err)
	}
	if resp.PointsCredited != 500 {
		t.Errorf("credited = %d, want 500", resp.PointsCredited)
	}

	if _, err := f.svc.CreditBonus(context.Background(), &CreditBonusRequest{
		TenantID: tenant, MemberID: "mem-1", Points: 0,
	}); err == nil {
		t.Error("non-positive bonus must be rejected")
	}
}

func TestRecordPaidOrderOrdinals(t *testing.T) {
	f := newLoyaltyFixture()
	ctx := context.Background()

	first, err := f.svc.RecordPaidOrder(ctx, &RecordPaidOrderRequest{
		TenantID: tenant, MemberID: "mem-1", OrderID: "ord-1", OrderAmount: 120,
	})
	if err != nil {
		t.Fatalf("first order: %v", err)
	}
	if first.Ordinal != 1 || !first.IsFirstOrder || first.Duplicate {
		t.Errorf("first = %+v, want ordinal 1 first-order", first)
	}

	second, err := f.svc.RecordPaidOrder(ctx, &RecordPaidOrderRequest{
		TenantID: tenant, MemberID: "mem-1", OrderID: "ord-2", OrderAmount: 80,
	})
	if err != nil {
		t.Fatalf("second order: %v", err)
	}
	if second.Ordinal != 2 || second.IsFirstOrder {
		t.Errorf("second = %+v, want ordinal 2", second)
	}

	// 重投首单：拿回当初的序号，计数不再递增
	dup, err := f.svc.RecordPaidOrder(ctx, &RecordPaidOrderRequest{
		TenantID: tenant, MemberID: "mem-1", OrderID: "ord-1", OrderAmount: 120,
	})
	if err != nil {
		t.Fatalf("duplicate order: %v", err)
	}
	if dup.Ordinal != 1 || !dup.IsFirstOrder || !dup.Duplicate {
		t.Errorf("duplicate = %+v, want original ordinal 1", dup)
	}
	status, _ := f.ledger.FindStatus(ctx, tenant, "mem-1")
	if status.PaidOrderCount != 2 {
		t.Errorf("paid order count = %d, want 2", status.PaidOrderCount)
	}
}

func TestRedeemCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("redemption disabled", func(t *testing.T) {
		f := newLoyaltyFixture()
		f.programs.program = &domain.Program{TenantID: tenant, RedemptionEnabled: false, RedeemRate: 100}
		resp, err := f.svc.RedeemCheck(ctx, &RedeemCheckRequest{
			ShopDomain: tenant, CustomerEmail: "a@b.com", PointsToRedeem: 100,
		})
		if err != nil {
			t.Fatalf("RedeemCheck: %v", err)
		}
		if resp.Valid || resp.Reason != domain.RedeemDisabled {
			t.Errorf("resp = %+v, want redemption_disabled", resp)
		}
	})

	t.Run("member not found", func(t *testing.T) {
		f := newLoyaltyFixture()
		resp, err := f.svc.RedeemCheck(ctx, &RedeemCheckRequest{
			ShopDomain: tenant, CustomerEmail: "missing@b.com", PointsToRedeem: 100,
		})
		if err != nil {
			t.Fatalf("RedeemCheck: %v", err)
		}
		if resp.Valid || resp.Reason != domain.RedeemMemberNotFound {
			t.Errorf("resp = %+v, want member_not_found", resp)
		}
	})

	t.Run("insufficient balance", func(t *testing.T) {
		f := newLoyaltyFixture()
		f.ledger.seedStatus(&domain.MemberLoyaltyStatus{
			TenantID: tenant, MemberID: "mem-1", Email: "a@b.com", Balance: 50,
		})
		resp, err := f.svc.RedeemCheck(ctx, &RedeemCheckRequest{
			ShopDomain: tenant, CustomerEmail: "a@b.com", PointsToRedeem: 100,
		})
		if err != nil {
			t.Fatalf("RedeemCheck: %v", err)
		}
		if resp.Valid || resp.Reason != domain.RedeemInsufficientPoints {
			t.Errorf("resp = %+v, want insufficient_points", resp)
		}
		if resp.CurrentBalance != 50 {
			t.Errorf("balance = %d, want 50", resp.CurrentBalance)
		}
	})

	t.Run("valid redemption computes discount", func(t *testing.T) {
		f := newLoyaltyFixture()
		f.ledger.seedStatus(&domain.MemberLoyaltyStatus{
			TenantID: tenant, MemberID: "mem-1", Email: "a@b.com", Balance: 1500,
		})
		resp, err := f.svc.RedeemCheck(ctx, &RedeemCheckRequest{
			ShopDomain: tenant, CustomerEmail: "a@b.com", PointsToRedeem: 500,
		})
		if err != nil {
			t.Fatalf("RedeemCheck: %v", err)
		}
		if !resp.Valid {
			t.Fatalf("resp = %+v, want valid", resp)
		}
		// 500 分按 100:1 抵 5.00
		if resp.DiscountValue != 5.00 {
			t.Errorf("discount = %v, want 5.00", resp.DiscountValue)
		}
		if resp.RemainingAfter != 1000 {
			t.Errorf("remaining = %d, want 1000", resp.RemainingAfter)
		}
		// 未命中时回填缓存
		if balance, ok := f.cache.Get(ctx, tenant, "mem-1"); !ok || balance != 1500 {
			t.Errorf("cache = %d/%v, want 1500 backfilled", balance, ok)
		}
	})

	t.Run("cached balance wins over the status row", func(t *testing.T) {
		f := newLoyaltyFixture()
		f.ledger.seedStatus(&domain.MemberLoyaltyStatus{
			TenantID: tenant, MemberID: "mem-1", Email: "a@b.com", Balance: 1500,
		})
		f.cache.Set(ctx, tenant, "mem-1", 300)
		resp, err := f.svc.RedeemCheck(ctx, &RedeemCheckRequest{
			ShopDomain: tenant, CustomerEmail: "a@b.com", PointsToRedeem: 500,
		})
		if err != nil {
			t.Fatalf("RedeemCheck: %v", err)
		}
		if resp.Valid || resp.CurrentBalance != 300 {
			t.Errorf("resp = %+v, want invalid at cached balance 300", resp)
		}
	})

	t.Run("fractional discount floors to cents", func(t *testing.T) {
		f := newLoyaltyFixture()
		f.programs.program = &domain.Program{TenantID: tenant, RedemptionEnabled: true, RedeemRate: 300}
		f.ledger.seedStatus(&domain.MemberLoyaltyStatus{
			TenantID: tenant, MemberID: "mem-1", Email: "a@b.com", Balance: 1000,
		})
		resp, err := f.svc.RedeemCheck(ctx, &RedeemCheckRequest{
			ShopDomain: tenant, CustomerEmail: "a@b.com", PointsToRedeem: 100,
		})
		if err != nil {
			t.Fatalf("RedeemCheck: %v", err)
		}
		// 100/300 = 0.333... → 0.33
		if !resp.Valid || resp.DiscountValue != 0.33 {
			t.Errorf("resp = %+v, want discount 0.33", resp)
		}
	})
}

func TestGetMemberStatusNotFoundIsNotAnError(t *testing.T) {
	f := newLoyaltyFixture()
	resp, err := f.svc.GetMemberStatus(context.Background(), tenant, "ghost")
	if err != nil {
		t.Fatalf("GetMemberStatus: %v", err)
	}
	if resp.Found {
		t.Error("unknown member must report found=false")
	}
}

func TestGetMemberStatusByEmailResolvesMember(t *testing.T) {
	f := newLoyaltyFixture()
	f.ledger.seedStatus(&domain.MemberLoyaltyStatus{
		TenantID: tenant, MemberID: "mem-1", Email: "a@b.com", Balance: 250, Tier: domain.TierBronze,
	})

	resp, err := f.svc.GetMemberStatusByEmail(context.Background(), tenant, "a@b.com")
	if err != nil {
		t.Fatalf("GetMemberStatusByEmail: %v", err)
	}
	if !resp.Found || resp.MemberID != "mem-1" || resp.Balance != 250 {
		t.Errorf("resp = %+v, want mem-1 with balance 250", resp)
	}

	missing, err := f.svc.GetMemberStatusByEmail(context.Background(), tenant, "nobody@b.com")
	if err != nil {
		t.Fatalf("GetMemberStatusByEmail (unknown): %v", err)
	}
	if missing.Found {
		t.Error("unknown email must report found=false")
	}
}

func TestListTransactionsNewestFirst(t *testing.T) {
	f := newLoyaltyFixture()
	ctx := context.Background()
	for i, ref := range []string{"a", "b", "c"} {
		_, err := f.svc.CreditBonus(ctx, &CreditBonusRequest{
			TenantID: tenant, MemberID: "mem-1", Points: int64(10 * (i + 1)), Reference: ref,
		})
		if err != nil {
			t.Fatalf("credit %s: %v", ref, err)
		}
	}

	views, err := f.svc.ListTransactions(ctx, tenant, "mem-1", 2)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("views = %d, want 2", len(views))
	}
	if views[0].Reference != "c" || views[1].Reference != "b" {
		t.Errorf("order = %s, %s; want c, b", views[0].Reference, views[1].Reference)
	}
}
