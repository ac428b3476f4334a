package application

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"

	"lumen/internal/service/campaign/domain"
	"lumen/internal/service/campaign/domain/port"
)

// --- 内存实现的测试替身 ---

type memRuleRepo struct {
	rules []*domain.CampaignRule
}

func (r *memRuleRepo) ListActiveRules(ctx context.Context, tenantID string) ([]*domain.CampaignRule, error) {
	return r.rules, nil
}

func (r *memRuleRepo) FindByID(ctx context.Context, ruleID int64) (*domain.CampaignRule, error) {
	for _, rule := range r.rules {
		if rule.ID == ruleID {
			return rule, nil
		}
	}
	return nil, domain.ErrRuleNotFound
}

type memScopeRepo struct {
	scopes map[string]bool
}

func (r *memScopeRepo) GrantedScopes(ctx context.Context, tenantID string) (map[string]bool, error) {
	return r.scopes, nil
}

// memStore 在内存里复刻护栏预占与发放落库的原子单元：
// 检查、计数器递增和插入在同一把锁下完成，贴近生产实现的单事务语义。
type memStore struct {
	mu          sync.Mutex
	enrollments map[int64]int64
	spent       map[int64]float64
	perCustomer map[string]int64
	byKey       map[string]*domain.Allocation
	byID        map[string]*domain.Allocation
}

func newMemStore() *memStore {
	return &memStore{
		enrollments: make(map[int64]int64),
		spent:       make(map[int64]float64),
		perCustomer: make(map[string]int64),
		byKey:       make(map[string]*domain.Allocation),
		byID:        make(map[string]*domain.Allocation),
	}
}

func allocKey(orderID string, ruleID int64) string {
	return fmt.Sprintf("%s/%d", orderID, ruleID)
}

func (s *memStore) Reserve(ctx context.Context, rule *domain.CampaignRule, alloc *domain.Allocation) (domain.GuardrailDecision, *domain.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if max := rule.Guardrails.MaxEnrollments; max != nil && s.enrollments[rule.ID] >= *max {
		return domain.GuardrailRejected(domain.TriggerMaxReached,
			fmt.Sprintf("campaign enrollment limit of %d reached", *max)), nil, nil
	}
	if cap := rule.Guardrails.BudgetCap; cap != nil && s.spent[rule.ID]+alloc.Cost > *cap {
		return domain.GuardrailRejected(domain.TriggerMaxReached,
			fmt.Sprintf("campaign budget of %.2f would be exceeded", *cap)), nil, nil
	}
	customerKey := fmt.Sprintf("%d/%s", rule.ID, alloc.MemberID)
	if max := rule.Guardrails.MaxRewardsPerCustomer; max != nil && s.perCustomer[customerKey] >= *max {
		return domain.GuardrailRejected(domain.TriggerAlreadyEnrolled,
			"customer already received this reward"), nil, nil
	}

	key := allocKey(alloc.OrderID, alloc.RuleID)
	if existing, ok := s.byKey[key]; ok {
		// 幂等命中：计数器不动
		return domain.GuardrailOK(), existing, nil
	}

	s.enrollments[rule.ID]++
	s.spent[rule.ID] += alloc.Cost
	s.perCustomer[customerKey]++
	copied := *alloc
	s.byKey[key] = &copied
	s.byID[alloc.ID] = &copied
	return domain.GuardrailOK(), nil, nil
}

func (s *memStore) FindByOrderAndRule(ctx context.Context, orderID string, ruleID int64) (*domain.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alloc, ok := s.byKey[allocKey(orderID, ruleID)]; ok {
		return alloc, nil
	}
	return nil, domain.ErrAllocationNotFound
}

func (s *memStore) FindPendingByOrder(ctx context.Context, orderID string) ([]*domain.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Allocation
	for _, alloc := range s.byKey {
		if alloc.OrderID == orderID && alloc.Status == domain.AllocationPending {
			out = append(out, alloc)
		}
	}
	return out, nil
}

func (s *memStore) MarkIssued(ctx context.Context, allocationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alloc, ok := s.byID[allocationID]
	if !ok || alloc.Status != domain.AllocationPending {
		return domain.ErrAllocationNotFound
	}
	alloc.Status = domain.AllocationIssued
	return nil
}

func (s *memStore) Claim(ctx context.Context, allocationID string) (*domain.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alloc, ok := s.byID[allocationID]
	if !ok {
		return nil, domain.ErrAllocationNotFound
	}
	switch alloc.Status {
	case domain.AllocationClaimed:
		return alloc, domain.ErrAlreadyClaimed
	case domain.AllocationIssued:
		alloc.Status = domain.AllocationClaimed
		return alloc, nil
	default:
		return alloc, domain.ErrNotClaimable
	}
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

func (s *memStore) enrollmentsOf(ruleID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enrollments[ruleID]
}

// flakyGuardrails 模拟前 N 次预占因基础设施故障整体回滚：
// 失败不留下任何状态变化，和真实事务回滚一致。
type flakyGuardrails struct {
	inner    domain.GuardrailTracker
	mu       sync.Mutex
	failures int
}

func (g *flakyGuardrails) Reserve(ctx context.Context, rule *domain.CampaignRule, alloc *domain.Allocation) (domain.GuardrailDecision, *domain.Allocation, error) {
	g.mu.Lock()
	if g.failures > 0 {
		g.failures--
		g.mu.Unlock()
		return domain.GuardrailDecision{}, nil, fmt.Errorf("mysql connection reset")
	}
	g.mu.Unlock()
	return g.inner.Reserve(ctx, rule, alloc)
}

type memLogRepo struct {
	mu      sync.Mutex
	entries []*domain.TriggerLog
}

func (r *memLogRepo) Append(ctx context.Context, entry *domain.TriggerLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *entry
	r.entries = append(r.entries, &copied)
	return nil
}

func (r *memLogRepo) List(ctx context.Context, filter domain.TriggerLogFilter) ([]*domain.TriggerLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.TriggerLog(nil), r.entries...), nil
}

func (r *memLogRepo) byResult(result domain.TriggerResult) []*domain.TriggerLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.TriggerLog
	for _, e := range r.entries {
		if e.Result == result {
			out = append(out, e)
		}
	}
	return out
}

type memDeduper struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func newMemDeduper() *memDeduper {
	return &memDeduper{claimed: make(map[string]bool)}
}

func (d *memDeduper) Claim(ctx context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.claimed[eventID] {
		return false, nil
	}
	d.claimed[eventID] = true
	return true, nil
}

func (d *memDeduper) Release(ctx context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claimed, eventID)
	return nil
}

type fakePoints struct {
	mu         sync.Mutex
	credits    []*port.CreditPointsRequest
	orderCount map[string]int64
}

func newFakePoints() *fakePoints {
	return &fakePoints{orderCount: make(map[string]int64)}
}

func (p *fakePoints) CreditPoints(ctx context.Context, req *port.CreditPointsRequest) (*port.CreditPointsResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.credits = append(p.credits, req)
	return &port.CreditPointsResponse{PointsCredited: 25, NewBalance: 125}, nil
}

func (p *fakePoints) RecordPaidOrder(ctx context.Context, req *port.RecordPaidOrderRequest) (*port.RecordPaidOrderResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderCount[req.MemberID]++
	ordinal := p.orderCount[req.MemberID]
	return &port.RecordPaidOrderResponse{Ordinal: ordinal, IsFirstOrder: ordinal == 1}, nil
}

type fakeReferral struct {
	mu    sync.Mutex
	calls []*port.CompleteReferralRequest
}

func (f *fakeReferral) CompleteForOrder(ctx context.Context, req *port.CompleteReferralRequest) (*port.CompleteReferralResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return &port.CompleteReferralResponse{Skipped: true, Reason: "no_referrer_linked"}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []*port.AllocationEvent
}

func (n *fakeNotifier) PublishAllocated(ctx context.Context, event *port.AllocationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

// --- 组装 ---

type fixture struct {
	svc      *CampaignService
	rules    *memRuleRepo
	store    *memStore
	logs     *memLogRepo
	deduper  *memDeduper
	points   *fakePoints
	referral *fakeReferral
	notifier *fakeNotifier
}

func newFixture(cfg Config, rules ...*domain.CampaignRule) *fixture {
	f := &fixture{
		rules:    &memRuleRepo{rules: rules},
		store:    newMemStore(),
		logs:     &memLogRepo{},
		deduper:  newMemDeduper(),
		points:   newFakePoints(),
		referral: &fakeReferral{},
		notifier: &fakeNotifier{},
	}
	f.svc = f.buildService(cfg, f.store)
	return f
}

func (f *fixture) buildService(cfg Config, guardrails domain.GuardrailTracker) *CampaignService {
	tracer := otel.Tracer("test")
	allocator := NewAllocator(f.store, guardrails, f.points, f.notifier, tracer)
	return NewCampaignService(cfg,
		f.rules, &memScopeRepo{}, f.logs, f.deduper,
		domain.NewSelector(domain.NewEvaluator(nil)), allocator,
		f.points, f.referral, nil, tracer)
}

func int64Ptr(v int64) *int64       { return &v }
func float64Ptr(v float64) *float64 { return &v }

func voucherRule(id int64, priority int) *domain.CampaignRule {
	return &domain.CampaignRule{
		ID:       id,
		TenantID: "shop.example.com",
		Name:     fmt.Sprintf("rule-%d", id),
		IsActive: true,
		Priority: priority,
		TriggerConditions: []domain.ConditionNode{
			{Type: domain.ConditionOrderValue, Operator: domain.OpGte, Value: []byte(`200`)},
		},
		EligibilityConditions: []domain.ConditionNode{
			{Type: domain.ConditionCustomerType, Operator: domain.OpEq, Value: []byte(`"new"`)},
		},
		Reward: domain.RewardAction{
			Type: domain.RewardVoucher, Timing: domain.TimingInstant,
			ClaimMethod: domain.ClaimAuto, EstimatedCost: 10,
		},
	}
}

func orderCreatedEvent(eventID, orderID string) *OrderEvent {
	return &OrderEvent{
		EventID:    eventID,
		EventType:  EventOrderCreated,
		ShopDomain: "shop.example.com",
		OrderID:    orderID,
		TotalPrice: 250,
		Currency:   "USD",
		MemberID:   "mem-1",
		LineItems:  []domain.LineItem{{ProductID: "prod-1", Quantity: 1}},
	}
}

// --- 测试 ---

func TestOrderCreatedEndToEnd(t *testing.T) {
	f := newFixture(Config{}, voucherRule(1, 10))

	if err := f.svc.HandleOrderEvent(context.Background(), orderCreatedEvent("evt-1", "ord-1")); err != nil {
		t.Fatalf("HandleOrderEvent: %v", err)
	}

	success := f.logs.byResult(domain.TriggerSuccess)
	if len(success) != 1 {
		t.Fatalf("success logs = %d, want 1", len(success))
	}
	if !success[0].Allocated {
		t.Error("success log must be marked allocated")
	}
	if f.store.count() != 1 {
		t.Fatalf("allocations = %d, want 1", f.store.count())
	}
	alloc, err := f.store.FindByOrderAndRule(context.Background(), "ord-1", 1)
	if err != nil {
		t.Fatalf("allocation lookup: %v", err)
	}
	if alloc.Status != domain.AllocationIssued {
		t.Errorf("instant allocation status = %s, want ISSUED", alloc.Status)
	}
	if alloc.VoucherCode == "" {
		t.Error("voucher allocation must carry a code")
	}
	if got := f.store.enrollmentsOf(1); got != 1 {
		t.Errorf("enrollments = %d, want 1", got)
	}
	if len(f.notifier.events) != 1 {
		t.Errorf("published events = %d, want 1", len(f.notifier.events))
	}
}

func TestDuplicateEventIDSkipped(t *testing.T) {
	f := newFixture(Config{}, voucherRule(1, 10))
	ctx := context.Background()

	if err := f.svc.HandleOrderEvent(ctx, orderCreatedEvent("evt-1", "ord-1")); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := f.svc.HandleOrderEvent(ctx, orderCreatedEvent("evt-1", "ord-1")); err != nil {
		t.Fatalf("duplicate delivery: %v", err)
	}

	if f.store.count() != 1 {
		t.Fatalf("allocations = %d, want 1", f.store.count())
	}
	if got := f.store.enrollmentsOf(1); got != 1 {
		t.Errorf("enrollments = %d, want 1", got)
	}
}

func TestRedeliveryWithNewEventIDIsIdempotent(t *testing.T) {
	f := newFixture(Config{}, voucherRule(1, 10))
	ctx := context.Background()

	// 同一订单以不同事件 ID 重投：redis 去重失效时的兜底路径
	if err := f.svc.HandleOrderEvent(ctx, orderCreatedEvent("evt-1", "ord-1")); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := f.svc.HandleOrderEvent(ctx, orderCreatedEvent("evt-2", "ord-1")); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	if f.store.count() != 1 {
		t.Fatalf("allocations = %d, want 1", f.store.count())
	}
	// 护栏计数器不允许被同一 (订单, 规则) 消耗两次
	if got := f.store.enrollmentsOf(1); got != 1 {
		t.Errorf("enrollments = %d, want 1", got)
	}
	success := f.logs.byResult(domain.TriggerSuccess)
	if len(success) != 2 {
		t.Fatalf("success logs = %d, want 2 (original + duplicate resolution)", len(success))
	}
	allocatedCount := 0
	for _, e := range success {
		if e.Allocated {
			allocatedCount++
		}
	}
	if allocatedCount != 1 {
		t.Errorf("allocated log entries = %d, want 1", allocatedCount)
	}
}

func TestReserveFailureRetryCountsGuardrailsOnce(t *testing.T) {
	f := newFixture(Config{}, voucherRule(1, 10))
	// 第一次预占整体回滚（计数器与发放都不落库），事件以同一 ID 重投
	svc := f.buildService(Config{}, &flakyGuardrails{inner: f.store, failures: 1})
	ctx := context.Background()

	if err := svc.HandleOrderEvent(ctx, orderCreatedEvent("evt-1", "ord-1")); err == nil {
		t.Fatal("transient reserve failure must surface as a retryable error")
	}
	if f.store.count() != 0 {
		t.Fatalf("allocations after rollback = %d, want 0", f.store.count())
	}
	if got := f.store.enrollmentsOf(1); got != 0 {
		t.Fatalf("enrollments after rollback = %d, want 0", got)
	}

	// 失败路径必须释放去重占位，否则重投进不来
	if err := svc.HandleOrderEvent(ctx, orderCreatedEvent("evt-1", "ord-1")); err != nil {
		t.Fatalf("redelivery after failure: %v", err)
	}
	if f.store.count() != 1 {
		t.Fatalf("allocations = %d, want 1", f.store.count())
	}
	if got := f.store.enrollmentsOf(1); got != 1 {
		t.Errorf("enrollments = %d, want 1 (retry must not double count)", got)
	}
}

func TestFirstMatchWinsByDefault(t *testing.T) {
	high := voucherRule(1, 50)
	low := voucherRule(2, 10)
	f := newFixture(Config{}, high, low)

	if err := f.svc.HandleOrderEvent(context.Background(), orderCreatedEvent("evt-1", "ord-1")); err != nil {
		t.Fatalf("HandleOrderEvent: %v", err)
	}

	if f.store.count() != 1 {
		t.Fatalf("allocations = %d, want 1", f.store.count())
	}
	if _, err := f.store.FindByOrderAndRule(context.Background(), "ord-1", 1); err != nil {
		t.Error("the higher-priority rule must own the allocation")
	}
	// 低优先级命中只记候选
	success := f.logs.byResult(domain.TriggerSuccess)
	if len(success) != 2 {
		t.Fatalf("success logs = %d, want 2", len(success))
	}
	for _, e := range success {
		if e.RuleID == 2 && e.Allocated {
			t.Error("lower-priority match must not allocate in single-fire mode")
		}
	}
}

func TestFireAllMatchesAllocatesEveryMatch(t *testing.T) {
	f := newFixture(Config{FireAllMatches: true}, voucherRule(1, 50), voucherRule(2, 10))

	if err := f.svc.HandleOrderEvent(context.Background(), orderCreatedEvent("evt-1", "ord-1")); err != nil {
		t.Fatalf("HandleOrderEvent: %v", err)
	}
	if f.store.count() != 2 {
		t.Fatalf("allocations = %d, want 2", f.store.count())
	}
}

func TestGuardrailMaxEnrollmentsUnderConcurrency(t *testing.T) {
	rule := voucherRule(1, 10)
	rule.Guardrails.MaxEnrollments = int64Ptr(1)
	f := newFixture(Config{}, rule)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			event := orderCreatedEvent(fmt.Sprintf("evt-%d", i), fmt.Sprintf("ord-%d", i))
			event.MemberID = fmt.Sprintf("mem-%d", i)
			if err := f.svc.HandleOrderEvent(context.Background(), event); err != nil {
				t.Errorf("HandleOrderEvent: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if f.store.count() != 1 {
		t.Fatalf("allocations = %d, want exactly 1", f.store.count())
	}
	if got := f.store.enrollmentsOf(1); got != 1 {
		t.Errorf("enrollments = %d, want 1", got)
	}
	if rejected := f.logs.byResult(domain.TriggerMaxReached); len(rejected) != n-1 {
		t.Errorf("max_reached logs = %d, want %d", len(rejected), n-1)
	}
}

func TestGuardrailBudgetCap(t *testing.T) {
	rule := voucherRule(1, 10)
	rule.Reward.EstimatedCost = 60
	rule.Guardrails.BudgetCap = float64Ptr(100)
	f := newFixture(Config{}, rule)
	ctx := context.Background()

	first := orderCreatedEvent("evt-1", "ord-1")
	second := orderCreatedEvent("evt-2", "ord-2")
	second.MemberID = "mem-2"
	if err := f.svc.HandleOrderEvent(ctx, first); err != nil {
		t.Fatalf("first order: %v", err)
	}
	if err := f.svc.HandleOrderEvent(ctx, second); err != nil {
		t.Fatalf("second order: %v", err)
	}

	if f.store.count() != 1 {
		t.Fatalf("allocations = %d, want 1 (second must exceed the budget)", f.store.count())
	}
	rejected := f.logs.byResult(domain.TriggerMaxReached)
	if len(rejected) != 1 {
		t.Fatalf("max_reached logs = %d, want 1", len(rejected))
	}
}

func TestNoMemberOutcome(t *testing.T) {
	f := newFixture(Config{}, voucherRule(1, 10))
	event := orderCreatedEvent("evt-1", "ord-1")
	event.MemberID = ""

	if err := f.svc.HandleOrderEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleOrderEvent: %v", err)
	}
	if f.store.count() != 0 {
		t.Fatalf("allocations = %d, want 0", f.store.count())
	}
	if logs := f.logs.byResult(domain.TriggerNoMember); len(logs) != 1 {
		t.Fatalf("no_member logs = %d, want 1", len(logs))
	}
}

func TestOrderPaidRecordsOrderAndDrivesReferral(t *testing.T) {
	f := newFixture(Config{}, voucherRule(1, 10))
	event := orderCreatedEvent("evt-1", "ord-1")
	event.EventType = EventOrderPaid
	event.CustomerEmail = "buyer@example.com"

	if err := f.svc.HandleOrderEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleOrderEvent: %v", err)
	}
	if f.points.orderCount["mem-1"] != 1 {
		t.Error("paid order must be recorded before the referral call")
	}
	if len(f.referral.calls) != 1 {
		t.Fatalf("referral calls = %d, want 1", len(f.referral.calls))
	}
	call := f.referral.calls[0]
	if call.OrderID != "ord-1" {
		t.Errorf("referral call order = %s", call.OrderID)
	}
	// 邮箱要透传给推荐服务：注册时还不是会员的被推荐人靠它匹配
	if call.Email != "buyer@example.com" {
		t.Errorf("referral call email = %q, want buyer@example.com", call.Email)
	}
}

func TestFulfillmentFinalizesDelayedAllocations(t *testing.T) {
	rule := voucherRule(1, 10)
	rule.Reward = domain.RewardAction{
		Type: domain.RewardPoints, Timing: domain.TimingDelayed,
		ClaimMethod: domain.ClaimAuto, PointsEarnRate: 1, PointsEarnDivisor: 10,
	}
	f := newFixture(Config{}, rule)
	ctx := context.Background()

	if err := f.svc.HandleOrderEvent(ctx, orderCreatedEvent("evt-1", "ord-1")); err != nil {
		t.Fatalf("order created: %v", err)
	}
	alloc, err := f.store.FindByOrderAndRule(ctx, "ord-1", 1)
	if err != nil {
		t.Fatalf("allocation lookup: %v", err)
	}
	if alloc.Status != domain.AllocationPending {
		t.Fatalf("delayed allocation status = %s, want PENDING", alloc.Status)
	}
	if len(f.points.credits) != 0 {
		t.Fatal("points must not be credited before fulfillment")
	}

	fulfillment := orderCreatedEvent("evt-2", "ord-1")
	fulfillment.EventType = EventOrderFulfilled
	if err := f.svc.HandleOrderEvent(ctx, fulfillment); err != nil {
		t.Fatalf("fulfillment: %v", err)
	}

	alloc, _ = f.store.FindByOrderAndRule(ctx, "ord-1", 1)
	if alloc.Status != domain.AllocationIssued {
		t.Errorf("finalized allocation status = %s, want ISSUED", alloc.Status)
	}
	if len(f.points.credits) != 1 {
		t.Fatalf("points credits = %d, want 1", len(f.points.credits))
	}
}

func TestClaimAllocation(t *testing.T) {
	rule := voucherRule(1, 10)
	rule.Reward.ClaimMethod = domain.ClaimClick
	f := newFixture(Config{}, rule)
	ctx := context.Background()

	if err := f.svc.HandleOrderEvent(ctx, orderCreatedEvent("evt-1", "ord-1")); err != nil {
		t.Fatalf("HandleOrderEvent: %v", err)
	}
	alloc, _ := f.store.FindByOrderAndRule(ctx, "ord-1", 1)

	resp, err := f.svc.ClaimAllocation(ctx, &ClaimRequest{AllocationID: alloc.ID, MemberID: "mem-1"})
	if err != nil {
		t.Fatalf("ClaimAllocation: %v", err)
	}
	if resp.Status != string(domain.AllocationClaimed) {
		t.Errorf("claim status = %s, want CLAIMED", resp.Status)
	}

	// 重复领取：返回已领取错误
	if _, err := f.svc.ClaimAllocation(ctx, &ClaimRequest{AllocationID: alloc.ID, MemberID: "mem-1"}); err == nil {
		t.Error("second claim must fail")
	}
}
