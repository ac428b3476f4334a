package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func activeRule(id int64, priority int, nodes ...ConditionNode) *CampaignRule {
	return &CampaignRule{
		ID:                id,
		TenantID:          "shop.example.com",
		Name:              "rule",
		TriggerConditions: nodes,
		IsActive:          true,
		Reward:            RewardAction{Type: RewardVoucher, Timing: TimingInstant},
		Priority:          priority,
		CreatedAt:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSelectOrdersMatchesByPriority(t *testing.T) {
	s := NewSelector(NewEvaluator(nil))
	low := activeRule(1, 10)
	high := activeRule(2, 50)
	mid := activeRule(3, 20)

	result := s.Select([]*CampaignRule{low, high, mid}, testOrder(), testCustomer(), nil, time.Now())
	if len(result.Matches) != 3 {
		t.Fatalf("matches = %d, want 3", len(result.Matches))
	}
	gotOrder := []int64{result.Matches[0].Rule.ID, result.Matches[1].Rule.ID, result.Matches[2].Rule.ID}
	want := []int64{2, 3, 1}
	for i := range want {
		if gotOrder[i] != want[i] {
			t.Fatalf("match order = %v, want %v", gotOrder, want)
		}
	}
}

func TestSelectTieBreaksByCreationThenID(t *testing.T) {
	s := NewSelector(NewEvaluator(nil))
	older := activeRule(7, 10)
	older.CreatedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	newer := activeRule(3, 10)
	newer.CreatedAt = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	sameTime := activeRule(5, 10)
	sameTime.CreatedAt = older.CreatedAt

	result := s.Select([]*CampaignRule{newer, sameTime, older}, testOrder(), testCustomer(), nil, time.Now())
	if len(result.Matches) != 3 {
		t.Fatalf("matches = %d, want 3", len(result.Matches))
	}
	// 同优先级：创建早者在前；创建时间也相同则 ID 小者在前
	gotOrder := []int64{result.Matches[0].Rule.ID, result.Matches[1].Rule.ID, result.Matches[2].Rule.ID}
	want := []int64{5, 7, 3}
	for i := range want {
		if gotOrder[i] != want[i] {
			t.Fatalf("match order = %v, want %v", gotOrder, want)
		}
	}
}

func TestSelectRejectsWithDistinctReasons(t *testing.T) {
	s := NewSelector(NewEvaluator(nil))
	now := time.Now()

	inactive := activeRule(1, 10)
	inactive.IsActive = false

	expired := activeRule(2, 10)
	past := now.Add(-24 * time.Hour)
	expired.EndDate = &past

	excluded := activeRule(3, 10)
	excluded.Exclusions = ExclusionRules{ExcludeTest: true}

	missingScope := activeRule(4, 10, ConditionNode{
		Type: ConditionCustomerTags, Operator: OpHas,
		Value: json.RawMessage(`["vip"]`), RequiredScope: "read_customer_tags",
	})

	belowThreshold := activeRule(5, 10, node(ConditionOrderValue, OpGte, `1000`))

	order := testOrder()
	order.IsTest = true

	result := s.Select(
		[]*CampaignRule{inactive, expired, excluded, missingScope, belowThreshold},
		order, testCustomer(), map[string]bool{}, now)

	if len(result.Matches) != 0 {
		t.Fatalf("matches = %d, want 0", len(result.Matches))
	}
	if len(result.Rejected) != 5 {
		t.Fatalf("rejected = %d, want 5", len(result.Rejected))
	}

	wantResults := map[int64]TriggerResult{
		1: TriggerFailed,         // inactive
		2: TriggerFailed,         // 窗口外
		3: TriggerBelowThreshold, // 测试订单被排除
		4: TriggerFailed,         // 缺数据权限
		5: TriggerBelowThreshold, // 条件不满足
	}
	for _, rejected := range result.Rejected {
		if got := wantResults[rejected.Rule.ID]; rejected.Result != got {
			t.Errorf("rule %d: result = %q, want %q (%s)", rejected.Rule.ID, rejected.Result, got, rejected.Reason)
		}
	}
}

func TestSelectGrantedScopePasses(t *testing.T) {
	s := NewSelector(NewEvaluator(nil))
	rule := activeRule(1, 10, ConditionNode{
		Type: ConditionCustomerTags, Operator: OpHas,
		Value: json.RawMessage(`["vip"]`), RequiredScope: "read_customer_tags",
	})

	result := s.Select([]*CampaignRule{rule}, testOrder(), testCustomer(),
		map[string]bool{"read_customer_tags": true}, time.Now())
	if len(result.Matches) != 1 {
		t.Fatalf("matches = %d, want 1 (rejected: %+v)", len(result.Matches), result.Rejected)
	}
}

func TestEligibleAtWindowIsInclusive(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	rule := activeRule(1, 10)
	rule.StartDate = &start
	rule.EndDate = &end

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before window", start.Add(-time.Second), false},
		{"at start", start, true},
		{"inside", start.AddDate(0, 0, 15), true},
		{"at end", end, true},
		{"after window", end.Add(time.Second), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := rule.EligibleAt(tc.at); got != tc.want {
				t.Errorf("EligibleAt(%v) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}
}
