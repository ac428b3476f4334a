package adapter

import (
	"context"
	"fmt"
	"net/url"

	"lumen/internal/pkg/httpclient"
	"lumen/internal/service/referral/domain/port"
)

// LoyaltyHTTPAdapter 是 port.LoyaltyService 的 HTTP 实现，调用积分服务
type LoyaltyHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

// NewLoyaltyHTTPAdapter 创建积分服务适配器
func NewLoyaltyHTTPAdapter(client *httpclient.Client, baseURL string) *LoyaltyHTTPAdapter {
	return &LoyaltyHTTPAdapter{client: client, baseURL: baseURL}
}

// CreditBonus 给会员入账固定数额的奖励积分
func (a *LoyaltyHTTPAdapter) CreditBonus(ctx context.Context, req *port.CreditBonusRequest) (*port.CreditBonusResponse, error) {
	var resp port.CreditBonusResponse
	if err := a.client.PostJSON(ctx, a.baseURL+"/points/bonus", req, &resp); err != nil {
		return nil, fmt.Errorf("loyalty service bonus call failed: %w", err)
	}
	return &resp, nil
}

// GetMemberStatus 读取会员忠诚度状态快照
func (a *LoyaltyHTTPAdapter) GetMemberStatus(ctx context.Context, tenantID, memberID string) (*port.MemberStatusResponse, error) {
	params := url.Values{}
	params.Set("tenant_id", tenantID)
	params.Set("member_id", memberID)

	var resp port.MemberStatusResponse
	if err := a.client.GetJSON(ctx, a.baseURL+"/members/status", params, &resp); err != nil {
		return nil, fmt.Errorf("loyalty service status call failed: %w", err)
	}
	return &resp, nil
}

// GetMemberStatusByEmail 按邮箱读取会员状态；不存在的邮箱返回 found=false
func (a *LoyaltyHTTPAdapter) GetMemberStatusByEmail(ctx context.Context, tenantID, email string) (*port.MemberStatusResponse, error) {
	params := url.Values{}
	params.Set("tenant_id", tenantID)
	params.Set("email", email)

	var resp port.MemberStatusResponse
	if err := a.client.GetJSON(ctx, a.baseURL+"/members/status", params, &resp); err != nil {
		return nil, fmt.Errorf("loyalty service status call failed: %w", err)
	}
	return &resp, nil
}
