package adapter

import (
	"context"
	"fmt"

	"lumen/internal/pkg/httpclient"
	"lumen/internal/service/campaign/domain/port"
)

// ReferralHTTPAdapter 是 port.ReferralService 的 HTTP 实现，调用推荐服务
type ReferralHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

// NewReferralHTTPAdapter 创建推荐服务适配器
func NewReferralHTTPAdapter(client *httpclient.Client, baseURL string) *ReferralHTTPAdapter {
	return &ReferralHTTPAdapter{client: client, baseURL: baseURL}
}

// CompleteForOrder 在已支付订单到达时尝试完成推荐
func (a *ReferralHTTPAdapter) CompleteForOrder(ctx context.Context, req *port.CompleteReferralRequest) (*port.CompleteReferralResponse, error) {
	var resp port.CompleteReferralResponse
	if err := a.client.PostJSON(ctx, a.baseURL+"/referrals/complete", req, &resp); err != nil {
		return nil, fmt.Errorf("referral service complete call failed: %w", err)
	}
	return &resp, nil
}
