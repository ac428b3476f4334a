package adapter

import (
	"context"
	"fmt"

	"lumen/internal/pkg/httpclient"
	"lumen/internal/service/campaign/domain/port"
)

// PointsHTTPAdapter 是 port.PointsService 的 HTTP 实现，调用积分服务
type PointsHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

// NewPointsHTTPAdapter 创建积分服务适配器
func NewPointsHTTPAdapter(client *httpclient.Client, baseURL string) *PointsHTTPAdapter {
	return &PointsHTTPAdapter{client: client, baseURL: baseURL}
}

// CreditPoints 调用积分服务入账
func (a *PointsHTTPAdapter) CreditPoints(ctx context.Context, req *port.CreditPointsRequest) (*port.CreditPointsResponse, error) {
	var resp port.CreditPointsResponse
	if err := a.client.PostJSON(ctx, a.baseURL+"/points/credit", req, &resp); err != nil {
		return nil, fmt.Errorf("points service credit call failed: %w", err)
	}
	return &resp, nil
}

// RecordPaidOrder 通知积分服务记录已支付订单
func (a *PointsHTTPAdapter) RecordPaidOrder(ctx context.Context, req *port.RecordPaidOrderRequest) (*port.RecordPaidOrderResponse, error) {
	var resp port.RecordPaidOrderResponse
	if err := a.client.PostJSON(ctx, a.baseURL+"/orders/record-paid", req, &resp); err != nil {
		return nil, fmt.Errorf("points service record-paid call failed: %w", err)
	}
	return &resp, nil
}
