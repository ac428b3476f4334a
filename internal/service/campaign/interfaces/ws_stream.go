package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"lumen/internal/pkg/logger"
	"lumen/internal/service/campaign/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 看板走内部网关，来源校验在网关层完成
	CheckOrigin: func(r *http.Request) bool { return true },
}

// TriggerLogStream 把审计日志实时推送给 WebSocket 订阅者（商家看板的实时视图）。
// 实现 application.TriggerLogSink；Publish 永不阻塞主流程：
// 发送缓冲满的慢客户端直接断开。
type TriggerLogStream struct {
	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

type streamClient struct {
	conn     *websocket.Conn
	tenantID string
	send     chan []byte
}

// NewTriggerLogStream 创建推送中心
func NewTriggerLogStream() *TriggerLogStream {
	return &TriggerLogStream{clients: make(map[*streamClient]struct{})}
}

// Publish 实现 application.TriggerLogSink
func (s *TriggerLogStream) Publish(entry *domain.TriggerLog) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}

	s.mu.RLock()
	var stale []*streamClient
	for client := range s.clients {
		if client.tenantID != "" && client.tenantID != entry.TenantID {
			continue
		}
		select {
		case client.send <- payload:
		default:
			stale = append(stale, client)
		}
	}
	s.mu.RUnlock()

	for _, client := range stale {
		s.remove(client)
	}
}

// HandleWebSocket 把 HTTP 连接升级为 WebSocket 订阅。
// tenant_id 查询参数非空时只推送该租户的日志。
func (s *TriggerLogStream) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("Failed to upgrade trigger log stream connection")
		return
	}

	client := &streamClient{
		conn:     conn,
		tenantID: r.URL.Query().Get("tenant_id"),
		send:     make(chan []byte, 64),
	}
	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	go s.writeLoop(client)
	go s.readLoop(client)
}

// Close 断开所有订阅者
func (s *TriggerLogStream) Close() {
	s.mu.Lock()
	clients := make([]*streamClient, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.Unlock()
	for _, client := range clients {
		s.remove(client)
	}
}

func (s *TriggerLogStream) writeLoop(client *streamClient) {
	for payload := range client.send {
		if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.remove(client)
			return
		}
	}
}

// readLoop 只为感知对端关闭；订阅者不发送业务消息
func (s *TriggerLogStream) readLoop(client *streamClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			s.remove(client)
			return
		}
	}
}

func (s *TriggerLogStream) remove(client *streamClient) {
	s.mu.Lock()
	_, ok := s.clients[client]
	if ok {
		delete(s.clients, client)
	}
	s.mu.Unlock()
	if ok {
		close(client.send)
		client.conn.Close()
		logger.Ctx(context.Background()).Debug().Msg("Trigger log stream subscriber disconnected")
	}
}
