// Package page 通过 Chrome DevTools Protocol 驱动浏览器页面执行绘制动作。
package page

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"wplace/painter/log"
)

// cdpClient 最小化的 CDP websocket 客户端：请求按 id 配对应答，事件丢弃
type cdpClient struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan cdpResponse
	closed  bool
}

type cdpRequest struct {
	ID        int64  `json:"id"`
	SessionID string `json:"sessionId,omitempty"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
}

type cdpResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *cdpError       `json:"error"`
	Method string          `json:"method"` // 非空表示事件
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func dialCDP(ctx context.Context, endpoint string) (*cdpClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial cdp %s: %w", endpoint, err)
	}
	c := &cdpClient{
		conn:    conn,
		pending: map[int64]chan cdpResponse{},
	}
	go c.readLoop()
	return c, nil
}

func (c *cdpClient) readLoop() {
	for {
		var resp cdpResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.mu.Lock()
			c.closed = true
			for id, ch := range c.pending {
				close(ch)
				delete(c.pending, id)
			}
			c.mu.Unlock()
			return
		}
		if resp.Method != "" {
			continue // 事件不关心
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// call 发送命令并等待应答；sessionID 为空表示浏览器级命令
func (c *cdpClient) call(ctx context.Context, sessionID, method string, params any, out any) error {
	id := c.nextID.Add(1)
	ch := make(chan cdpResponse, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("cdp %s: connection closed", method)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(cdpRequest{ID: id, SessionID: sessionID, Method: method, Params: params})
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("cdp %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("cdp %s: connection closed", method)
		}
		if resp.Error != nil {
			return fmt.Errorf("cdp %s: %s (%d)", method, resp.Error.Message, resp.Error.Code)
		}
		if out != nil {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("cdp %s: decode result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *cdpClient) close() {
	if err := c.conn.Close(); err != nil {
		log.Debugf("close cdp connection: %v", err)
	}
}
