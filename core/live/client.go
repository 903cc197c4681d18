package live

import (
	"encoding/json"
	"time"

	"EbbFM/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 1024
)

// Client 观看端WebSocket连接
// 观看端只收不发（除心跳），写入全部走HTTP API。
type Client struct {
	Conn *websocket.Conn
	Send chan []byte
}

// NewClient 包装一条已升级的连接
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		Conn: conn,
		Send: make(chan []byte, 256),
	}
}

// SendJSON 非阻塞发送
// 缓冲区满时丢弃，观看端依赖周期重算而不是逐条送达。
func (c *Client) SendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("failed to marshal ws payload", logger.ErrorField(err))
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

// ReadPump 读取循环
// 观看端不发业务消息，这里只维持pong刷新与断开检测，
// 连接断开时调用 onClose 释放订阅。
func (c *Client) ReadPump(onClose func()) {
	defer func() {
		onClose()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMsgSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("websocket read error", logger.ErrorField(err))
			}
			return
		}
	}
}

// WritePump 写入循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 合并发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
