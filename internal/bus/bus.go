// Package bus publishes conversation events to a websocket hub.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "log/slog"

	ws "github.com/gorilla/websocket"
)

const (
	KindHeard = "heard"
	KindReply = "reply"
)

type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
	ID      string `json:"id,omitempty"`
}

type Config struct {
	URL     string
	Shard   string        // our name in From
	To      string        // recipient, "ALL" when empty
	Timeout time.Duration // dial and write timeout
}

type Bus struct {
	cfg    Config
	dialer ws.Dialer

	mu   sync.Mutex
	conn *ws.Conn
}

func Dial(ctx context.Context, cfg Config) (*Bus, error) {
	if cfg.Shard == "" {
		cfg.Shard = "voxchat"
	}
	if cfg.To == "" {
		cfg.To = "ALL"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	b := &Bus{
		cfg:    cfg,
		dialer: ws.Dialer{HandshakeTimeout: cfg.Timeout},
	}

	if err := b.connect(ctx); err != nil {
		return nil, err
	}

	log.Info("Connected to bus", "url", cfg.URL)
	return b, nil
}

func (b *Bus) connect(ctx context.Context) error {
	conn, _, err := b.dialer.DialContext(ctx, b.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", b.cfg.URL, err)
	}

	b.conn = conn
	go b.drain(conn)
	return nil
}

// drain reads and drops inbound frames so control messages are handled.
func (b *Bus) drain(conn *ws.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if isClosed(err) {
				log.Debug("Bus connection closed", "err", err)
			}
			return
		}
		log.Debug("Read bus", "msg", string(msg))
	}
}

// Publish sends one message per turn: what was heard and the reply.
func (b *Bus) Publish(ctx context.Context, id, heard, reply string) error {
	for _, m := range []Message{
		{Kind: KindHeard, Content: heard, ID: id},
		{Kind: KindReply, Content: reply, ID: id},
	} {
		if err := b.Write(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Write sends m, redialing once if the connection has gone away.
func (b *Bus) Write(ctx context.Context, m Message) error {
	m.From = b.cfg.Shard
	if m.To == "" {
		m.To = b.cfg.To
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	err = b.write(payload)
	if err == nil {
		return nil
	}
	log.Warn("Bus write failed, reconnecting", "url", b.cfg.URL, "err", err)

	if b.conn != nil {
		_ = b.conn.Close()
	}
	if err := b.connect(ctx); err != nil {
		b.conn = nil
		return err
	}
	return b.write(payload)
}

func (b *Bus) write(payload []byte) error {
	if b.conn == nil {
		return fmt.Errorf("not connected")
	}
	log.Debug("Write bus", "msg", string(payload))
	_ = b.conn.SetWriteDeadline(time.Now().Add(b.cfg.Timeout))
	return b.conn.WriteMessage(ws.TextMessage, payload)
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return nil
	}
	_ = b.conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := b.conn.Close()
	b.conn = nil
	return err
}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
