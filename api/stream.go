package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/bitmark-inc/geoquest-agent/geofence"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	// Heartbeat interval
	pingInterval = 30 * time.Second
	// Write timeout
	writeTimeout = 10 * time.Second
	// Read timeout, extended by every pong
	readTimeout = 60 * time.Second
)

type streamMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// streamClient is one websocket connection following a session's proximity
type streamClient struct {
	conn *websocket.Conn
	send chan []byte

	// closed when the connection is gone
	gone     chan struct{}
	goneOnce sync.Once
}

func (c *streamClient) close() {
	c.goneOnce.Do(func() { close(c.gone) })
}

// offer queues a message without blocking the monitor. A slow reader loses
// intermediate updates, the next one carries the full state anyway.
func (c *streamClient) offer(data []byte) {
	select {
	case <-c.gone:
	case c.send <- data:
	default:
	}
}

func (c *streamClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(4 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		var msg streamMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Warn("proximity stream read")
			}
			return
		}

		if msg.Type == "ping" {
			if data, err := json.Marshal(streamMessage{Type: "pong"}); err == nil {
				c.offer(data)
			}
		}
	}
}

func (c *streamClient) writePump(sessionDone <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-sessionDone:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
			return

		case <-c.gone:
			return
		}
	}
}

// streamProximity pushes every proximity update of the session over a websocket
func (s *Server) streamProximity(c *gin.Context) {
	sess := c.MustGet("session").(*session)
	l := localizer(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Error("upgrade proximity stream")
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan []byte, 16),
		gone: make(chan struct{}),
	}

	encode := func(u geofence.Update) []byte {
		data, err := json.Marshal(streamMessage{
			Type: "proximity",
			Data: newProximityResponse(l, u),
		})
		if err != nil {
			log.WithError(err).Error("marshal proximity update")
			return nil
		}
		return data
	}

	if data := encode(sess.monitor.Snapshot()); data != nil {
		client.offer(data)
	}

	unsubscribe := sess.monitor.Subscribe(func(u geofence.Update) {
		if data := encode(u); data != nil {
			client.offer(data)
		}
	})

	log.WithField("session_id", sess.ID).Info("proximity stream connected")

	go client.writePump(sess.done)
	go func() {
		client.readPump()
		unsubscribe()
		log.WithField("session_id", sess.ID).Info("proximity stream disconnected")
	}()
}
