package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/api"
)

// Event names carried in Message.Event.
const (
	EventStatus   = "status"
	EventBriefing = "briefing"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// clientQueue is how many encoded messages may wait for one client
	// before it is dropped.
	clientQueue = 32

	// publishQueue buffers briefings between the cache listener and Run.
	publishQueue = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 8192,
	// Origin checks belong to the gateway in front of the admin API.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Message is the envelope written to clients. Exactly one of Status and
// Briefing is set, matching Event.
type Message struct {
	Event    string              `json:"event"`
	Status   *api.StatusResponse `json:"status,omitempty"`
	Briefing *types.Briefing     `json:"briefing,omitempty"`
}

// StatusFunc builds the cross-hospital view. (*api.Status).Build satisfies it.
type StatusFunc func() api.StatusResponse

// Hub fans published briefings out to connected dashboards. A client may
// restrict briefing events to some hospitals with ?hospital=a,b; status
// events always go to everyone.
//
// The client set is owned by Run. Publish and ServeHTTP talk to it over
// channels.
type Hub struct {
	status   StatusFunc
	interval time.Duration

	join      chan *subscriber
	leave     chan *subscriber
	published chan *types.Briefing
	done      chan struct{}

	connected atomic.Int64
	dropped   atomic.Int64
}

type subscriber struct {
	conn      *websocket.Conn
	out       chan []byte
	hospitals map[string]bool // nil means every hospital
}

func (s *subscriber) wants(hospitalID string) bool {
	return s.hospitals == nil || s.hospitals[hospitalID]
}

// New returns a Hub that sends status on connect and every interval.
func New(status StatusFunc, interval time.Duration) *Hub {
	return &Hub{
		status:    status,
		interval:  interval,
		join:      make(chan *subscriber),
		leave:     make(chan *subscriber),
		published: make(chan *types.Briefing, publishQueue),
		done:      make(chan struct{}),
	}
}

// Publish queues b for every interested client. It never blocks, so it is
// safe as a cache listener; when the queue is full the briefing is dropped
// and the next status tick carries its summary.
func (h *Hub) Publish(b *types.Briefing) {
	select {
	case h.published <- b:
	default:
		h.dropped.Add(1)
		slog.Warn("ws: publish queue full, briefing not streamed",
			"hospital_id", b.HospitalID, "briefing_id", b.ID)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int { return int(h.connected.Load()) }

// Dropped returns how many briefings were not streamed because the publish
// queue was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Run owns the client set until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	subs := make(map[*subscriber]struct{})
	remove := func(s *subscriber) {
		if _, ok := subs[s]; !ok {
			return
		}
		delete(subs, s)
		close(s.out)
		h.connected.Store(int64(len(subs)))
	}
	fanOut := func(data []byte, match func(*subscriber) bool) {
		for s := range subs {
			if !match(s) {
				continue
			}
			select {
			case s.out <- data:
			default:
				slog.Warn("ws: dropping slow client", "remote", s.conn.RemoteAddr().String())
				remove(s)
			}
		}
	}

	tick := time.NewTicker(h.interval)
	defer tick.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for s := range subs {
				remove(s)
			}
			return

		case s := <-h.join:
			subs[s] = struct{}{}
			h.connected.Store(int64(len(subs)))

		case s := <-h.leave:
			remove(s)

		case b := <-h.published:
			if len(subs) == 0 {
				continue
			}
			data, err := json.Marshal(Message{Event: EventBriefing, Briefing: b})
			if err != nil {
				slog.Error("ws: encode briefing", "hospital_id", b.HospitalID, "err", err)
				continue
			}
			fanOut(data, func(s *subscriber) bool { return s.wants(b.HospitalID) })

		case <-tick.C:
			if len(subs) == 0 {
				continue
			}
			data, err := h.statusMessage()
			if err != nil {
				slog.Error("ws: encode status", "err", err)
				continue
			}
			fanOut(data, func(*subscriber) bool { return true })
		}
	}
}

// ServeHTTP upgrades the request and streams messages until the client goes
// away or the hub stops. The first message is always the current status.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("ws: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	s := &subscriber{
		conn:      conn,
		out:       make(chan []byte, clientQueue),
		hospitals: parseHospitals(r.URL.Query().Get("hospital")),
	}
	if data, err := h.statusMessage(); err == nil {
		s.out <- data
	}

	select {
	case h.join <- s:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go s.write()
	s.read()

	select {
	case h.leave <- s:
	case <-h.done:
	}
}

func (h *Hub) statusMessage() ([]byte, error) {
	st := h.status()
	return json.Marshal(Message{Event: EventStatus, Status: &st})
}

// parseHospitals turns "a, b" into a set. An empty value means no filter.
func parseHospitals(q string) map[string]bool {
	var set map[string]bool
	for _, id := range strings.Split(q, ",") {
		if id = strings.TrimSpace(id); id == "" {
			continue
		}
		if set == nil {
			set = make(map[string]bool)
		}
		set[id] = true
	}
	return set
}

// write drains out onto the connection and keeps it alive with pings. A
// closed out channel means the hub removed the client.
func (s *subscriber) write() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.out:
			if !ok {
				s.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// read discards client frames; it exists to process pongs and notice the
// peer closing. The stream is one-way.
func (s *subscriber) read() {
	defer s.conn.Close()
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
