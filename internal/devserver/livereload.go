package devserver

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/asset"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
)

const heartbeatInterval = 30 * time.Second

// ReloadEvent is the payload pushed to browsers.
type ReloadEvent struct {
	Hash     string         `json:"hash"`
	Category asset.Category `json:"category,omitempty"`
}

// LiveReloadHub manages SSE clients and fans reload events out to them.
type LiveReloadHub struct {
	mu       sync.RWMutex
	nextID   int
	clients  map[int]*lrClient
	recorder metrics.Recorder
	closed   bool
	last     ReloadEvent
}

type lrClient struct {
	id   int
	ch   chan []byte
	done chan struct{}
}

func NewLiveReloadHub(rec metrics.Recorder) *LiveReloadHub {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &LiveReloadHub{
		clients:  map[int]*lrClient{},
		recorder: rec,
		last:     ReloadEvent{Hash: newHash()},
	}
}

// Clients returns the number of connected browsers.
func (h *LiveReloadHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP implements the SSE endpoint.
func (h *LiveReloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	client := &lrClient{ch: make(chan []byte, 8), done: make(chan struct{})}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}
	client.id = h.nextID
	h.nextID++
	h.clients[client.id] = client
	last := h.last
	n := len(h.clients)
	h.mu.Unlock()
	h.recorder.SetLiveReloadClients(n)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(": connected\n\n"); err != nil {
		slog.Debug("livereload write", logfields.Error(err))
		h.removeClient(client.id)
		return
	}
	// The first event carries the current hash; pages reload only when a
	// later event differs from it.
	if data, err := json.Marshal(last); err == nil {
		writeEvent(bw, data)
	}
	if err := bw.Flush(); err == nil {
		flusher.Flush()
	}

	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.removeClient(client.id)
			return
		case <-client.done:
			return
		case <-hb.C:
			if _, err := bw.WriteString(": ping\n\n"); err == nil {
				_ = bw.Flush()
				flusher.Flush()
			}
		case data := <-client.ch:
			writeEvent(bw, data)
			_ = bw.Flush()
			flusher.Flush()
		}
	}
}

var hashSeq atomic.Uint64

func newHash() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(hashSeq.Add(1), 36)
}

func writeEvent(bw *bufio.Writer, data []byte) {
	_, _ = bw.WriteString("data: ")
	_, _ = bw.Write(data)
	_, _ = bw.WriteString("\n\n")
}

func (h *LiveReloadHub) removeClient(id int) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.done)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.recorder.SetLiveReloadClients(n)
	}
}

// Broadcast pushes ev to every client. Clients whose buffers are full are
// dropped; they reconnect and compare hashes. Repeated hashes are ignored.
func (h *LiveReloadHub) Broadcast(ev ReloadEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	if h.closed || ev.Hash == "" || ev.Hash == h.last.Hash {
		h.mu.Unlock()
		return
	}
	h.last = ev
	snapshot := make([]*lrClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- data:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}
	h.recorder.IncLiveReloadBroadcast(string(ev.Category))
	slog.Debug("livereload broadcast",
		logfields.Category(string(ev.Category)),
		logfields.Clients(len(snapshot)),
		slog.Int("dropped", dropped))
}

// Shutdown disconnects all clients and ignores later broadcasts.
func (h *LiveReloadHub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*lrClient{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
	h.recorder.SetLiveReloadClients(0)
}
