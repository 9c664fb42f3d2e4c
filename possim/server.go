// Package possim 是本地开发用的 POS 模拟端：接收扫描并回复 POS_RESPONSE。
package possim

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/lisuiheng/rfid-bridge/notify"
	"github.com/lisuiheng/rfid-bridge/protocols/envelope"
)

const PathPOS = "/pos"

// Scan 记录模拟端收到的一次扫描
type Scan struct {
	ClientID  string
	ProductID string
	Timestamp string
}

type Server struct {
	catalog  notify.Catalog
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu    sync.Mutex
	scans []Scan
	conns map[*websocket.Conn]struct{}
}

func NewServer(catalog notify.Catalog, log *slog.Logger) *Server {
	if catalog == nil {
		catalog = notify.DefaultCatalog()
	}
	if log == nil {
		log = slog.Default().With("component", "possim")
	}
	return &Server{
		catalog: catalog,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log,
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(PathPOS, s.handlePOS).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return r
}

// Scans 返回目前收到的扫描
func (s *Server) Scans() []Scan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Scan(nil), s.scans...)
}

// DropAll 断开所有连接，用于模拟 POS 关闭
func (s *Server) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
		delete(s.conns, c)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"scans":  len(s.Scans()),
	})
}

func (s *Server) handlePOS(w http.ResponseWriter, r *http.Request) {
	clientID := r.Header.Get("Client-Id")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Websocket upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	s.logger.Info("Scanner connected", "client_id", clientID, "remote", r.RemoteAddr)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Info("Scanner disconnected", "client_id", clientID, "reason", err)
			return
		}

		switch msg := envelope.Decode(data).(type) {
		case envelope.Scan:
			resp := s.process(clientID, msg)
			out, err := envelope.Encode(resp)
			if err != nil {
				s.logger.Error("Failed to encode response", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
				s.logger.Warn("Failed to write response", "error", err)
				return
			}
		default:
			s.logger.Debug("Ignoring message", "raw", string(data))
		}
	}
}

func (s *Server) process(clientID string, scan envelope.Scan) envelope.Response {
	s.mu.Lock()
	s.scans = append(s.scans, Scan{ClientID: clientID, ProductID: scan.ProductID, Timestamp: scan.Timestamp})
	s.mu.Unlock()

	product, ok := s.catalog.Lookup(scan.ProductID)
	if !ok {
		s.logger.Warn("Unknown product scanned", "product_id", scan.ProductID)
		return envelope.Response{Success: false, Error: fmt.Sprintf("unknown product: %s", scan.ProductID)}
	}
	s.logger.Info("Added to cart", "product", product.DisplayName)
	return envelope.Response{Success: true}
}
