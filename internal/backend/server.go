package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/omochice/dialog-session/internal/logging"
	"github.com/omochice/dialog-session/internal/transport"
	wstransport "github.com/omochice/dialog-session/internal/transport/ws"
	"github.com/omochice/dialog-session/pkg/protocol"
)

const (
	outgoingBuffer = 64
	maxPageSize    = 100
)

// PushRequest is the body of POST /push.
type PushRequest struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// Server serves the dialogs protocol on /ws and accepts pushed messages on
// /push.
type Server struct {
	store    Store
	hub      *Hub
	log      logging.Logger
	listener net.Listener
	server   *http.Server
	wg       sync.WaitGroup
}

// New creates a Server backed by store.
func New(store Store, log logging.Logger) *Server {
	return &Server{
		store: store,
		hub:   NewHub(),
		log:   logging.OrNoop(log),
	}
}

// Hub returns the server's client hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP handler serving /ws and /push.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/push", s.handlePush)
	return mux
}

// Start listens on address and serves until Stop.
func (s *Server) Start(address string) error {
	if err := s.Listen(address); err != nil {
		return err
	}
	return s.Serve()
}

// Listen binds address without accepting connections yet.
func (s *Server) Listen(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{Handler: s.Handler()}
	return nil
}

// Serve accepts connections on the bound listener until Stop.
func (s *Server) Serve() error {
	s.log.Info("server started", "addr", s.listener.Addr().String())
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop shuts the HTTP server down and closes every client connection.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.hub.CloseAll()
	s.wg.Wait()
	return err
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("token") == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	conn, err := wstransport.Upgrade(w, r)
	if err != nil {
		s.log.Warn("failed to accept websocket connection", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := &Client{
		ID:        uuid.NewString(),
		Conn:      conn,
		PushToken: query.Get("push_token"),
		Outgoing:  make(chan []byte, outgoingBuffer),
	}
	s.hub.Register(client)
	s.log.Info("client connected", "client", client.ID, "remote", conn.RemoteAddr(), "push_token", logging.Redact(client.PushToken))

	s.wg.Add(2)
	go s.handleClient(client)
	go s.writeLoop(client)
}

func (s *Server) handleClient(client *Client) {
	defer s.wg.Done()
	defer func() {
		s.hub.Unregister(client)
		close(client.Outgoing)
		_ = client.Conn.Close()
		s.log.Info("client disconnected", "client", client.ID)
	}()

	ctx := context.Background()
	for {
		data, err := client.Conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, transport.ErrClosed) {
				s.log.Debug("read failed", "client", client.ID, "error", err)
			}
			return
		}

		var msg protocol.Message
		if err := msg.Decode(data); err != nil {
			s.log.Warn("failed to decode message", "client", client.ID, "error", err)
			continue
		}

		reply, err := s.handleMessage(ctx, msg)
		if err != nil {
			s.log.Error("failed to handle message", "client", client.ID, "type", msg.Type, "error", err)
			continue
		}
		if reply == nil {
			continue
		}
		s.send(client, *reply)
	}
}

func (s *Server) handleMessage(ctx context.Context, msg protocol.Message) (*protocol.Message, error) {
	switch msg.Type {
	case protocol.MessageTypeDialogs:
		limit := msg.Limit
		if limit <= 0 || limit > maxPageSize {
			limit = protocol.PageSize
		}
		page, err := s.store.Page(ctx, max(msg.Offset, 0), limit)
		if err != nil {
			return nil, err
		}
		return &protocol.Message{Type: protocol.MessageTypeDialogs, Info: page}, nil
	case protocol.MessageTypeDelete:
		n, err := s.store.Delete(ctx, msg.UIDs)
		if err != nil {
			return nil, err
		}
		s.log.Info("dialogs deleted", "id", msg.ID, "count", n)
		return &protocol.Message{Type: protocol.MessageTypeSuccess, ID: msg.ID}, nil
	default:
		return nil, nil
	}
}

func (s *Server) send(client *Client, msg protocol.Message) {
	data, err := msg.Encode()
	if err != nil {
		s.log.Error("failed to encode reply", "client", client.ID, "error", err)
		return
	}
	select {
	case client.Outgoing <- data:
	default:
		s.log.Warn("client channel full, dropping reply", "client", client.ID)
	}
}

func (s *Server) writeLoop(client *Client) {
	defer s.wg.Done()
	for data := range client.Outgoing {
		if err := client.Conn.Write(context.Background(), data); err != nil {
			s.log.Debug("failed to write to client", "client", client.ID, "error", err)
			_ = client.Conn.Close()
			return
		}
	}
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.UID == "" {
		http.Error(w, "uid is required", http.StatusBadRequest)
		return
	}

	if err := s.Push(r.Context(), req); err != nil {
		s.log.Error("push failed", "uid", req.UID, "error", err)
		http.Error(w, "push failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Push stores a new message for a conversation and notifies every client.
func (s *Server) Push(ctx context.Context, req PushRequest) error {
	d := protocol.Dialog{UID: req.UID, Name: req.Name, Message: req.Text}
	if err := s.store.Upsert(ctx, d); err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	data, err := (&protocol.Message{
		Type: protocol.MessageTypeMessage,
		UID:  req.UID,
		Name: req.Name,
		Text: req.Text,
	}).Encode()
	if err != nil {
		return err
	}
	n := s.hub.Broadcast(data)
	s.log.Debug("message pushed", "uid", req.UID, "clients", n)
	return nil
}
