// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/tradewire-project/tradewire/lib/apikey"
	"github.com/tradewire-project/tradewire/lib/clock"
	"github.com/tradewire-project/tradewire/lib/codec"
)

// ErrMessageTooLarge is returned by the per-message read budget when a
// single CBOR message exceeds the configured limit. It is a transport
// error: the connection cannot be resynchronized and is closed.
var ErrMessageTooLarge = errors.New("message exceeds size limit")

// ServerConfig holds the collaborators and limits for a Server.
type ServerConfig struct {
	Registry    *Registry
	Admission   *Admission
	Broadcaster *Broadcaster
	Sink        Sink
	Clock       clock.Clock
	Logger      *slog.Logger

	// MaxMessageBytes bounds a single inbound CBOR message.
	MaxMessageBytes int64
}

// Server accepts client connections and runs one read loop per
// session: registration, trade-signal dispatch, keepalive, and
// disconnect cleanup.
type Server struct {
	registry    *Registry
	admission   *Admission
	broadcaster *Broadcaster
	sink        Sink
	clock       clock.Clock
	logger      *slog.Logger
	maxMessage  int64
}

// NewServer builds a relay server.
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		registry:    cfg.Registry,
		admission:   cfg.Admission,
		broadcaster: cfg.Broadcaster,
		sink:        cfg.Sink,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		maxMessage:  cfg.MaxMessageBytes,
	}
}

// Serve accepts connections until the context is cancelled, then
// closes the listener and waits for the per-connection loops to
// drain. Live sessions are dropped on shutdown.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// handle runs one connection's read loop. Each iteration decodes a
// raw CBOR message under a fresh size budget, then interprets it. A
// raw decode failure is a transport failure and ends the loop; a
// semantic failure (not a map, unknown type, bad payload) is logged
// and dropped with the connection left open.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	logger := s.logger.With("remote", remote)

	// Shutdown unblocks the read loop by closing the transport.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	limited := &limitReader{r: conn, limit: s.maxMessage}
	decoder := codec.NewDecoder(limited)
	encoder := codec.NewEncoder(conn)

	var session *Session
	defer func() {
		if session != nil {
			if s.broadcaster.Drop(session, "connection closed") {
				s.broadcaster.AnnouncePeerCounts()
			}
		} else {
			conn.Close()
		}
	}()

	for {
		limited.Reset()
		var raw codec.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("connection read failed", "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := codec.Unmarshal(raw, &msg); err != nil {
			logger.Debug("malformed message dropped", "error", err)
			continue
		}

		switch msg.Type {
		case TypeRegisterMaster, TypeRegisterReceiver:
			next, ok := s.handleRegister(ctx, logger, conn, encoder, session, msg)
			if !ok {
				return
			}
			session = next

		case TypeTradeSignal:
			if session == nil || session.Role != RoleMaster {
				logger.Debug("trade signal from non-master dropped")
				continue
			}
			if msg.Trade == nil {
				logger.Debug("trade signal without order dropped", "session", session.ID)
				continue
			}
			if err := msg.Trade.Validate(); err != nil {
				logger.Debug("invalid trade signal dropped",
					"session", session.ID, "error", err)
				continue
			}
			s.broadcaster.BroadcastTrade(ctx, *msg.Trade, session.Credential)

		case TypeLivenessPing:
			if session == nil {
				logger.Debug("ping before registration dropped")
				continue
			}
			now := s.clock.Now()
			s.registry.Touch(session.ID, now)
			s.mirror(session.ID, func(mctx context.Context) error {
				return s.sink.SessionSeen(mctx, session.ID)
			})
			if err := session.Send(ServerMessage{Type: TypePong, Timestamp: now.Unix()}); err != nil {
				logger.Debug("pong failed", "session", session.ID, "error", err)
				return
			}

		default:
			logger.Debug("unknown message type dropped", "type", msg.Type)
		}
	}
}

// handleRegister admits a registration message. Returns the session
// to continue with and whether the loop should keep running: a failed
// admission replies with a rejection and closes the connection.
func (s *Server) handleRegister(ctx context.Context, logger *slog.Logger, conn net.Conn, encoder *codec.Encoder, session *Session, msg ClientMessage) (*Session, bool) {
	role := RoleMaster
	credential := msg.APIKey
	if msg.Type == TypeRegisterReceiver {
		role = RoleReceiver
		credential = msg.LicenseKey
	}

	if session != nil && session.Role != role {
		logger.Debug("re-registration with different role dropped",
			"session", session.ID, "role", role)
		return session, true
	}

	if err := s.admission.Admit(ctx, role, credential); err != nil {
		logger.Info("admission rejected", "role", role, "error", err)
		// Rejections leave no connection row behind, so they get a
		// durable audit entry of their own.
		remote := conn.RemoteAddr().String()
		go func() {
			logErr := s.sink.AppendLog(context.Background(), "warn", "admission rejected",
				map[string]any{"role": role, "reason": RejectReason(err), "remote": remote})
			if logErr != nil {
				s.logger.Error("recording rejection failed", "error", logErr)
			}
		}()
		reject := ServerMessage{Type: TypeRejected, Reason: RejectReason(err)}
		if session != nil {
			_ = session.Send(reject)
		} else {
			_ = encoder.Encode(reject)
		}
		return session, false
	}

	// Admission saw the raw API key; everything downstream (session
	// state, sink records, trade attribution) only ever sees its
	// fingerprint. Receiver license keys are durable identifiers and
	// stay as-is.
	if role == RoleMaster {
		credential = apikey.Fingerprint(credential)
	}

	if session == nil {
		id, err := NewSessionID()
		if err != nil {
			logger.Error("generating session ID failed", "error", err)
			return nil, false
		}
		session = NewSession(id, role, credential, conn.RemoteAddr().String(), conn, s.clock.Now())
	} else {
		session.Credential = credential
		session.Touch(s.clock.Now())
	}
	if msg.Account != nil {
		session.SetAccount(*msg.Account)
	}

	s.registry.Add(session)

	record := SessionRecord{
		SessionID:  session.ID,
		Role:       session.Role,
		Credential: session.Credential,
		RemoteAddr: session.RemoteAddr,
		Account:    session.Account(),
	}
	s.mirror(session.ID, func(mctx context.Context) error {
		return s.sink.SessionOpened(mctx, record)
	})

	if err := session.Send(ServerMessage{Type: TypeRegistered, SessionID: session.ID}); err != nil {
		logger.Debug("registration ack failed", "session", session.ID, "error", err)
		return session, false
	}
	logger.Info("session registered",
		"session", session.ID, "role", role, "risk_mode", msg.RiskMode)
	s.broadcaster.AnnouncePeerCounts()
	return session, true
}

// mirror runs one sink write in the background. Sink failures are
// logged and never block the read loop.
func (s *Server) mirror(sessionID string, write func(context.Context) error) {
	go func() {
		if err := write(context.Background()); err != nil {
			s.logger.Error("mirroring session state failed",
				"session", sessionID, "error", err)
		}
	}()
}

// limitReader enforces a per-message read budget. Reset restores the
// budget before each decode; exhausting it mid-message surfaces
// ErrMessageTooLarge through the decoder.
type limitReader struct {
	r         io.Reader
	limit     int64
	remaining int64
}

func (l *limitReader) Reset() { l.remaining = l.limit }

func (l *limitReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, ErrMessageTooLarge
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
