package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vrlink/vrlink-core/internal/link"
)

// storageTimeout bounds the pairing-store work done while handling a
// single frame.
const storageTimeout = 5 * time.Second

// session owns one device connection from upgrade to teardown: the read
// loop, frame dispatch, keepalive pings, and cleanup of registry and
// correlation state.
type session struct {
	id       string // random ID for log correlation, not visible to the device
	srv      *Server
	ws       *websocket.Conn
	conn     *Conn
	deviceID string // empty until the device sends hello or pair
	done     chan struct{}
}

func newSession(srv *Server, ws *websocket.Conn) *session {
	return &session{
		id:   uuid.New().String()[:8],
		srv:  srv,
		ws:   ws,
		conn: newConn(ws, srv.cfg.GetWriteTimeout()),
		done: make(chan struct{}),
	}
}

// run processes frames until the connection drops, then cleans up.
func (s *session) run() {
	defer s.cleanup()

	s.ws.SetReadLimit(int64(s.srv.cfg.MaxMessageSize))
	s.resetReadDeadline()
	s.ws.SetPongHandler(func(string) error {
		s.resetReadDeadline()
		return nil
	})

	go s.pingLoop()

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.srv.logger.Warn("connection closed unexpectedly",
					"conn_id", s.id, "device_id", s.deviceID, "error", err)
			}
			return
		}
		s.resetReadDeadline()

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.srv.logger.Debug("dropping malformed frame", "conn_id", s.id, "error", err)
			continue
		}
		s.dispatch(&frame)
	}
}

func (s *session) dispatch(frame *inboundFrame) {
	switch frame.Type {
	case frameHello:
		s.handleHello(frame)
	case framePair:
		s.handlePair(frame)
	case frameUnlink:
		s.handleUnlink(frame)
	case frameLibraryResponse, frameLibrary:
		s.handleLibraryReply(frame)
	default:
		s.srv.logger.Debug("ignoring unknown frame type", "conn_id", s.id, "type", frame.Type)
	}
}

// handleHello registers a returning device. A hello without a device_id
// carries no usable identity and is dropped.
func (s *session) handleHello(frame *inboundFrame) {
	if frame.DeviceID == "" {
		s.srv.logger.Debug("hello without device_id ignored", "conn_id", s.id)
		return
	}

	s.identify(frame.DeviceID)
	s.reply(newHelloAck())

	if frame.DeviceName != "" {
		s.refreshDeviceName(frame.DeviceID, frame.DeviceName)
	}

	s.srv.events.DeviceConnected(frame.DeviceID, frame.DeviceName)
	s.srv.logger.Info("device announced",
		"conn_id", s.id, "device_id", frame.DeviceID, "device_name", frame.DeviceName)
}

// handlePair exchanges a one-time pairing code for a device binding.
func (s *session) handlePair(frame *inboundFrame) {
	if frame.Code == "" || frame.DeviceID == "" {
		s.reply(pairFailed(reasonMissingFields))
		return
	}

	ctx, cancel := s.storageCtx()
	defer cancel()

	userID, err := s.srv.links.UserIDByCode(ctx, frame.Code)
	if errors.Is(err, link.ErrCodeNotFound) {
		s.reply(pairFailed(reasonInvalidCode))
		return
	}
	if err != nil {
		s.srv.logger.Error("pairing code lookup failed", "conn_id", s.id, "error", err)
		return
	}

	var name *string
	if frame.DeviceName != "" {
		name = &frame.DeviceName
	}
	if err := s.srv.links.BindDevice(ctx, userID, frame.DeviceID, name); err != nil {
		s.srv.logger.Error("device bind failed",
			"conn_id", s.id, "user_id", userID, "device_id", frame.DeviceID, "error", err)
		return
	}

	s.identify(frame.DeviceID)
	s.reply(pairOK(userID))

	s.srv.events.DevicePaired(userID, frame.DeviceID)
	s.srv.logger.Info("device paired",
		"conn_id", s.id, "device_id", frame.DeviceID, "user_id", userID)
}

// handleUnlink clears the pairing record for this device. The live
// connection deliberately survives: the device stays reachable until it
// disconnects on its own.
func (s *session) handleUnlink(frame *inboundFrame) {
	if frame.DeviceID == "" {
		s.reply(pairFailed(reasonMissingDeviceID))
		return
	}

	ctx, cancel := s.storageCtx()
	defer cancel()

	userID, err := s.srv.links.UserIDByDevice(ctx, frame.DeviceID)
	if errors.Is(err, link.ErrLinkNotFound) {
		s.reply(pairFailed(reasonNotLinked))
		return
	}
	if err != nil {
		s.srv.logger.Error("unlink lookup failed", "conn_id", s.id, "error", err)
		return
	}

	if err := s.srv.links.ClearDevice(ctx, userID); err != nil {
		s.srv.logger.Error("unlink failed", "conn_id", s.id, "user_id", userID, "error", err)
		return
	}

	s.reply(pairResult{Type: framePairResult, OK: true})

	s.srv.events.DeviceUnlinked(userID, frame.DeviceID)
	s.srv.logger.Info("device unlinked itself",
		"conn_id", s.id, "device_id", frame.DeviceID, "user_id", userID)
}

// handleLibraryReply routes a library listing back to whoever asked for
// it. Replies from a connection that never identified itself cannot be
// correlated and are dropped.
func (s *session) handleLibraryReply(frame *inboundFrame) {
	requestID := frame.requestID()
	if s.deviceID == "" || requestID == "" {
		s.srv.logger.Debug("uncorrelatable library reply dropped",
			"conn_id", s.id, "device_id", s.deviceID, "request_id", requestID)
		return
	}

	if !s.srv.pending.Resolve(s.deviceID, requestID, frame.libraryPayload()) {
		s.srv.logger.Debug("late or unsolicited library reply dropped",
			"conn_id", s.id, "device_id", s.deviceID, "request_id", requestID)
	}
}

// identify records the device's identity and registers this connection
// as its live channel, displacing any previous one.
func (s *session) identify(deviceID string) {
	s.srv.registry.Register(deviceID, s.conn)
	if s.deviceID != deviceID {
		s.srv.metrics.RecordConnection(deviceID, true)
	}
	s.deviceID = deviceID
}

// refreshDeviceName keeps the stored device name current for already
// linked devices that announce with a new name.
func (s *session) refreshDeviceName(deviceID, name string) {
	ctx, cancel := s.storageCtx()
	defer cancel()

	userID, err := s.srv.links.UserIDByDevice(ctx, deviceID)
	if errors.Is(err, link.ErrLinkNotFound) {
		return
	}
	if err != nil {
		s.srv.logger.Warn("device name lookup failed", "conn_id", s.id, "error", err)
		return
	}

	if err := s.srv.links.UpdateDeviceName(ctx, userID, name); err != nil {
		s.srv.logger.Warn("device name refresh failed",
			"conn_id", s.id, "user_id", userID, "error", err)
	}
}

// reply writes a frame best-effort. A failed write is logged and
// otherwise ignored; if the socket is truly gone the read loop notices
// immediately.
func (s *session) reply(frame any) {
	if err := s.conn.Send(frame); err != nil {
		s.srv.logger.Warn("reply send failed",
			"conn_id", s.id, "device_id", s.deviceID, "error", err)
	}
}

func (s *session) pingLoop() {
	ticker := time.NewTicker(s.srv.cfg.GetPingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.Ping(); err != nil {
				s.ws.Close()
				return
			}
		}
	}
}

func (s *session) resetReadDeadline() {
	deadline := s.srv.cfg.GetPingInterval() + s.srv.cfg.GetPongTimeout()
	s.ws.SetReadDeadline(time.Now().Add(deadline))
}

func (s *session) storageCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.srv.baseCtx, storageTimeout)
}

// cleanup unwinds this connection's footprint. The registry entry is
// removed only if it still points at this connection, but pending
// requests for the device are cancelled unconditionally: any reply they
// were waiting on died with this socket.
func (s *session) cleanup() {
	close(s.done)
	s.ws.Close()
	s.srv.dropSession(s)

	if s.deviceID == "" {
		s.srv.logger.Debug("unidentified connection closed", "conn_id", s.id)
		return
	}

	if s.srv.registry.UnregisterIfCurrent(s.deviceID, s.conn) {
		s.srv.logger.Info("device disconnected", "conn_id", s.id, "device_id", s.deviceID)
	} else {
		s.srv.logger.Debug("superseded session closed, registry untouched",
			"conn_id", s.id, "device_id", s.deviceID)
	}

	if n := s.srv.pending.CancelDevice(s.deviceID); n > 0 {
		s.srv.logger.Debug("cancelled pending requests",
			"conn_id", s.id, "device_id", s.deviceID, "count", n)
	}

	s.srv.metrics.RecordConnection(s.deviceID, false)
	s.srv.events.DeviceDisconnected(s.deviceID)
}
