package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/thoughtmap/internal/app"
	"github.com/MrWong99/thoughtmap/internal/observe"
	"github.com/MrWong99/thoughtmap/internal/tree"
)

// wsReadLimit bounds a single client frame. Audio frames are a few KiB.
const wsReadLimit = 1 << 20

// Server-to-client frame types.
const (
	frameSnapshot = "snapshot"
	frameError    = "error"
)

type wsFrame struct {
	Type     string         `json:"type"`
	Snapshot *tree.Snapshot `json:"snapshot,omitempty"`
	Status   *app.Status    `json:"status,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func (s *Server) snapshotFrame(snap *tree.Snapshot) wsFrame {
	st := s.app.Status()
	return wsFrame{Type: frameSnapshot, Snapshot: snap, Status: &st}
}

func (s *Server) acceptOptions() *websocket.AcceptOptions {
	origins := s.app.Config().Server.CORSOrigins
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		patterns = append(patterns, o)
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}

// handleWS pushes the current state on connect and after every publish.
// Text frames carry transcript fragments and toggles. Binary frames are PCM
// audio for a server-side recognizer.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())
	conn, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		log.Warn("api: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(wsReadLimit)

	ctx := r.Context()
	m := s.app.Metrics()
	m.WSClients.Add(ctx, 1)
	defer m.WSClients.Add(context.WithoutCancel(ctx), -1)

	snaps, unsubscribe := s.app.Store().Subscribe()
	defer unsubscribe()

	var toggles sync.WaitGroup
	defer toggles.Wait()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.wsWriteLoop(gctx, conn, snaps) })
	g.Go(func() error { return s.wsReadLoop(gctx, conn, &toggles) })
	err = g.Wait()

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		log.Debug("api: websocket closed by client")
	default:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("api: websocket terminated", "err", err)
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) wsWriteLoop(ctx context.Context, conn *websocket.Conn, snaps <-chan *tree.Snapshot) error {
	if err := s.wsWrite(ctx, conn, s.snapshotFrame(s.app.Store().Snapshot())); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if err := s.wsWrite(ctx, conn, s.snapshotFrame(snap)); err != nil {
				return err
			}
		}
	}
}

func (s *Server) wsReadLoop(ctx context.Context, conn *websocket.Conn, toggles *sync.WaitGroup) error {
	audioFailing := false
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		switch typ {
		case websocket.MessageBinary:
			err := s.app.Recording().SendAudio(data)
			switch {
			case err == nil:
				audioFailing = false
			case !audioFailing:
				// Report once per failure streak, not once per frame.
				audioFailing = true
				s.wsSendError(ctx, conn, err)
			}
		case websocket.MessageText:
			s.wsHandleText(ctx, conn, data, toggles)
		}
	}
}

func (s *Server) wsHandleText(ctx context.Context, conn *websocket.Conn, data []byte, toggles *sync.WaitGroup) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.wsSendError(ctx, conn, errors.New("invalid JSON"))
		return
	}
	if err := validate.Struct(msg); err != nil {
		s.wsSendError(ctx, conn, formatValidationError(err))
		return
	}
	switch msg.Type {
	case "transcript":
		if err := s.app.Recording().Push(msg.Text, msg.Final); err != nil {
			s.wsSendError(ctx, conn, err)
		}
	case "toggle":
		// Follow-up generation can take seconds. Keep reading audio meanwhile.
		toggles.Add(1)
		go func() {
			defer toggles.Done()
			if _, err := s.app.Selection().Toggle(ctx, msg.ID); err != nil {
				s.wsSendError(ctx, conn, err)
			}
		}()
	}
}

func (s *Server) wsSendError(ctx context.Context, conn *websocket.Conn, err error) {
	if werr := s.wsWrite(ctx, conn, wsFrame{Type: frameError, Error: err.Error()}); werr != nil {
		observe.Logger(ctx).Debug("api: websocket error frame not delivered", "err", werr)
	}
}

func (s *Server) wsWrite(ctx context.Context, conn *websocket.Conn, frame wsFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
