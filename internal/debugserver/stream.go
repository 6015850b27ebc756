/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package debugserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/mediafoxhq/mediafox/internal/store"
)

type streamMessage struct {
	Type      string                `json:"type"`
	Timestamp time.Time             `json:"timestamp"`
	State     *store.PlayerStateData `json:"state,omitempty"`
}

// handleStateStream accepts a websocket connection and pushes every
// subsequent PlayerStateData snapshot to it until the client
// disconnects or the server shuts down.
func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Error().Err(err).Msg("state stream websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	sub := s.addSubscriber()
	defer s.removeSubscriber(sub)

	ctx := r.Context()

	if err := sendSnapshot(ctx, conn, "initial_state", s.eng.GetState()); err != nil {
		s.logger.Debug().Err(err).Msg("failed to send initial state over state stream")
		return
	}

	pingTicker := time.NewTicker(15 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return

		case <-pingTicker.C:
			if err := conn.Ping(ctx); err != nil {
				s.logger.Debug().Err(err).Msg("state stream ping failed")
				conn.Close(ws.StatusInternalError, "ping failed")
				return
			}

		case next, ok := <-sub.ch:
			if !ok {
				conn.Close(ws.StatusNormalClosure, "server closed")
				return
			}
			if err := sendSnapshot(ctx, conn, "state_update", next); err != nil {
				s.logger.Debug().Err(err).Msg("state stream send failed")
				conn.Close(ws.StatusInternalError, "send failed")
				return
			}
		}
	}
}

func sendSnapshot(ctx context.Context, conn *ws.Conn, kind string, state store.PlayerStateData) error {
	msg := streamMessage{Type: kind, Timestamp: time.Now(), State: &state}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, data)
}
