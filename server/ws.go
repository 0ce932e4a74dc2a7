package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/evermind-ai/evermind/core"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect cross-origin during local development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsInbound struct {
	Message string `json:"message"`
}

type wsOutbound struct {
	Reply   string      `json:"reply"`
	History []core.Turn `json:"history"`
}

// handleWS runs a chat loop over a websocket connection. The per-turn
// pipeline is identical to POST /api/chat; the connection additionally
// carries the display history, which lives only as long as the socket.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ownerID := ownerFrom(r.Context())
	var history []core.Turn

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read failed", "owner", ownerID, "error", err)
			}
			return
		}
		if in.Message == "" {
			continue
		}

		reply, err := s.handler.Handle(r.Context(), ownerID, in.Message)
		if err != nil {
			s.logger.Error("websocket turn failed", "owner", ownerID, "error", err)
			reply = "Something went wrong handling that message."
		}

		history = append(history, core.UserTurn(in.Message), core.AssistantTurn(reply))
		if err := conn.WriteJSON(wsOutbound{Reply: reply, History: history}); err != nil {
			s.logger.Warn("websocket write failed", "owner", ownerID, "error", err)
			return
		}
	}
}
