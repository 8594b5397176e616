package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"techassist/server/internal/guidance"
	"techassist/server/internal/model"
	"techassist/server/internal/notify"
)

// handleTicketSocket is the per-ticket chat room. Frames go through the
// guidance service, which classifies them against the session state;
// everything it accepts is broadcast to the room through the dispatcher.
func (s *Server) handleTicketSocket(c *gin.Context) {
	ctx := c.Request.Context()
	actor := currentUser(c)
	ticketID := c.Param("id")

	tk, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := ownTicket(actor, tk); err != nil {
		s.fail(c, err)
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := s.hub.Register(ws)
	topic := notify.TicketTopic(ticketID)
	s.hub.Join(conn, topic)
	defer func() {
		s.hub.Leave(conn, topic)
		conn.Close()
	}()

	s.log.Info("ticket socket opened",
		zap.String("ticket_id", ticketID),
		zap.String("user_id", actor.ID))

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var in guidance.Incoming
		if err := json.Unmarshal(data, &in); err != nil {
			// Malformed frames are dropped, like empty ones.
			continue
		}

		_, events, err := s.guidance.PostMessage(ctx, ticketID, actor, in)
		if err != nil {
			if errors.Is(err, guidance.ErrGuidanceLocked) {
				_ = conn.Send(gin.H{"type": "error", "message": err.Error()})
				continue
			}
			s.log.Warn("ticket socket frame failed",
				zap.String("ticket_id", ticketID),
				zap.Error(err))
			continue
		}
		s.dispatcher.Dispatch(events...)
	}
}

// handleNotificationSocket is the global feed for support staff.
func (s *Server) handleNotificationSocket(c *gin.Context) {
	actor := currentUser(c)
	if actor.Role != model.RoleTechnicien && actor.Role != model.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Accès non autorisé"})
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := s.hub.Register(ws)
	s.hub.Join(conn, notify.TopicTechnicians)
	defer func() {
		s.hub.Leave(conn, notify.TopicTechnicians)
		conn.Close()
	}()

	s.log.Info("notification socket opened", zap.String("user_id", actor.ID))

	// This feed is broadcast-only; drain the read side to detect the
	// close.
	for {
		if _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
