package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"techassist/server/internal/model"
	"techassist/server/internal/ticket"
)

func (s *Server) handleCreateTicket(c *gin.Context) {
	var in ticket.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON invalide"})
		return
	}

	tk, events, err := s.ticketSvc.Create(c.Request.Context(), currentUser(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.dispatcher.Dispatch(events...)
	c.JSON(http.StatusCreated, tk)
}

// handleListTickets shows each role its own slice: employees their
// created tickets, technicians their assigned ones plus the open pool,
// admins everything open.
func (s *Server) handleListTickets(c *gin.Context) {
	ctx := c.Request.Context()
	actor := currentUser(c)

	switch actor.Role {
	case model.RoleEmploye:
		tickets, err := s.tickets.ListByCreator(ctx, actor.ID)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, tickets)

	case model.RoleTechnicien:
		assigned, err := s.tickets.ListByAssignee(ctx, actor.ID)
		if err != nil {
			s.fail(c, err)
			return
		}
		open, err := s.tickets.ListOpen(ctx)
		if err != nil {
			s.fail(c, err)
			return
		}
		pool := make([]model.Ticket, 0, len(open))
		for _, t := range open {
			if t.AssigneID == "" {
				pool = append(pool, t)
			}
		}
		c.JSON(http.StatusOK, gin.H{"assignes": assigned, "disponibles": pool})

	default:
		tickets, err := s.tickets.ListOpen(ctx)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, tickets)
	}
}

// ownTicket lets the creator, the assignee and support staff see a
// ticket.
func ownTicket(actor model.User, tk *model.Ticket) error {
	if actor.Role == model.RoleEmploye && tk.CreateurID != actor.ID {
		return errAccessDenied
	}
	return nil
}

func (s *Server) handleGetTicket(c *gin.Context) {
	tk, err := s.tickets.GetTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := ownTicket(currentUser(c), tk); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tk)
}

func (s *Server) handleAssignTicket(c *gin.Context) {
	tk, events, err := s.ticketSvc.AssignToSelf(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.dispatcher.Dispatch(events...)
	c.JSON(http.StatusOK, tk)
}

type statusRequest struct {
	Statut model.TicketStatus `json:"statut"`
}

func (s *Server) handleTicketStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON invalide"})
		return
	}

	tk, events, err := s.ticketSvc.ChangeStatus(c.Request.Context(), c.Param("id"), currentUser(c), req.Statut)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.dispatcher.Dispatch(events...)
	c.JSON(http.StatusOK, tk)
}

func (s *Server) handleListComments(c *gin.Context) {
	ctx := c.Request.Context()
	tk, err := s.tickets.GetTicket(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := ownTicket(currentUser(c), tk); err != nil {
		s.fail(c, err)
		return
	}

	comments, err := s.tickets.ListComments(ctx, tk.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

type commentRequest struct {
	Contenu string `json:"contenu"`
}

func (s *Server) handleAddComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON invalide"})
		return
	}

	ctx := c.Request.Context()
	actor := currentUser(c)
	tk, err := s.tickets.GetTicket(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := ownTicket(actor, tk); err != nil {
		s.fail(c, err)
		return
	}

	comment, events, err := s.ticketSvc.AddComment(ctx, tk.ID, actor, req.Contenu)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.dispatcher.Dispatch(events...)
	c.JSON(http.StatusCreated, comment)
}

func (s *Server) handleGuidanceStart(c *gin.Context) {
	comment, events, err := s.guidance.Start(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.dispatcher.Dispatch(events...)
	c.JSON(http.StatusCreated, comment)
}

type instructionRequest struct {
	Instruction          string `json:"instruction"`
	NumeroEtape          int    `json:"numero_etape"`
	AttendreConfirmation *bool  `json:"attendre_confirmation"`
}

func (s *Server) handleGuidanceInstruction(c *gin.Context) {
	var req instructionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON invalide"})
		return
	}
	attendre := req.AttendreConfirmation == nil || *req.AttendreConfirmation

	comment, events, err := s.guidance.SendInstruction(
		c.Request.Context(), c.Param("id"), currentUser(c),
		req.Instruction, req.NumeroEtape, attendre)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.dispatcher.Dispatch(events...)
	c.JSON(http.StatusCreated, comment)
}

type endGuidanceRequest struct {
	Message string `json:"message"`
	Resolu  bool   `json:"resolu"`
}

func (s *Server) handleGuidanceEnd(c *gin.Context) {
	var req endGuidanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON invalide"})
		return
	}

	comment, events, err := s.guidance.End(
		c.Request.Context(), c.Param("id"), currentUser(c), req.Message, req.Resolu)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.dispatcher.Dispatch(events...)
	c.JSON(http.StatusCreated, comment)
}

// handleConfirmInstruction returns the refreshed instruction, not a
// confirmation comment; the realtime path is the one that appends those.
func (s *Server) handleConfirmInstruction(c *gin.Context) {
	updated, events, err := s.guidance.Confirm(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.dispatcher.Dispatch(events...)
	c.JSON(http.StatusOK, updated)
}
