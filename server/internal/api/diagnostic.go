package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"techassist/server/internal/diagnostic"
	"techassist/server/internal/stepwise"
)

func (s *Server) handleListCategories(c *gin.Context) {
	cats, err := s.catalog.ListCategories(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

type startSessionRequest struct {
	CategorieID  string `json:"categorie_id"`
	EquipementID string `json:"equipement_id"`
}

// handleStartSession opens an adaptive session. Start already runs the
// probe batch, so the stored records are read back and returned with the
// session.
func (s *Server) handleStartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON invalide"})
		return
	}
	if req.CategorieID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "La catégorie est requise"})
		return
	}

	actor := currentUser(c)
	sess, err := s.engine.Start(c.Request.Context(), actor.ID, req.CategorieID, req.EquipementID)
	if err != nil {
		s.fail(c, err)
		return
	}
	records, err := s.engine.Records(c.Request.Context(), sess.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session":     sess,
		"diagnostics": records,
	})
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, err := s.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := ownSession(currentUser(c), sess); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// handleNextQuestion walks the decision tree. When the tree is
// exhausted the session finalizes and the closing payload replaces the
// question.
func (s *Server) handleNextQuestion(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	sess, err := s.engine.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := ownSession(currentUser(c), sess); err != nil {
		s.fail(c, err)
		return
	}

	q, done, err := s.engine.Next(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !done {
		c.JSON(http.StatusOK, gin.H{"question": q, "terminee": false})
		return
	}

	result, events, err := s.engine.Finalize(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.dispatcher.Dispatch(events...)
	c.JSON(http.StatusOK, gin.H{"terminee": true, "resultat": result})
}

type submitAnswerRequest struct {
	QuestionID    string   `json:"question_id"`
	ChoixIDs      []string `json:"choix_ids"`
	TexteLibre    string   `json:"texte_libre"`
	TempsPasse    int      `json:"temps_passe"`
	EstIncertaine bool     `json:"est_incertaine"`
	Commentaire   string   `json:"commentaire"`
}

func (s *Server) handleSubmitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON invalide"})
		return
	}
	if req.QuestionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "La question est requise"})
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	sess, err := s.engine.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := ownSession(currentUser(c), sess); err != nil {
		s.fail(c, err)
		return
	}

	sess, err = s.engine.SubmitAnswer(ctx, id, diagnostic.AnswerInput{
		QuestionID:    req.QuestionID,
		ChoixIDs:      req.ChoixIDs,
		TexteLibre:    req.TexteLibre,
		TempsPasse:    req.TempsPasse,
		EstIncertaine: req.EstIncertaine,
		Commentaire:   req.Commentaire,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// handleRunProbes re-runs the probe batch, replacing the session's
// previous records.
func (s *Server) handleRunProbes(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	sess, err := s.engine.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := ownSession(currentUser(c), sess); err != nil {
		s.fail(c, err)
		return
	}

	records, err := s.engine.RunProbes(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"diagnostics": records})
}

func (s *Server) handlePauseSession(c *gin.Context)   { s.sessionTransition(c, "pause") }
func (s *Server) handleResumeSession(c *gin.Context)  { s.sessionTransition(c, "resume") }
func (s *Server) handleAbandonSession(c *gin.Context) { s.sessionTransition(c, "abandon") }

func (s *Server) sessionTransition(c *gin.Context, kind string) {
	ctx := c.Request.Context()
	id := c.Param("id")
	sess, err := s.engine.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := ownSession(currentUser(c), sess); err != nil {
		s.fail(c, err)
		return
	}

	switch kind {
	case "pause":
		sess, err = s.engine.Pause(ctx, id)
	case "resume":
		sess, err = s.engine.Resume(ctx, id)
	case "abandon":
		sess, err = s.engine.Abandon(ctx, id)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleSessionStats(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	sess, err := s.engine.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := ownSession(currentUser(c), sess); err != nil {
		s.fail(c, err)
		return
	}

	stats, err := s.engine.Stats(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleSessionTicket converts a completed session into a ticket on
// demand. Repeating the call returns the existing ticket.
func (s *Server) handleSessionTicket(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	sess, err := s.engine.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := ownSession(currentUser(c), sess); err != nil {
		s.fail(c, err)
		return
	}

	tk, events, err := s.engine.ConvertToTicket(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.dispatcher.Dispatch(events...)
	c.JSON(http.StatusCreated, tk)
}

func (s *Server) handleStartStepwise(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON invalide"})
		return
	}
	if req.CategorieID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "La catégorie est requise"})
		return
	}

	actor := currentUser(c)
	sess, err := s.stepwise.Start(c.Request.Context(), actor.ID, req.CategorieID, req.EquipementID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) handleStepwisePlan(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	sess, err := s.engine.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := ownSession(currentUser(c), sess); err != nil {
		s.fail(c, err)
		return
	}

	plan, err := s.stepwise.Plan(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (s *Server) handleStepwiseExecute(c *gin.Context) {
	var input stepwise.ExecuteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON invalide"})
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	sess, err := s.engine.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := ownSession(currentUser(c), sess); err != nil {
		s.fail(c, err)
		return
	}

	result, events, err := s.stepwise.Execute(ctx, id, input)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.dispatcher.Dispatch(events...)
	c.JSON(http.StatusOK, result)
}

type navigateRequest struct {
	Direction int `json:"direction"`
}

func (s *Server) handleStepwiseNavigate(c *gin.Context) {
	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON invalide"})
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	sess, err := s.engine.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := ownSession(currentUser(c), sess); err != nil {
		s.fail(c, err)
		return
	}

	plan, err := s.stepwise.Navigate(ctx, id, req.Direction)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}
