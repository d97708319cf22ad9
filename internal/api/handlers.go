package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roach88/okra/internal/auth"
	"github.com/roach88/okra/internal/ledger"
)

// maxPage caps every page size a client may request.
const maxPage = 1000

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	if s.limiter != nil && !s.limiter.allow(c.ClientIP()) {
		s.metrics.logins.WithLabelValues("throttled").Inc()
		abortWithError(c, errThrottled)
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	tok, err := s.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.metrics.logins.WithLabelValues(loginResult(err)).Inc()
		abortWithError(c, err)
		return
	}

	sealed, err := s.sealer.Seal(tok.String())
	if err != nil {
		s.metrics.logins.WithLabelValues("error").Inc()
		abortWithError(c, err)
		return
	}

	s.metrics.logins.WithLabelValues("ok").Inc()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AuthCookie, sealed, int(s.auth.Lifetime().Seconds()), "/", "", c.Request.TLS != nil, true)
	c.String(http.StatusOK, "hello %s", req.Username)
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, auth.ErrUnknownUser):
		return "unknown_user"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return "error"
	}
}

func (s *Server) logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AuthCookie, "", -1, "/", "", c.Request.TLS != nil, true)
	c.String(http.StatusOK, "OK")
}

// getActions lists actions as [[id, name], ...] after the given id.
func (s *Server) getActions(c *gin.Context) {
	limit, err := pageParam(c, "max")
	if err != nil {
		abortWithError(c, err)
		return
	}
	last, err := int64Param(c, "last")
	if err != nil {
		abortWithError(c, err)
		return
	}

	actions, err := ledgerFrom(c).SearchActions(c.Request.Context(), "", ledger.ActionID(last), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}

	rows := make([][2]any, len(actions))
	for i, a := range actions {
		rows[i] = [2]any{a.ID, a.Name}
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) getActionName(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		abortWithError(c, err)
		return
	}

	name, err := ledgerFrom(c).ActionName(c.Request.Context(), ledger.ActionID(id))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.String(http.StatusOK, name)
}

type createActionRequest struct {
	Name   string           `json:"name" binding:"required"`
	Parent *ledger.ActionID `json:"parent"`
}

// createAction interns a name and optionally links it under a parent.
func (s *Server) createAction(c *gin.Context) {
	var req createActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	l := ledgerFrom(c)
	ctx := c.Request.Context()
	if req.Parent != nil {
		action, err := l.CreateChildAction(ctx, req.Name, *req.Parent)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, action)
		return
	}

	id, err := l.CreateAction(ctx, req.Name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	// Echo the stored, normalised name.
	name, err := l.ActionName(ctx, id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger.Action{ID: id, Name: name})
}

func (s *Server) getChildActions(c *gin.Context) {
	parent, err := int64Param(c, "parent")
	if err != nil {
		abortWithError(c, err)
		return
	}
	last, err := int64Param(c, "last")
	if err != nil {
		abortWithError(c, err)
		return
	}
	limit, err := pageParam(c, "max")
	if err != nil {
		abortWithError(c, err)
		return
	}

	children, err := ledgerFrom(c).ChildActions(c.Request.Context(), ledger.ActionID(parent), ledger.ActionID(last), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, children)
}

func (s *Server) logActivity(c *gin.Context) {
	action, err := int64Param(c, "action")
	if err != nil {
		abortWithError(c, err)
		return
	}

	activity, err := ledgerFrom(c).LogActivity(c.Request.Context(), ledger.ActionID(action))
	if err != nil {
		abortWithError(c, err)
		return
	}

	s.metrics.activity.Inc()
	s.logger.Debug("activity logged",
		zap.String("user", Identity(c)),
		zap.Int64("activity", int64(activity.ID)),
		zap.Int64("action", action))
	c.String(http.StatusOK, strconv.FormatInt(int64(activity.ID), 10))
}

func (s *Server) notateActivity(c *gin.Context) {
	activity, err := int64Param(c, "activity")
	if err != nil {
		abortWithError(c, err)
		return
	}

	note, err := ledgerFrom(c).AnnotateActivity(c.Request.Context(), ledger.ActivityID(activity), c.Param("notes"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.String(http.StatusOK, strconv.FormatInt(int64(note), 10))
}

// activityRange lists activities with from <= at < to, oldest first.
func (s *Server) activityRange(c *gin.Context) {
	from, err := int64Param(c, "from")
	if err != nil {
		abortWithError(c, err)
		return
	}
	to, err := int64Param(c, "to")
	if err != nil {
		abortWithError(c, err)
		return
	}
	limit, err := pageParam(c, "max")
	if err != nil {
		abortWithError(c, err)
		return
	}

	activities, err := ledgerFrom(c).ActivitiesBetween(c.Request.Context(), from, to, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, activities)
}

// getNotations lists an activity's notes as [[id, text], ...].
func (s *Server) getNotations(c *gin.Context) {
	activity, err := int64Param(c, "activity")
	if err != nil {
		abortWithError(c, err)
		return
	}
	last, err := int64Param(c, "last")
	if err != nil {
		abortWithError(c, err)
		return
	}
	limit, err := pageParam(c, "max")
	if err != nil {
		abortWithError(c, err)
		return
	}

	notes, err := ledgerFrom(c).NotesOf(c.Request.Context(), ledger.ActivityID(activity), ledger.NoteID(last), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}

	rows := make([][2]any, len(notes))
	for i, n := range notes {
		rows[i] = [2]any{n.ID, n.Text}
	}
	c.JSON(http.StatusOK, rows)
}

func int64Param(c *gin.Context, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return v, nil
}

func pageParam(c *gin.Context, name string) (int, error) {
	v, err := int64Param(c, name)
	if err != nil {
		return 0, err
	}
	if v < 1 || v > maxPage {
		return 0, fmt.Errorf("%w: %s must be between 1 and %d", errBadRequest, name, maxPage)
	}
	return int(v), nil
}
