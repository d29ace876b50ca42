package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	commonauth "chat_server/server/common/auth"
	"chat_server/server/common/middleware"
	"chat_server/server/realtime/domain"
	"chat_server/server/realtime/repository"
	"chat_server/server/realtime/service"
)

type Handler struct {
	messaging *service.MessagingService
	calls     *service.CallCoordinator
	friends   *service.FriendService
	dispatch  *service.Dispatcher
	ws        *service.RealtimeService
	users     *repository.UserRepository
	auth      *commonauth.Service
}

func NewHandler(messaging *service.MessagingService, calls *service.CallCoordinator, friends *service.FriendService, dispatch *service.Dispatcher, ws *service.RealtimeService, users *repository.UserRepository, jwtSecret string, jwtTTLMinutes int) *Handler {
	auth := commonauth.NewService(jwtSecret, jwtTTLMinutes)
	return &Handler{
		messaging: messaging,
		calls:     calls,
		friends:   friends,
		dispatch:  dispatch,
		ws:        ws,
		users:     users,
		auth:      auth,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, NewHealthResponse("ok")) })
	r.GET("/ws", h.handleWS)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(h.auth))
	{
		api.POST("/messages", h.sendDirectMessage)
		api.POST("/groups/:id/messages", h.sendGroupMessage)
		api.POST("/messages/:id/reactions", h.react)

		api.POST("/calls", h.initiateCall)
		api.POST("/calls/:id/answer", h.answerCall)
		api.POST("/calls/:id/decline", h.declineCall)
		api.POST("/calls/:id/end", h.endCall)

		api.GET("/presence/:userId", h.getPresence)

		// Pushes a notification to an arbitrary user, so only backend
		// callers get through.
		api.POST("/notifications", middleware.RequireRoles("admin", "service"), h.notify)

		api.POST("/friends/requests", h.sendFriendRequest)
		api.POST("/friends/requests/:id/accept", h.acceptFriendRequest)
		api.DELETE("/friends/:id", h.removeFriend)
	}
}

func (h *Handler) handleWS(c *gin.Context) {
	token, ok := wsAccessToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("bearer token is required"))
		return
	}
	userID, _, err := h.auth.ParseAuthContext(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("invalid token"))
		return
	}
	c.Set("auth_access_token", token)
	c.Set("auth_user_id", userID)
	h.ws.HandleWS(c)
}

func wsAccessToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token != "" {
			return token, true
		}
	}
	token := strings.TrimSpace(c.Query("access_token"))
	if token == "" {
		token = strings.TrimSpace(c.Query("token"))
	}
	if token == "" {
		return "", false
	}
	return token, true
}

type sendDirectMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
}

func (h *Handler) sendDirectMessage(c *gin.Context) {
	var req sendDirectMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request body"))
		return
	}
	message, err := h.messaging.SendDirect(c.Request.Context(), c.GetString("auth_user_id"), req.ReceiverID, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

type sendGroupMessageRequest struct {
	Body string `json:"body"`
}

func (h *Handler) sendGroupMessage(c *gin.Context) {
	var req sendGroupMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request body"))
		return
	}
	message, err := h.messaging.SendGroup(c.Request.Context(), c.GetString("auth_user_id"), c.Param("id"), req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

type reactionRequest struct {
	Emoji   string `json:"emoji"`
	Removed bool   `json:"removed"`
}

func (h *Handler) react(c *gin.Context) {
	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request body"))
		return
	}
	err := h.messaging.React(c.Request.Context(), c.GetString("auth_user_id"), c.Param("id"), req.Emoji, req.Removed)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewOKResponse())
}

type initiateCallRequest struct {
	ReceiverID *string `json:"receiver_id"`
	GroupID    *string `json:"group_id"`
	CallType   string  `json:"call_type"`
}

func (h *Handler) initiateCall(c *gin.Context) {
	var req initiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request body"))
		return
	}
	session, err := h.calls.Initiate(c.Request.Context(), c.GetString("auth_user_id"), req.ReceiverID, req.GroupID, domain.CallType(req.CallType))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *Handler) answerCall(c *gin.Context) {
	session, err := h.calls.Answer(c.Request.Context(), c.Param("id"), c.GetString("auth_user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type declineCallRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) declineCall(c *gin.Context) {
	var req declineCallRequest
	_ = c.ShouldBindJSON(&req)
	session, err := h.calls.Decline(c.Request.Context(), c.Param("id"), c.GetString("auth_user_id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) endCall(c *gin.Context) {
	session, err := h.calls.End(c.Request.Context(), c.Param("id"), c.GetString("auth_user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) getPresence(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, domain.PresenceRecord{UserID: user.ID, IsOnline: user.IsOnline, LastSeen: user.LastSeen})
}

type notifyRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

func (h *Handler) notify(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse("user_id is required"))
		return
	}
	h.dispatch.Notify(c.Request.Context(), domain.NotificationEvent{UserID: req.UserID, Title: req.Title, Body: req.Body})
	c.JSON(http.StatusAccepted, NewOKResponse())
}

type friendRequestRequest struct {
	AddresseeID string `json:"addressee_id"`
}

func (h *Handler) sendFriendRequest(c *gin.Context) {
	var req friendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request body"))
		return
	}
	friendship, err := h.friends.SendRequest(c.Request.Context(), c.GetString("auth_user_id"), req.AddresseeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, friendship)
}

func (h *Handler) acceptFriendRequest(c *gin.Context) {
	friendship, err := h.friends.AcceptRequest(c.Request.Context(), c.Param("id"), c.GetString("auth_user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, friendship)
}

func (h *Handler) removeFriend(c *gin.Context) {
	err := h.friends.RemoveFriend(c.Request.Context(), c.GetString("auth_user_id"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewOKResponse())
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound), errors.Is(err, repository.ErrUserNotFound):
		c.JSON(http.StatusNotFound, NewErrorResponse(err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(err.Error()))
	}
}
