// Package rest exposes registration, login, sending and history reads over
// HTTP with JSON bodies.
package rest

import (
	"dm-lab/contract"
	"dm-lab/domain"
	"dm-lab/errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type Handler struct {
	log         *slog.Logger
	authService contract.IAuthService
	coordinator contract.IDeliveryCoordinator
	history     contract.IHistoryService
}

func NewHandler(
	log *slog.Logger,
	authService contract.IAuthService,
	coordinator contract.IDeliveryCoordinator,
	history contract.IHistoryService,
) *Handler {
	return &Handler{log: log, authService: authService, coordinator: coordinator, history: history}
}

func NewRouter(log *slog.Logger, handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log))

	r.POST("/register", handler.Register)
	r.POST("/login", handler.Login)

	authorized := r.Group("/", Authenticate(handler.authService))
	authorized.POST("/message", handler.PostMessage)
	authorized.GET("/history/:userA/:userB", handler.GetHistory)
	authorized.GET("/partners/:user", handler.GetPartners)
	return r
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// postMessageRequest.Sender may be omitted, it defaults to the caller.
type postMessageRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient" binding:"required"`
	Content   string `json:"content" binding:"required"`
}

type MessageResponse struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Content   string    `json:"content"`
	Sequence  uint64    `json:"sequence"`
	CreatedAt time.Time `json:"createdAt"`
}

type HistoryResponse struct {
	Messages []MessageResponse `json:"messages"`
}

type PartnersResponse struct {
	Partners []string `json:"partners"`
}

func (h *Handler) Register(c *gin.Context) {
	var request credentialsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := h.authService.Register(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tokenResponse{Token: token})
}

func (h *Handler) Login(c *gin.Context) {
	var request credentialsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := h.authService.Login(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{Token: token})
}

func (h *Handler) PostMessage(c *gin.Context) {
	var request postMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	caller := identity(c)
	if request.Sender != "" && request.Sender != caller {
		h.fail(c, errors.ErrForbidden)
		return
	}
	message, err := h.coordinator.Send(c.Request.Context(), domain.SendMessageCommand{
		Sender:    caller,
		Recipient: request.Recipient,
		Content:   request.Content,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMessageResponse(message))
}

func (h *Handler) GetHistory(c *gin.Context) {
	messages, err := h.history.GetHistory(c.Request.Context(), domain.GetHistoryCommand{
		Caller: identity(c),
		UserA:  c.Param("userA"),
		UserB:  c.Param("userB"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{Messages: lo.Map(messages, func(message domain.Message, _ int) MessageResponse {
		return toMessageResponse(message)
	})})
}

func (h *Handler) GetPartners(c *gin.Context) {
	partners, err := h.history.GetPartners(c.Request.Context(), domain.GetPartnersCommand{
		Caller: identity(c),
		User:   c.Param("user"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if partners == nil {
		partners = []domain.Identity{}
	}
	c.JSON(http.StatusOK, PartnersResponse{Partners: partners})
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := errors.ToHTTPStatus(err)
	if code >= http.StatusInternalServerError {
		h.log.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func toMessageResponse(message domain.Message) MessageResponse {
	return MessageResponse{
		ID:        message.ID.String(),
		Sender:    message.Sender,
		Recipient: message.Recipient,
		Content:   message.Content,
		Sequence:  message.Sequence,
		CreatedAt: message.CreatedAt,
	}
}
