package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"chat-assistant/internal/conversation"
	"chat-assistant/internal/service"
	"chat-assistant/internal/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

var ErrInvalidBody = errors.New("invalid request body")

// ChatHandler handles HTTP requests for chat sessions
type ChatHandler struct {
	chatService *service.ChatService
	logger      *zap.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *service.ChatService, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// MessageRequest carries one line of visitor input.
type MessageRequest struct {
	Text string `json:"text"`
}

type SelectionRequest struct {
	Topic string `json:"topic"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

// successResponse creates a successful response
func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

// errorResponse creates an error response
func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// RegisterRoutes registers all chat routes
func (h *ChatHandler) RegisterRoutes(router chi.Router) {
	router.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/{sessionID}", h.GetSession)
		r.Post("/{sessionID}/messages", h.SendMessage)
		r.Post("/{sessionID}/otp/resend", h.ResendCode)
		r.Post("/{sessionID}/selection", h.SelectTopic)
		r.Post("/{sessionID}/reset", h.ResetSession)
		r.Post("/{sessionID}/end", h.EndSession)
		r.Get("/{sessionID}/export", h.ExportSession)
	})
	router.Post("/email/validate", h.ValidateEmail)
}

// CreateSession starts a conversation and returns the greeting.
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	view, err := h.chatService.Create(r.Context())
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to create session")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(view, "Session created"))
	h.logger.Debug("Session created via HTTP",
		util.String("session_id", view.ID),
		util.Duration("duration", time.Since(startTime)),
	)
}

func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.chatService.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to get session")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(view, ""))
}

// SendMessage routes the text by the session's current phase.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	sessionID := chi.URLParam(r, "sessionID")

	var req MessageRequest
	if err := h.decode(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	view, err := h.chatService.SendMessage(r.Context(), sessionID, req.Text)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Message not accepted")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(view, ""))
	h.logger.Debug("Message handled via HTTP",
		util.String("session_id", sessionID),
		util.String("phase", string(view.Phase)),
		util.Duration("duration", time.Since(startTime)),
	)
}

func (h *ChatHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	view, err := h.chatService.ResendCode(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to resend code")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(view, ""))
}

func (h *ChatHandler) SelectTopic(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	view, err := h.chatService.SelectTopic(r.Context(), chi.URLParam(r, "sessionID"), req.Topic)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to select topic")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(view, ""))
}

// ResetSession also serves the "clear chat" action.
func (h *ChatHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.chatService.Reset(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to reset session")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(view, "Conversation restarted"))
}

func (h *ChatHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.chatService.End(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to end session")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(view, "Conversation ended"))
}

// ExportSession returns the chat log as a downloadable JSON document.
func (h *ChatHandler) ExportSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	export, err := h.chatService.Export(r.Context(), sessionID)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to export session")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="chat-`+export.Timestamp.Format("20060102-150405")+`.json"`)
	h.respondWithJSON(w, http.StatusOK, export)
}

// ValidateEmail reports format, domain and corporate checks for one address.
func (h *ChatHandler) ValidateEmail(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := h.decode(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	res, err := h.chatService.ValidateEmail(r.Context(), req.Email)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to validate email")
		return
	}
	message := "Email is a valid corporate address"
	if !res.IsValid {
		message = "Email validation failed"
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(res, message))
}

func (h *ChatHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return ErrInvalidBody
	}
	return nil
}

// respondWithJSON sends a JSON response
func (h *ChatHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h *ChatHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	if statusCode >= http.StatusInternalServerError {
		h.logger.Error("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
			util.String("message", message),
		)
	} else {
		h.logger.Warn("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
			util.String("message", message),
		)
	}
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *ChatHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, conversation.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversation.ErrEmptyInput),
		errors.Is(err, conversation.ErrInvalidTopic),
		errors.Is(err, ErrInvalidBody):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrWrongPhase),
		errors.Is(err, conversation.ErrSessionEnded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
