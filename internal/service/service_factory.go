package service

import (
	"time"

	"chat-assistant/internal/conversation"

	"go.uber.org/zap"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	controller    *conversation.Controller
	store         SessionStore
	validator     conversation.EmailValidator
	sweepInterval time.Duration
	logger        *zap.Logger
	chatService   *ChatService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
	controller *conversation.Controller,
	store SessionStore,
	validator conversation.EmailValidator,
	sweepInterval time.Duration,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		controller:    controller,
		store:         store,
		validator:     validator,
		sweepInterval: sweepInterval,
		logger:        logger,
	}
}

// ChatService returns the chat service instance (singleton). The idle
// sweeper starts with it.
func (f *ServiceFactory) ChatService() *ChatService {
	if f.chatService == nil {
		f.chatService = NewChatService(
			f.controller,
			f.store,
			f.validator,
			f.logger,
		)
		f.chatService.StartSweeper(f.sweepInterval)
	}
	return f.chatService
}

// Cleanup cleans up all services
func (f *ServiceFactory) Cleanup() {
	if f.chatService != nil {
		f.chatService.Stop()
	}
}
