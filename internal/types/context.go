package types

import (
	"context"
	"fmt"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID ContextKey = "ctx_request_id"
	CtxClientID  ContextKey = "ctx_client_id"
	CtxUserID    ContextKey = "ctx_user_id"

	// Default values
	DefaultClientID = "MTC"
	DefaultUserID   = "00000000-0000-0000-0000-000000000000"
)

func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(CtxUserID).(string); ok {
		return userID
	}
	return ""
}

func GetClientID(ctx context.Context) string {
	if clientID, ok := ctx.Value(CtxClientID).(string); ok {
		return clientID
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

// SetClientID sets the client ID in the context
func SetClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, CtxClientID, clientID)
}

// SetUserID sets the user ID in the context
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxUserID, userID)
}

// ValidateClientContext validates that the required client context is present
func ValidateClientContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context is nil")
	}

	clientID := GetClientID(ctx)
	if clientID == "" {
		return fmt.Errorf("no client context found in context")
	}

	return nil
}
