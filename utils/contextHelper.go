package utils

import (
	"context"

	"github.com/svcops/spareparts_backend/appctx"
)

// Alias the shared context key type so call sites stay short.
type contextKey = appctx.ContextKey

var (
	ContextKeyToken             = appctx.ContextKeyToken
	ContextKeyUsername          = appctx.ContextKeyUsername
	ContextKeyUserId            = appctx.ContextKeyUserId
	ContextKeyUserName          = appctx.ContextKeyUserName
	ContextKeyCorrelationId     = appctx.ContextKeyCorrelationId
	ContextKeyActorLocationType = appctx.ContextKeyActorLocationType
	ContextKeyActorLocationId   = appctx.ContextKeyActorLocationId
)

func GetTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyToken)
}

func GetUsernameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUsername)
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetActorLocationFromContext(ctx context.Context) (string, int, bool) {
	locType, okType := appctx.GetString(ctx, ContextKeyActorLocationType)
	locId, okId := appctx.GetInt(ctx, ContextKeyActorLocationId)
	return locType, locId, okType && okId
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetUsernameInContext(ctx context.Context, username string) context.Context {
	return appctx.Set(ctx, ContextKeyUsername, username)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, userName)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetActorLocationInContext(ctx context.Context, locType string, locId int) context.Context {
	ctx = appctx.Set(ctx, ContextKeyActorLocationType, locType)
	return appctx.Set(ctx, ContextKeyActorLocationId, locId)
}
