package clog

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"
)

// Level is the severity a request outcome is logged at.
type Level int

const (
	LevelDebug Level = iota + 1
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	}
	return slog.LevelError
}

// Log writes msg at l using the default logger.
func (l Level) Log(ctx context.Context, msg string) {
	slog.Log(ctx, l.slogLevel(), msg)
}

// HTTPStatusToLevel keeps client mistakes (conflicts, stale versions,
// unknown ids) at warn and reserves error for the server side.
func HTTPStatusToLevel(status int) Level {
	switch {
	case status < 100:
		return LevelError
	case status < 400, status == 499:
		return LevelInfo
	case status < 500:
		return LevelWarn
	}
	return LevelError
}

// Codes a caller can provoke on its own, such as a duplicate assignment or
// an invalid transition, stay at info. Unlisted codes log at error.
var connectCodeLevels = map[connect.Code]Level{
	connect.CodeCanceled:           LevelInfo,
	connect.CodeInvalidArgument:    LevelInfo,
	connect.CodeDeadlineExceeded:   LevelInfo,
	connect.CodeNotFound:           LevelInfo,
	connect.CodeAlreadyExists:      LevelInfo,
	connect.CodePermissionDenied:   LevelInfo,
	connect.CodeFailedPrecondition: LevelInfo,
	connect.CodeAborted:            LevelInfo,
	connect.CodeOutOfRange:         LevelInfo,
	connect.CodeUnauthenticated:    LevelInfo,
}

func ConnectCodeToLevel(code connect.Code) Level {
	if l, ok := connectCodeLevels[code]; ok {
		return l
	}
	return LevelError
}
