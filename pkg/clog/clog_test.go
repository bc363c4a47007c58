package clog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAttributes(t *testing.T) {
	// no-op without ContextWithSlog
	AddAttribute(context.Background(), "ignored", 1)
	assert.Nil(t, GetAttributes(context.Background()))

	ctx := ContextWithSlog(context.Background())
	AddAssignment(ctx, "a1")
	AddServiceOrder(ctx, "so-1")
	AddAttributes(ctx, map[string]any{
		"http": map[string]any{"method": "POST"},
	})
	AddAttributes(ctx, map[string]any{
		"http": map[string]any{"status": 200},
	})

	err := errors.New("boom")
	AddError(ctx, err)
	AddStack(ctx, "goroutine 1")

	attrs := GetAttributes(ctx)
	assert.Equal(t, map[string]any{
		AssignmentIDKey:   "a1",
		ServiceOrderIDKey: "so-1",
		"http":            map[string]any{"method": "POST", "status": 200},
		ErrorAttributeKey: err,
		StackAttributeKey: "goroutine 1",
	}, attrs)

	// the snapshot is detached from the request
	attrs[AssignmentIDKey] = "changed"
	assert.Equal(t, "a1", GetAttributes(ctx)[AssignmentIDKey])
}

func TestAttributesHandler_SortedKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewAttributesHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := ContextWithSlog(context.Background())
	AddServiceOrder(ctx, "so-1")
	AddAssignment(ctx, "a1")
	logger.InfoContext(ctx, "created")

	out := buf.String()
	require.Contains(t, out, `"assignment_id":"a1"`)
	assert.Less(t, strings.Index(out, `"assignment_id":"a1"`), strings.Index(out, `"service_order_id":"so-1"`))
}

func TestTextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewAttributesHandler(NewTextHandler(&buf,
		WithColor(false),
		WithLevel(slog.LevelInfo),
		WithColumns(DomainColumns...),
	)))

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	ctx := ContextWithSlog(context.Background())
	AddAttribute(ctx, "assignment_id", "a1")
	AddError(ctx, errors.New("version conflict"))
	logger.With("mode", "OFFER").InfoContext(ctx, "assignment event", "status", "PENDING", "round", 0)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "INFO a1 PENDING \"assignment event\" \"version conflict\"")
	assert.Equal(t, "    mode=OFFER", lines[1])
	assert.Equal(t, "    round=0", lines[2])
}

func TestHTTPStatusToLevel(t *testing.T) {
	assert.Equal(t, LevelInfo, HTTPStatusToLevel(200))
	assert.Equal(t, LevelInfo, HTTPStatusToLevel(499))
	assert.Equal(t, LevelWarn, HTTPStatusToLevel(409))
	assert.Equal(t, LevelError, HTTPStatusToLevel(500))
	assert.Equal(t, LevelError, HTTPStatusToLevel(0))
}

func TestConnectCodeToLevel(t *testing.T) {
	assert.Equal(t, LevelInfo, ConnectCodeToLevel(connect.CodeAlreadyExists))
	assert.Equal(t, LevelInfo, ConnectCodeToLevel(connect.CodeFailedPrecondition))
	assert.Equal(t, LevelError, ConnectCodeToLevel(connect.CodeInternal))
	assert.Equal(t, LevelError, ConnectCodeToLevel(connect.CodeUnavailable))
}
