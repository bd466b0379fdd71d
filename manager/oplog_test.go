package manager

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpIDHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := WithOpIDHandler(slog.New(slog.NewTextHandler(&buf, nil))).With("component", "manager")

	logger.InfoContext(context.Background(), "no id")
	assert.NotContains(t, buf.String(), "op_id")

	buf.Reset()
	logger.InfoContext(ContextWithOpID(context.Background(), 42), "with id")
	assert.Contains(t, buf.String(), "op_id=42")
	assert.Contains(t, buf.String(), "component=manager")
}

func TestWithOp(t *testing.T) {
	ctx := withOp(context.Background())
	id := OpIDFromContext(ctx)
	assert.NotZero(t, id)
	assert.Equal(t, id, OpIDFromContext(withOp(ctx)), "existing id is kept")
	assert.NotEqual(t, id, OpIDFromContext(withOp(context.Background())))
}
