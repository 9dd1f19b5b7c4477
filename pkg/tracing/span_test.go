package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageSpansAttachToRun(t *testing.T) {
	ctx, root := StartRun(context.Background(), "transform", "run-1")
	_, contacts := StartStage(ctx, "contacts")
	contacts.SetAttr("rows", 12)
	contacts.End(nil)
	_, campaigns := StartStage(ctx, "campaigns")
	campaigns.End(errors.New("boom"))
	root.End(nil)

	children := root.Children()
	require.Len(t, children, 2)
	assert.Equal(t, "run-1", children[0].RunID)

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewJSONHandler(&buf, nil)))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "contacts", rec["span"])
	assert.Equal(t, float64(1), rec["depth"])
	assert.Equal(t, float64(12), rec["rows"])

	require.NoError(t, json.Unmarshal([]byte(lines[2]), &rec))
	assert.Equal(t, "boom", rec["error"])
}

func TestStageWithoutRunIsDetached(t *testing.T) {
	ctx, span := StartStage(context.Background(), "heatmap")
	assert.Same(t, span, FromContext(ctx))
	assert.Empty(t, span.RunID)
	assert.GreaterOrEqual(t, span.End(nil).Nanoseconds(), int64(0))
}
