package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := LogSender{Log: zap.New(core)}

	err := s.Send(context.Background(), "ana@shop.io", "Your order", TemplateOrderConfirmed,
		map[string]any{"Lines": 2})
	require.NoError(t, err)

	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "ana@shop.io", ctx["to"])
	assert.Equal(t, TemplateOrderConfirmed, ctx["template"])
	assert.EqualValues(t, 2, ctx["data.lines"])
}
