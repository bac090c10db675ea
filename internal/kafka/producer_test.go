package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishAfterClose(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "storefront.test", 1, nil)
	p.Start()
	p.Close()
	p.WaitClosed()

	assert.NotPanics(t, func() {
		err := p.Publish(context.Background(), []byte("k"), []byte("v"))
		assert.ErrorIs(t, err, ErrProducerClosed)
	})
	assert.NotPanics(t, p.Close)
}
