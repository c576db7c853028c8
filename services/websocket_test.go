package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWebsocketHandler_FillsNonPositiveSettings(t *testing.T) {
	req := require.New(t)

	h := NewWebsocketHandler(nil, nil, nil, nil, WebsocketConfig{PingInterval: -time.Second}, zap.NewNop())
	req.Equal(defaultPingInterval, h.cfg.PingInterval)
	req.Equal(defaultSendBuffer, h.cfg.SendBuffer)
	req.Equal(defaultRateLimit, h.cfg.RateLimit)
	req.Equal(45*time.Second, h.pongWait())

	h = NewWebsocketHandler(nil, nil, nil, nil, WebsocketConfig{PingInterval: time.Second, SendBuffer: 2, RateLimit: 3}, zap.NewNop())
	req.Equal(time.Second, h.cfg.PingInterval)
	req.Equal(2, h.cfg.SendBuffer)
	req.Equal(3, h.cfg.RateLimit)
}
