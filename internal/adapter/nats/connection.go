package nats

import (
	"fmt"
	"time"

	"github.com/Abdurahmanit/GroupProject/basket-service/internal/app/config"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/logger"
	"github.com/nats-io/nats.go"
)

const (
	connectWait   = 5 * time.Second
	maxReconnects = -1
	reconnectWait = 2 * time.Second
)

func NewConnection(cfg config.NATSConfig, log logger.Logger) (*nats.Conn, error) {
	log = log.Named("nats")
	opts := []nats.Option{
		nats.Name("BasketService NATS Publisher"),
		nats.Timeout(connectWait),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				log.Errorf("NATS error on subject %s: %v", sub.Subject, err)
				return
			}
			log.Errorf("NATS error: %v", err)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warnf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	log.Infof("Connected to NATS at %s", nc.ConnectedUrl())
	return nc, nil
}

// Drain flushes pending publishes before closing nc.
func Drain(nc *nats.Conn, log logger.Logger) {
	if nc == nil || nc.IsClosed() {
		return
	}
	if err := nc.Drain(); err != nil {
		log.Errorf("Failed to drain NATS connection: %v", err)
		nc.Close()
	}
}
