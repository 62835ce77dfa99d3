package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Abdurahmanit/GroupProject/basket-service/internal/app/config"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/metrics"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

const (
	getDiscountMethod      = "/discount.DiscountProtoService/GetDiscount"
	defaultDiscountTimeout = 3 * time.Second
)

var ErrInsecureTransport = errors.New("insecure discount transport is not allowed in production")

// DiscountClient looks up per-product discounts on the discount service.
type DiscountClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	codec   wireCodec
	log     logger.Logger
	metrics *metrics.MetricsManager
}

// NewDiscountClient builds the gRPC connection to the discount service. The
// connection is lazy; the first RPC dials. extra options are appended after the
// defaults.
func NewDiscountClient(
	cfg config.DiscountConfig,
	production bool,
	log logger.Logger,
	m *metrics.MetricsManager,
	extra ...grpc.DialOption,
) (*DiscountClient, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("discount service address is not configured")
	}

	creds, err := transportCredentials(cfg, production)
	if err != nil {
		return nil, err
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	dialOpts = append(dialOpts, extra...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create discount client for %s: %w", cfg.Address, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDiscountTimeout
	}

	return &DiscountClient{
		conn:    conn,
		timeout: timeout,
		log:     log.Named("discount_client"),
		metrics: m,
	}, nil
}

// transportCredentials picks TLS unless a non-production config explicitly
// asks for a weaker transport.
func transportCredentials(cfg config.DiscountConfig, production bool) (credentials.TransportCredentials, error) {
	if production && (cfg.Plaintext || cfg.InsecureSkipVerify) {
		return nil, ErrInsecureTransport
	}
	if cfg.Plaintext {
		return insecure.NewCredentials(), nil
	}

	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // refused in production above
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read discount CA file %s: %w", cfg.CAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in discount CA file %s", cfg.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return credentials.NewTLS(tlsCfg), nil
}

// GetDiscount returns the discount amount for productName. A product without a
// coupon yields zero; any transport or remote failure is an error.
func (c *DiscountClient) GetDiscount(ctx context.Context, productName string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	req := &GetDiscountRequest{ProductName: productName}
	var resp CouponModel
	err := c.conn.Invoke(ctx, getDiscountMethod, req, &resp, grpc.ForceCodec(c.codec))
	if err != nil {
		c.metrics.DiscountLookupLatency.WithLabelValues("error").Observe(time.Since(start).Seconds())
		c.log.Warnf("Discount lookup for product %q failed: %v", productName, err)
		return decimal.Zero, fmt.Errorf("get discount for product %q: %w", productName, err)
	}
	c.metrics.DiscountLookupLatency.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	if resp.Amount < 0 {
		c.log.Warnf("Discount service returned negative amount %d for product %q, treating as no discount", resp.Amount, productName)
		return decimal.Zero, nil
	}
	c.log.Debugf("Discount for product %q is %d (%s)", productName, resp.Amount, resp.Description)
	return decimal.NewFromInt32(resp.Amount), nil
}

func (c *DiscountClient) Close() error {
	return c.conn.Close()
}
