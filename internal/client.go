package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	ddHTTP "gopkg.in/DataDog/dd-trace-go.v1/contrib/net/http"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/nitro/lazytemplate/internal/config"
	"github.com/nitro/lazytemplate/internal/repository"
	"github.com/nitro/lazytemplate/internal/service"
	"github.com/nitro/lazytemplate/internal/transport"
)

type storage interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, payload io.Reader) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, suffix string) ([]string, error)
}

// Client holds the logic to bootstrap the application.
type Client struct {
	Logger            zerolog.Logger
	AsyncErrorHandler func(error)
	Config            config.Config

	server          transport.Server
	storage         storage
	closers         []io.Closer
	serviceCipher   service.Cipher
	serviceTemplate service.Template
	serviceDocument service.Document
}

// NewHTTPClient is the HTTP client shared by the application, traced when datadog is enabled.
func NewHTTPClient() *http.Client {
	httpClient := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
	return ddHTTP.WrapClient(httpClient)
}

// Init the client internal state.
func (c *Client) Init() (err error) {
	if err := c.Config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	httpClient := NewHTTPClient()

	if c.Config.EnableDatadog {
		tracer.Start(
			tracer.WithService("lazytemplate"),
			tracer.WithHTTPClient(httpClient),
			tracer.WithLogger(datadogLogger{logger: c.Logger}),
			tracer.WithRuntimeMetrics(),
		)
		defer func() {
			if err != nil {
				tracer.Stop()
			}
		}()
	}

	if err := c.initStorage(httpClient); err != nil {
		return fmt.Errorf("fail to initialize the storage: %w", err)
	}
	defer func() {
		if err != nil {
			c.close()
		}
	}()

	templateStorage := c.storage
	if c.Config.StorageSecret != "" {
		c.serviceCipher.Key = c.Config.StorageSecret
		c.serviceCipher.Storage = c.storage
		if err := c.serviceCipher.Init(); err != nil {
			return fmt.Errorf("fail to initialize service cipher: %w", err)
		}
		templateStorage = c.serviceCipher
	}

	c.serviceTemplate.Storage = templateStorage
	c.serviceTemplate.Logger = c.Logger
	c.serviceTemplate.TraceExtractor = traceLogger(c.Config.EnableDatadog)
	c.serviceTemplate.URLSigningSecret = c.Config.URLSigningSecret
	if err := c.serviceTemplate.Init(); err != nil {
		return fmt.Errorf("fail to initialize service template: %w", err)
	}

	c.serviceDocument.Logger = c.Logger
	c.serviceDocument.TraceExtractor = traceLogger(c.Config.EnableDatadog)
	if err := c.serviceDocument.Init(); err != nil {
		return fmt.Errorf("fail to initialize service document: %w", err)
	}

	c.server.Addr = c.Config.Addr
	c.server.Logger = c.Logger
	c.server.AsyncErrorHandler = c.AsyncErrorHandler
	c.server.TraceExtractor = traceLogger(c.Config.EnableDatadog)
	c.server.TemplateService = &c.serviceTemplate
	c.server.DocumentService = &c.serviceDocument
	c.server.DocumentRateLimit = c.Config.RateLimit
	c.server.DocumentRateBurst = c.Config.RateBurst
	if err := c.server.Init(); err != nil {
		return fmt.Errorf("fail to initialize the transport server: %w", err)
	}

	return nil
}

func (c *Client) initStorage(httpClient *http.Client) error {
	switch c.Config.Storage {
	case config.StorageFilesystem:
		fs := &repository.Filesystem{Dir: c.Config.DataDir}
		if err := fs.Init(); err != nil {
			return err
		}
		c.storage = fs
	case config.StorageS3:
		s3 := &repository.S3{
			HTTPClient: httpClient,
			Bucket:     c.Config.S3Bucket,
			Region:     c.Config.S3Region,
			Prefix:     c.Config.S3Prefix,
		}
		if err := s3.Init(); err != nil {
			return err
		}
		c.storage = s3
	case config.StorageRedis:
		redis, err := repository.NewRedisClient(c.Config.RedisAddr, c.Config.RedisUsername, c.Config.RedisPassword)
		if err != nil {
			return err
		}
		c.storage = redis
		c.closers = append(c.closers, redis)
	case config.StorageSQLite:
		sqlite, err := repository.OpenSQLite(c.Config.DataDir)
		if err != nil {
			return err
		}
		c.storage = sqlite
		c.closers = append(c.closers, sqlite)
	default:
		return fmt.Errorf("unknown storage '%s'", c.Config.Storage)
	}
	c.Logger.Info().Str("storage", c.Config.Storage).Msg("Template storage ready")
	return nil
}

// Start the client.
func (c *Client) Start() {
	c.server.Start()
}

// Stop the client.
func (c *Client) Stop(ctx context.Context) error {
	defer tracer.Stop()
	serverErr := c.server.Stop(ctx)
	if serverErr != nil {
		serverErr = fmt.Errorf("fail to stop the server: %w", serverErr)
	}
	return errors.Join(serverErr, c.close())
}

func (c *Client) close() error {
	var errs []error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("fail to close the storage: %w", err))
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
