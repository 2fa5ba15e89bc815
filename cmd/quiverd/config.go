package main

import (
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

// Config drives the mapping daemon. Values come from QUIVER_* environment
// variables, optionally seeded from a .env file.
type Config struct {
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:"0.0.0.0:3000"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:"0.0.0.0:9090"`

	// ReferencePath is the parquet matrix directory holding the reference
	// atlas; its labels.parquet supplies the transferable fields.
	ReferencePath string `envconfig:"REFERENCE_PATH"`

	// Projection and anchor parameters applied to every mapping request.
	Method  string `envconfig:"METHOD" default:"pcaproject"`
	Dims    int    `envconfig:"DIMS" default:"30"`
	KAnchor int    `envconfig:"K_ANCHOR" default:"5"`
	KScore  int    `envconfig:"K_SCORE" default:"30"`
	KFilter int    `envconfig:"K_FILTER" default:"200"`
	KWeight int    `envconfig:"K_WEIGHT" default:"50"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	KeepAliveTime    time.Duration `envconfig:"KEEPALIVE_TIME" default:"2h"`
	KeepAliveTimeout time.Duration `envconfig:"KEEPALIVE_TIMEOUT" default:"20s"`
	MaxRecvMsgSize   int           `envconfig:"MAX_RECV_MSG_SIZE" default:"104857600"`
	MaxSendMsgSize   int           `envconfig:"MAX_SEND_MSG_SIZE" default:"104857600"`
}

// Config validation errors
var (
	ErrInvalidListenAddr    = errors.New("listen_addr cannot be empty")
	ErrInvalidMetricsAddr   = errors.New("metrics_addr cannot be empty")
	ErrInvalidReferencePath = errors.New("reference_path cannot be empty")
	ErrInvalidMethod        = errors.New("method must be 'pcaproject' or 'cca'")
	ErrInvalidDims          = errors.New("dims must be positive")
	ErrInvalidKAnchor       = errors.New("k_anchor must be positive")
	ErrInvalidKScore        = errors.New("k_score must be positive")
	ErrInvalidKWeight       = errors.New("k_weight must be positive")
	ErrInvalidLogFormat     = errors.New("log_format must be 'json' or 'console'")
	ErrInvalidLogLevel      = errors.New("log_level must be debug, info, warn, or error")
)

// ValidateConfig validates the configuration and returns an error if invalid
func ValidateConfig(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return ErrInvalidListenAddr
	}
	if cfg.MetricsAddr == "" {
		return ErrInvalidMetricsAddr
	}
	if cfg.ReferencePath == "" {
		return ErrInvalidReferencePath
	}
	if cfg.Method != "pcaproject" && cfg.Method != "cca" {
		return ErrInvalidMethod
	}
	if cfg.Dims <= 0 {
		return ErrInvalidDims
	}
	if cfg.KAnchor <= 0 {
		return ErrInvalidKAnchor
	}
	if cfg.KScore <= 0 {
		return ErrInvalidKScore
	}
	if cfg.KWeight <= 0 {
		return ErrInvalidKWeight
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return ErrInvalidLogFormat
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" && cfg.LogLevel != "error" {
		return ErrInvalidLogLevel
	}
	return nil
}

// BuildGRPCServerOptions returns grpc.ServerOption slice for server
// configuration: keepalive plus message size limits sized for expression
// matrices.
func (c *Config) BuildGRPCServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    c.KeepAliveTime,
			Timeout: c.KeepAliveTimeout,
		}),
		grpc.MaxRecvMsgSize(c.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(c.MaxSendMsgSize),
	}
}
