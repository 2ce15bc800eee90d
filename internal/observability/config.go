package observability

import (
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/paydesk/internal/config"
	gormlogger "gorm.io/gorm/logger"
)

// Config is the resolved observability view of the application config. Every
// log line, span and metric carries the service identity below, and NodeID
// tells apart replicas that mint snowflake transaction IDs.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	NodeID      string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	SlowQuery time.Duration
	LogSQL    bool
}

func LoadConfig(cfg config.Config) Config {
	obs := cfg.Observability

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "paydesk"
	}

	ratio := obs.SamplingRatio
	switch {
	case ratio < 0:
		ratio = 0
	case ratio > 1:
		ratio = 1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.ToLower(strings.TrimSpace(cfg.Environment)),
		Version:              strings.TrimSpace(cfg.AppVersion),
		NodeID:               strconv.FormatInt(cfg.NodeID, 10),
		LogLevel:             strings.ToLower(strings.TrimSpace(obs.LogLevel)),
		LogFormat:            strings.ToLower(strings.TrimSpace(obs.LogFormat)),
		OtelEnabled:          obs.OTelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.ToLower(strings.TrimSpace(obs.OTLPProtocol)),
		OtelSamplingRatio:    ratio,
		SlowQuery:            obs.SlowQuery,
		LogSQL:               obs.LogSQL,
	}
}

func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch c.Environment {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// SQLLevel picks the GORM log level. Statements are only logged one by one
// when asked for, since they carry customer contact columns.
func (c Config) SQLLevel() gormlogger.LogLevel {
	if c.LogSQL {
		return gormlogger.Info
	}
	return gormlogger.Warn
}
