package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/etution/etution-api/pkg/config"
	"github.com/etution/etution-api/pkg/middleware/requestid"
)

// New builds a zap logger from the runtime config. Bad level strings
// fall back to info rather than failing startup.
func New(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := baseConfig(cfg.Env)

	if cfg.Log.Format == "console" {
		zapCfg.Encoding = "console"
	} else {
		zapCfg.Encoding = "json"
	}
	zapCfg.Level = parseLevel(cfg.Log.Level)

	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapCfg.Build()
}

func baseConfig(env string) zap.Config {
	if env == config.EnvProduction {
		return zap.NewProductionConfig()
	}
	return zap.NewDevelopmentConfig()
}

func parseLevel(level string) zap.AtomicLevel {
	parsed := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if level == "" {
		return parsed
	}
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return parsed
}

// GinMiddleware logs one structured line per request after it finishes.
func GinMiddleware(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if id := requestid.Value(c); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		l.Info("http_request", fields...)
	}
}
