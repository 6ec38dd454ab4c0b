package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"eproxy/command"
	"eproxy/internal/errs"
	"eproxy/rpc/compress"
	"eproxy/rpc/compress/gzip"
	"eproxy/rpc/compress/lz4"
	"eproxy/rpc/compress/snappy"
	"eproxy/rpc/compress/zlib"
	"eproxy/rpc/grpcx/p2c"
	"eproxy/rpc/serialize"
	"eproxy/rpc/serialize/json"
	"eproxy/rpc/serialize/proto"
)

const envPrefix = "EPROXY"

type Config struct {
	ServiceKey string          `mapstructure:"service_key"`
	Transport  TransportConfig `mapstructure:"transport"`
	Etcd       EtcdConfig      `mapstructure:"etcd"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Breaker    BreakerConfig   `mapstructure:"breaker"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	Metrics    MetricsConfig   `mapstructure:"metrics"`
	Log        LogConfig       `mapstructure:"log"`
	Commands   []CommandConfig `mapstructure:"commands"`
}

type TransportConfig struct {
	Kind        string        `mapstructure:"kind"` // tcp | grpc
	Address     string        `mapstructure:"address"`
	// Service is resolved through the registry by the grpc transport
	Service     string        `mapstructure:"service"`
	Policy      string        `mapstructure:"policy"`
	Serializer  string        `mapstructure:"serializer"`
	Compressor  string        `mapstructure:"compressor"`
	Timeout     time.Duration `mapstructure:"timeout"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	InitialCap  int           `mapstructure:"initial_cap"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxCap      int           `mapstructure:"max_cap"`
}

type EtcdConfig struct {
	Endpoints      []string      `mapstructure:"endpoints"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	CommandPrefix  string        `mapstructure:"command_prefix"`
	RegistryPrefix string        `mapstructure:"registry_prefix"`
}

// RedisConfig is used by the request cache, an empty Addr keeps the cache in
// memory.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// BreakerConfig fills what a configured command leaves at zero.
type BreakerConfig struct {
	FailoverCluster        int           `mapstructure:"failover_cluster"`
	RequestVolumeThreshold int           `mapstructure:"request_volume_threshold"`
	ErrorThresholdPercent  int           `mapstructure:"error_threshold_percentage"`
	SleepWindow            time.Duration `mapstructure:"sleep_window"`
	ExecutionTimeout       time.Duration `mapstructure:"execution_timeout"`
	CommandTTL             time.Duration `mapstructure:"command_ttl"`
}

type RateLimitConfig struct {
	Kind     string        `mapstructure:"kind"` // none | fixed | slide | token_bucket | redis_fixed | redis_slide
	Rate     int           `mapstructure:"rate"`
	Interval time.Duration `mapstructure:"interval"`
	Services []string      `mapstructure:"services"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type CommandConfig struct {
	ServiceID           string               `mapstructure:"service_id"`
	RequestCacheEnabled bool                 `mapstructure:"request_cache_enabled"`
	FallBackName        string               `mapstructure:"fallback_name"`
	Strategy            command.StrategyType `mapstructure:"strategy"`
	FailoverCluster     int                  `mapstructure:"failover_cluster"`
	ForceOpen           bool                 `mapstructure:"circuit_breaker_force_open"`
	Injection           string               `mapstructure:"injection"`
	ExecutionTimeout    time.Duration        `mapstructure:"execution_timeout"`
}

var (
	transports = map[string]struct{}{"tcp": {}, "grpc": {}}
	policies   = map[string]struct{}{"round_robin": {}, "pick_first": {}, p2c.Name: {}}
	limiters   = map[string]struct{}{
		"": {}, "none": {}, "fixed": {}, "slide": {}, "token_bucket": {}, "redis_fixed": {}, "redis_slide": {},
	}
	serializers = map[string]serialize.Serializer{
		"json":  json.Serializer{},
		"proto": proto.Serializer{},
	}
	compressors = map[string]compress.Compressor{
		"none":   compress.DoNothingCompressor{},
		"gzip":   gzip.Compressor{},
		"zlib":   zlib.Compressor{},
		"snappy": snappy.Compressor{},
		"lz4":    lz4.Compressor{},
	}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_key", "")
	v.SetDefault("transport.kind", "tcp")
	v.SetDefault("transport.address", "127.0.0.1:8081")
	v.SetDefault("transport.policy", "round_robin")
	v.SetDefault("transport.serializer", "json")
	v.SetDefault("transport.compressor", "none")
	v.SetDefault("transport.timeout", 3*time.Second)
	v.SetDefault("transport.idle_timeout", time.Minute)
	v.SetDefault("transport.initial_cap", 1)
	v.SetDefault("transport.max_idle", 20)
	v.SetDefault("transport.max_cap", 30)
	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("etcd.command_prefix", "/eproxy/commands")
	v.SetDefault("etcd.registry_prefix", "/eproxy/services")
	v.SetDefault("redis.prefix", "eproxy:cache")
	v.SetDefault("redis.cache_ttl", time.Minute)
	v.SetDefault("breaker.failover_cluster", 3)
	v.SetDefault("breaker.request_volume_threshold", 20)
	v.SetDefault("breaker.error_threshold_percentage", 50)
	v.SetDefault("breaker.sleep_window", time.Minute)
	v.SetDefault("breaker.execution_timeout", time.Second)
	v.SetDefault("breaker.command_ttl", 30*time.Second)
	v.SetDefault("rate_limit.kind", "none")
	v.SetDefault("rate_limit.interval", time.Second)
	v.SetDefault("metrics.namespace", "eproxy")
	v.SetDefault("metrics.subsystem", "client")
	v.SetDefault("log.level", "info")
}

// Load reads the file at path, an empty path loads the defaults only.
// EPROXY_ prefixed variables override the file, EPROXY_TRANSPORT_ADDRESS for
// transport.address.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("eproxy: read config %s: %w", path, err)
		}
	}
	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)))
	if err != nil {
		return nil, fmt.Errorf("eproxy: decode config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ServiceKey == "" {
		return errs.InvalidConfig("service_key is empty")
	}
	if _, ok := transports[c.Transport.Kind]; !ok {
		return errs.InvalidConfig("unknown transport kind " + c.Transport.Kind)
	}
	if _, ok := policies[c.Transport.Policy]; !ok {
		return errs.InvalidConfig("unknown balancing policy " + c.Transport.Policy)
	}
	if _, ok := serializers[c.Transport.Serializer]; !ok {
		return errs.InvalidConfig("unknown serializer " + c.Transport.Serializer)
	}
	if _, ok := compressors[c.Transport.Compressor]; !ok {
		return errs.InvalidConfig("unknown compressor " + c.Transport.Compressor)
	}
	if _, ok := limiters[c.RateLimit.Kind]; !ok {
		return errs.InvalidConfig("unknown rate limiter " + c.RateLimit.Kind)
	}
	for _, cmd := range c.Commands {
		if cmd.ServiceID == "" {
			return errs.InvalidConfig("command without service_id")
		}
	}
	return nil
}

// ServiceCommands merges the configured commands with the breaker defaults.
func (c *Config) ServiceCommands() []*command.ServiceCommand {
	res := make([]*command.ServiceCommand, 0, len(c.Commands))
	for _, cc := range c.Commands {
		cmd := c.Breaker.Command(cc.ServiceID)
		cmd.RequestCacheEnabled = cc.RequestCacheEnabled
		cmd.FallBackName = cc.FallBackName
		cmd.Strategy = cc.Strategy
		cmd.CircuitBreakerForceOpen = cc.ForceOpen
		cmd.Injection = cc.Injection
		if cc.FailoverCluster > 0 {
			cmd.FailoverCluster = cc.FailoverCluster
		}
		if cc.ExecutionTimeout > 0 {
			cmd.ExecutionTimeoutInMilliseconds = int(cc.ExecutionTimeout.Milliseconds())
		}
		res = append(res, cmd)
	}
	return res
}

// Command is the policy of a service nobody configured.
func (b BreakerConfig) Command(serviceID string) *command.ServiceCommand {
	cmd := command.Default(serviceID)
	if b.FailoverCluster > 0 {
		cmd.FailoverCluster = b.FailoverCluster
	}
	if b.RequestVolumeThreshold > 0 {
		cmd.BreakerRequestVolumeThreshold = b.RequestVolumeThreshold
	}
	if b.ErrorThresholdPercent > 0 {
		cmd.BreakerErrorThresholdPercentage = b.ErrorThresholdPercent
	}
	if b.SleepWindow > 0 {
		cmd.BreakerSleepWindowInMilliseconds = int(b.SleepWindow.Milliseconds())
	}
	if b.ExecutionTimeout > 0 {
		cmd.ExecutionTimeoutInMilliseconds = int(b.ExecutionTimeout.Milliseconds())
	}
	return cmd
}

func (t TransportConfig) SerializerCodec() serialize.Serializer {
	return serializers[t.Serializer]
}

func (t TransportConfig) CompressorCodec() compress.Compressor {
	return compressors[t.Compressor]
}

// Logger builds the zap logger the log section describes.
func (l LogConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, errs.InvalidConfig(err.Error())
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
