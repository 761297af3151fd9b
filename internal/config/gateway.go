package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// GatewaySettings are the provider settings that may be edited while the
// service is running.
type GatewaySettings struct {
	MerchantName    string        `mapstructure:"merchantName"`
	MerchantCity    string        `mapstructure:"merchantCity"`
	PixKey          string        `mapstructure:"pixKey"`
	WebhookSecret   string        `mapstructure:"webhookSecret"`
	NotificationURL string        `mapstructure:"notificationUrl"`
	RequestTimeout  time.Duration `mapstructure:"requestTimeout"`
}

func DefaultGatewaySettings() GatewaySettings {
	return GatewaySettings{
		MerchantName:   "Tech Challenge Restaurant",
		MerchantCity:   "SAO PAULO",
		PixKey:         "br.gov.bcb.pix",
		RequestTimeout: 12 * time.Second,
	}
}

type GatewayConfigHolder struct {
	current atomic.Value // holds GatewaySettings
}

// NewStaticGatewayConfigHolder returns a holder that never reloads.
func NewStaticGatewayConfigHolder(settings GatewaySettings) *GatewayConfigHolder {
	holder := &GatewayConfigHolder{}
	holder.current.Store(settings)
	return holder
}

func NewGatewayConfigHolder(log *zap.Logger) (*GatewayConfigHolder, error) {
	log = log.Named("config.gateway")
	v := viper.New()

	v.SetConfigName("gateway")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/qrpay")
	v.AddConfigPath(".")

	v.SetEnvPrefix("QRPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultGatewaySettings()
	v.SetDefault("gateway.merchantName", defaults.MerchantName)
	v.SetDefault("gateway.merchantCity", defaults.MerchantCity)
	v.SetDefault("gateway.pixKey", defaults.PixKey)
	v.SetDefault("gateway.webhookSecret", "")
	v.SetDefault("gateway.notificationUrl", "")
	v.SetDefault("gateway.requestTimeout", defaults.RequestTimeout)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg GatewaySettings
	if err := v.UnmarshalKey("gateway", &cfg); err != nil {
		return nil, err
	}
	if err := validateGatewaySettings(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticGatewayConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated GatewaySettings
		if err := v.UnmarshalKey("gateway", &updated); err != nil {
			log.Warn("gateway config reload failed", zap.Error(err))
			return
		}
		if err := validateGatewaySettings(updated); err != nil {
			log.Warn("invalid gateway config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("gateway config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *GatewayConfigHolder) Get() GatewaySettings {
	return h.current.Load().(GatewaySettings)
}

func validateGatewaySettings(cfg GatewaySettings) error {
	if strings.TrimSpace(cfg.MerchantName) == "" {
		return errors.New("gateway.merchantName cannot be empty")
	}
	if strings.TrimSpace(cfg.MerchantCity) == "" {
		return errors.New("gateway.merchantCity cannot be empty")
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New("gateway.requestTimeout must be positive")
	}
	return nil
}
