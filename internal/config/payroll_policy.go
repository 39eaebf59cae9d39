package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PayPolicyPerStop   = "per_stop"
	PayPolicyFlatDaily = "flat_daily"
)

// PayrollPolicy is the hot-reloadable part of payroll configuration.
type PayrollPolicy struct {
	DeliveredEvent   string              `mapstructure:"deliveredEvent"`
	StrictZipOverlap bool                `mapstructure:"strictZipOverlap"`
	Overrides        []PayPolicyOverride `mapstructure:"overrides"`
}

// PayPolicyOverride replaces per-stop pay for a single driver.
// A driver matches on DriverCode, or on FullName when DriverCode is empty.
// DailyRate is kept as text so money never passes through a float.
type PayPolicyOverride struct {
	DriverCode string `mapstructure:"driverCode"`
	FullName   string `mapstructure:"fullName"`
	Policy     string `mapstructure:"policy"`
	DailyRate  string `mapstructure:"dailyRate"`
}

// Rate parses DailyRate.
func (o PayPolicyOverride) Rate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(o.DailyRate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("dailyRate %q: %w", o.DailyRate, err)
	}
	return rate, nil
}

func DefaultPayrollPolicy() PayrollPolicy {
	return PayrollPolicy{
		DeliveredEvent: "delivered",
	}
}

// OverrideFor returns the override configured for the driver, if any.
func (p PayrollPolicy) OverrideFor(driverCode, fullName string) (PayPolicyOverride, bool) {
	driverCode = strings.TrimSpace(driverCode)
	fullName = strings.TrimSpace(fullName)
	for _, o := range p.Overrides {
		if code := strings.TrimSpace(o.DriverCode); code != "" {
			if code == driverCode {
				return o, true
			}
			continue
		}
		if name := strings.TrimSpace(o.FullName); name != "" && strings.EqualFold(name, fullName) {
			return o, true
		}
	}
	return PayPolicyOverride{}, false
}

type PayrollPolicyHolder struct {
	current atomic.Value // holds PayrollPolicy
}

// NewStaticPayrollPolicyHolder wraps a fixed policy, used by tests and tools.
func NewStaticPayrollPolicyHolder(policy PayrollPolicy) *PayrollPolicyHolder {
	holder := &PayrollPolicyHolder{}
	holder.current.Store(normalizePayrollPolicy(policy))
	return holder
}

func NewPayrollPolicyHolder(log *zap.Logger) (*PayrollPolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.payroll")

	v := viper.New()

	v.SetConfigName("payroll")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/routepay/config")
	v.AddConfigPath("/etc/routepay")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ROUTEPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPayrollPolicy()
	v.SetDefault("payroll.deliveredEvent", defaults.DeliveredEvent)
	v.SetDefault("payroll.strictZipOverlap", defaults.StrictZipOverlap)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	var policy PayrollPolicy
	if err := v.UnmarshalKey("payroll", &policy); err != nil {
		return nil, err
	}
	if err := validatePayrollPolicy(policy); err != nil {
		return nil, err
	}

	holder := &PayrollPolicyHolder{}
	holder.current.Store(normalizePayrollPolicy(policy))

	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PayrollPolicy
		if err := v.UnmarshalKey("payroll", &updated); err != nil {
			log.Warn("payroll policy reload failed", zap.Error(err))
			return
		}
		if err := validatePayrollPolicy(updated); err != nil {
			log.Warn("invalid payroll policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(normalizePayrollPolicy(updated))
		log.Info("payroll policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PayrollPolicyHolder) Get() PayrollPolicy {
	if h == nil {
		return DefaultPayrollPolicy()
	}
	policy, ok := h.current.Load().(PayrollPolicy)
	if !ok {
		return DefaultPayrollPolicy()
	}
	return policy
}

func normalizePayrollPolicy(p PayrollPolicy) PayrollPolicy {
	p.DeliveredEvent = strings.ToLower(strings.TrimSpace(p.DeliveredEvent))
	if p.DeliveredEvent == "" {
		p.DeliveredEvent = DefaultPayrollPolicy().DeliveredEvent
	}
	for i := range p.Overrides {
		p.Overrides[i].Policy = strings.ToLower(strings.TrimSpace(p.Overrides[i].Policy))
	}
	return p
}

func validatePayrollPolicy(p PayrollPolicy) error {
	for i, o := range p.Overrides {
		if strings.TrimSpace(o.DriverCode) == "" && strings.TrimSpace(o.FullName) == "" {
			return fmt.Errorf("payroll.overrides[%d]: driverCode or fullName is required", i)
		}
		switch strings.ToLower(strings.TrimSpace(o.Policy)) {
		case PayPolicyFlatDaily:
			rate, err := o.Rate()
			if err != nil {
				return fmt.Errorf("payroll.overrides[%d]: %w", i, err)
			}
			if !rate.IsPositive() {
				return fmt.Errorf("payroll.overrides[%d]: dailyRate must be positive", i)
			}
		default:
			return fmt.Errorf("payroll.overrides[%d]: unsupported policy %q", i, o.Policy)
		}
	}
	return nil
}
