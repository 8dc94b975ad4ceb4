package eventdependent

import (
	"time"

	"github.com/juju/errors"
	"github.com/spf13/viper"

	"github.com/notorious-go/eventgate/notify"
)

// Config describes a Group in a form that can be read from configuration
// files.
//
//	database:
//	  success: ready
//	  failure: error
//	  timeout: 30s
//	  poison_on_failure: false
type Config struct {
	Success         string        `mapstructure:"success"`
	Failure         string        `mapstructure:"failure"`
	Timeout         time.Duration `mapstructure:"timeout"`
	PoisonOnFailure bool          `mapstructure:"poison_on_failure"`
}

// Validate returns an error if the config cannot describe a Group.
func (c Config) Validate() error {
	if err := c.Pair().Validate(); err != nil {
		return errors.Trace(err)
	}
	if c.Timeout < 0 {
		return errors.NotValidf("negative timeout %v", c.Timeout)
	}
	return nil
}

// Pair returns the configured signal names.
func (c Config) Pair() notify.Pair {
	return notify.Pair{Success: c.Success, Failure: c.Failure}
}

// Options returns the options equivalent to the config.
func (c Config) Options() []Option {
	var opts []Option
	if c.Timeout > 0 {
		opts = append(opts, WithTimeout(c.Timeout))
	}
	if c.PoisonOnFailure {
		opts = append(opts, WithPoisonOnFailure())
	}
	return opts
}

// ConfigFromViper reads the Config stored under key.
func ConfigFromViper(v *viper.Viper, key string) (Config, error) {
	var cfg Config
	if !v.IsSet(key) {
		return cfg, errors.NotFoundf("config key %q", key)
	}
	if err := v.UnmarshalKey(key, &cfg); err != nil {
		return cfg, errors.Annotatef(err, "reading %q", key)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Annotatef(err, "config %q", key)
	}
	return cfg, nil
}

// NewFromConfig returns a Group described by cfg. Options in opts are applied
// after the ones derived from cfg.
func NewFromConfig(src notify.Source, cfg Config, opts ...Option) (*Group, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return New(src, cfg.Pair(), append(cfg.Options(), opts...)...)
}
