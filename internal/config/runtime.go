package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Runtime holds tunables that can change without a restart.
type Runtime struct {
	PropagationConcurrency int `mapstructure:"propagationConcurrency"`
	BatchConcurrency       int `mapstructure:"batchConcurrency"`
}

func DefaultRuntime(cfg Config) Runtime {
	concurrency := cfg.PropagationConcurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	return Runtime{
		PropagationConcurrency: concurrency,
		BatchConcurrency:       16,
	}
}

type RuntimeHolder struct {
	current atomic.Value // holds Runtime
}

// NewStaticRuntimeHolder returns a holder that never reloads.
func NewStaticRuntimeHolder(rt Runtime) *RuntimeHolder {
	holder := &RuntimeHolder{}
	holder.current.Store(rt)
	return holder
}

func NewRuntimeHolder(cfg Config) (*RuntimeHolder, error) {
	v := viper.New()

	v.SetConfigName("flagship")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/flagship")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FLAGSHIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRuntime(cfg)
	v.SetDefault("runtime.propagationConcurrency", defaults.PropagationConcurrency)
	v.SetDefault("runtime.batchConcurrency", defaults.BatchConcurrency)

	found := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		found = false
	}

	var rt Runtime
	if err := v.UnmarshalKey("runtime", &rt); err != nil {
		return nil, err
	}
	rt = rt.withDefaults(defaults)
	if err := validateRuntime(rt); err != nil {
		return nil, err
	}

	holder := &RuntimeHolder{}
	holder.current.Store(rt)

	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Runtime
		if err := v.UnmarshalKey("runtime", &updated); err != nil {
			log.Printf("[runtime-config] reload failed: %v", err)
			return
		}
		updated = updated.withDefaults(defaults)
		if err := validateRuntime(updated); err != nil {
			log.Printf("[runtime-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[runtime-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *RuntimeHolder) Get() Runtime {
	return h.current.Load().(Runtime)
}

func (rt Runtime) withDefaults(defaults Runtime) Runtime {
	if rt.PropagationConcurrency == 0 {
		rt.PropagationConcurrency = defaults.PropagationConcurrency
	}
	if rt.BatchConcurrency == 0 {
		rt.BatchConcurrency = defaults.BatchConcurrency
	}
	return rt
}

func validateRuntime(rt Runtime) error {
	if rt.PropagationConcurrency <= 0 {
		return errors.New("runtime.propagationConcurrency must be positive")
	}
	if rt.BatchConcurrency <= 0 {
		return errors.New("runtime.batchConcurrency must be positive")
	}
	return nil
}
