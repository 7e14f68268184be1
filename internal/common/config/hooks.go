package config

import (
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DecodeHooks returns a viper option that decodes durations and comma separated slices, followed by any
// application specific hooks. Viper only keeps the last DecodeHook option, so all hooks must be composed here.
func DecodeHooks(extra ...mapstructure.DecodeHookFunc) viper.DecoderConfigOption {
	hooks := []mapstructure.DecodeHookFunc{
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	}
	hooks = append(hooks, extra...)
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(hooks...))
}
