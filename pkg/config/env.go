package config

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var durationType = reflect.TypeOf(time.Duration(0))

// ApplyEnv applies DEVKIT_<SECTION>__<KEY>=value overrides from the process
// environment. Variables naming no setting are ignored.
func (s *Settings) ApplyEnv() error {
	current, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	if err := v.ReadConfig(bytes.NewReader(current)); err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	err = v.Unmarshal(s,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			durationHook,
			mapstructure.StringToSliceHookFunc(","),
		)),
		func(c *mapstructure.DecoderConfig) {
			c.TagName = "yaml"
		},
	)
	if err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	return nil
}

// durationHook decodes strings into durations with parseDuration.
func durationHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != durationType || from.Kind() != reflect.String {
		return data, nil
	}
	return parseDuration(strings.TrimSpace(data.(string)))
}

// parseDuration accepts Go durations ("90s", "1h30m") and bare seconds.
func parseDuration(value string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative duration %q", value)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(value)
}
