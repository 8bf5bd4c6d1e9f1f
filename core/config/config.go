package config

import (
	_ "embed"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
)

type Configuration struct {
	Prompt      string `json:"prompt"`
	ColorPrompt bool   `json:"color_prompt"`

	// MaxJobs bounds the job table, 0 means unbounded.
	MaxJobs       int `json:"max_jobs" validate:"gte=0"`
	NotifyBuffer  int `json:"notify_buffer" validate:"gte=1"`
	MaxLineLength int `json:"max_line_length" validate:"gte=1"`

	HistoryFile  string `json:"history_file"`
	HistoryLimit int    `json:"history_limit" validate:"gte=0"`

	LogLevel string `json:"log_level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	LogFile  string `json:"log_file"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

// Default returns the built-in configuration.
func Default() *Configuration {
	return defaultConfig()
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
