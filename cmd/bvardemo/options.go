package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "BVARDEMO"

// options configure a demo run. Values come from flags, BVARDEMO_*
// environment variables and an optional config file, in that order of precedence.
type options struct {
	Workers    int           `mapstructure:"workers"`
	Tasks      int           `mapstructure:"tasks"`
	Duration   time.Duration `mapstructure:"duration"`
	Interval   time.Duration `mapstructure:"interval"`
	Report     time.Duration `mapstructure:"report"`
	Window     int           `mapstructure:"window"`
	Prefix     string        `mapstructure:"prefix"`
	Series     bool          `mapstructure:"series"`
	LogLevel   string        `mapstructure:"log-level"`
	MaxLatency time.Duration `mapstructure:"max-latency"`
}

func defaultOptions() *options {
	return &options{
		Workers:    8,
		Tasks:      1000,
		Duration:   10 * time.Second,
		Interval:   time.Second,
		Report:     2 * time.Second,
		Window:     10,
		Prefix:     "demo",
		Series:     true,
		LogLevel:   "info",
		MaxLatency: 5 * time.Millisecond,
	}
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.IntVarP(&o.Workers, "workers", "w", o.Workers, "Number of pooled workers")
	fs.IntVar(&o.Tasks, "tasks", o.Tasks, "Tasks submitted per report period")
	fs.DurationVarP(&o.Duration, "duration", "d", o.Duration, "How long to run, 0 runs until interrupted")
	fs.DurationVar(&o.Interval, "interval", o.Interval, "Sampling interval")
	fs.DurationVar(&o.Report, "report", o.Report, "How often to dump exposed variables")
	fs.IntVar(&o.Window, "window", o.Window, "Window length in seconds")
	fs.StringVar(&o.Prefix, "prefix", o.Prefix, "Prefix of exposed names")
	fs.BoolVar(&o.Series, "series", o.Series, "Record and print per-second series")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level of the bvar and bvardemo loggers")
	fs.DurationVar(&o.MaxLatency, "max-latency", o.MaxLatency, "Upper bound of simulated task latency")
}

func (o *options) validate() error {
	var errs []error
	if o.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", o.Workers))
	}
	if o.Tasks < 1 {
		errs = append(errs, fmt.Errorf("tasks must be positive, got %d", o.Tasks))
	}
	if o.Duration < 0 {
		errs = append(errs, fmt.Errorf("duration must not be negative, got %s", o.Duration))
	}
	if o.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", o.Interval))
	}
	if o.Report <= 0 {
		errs = append(errs, fmt.Errorf("report must be positive, got %s", o.Report))
	}
	if o.Window < 1 {
		errs = append(errs, fmt.Errorf("window must be at least one second, got %d", o.Window))
	}
	if o.MaxLatency <= 0 {
		errs = append(errs, fmt.Errorf("max-latency must be positive, got %s", o.MaxLatency))
	}
	return errors.Join(errs...)
}

// load merges the config file and environment into o. Flags set on the
// command line keep their values.
func (o *options) load(cmd *cobra.Command, v *viper.Viper) error {
	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	if err := v.Unmarshal(o); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

func configPathFromEnv() string {
	return os.Getenv(envPrefix + "_CONFIG")
}
