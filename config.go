package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"vehicle-agent/common"
	"vehicle-agent/link"
	"vehicle-agent/mqtt"
	"vehicle-agent/shell"
	"vehicle-agent/vehicle"
)

const fallbackDeviceID = "vehicle-agent"

type Config struct {
	Device struct {
		ID    string `mapstructure:"id"`
		Label string `mapstructure:"label"`
	} `mapstructure:"device"`
	Vehicle struct {
		HomeLat float64 `mapstructure:"home_lat"`
		HomeLon float64 `mapstructure:"home_lon"`
		HomeAlt float64 `mapstructure:"home_alt"`
	} `mapstructure:"vehicle"`
	MQTT      mqtt.Config `mapstructure:"mqtt"`
	Telemetry struct {
		Period     time.Duration `mapstructure:"period"`
		Attributes []string      `mapstructure:"attributes"`
	} `mapstructure:"telemetry"`
	Link    link.Config  `mapstructure:"link"`
	Shell   shell.Config `mapstructure:"shell"`
	Logging struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"logging"`
}

// Home возвращает домашнюю точку симулятора
func (c *Config) Home() common.Location {
	return common.Location{
		Lat:   c.Vehicle.HomeLat,
		Lon:   c.Vehicle.HomeLon,
		Alt:   c.Vehicle.HomeAlt,
		Frame: common.FrameGlobal,
	}
}

// TelemetryAttributes разбирает имена атрибутов телеметрии из конфига
func (c *Config) TelemetryAttributes() ([]vehicle.Attribute, error) {
	attributes := make([]vehicle.Attribute, 0, len(c.Telemetry.Attributes))
	for _, name := range c.Telemetry.Attributes {
		attr, err := vehicle.ParseAttribute(name)
		if err != nil {
			return nil, fmt.Errorf("telemetry.attributes: %w", err)
		}
		attributes = append(attributes, attr)
	}
	return attributes, nil
}

func setDefaults(v *viper.Viper) {
	mqttDefaults := mqtt.DefaultConfig()
	linkDefaults := link.DefaultConfig()
	shellDefaults := shell.DefaultConfig()

	v.SetDefault("device.id", "")
	v.SetDefault("device.label", "DroneKit")

	v.SetDefault("vehicle.home_lat", -35.363261)
	v.SetDefault("vehicle.home_lon", 149.165230)
	v.SetDefault("vehicle.home_alt", 584.0)

	v.SetDefault("mqtt.broker", mqttDefaults.Broker)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.command_topic", mqttDefaults.CommandTopic)
	v.SetDefault("mqtt.data_topic", mqttDefaults.DataTopic)
	v.SetDefault("mqtt.status_topic", mqttDefaults.StatusTopic)
	v.SetDefault("mqtt.qos", mqttDefaults.QoS)
	v.SetDefault("mqtt.keep_alive", mqttDefaults.KeepAlive)
	v.SetDefault("mqtt.connect_timeout", mqttDefaults.ConnectTimeout)
	v.SetDefault("mqtt.heartbeat", mqttDefaults.Heartbeat)

	v.SetDefault("telemetry.period", 5*time.Second)
	v.SetDefault("telemetry.attributes", []string{"attitude", "location", "velocity", "battery", "state", "mode", "armed"})

	v.SetDefault("link.device_path", linkDefaults.DevicePath)
	v.SetDefault("link.reconnect_interval", linkDefaults.ReconnectInterval)

	v.SetDefault("shell.enabled", shellDefaults.Enabled)
	v.SetDefault("shell.timeout", shellDefaults.Timeout)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
}

// loadConfig читает config.yaml (или файл из --config), переменные
// окружения AGENT_* и флаг --log-level
func loadConfig(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlag("logging.level", flags.Lookup("log-level")); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	path, _ := flags.GetString("config")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Device.ID == "" {
		config.Device.ID = defaultDeviceID()
	}
	return &config, nil
}

// defaultDeviceID использует host id машины
func defaultDeviceID() string {
	id, err := host.HostID()
	if err != nil || id == "" {
		return fallbackDeviceID
	}
	return id
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("vehicle-agent", pflag.ContinueOnError)
	flags.String("config", "", "path to config file (default: ./config.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	return flags
}
