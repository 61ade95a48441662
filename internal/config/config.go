package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Location LocationConfig `mapstructure:"location"`
	Arrays   []ArrayConfig  `mapstructure:"arrays"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`

	WeatherConfig  WeatherConfig  `mapstructure:"weather"`
	ForecastConfig ForecastConfig `mapstructure:"forecast"`
	StateFile      string         `mapstructure:"state_file"`
	Port           uint           `mapstructure:"port"`
	HttpLog        bool           `mapstructure:"http_log"`
}

type LocationConfig struct {
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
}

type ArrayConfig struct {
	Name          string  `mapstructure:"name"`
	Declination   float64 `mapstructure:"declination"`
	Azimuth       float64 `mapstructure:"azimuth"`
	ModulesPower  float64 `mapstructure:"modules_power"`
	Loss          float64 `mapstructure:"loss"`
	MountingPlace string  `mapstructure:"mounting_place"`
	PVTech        string  `mapstructure:"pv_tech"`
}

type WeatherConfig struct {
	Enable          bool   `mapstructure:"enable"`
	SecondaryEnable bool   `mapstructure:"secondary_enable"`
	SecondaryURL    string `mapstructure:"secondary_url"`
}

type ForecastConfig struct {
	Days                   uint `mapstructure:"days"`
	RefreshIntervalMinutes uint `mapstructure:"refresh_interval_minutes"`
	StartupRetryMinutes    uint `mapstructure:"startup_retry_minutes"`
	PVGISRefreshDays       uint `mapstructure:"pvgis_refresh_days"`
	HistoricalDays         uint `mapstructure:"historical_days"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

var arrayNameRegexp = regexp.MustCompile("^[a-z0-9_]+$")

// CheckArrayName validates an array name so it can be embedded in sensor ids
// and MQTT topics.
func CheckArrayName(name string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	if !arrayNameRegexp.MatchString(lower) {
		return "", fmt.Errorf("invalid array name %q. can only contain letters, numbers and underscores", name)
	}
	return lower, nil
}

// CheckArrays validates every configured solar array and normalizes names.
func CheckArrays(arrays []ArrayConfig) ([]ArrayConfig, error) {
	if len(arrays) == 0 {
		return nil, errors.New("at least one solar array must be configured")
	}
	seen := make(map[string]bool, len(arrays))
	out := make([]ArrayConfig, 0, len(arrays))
	for _, a := range arrays {
		name, err := CheckArrayName(a.Name)
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate array name %q", name)
		}
		seen[name] = true
		if a.Declination < 0 || a.Declination > 90 {
			return nil, fmt.Errorf("array %q: declination must be between 0 and 90", name)
		}
		if a.Azimuth < -180 || a.Azimuth > 180 {
			return nil, fmt.Errorf("array %q: azimuth must be between -180 and 180", name)
		}
		if a.ModulesPower <= 0 {
			return nil, fmt.Errorf("array %q: modules_power must be > 0 kWp", name)
		}
		if a.Loss < 0 || a.Loss > 100 {
			return nil, fmt.Errorf("array %q: loss must be between 0 and 100", name)
		}
		a.Name = name
		out = append(out, a)
	}
	return out, nil
}
