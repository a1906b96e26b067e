package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every environment override, e.g. NIGHTCUP_SERVER_PORT.
const EnvPrefix = "NIGHTCUP_"

type Config struct {
	Server      ServerConfig      `toml:"server" envPrefix:"SERVER_"`
	Competition CompetitionConfig `toml:"competition" envPrefix:"COMPETITION_"`
	Standings   StandingsConfig   `toml:"standings" envPrefix:"STANDINGS_"`
	Match       MatchConfig       `toml:"match" envPrefix:"MATCH_"`
}

type ServerConfig struct {
	Name      string `toml:"name" env:"NAME"`
	Port      int    `toml:"port" env:"PORT"`
	MaxRelays int    `toml:"max_relays" env:"MAX_RELAYS"`

	// logging configuration
	LogToFile bool `toml:"log_to_file" env:"LOG_TO_FILE"`

	Admins        []string `toml:"admins" env:"ADMINS" envSeparator:","`
	MaxSpectators int      `toml:"max_spectators" env:"MAX_SPECTATORS"`

	// chat and commands
	ChatPrefix       string `toml:"chat_prefix" env:"CHAT_PREFIX"`
	CommandPrefix    string `toml:"command_prefix" env:"COMMAND_PREFIX"`
	CommandsDir      string `toml:"commands_dir" env:"COMMANDS_DIR"`
	CommandTimeoutMs int    `toml:"command_timeout_ms" env:"COMMAND_TIMEOUT_MS"`

	// http status api, disabled when empty
	HTTPAddr       string `toml:"http_addr" env:"HTTP_ADDR"`
	AdminTokenHash string `toml:"admin_token_hash" env:"ADMIN_TOKEN_HASH"`
}

type CompetitionConfig struct {
	TimeUntilTA         int      `toml:"time_until_ta" env:"TIME_UNTIL_TA"`
	TALength            int      `toml:"ta_length" env:"TA_LENGTH"`
	TimeUntilKO         int      `toml:"time_until_ko" env:"TIME_UNTIL_KO"`
	TAWarmupDuration    int      `toml:"ta_warmup_duration" env:"TA_WARMUP_DURATION"`
	KOWarmupDuration    int      `toml:"ko_warmup_duration" env:"KO_WARMUP_DURATION"`
	FinishTimeout       int      `toml:"finish_timeout" env:"FINISH_TIMEOUT"`
	QualifiedPercentage int      `toml:"qualified_percentage" env:"QUALIFIED_PERCENTAGE"`
	RestoreDelay        int      `toml:"restore_delay" env:"RESTORE_DELAY"`
	KickWhenFull        bool     `toml:"kick_when_full" env:"KICK_WHEN_FULL"`
	TAScript            string   `toml:"ta_script" env:"TA_SCRIPT"`
	KOScript            string   `toml:"ko_script" env:"KO_SCRIPT"`
	Whitelist           []string `toml:"whitelist" env:"WHITELIST" envSeparator:","`
}

type StandingsConfig struct {
	TopEntries      int     `toml:"top_entries" env:"TOP_ENTRIES"`
	RecordAmount    int     `toml:"record_amount" env:"RECORD_AMOUNT"`
	Height          float64 `toml:"height" env:"HEIGHT"`
	PerformanceMode bool    `toml:"performance_mode" env:"PERFORMANCE_MODE"`
}

type MatchConfig struct {
	Script       string     `toml:"script" env:"SCRIPT"`
	RequiredMaps int        `toml:"required_maps" env:"REQUIRED_MAPS"`
	Maps         []MatchMap `toml:"maps"`
}

type MatchMap struct {
	UID           string `toml:"uid"`
	Name          string `toml:"name"`
	FinishTimeout int    `toml:"finish_timeout"`
}

// Slots returns how many standings rows fit into the widget.
func (s StandingsConfig) Slots() int {
	fit := int(math.Floor((s.Height - 5.5) / 3.3))
	if fit < 0 {
		fit = 0
	}
	return min(fit, s.RecordAmount)
}

func (s ServerConfig) CommandTimeout() time.Duration {
	return time.Duration(s.CommandTimeoutMs) * time.Millisecond
}

func (s ServerConfig) IsAdmin(login string) bool {
	for _, admin := range s.Admins {
		if admin == login {
			return true
		}
	}
	return false
}

func LoadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	meta, err := toml.Decode(string(data), &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults(meta)

	if err := env.ParseWithOptions(&config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with every default applied, as if an empty
// file had been loaded.
func Default() *Config {
	var config Config
	config.applyDefaults(toml.MetaData{})
	return &config
}

func (c *Config) applyDefaults(meta toml.MetaData) {
	if c.Server.Name == "" {
		c.Server.Name = "NightCup"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5001
	}
	if c.Server.MaxRelays == 0 {
		c.Server.MaxRelays = 1
	}
	if c.Server.MaxSpectators == 0 {
		c.Server.MaxSpectators = 32
	}
	if c.Server.ChatPrefix == "" {
		c.Server.ChatPrefix = "$fffRPG $036NIGHTCUP $fff- $z$fff$s"
	}
	if c.Server.CommandPrefix == "" {
		c.Server.CommandPrefix = "//"
	}
	if c.Server.CommandsDir == "" {
		c.Server.CommandsDir = "scripts/commands"
	}
	if c.Server.CommandTimeoutMs == 0 {
		c.Server.CommandTimeoutMs = 5000
	}

	// zero disables a countdown, so only fill in keys absent from the file
	comp := &c.Competition
	defaultInt(meta, &comp.TimeUntilTA, 60, "competition", "time_until_ta")
	defaultInt(meta, &comp.TALength, 2700, "competition", "ta_length")
	defaultInt(meta, &comp.TimeUntilKO, 600, "competition", "time_until_ko")
	defaultInt(meta, &comp.TAWarmupDuration, 60, "competition", "ta_warmup_duration")
	defaultInt(meta, &comp.KOWarmupDuration, 60, "competition", "ko_warmup_duration")
	defaultInt(meta, &comp.FinishTimeout, 90, "competition", "finish_timeout")
	defaultInt(meta, &comp.QualifiedPercentage, 50, "competition", "qualified_percentage")
	defaultInt(meta, &comp.RestoreDelay, 5, "competition", "restore_delay")
	if !meta.IsDefined("competition", "kick_when_full") {
		comp.KickWhenFull = true
	}
	if comp.TAScript == "" {
		comp.TAScript = "TimeAttack.Script.txt"
	}
	if comp.KOScript == "" {
		comp.KOScript = "Rounds.Script.txt"
	}

	if c.Standings.TopEntries == 0 {
		c.Standings.TopEntries = 5
	}
	if c.Standings.RecordAmount == 0 {
		c.Standings.RecordAmount = 30
	}
	if c.Standings.Height == 0 {
		c.Standings.Height = 113
	}

	if c.Match.Script == "" {
		c.Match.Script = "Cup.Script.txt"
	}
	if c.Match.RequiredMaps == 0 {
		c.Match.RequiredMaps = 3
	}
}

func defaultInt(meta toml.MetaData, field *int, value int, key ...string) {
	if !meta.IsDefined(key...) {
		*field = value
	}
}

func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return fmt.Errorf("server name cannot be empty")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.MaxRelays <= 0 {
		return fmt.Errorf("max_relays must be at least 1")
	}

	if c.Server.MaxSpectators < 0 {
		return fmt.Errorf("max_spectators cannot be negative")
	}

	if c.Server.CommandTimeoutMs <= 0 {
		return fmt.Errorf("command_timeout_ms must be positive")
	}

	if err := validateCountdown("time_until_ta", c.Competition.TimeUntilTA); err != nil {
		return err
	}

	if err := validateCountdown("time_until_ko", c.Competition.TimeUntilKO); err != nil {
		return err
	}

	if c.Competition.QualifiedPercentage < 0 || c.Competition.QualifiedPercentage > 100 {
		return fmt.Errorf("qualified_percentage must be between 0 and 100")
	}

	if c.Competition.RestoreDelay < 0 {
		return fmt.Errorf("restore_delay cannot be negative")
	}

	for _, login := range c.Competition.Whitelist {
		if login == "" {
			return fmt.Errorf("whitelist cannot contain empty logins")
		}
	}

	if c.Standings.TopEntries <= 0 {
		return fmt.Errorf("standings top_entries must be at least 1")
	}

	if c.Standings.Slots() < c.Standings.TopEntries {
		return fmt.Errorf("standings height %.1f fits %d rows, fewer than top_entries %d",
			c.Standings.Height, c.Standings.Slots(), c.Standings.TopEntries)
	}

	if c.Match.RequiredMaps <= 0 {
		return fmt.Errorf("match required_maps must be at least 1")
	}

	if len(c.Match.Maps) > 0 && len(c.Match.Maps) < c.Match.RequiredMaps {
		return fmt.Errorf("match needs at least %d maps, got %d", c.Match.RequiredMaps, len(c.Match.Maps))
	}

	for i, m := range c.Match.Maps {
		if m.UID == "" {
			return fmt.Errorf("match map %d has no uid", i+1)
		}
	}

	return nil
}

func validateCountdown(name string, seconds int) error {
	if seconds == 0 || seconds == -1 || seconds >= 5 {
		return nil
	}
	return fmt.Errorf("%s can not be shorter than 5 seconds", name)
}
