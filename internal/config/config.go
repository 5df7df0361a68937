package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/squadwarden/warden/internal/autoswitch"
	"github.com/squadwarden/warden/internal/balance"
	"github.com/squadwarden/warden/internal/nextlayer"
	"github.com/squadwarden/warden/internal/rcon"
	"github.com/squadwarden/warden/internal/rotation"
	"github.com/squadwarden/warden/internal/vehicleclaims"
)

// FileName is the config file looked up in the config directory.
const FileName = "warden.cfg.json"

// ServerConfig holds the log source and polling settings
type ServerConfig struct {
	Name         string        `json:"name" mapstructure:"name"`
	LogPath      string        `json:"logPath" mapstructure:"logPath"`
	FromStart    bool          `json:"fromStart" mapstructure:"fromStart"`
	DryRun       bool          `json:"dryRun" mapstructure:"dryRun"`
	PollInterval time.Duration `json:"pollInterval" mapstructure:"pollInterval"`
	TailInterval time.Duration `json:"tailInterval" mapstructure:"tailInterval"`
	// ClockSkew is how far server log timestamps may trail warden's clock.
	ClockSkew    time.Duration `json:"clockSkew" mapstructure:"clockSkew"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// GormConfig holds the batching settings shared by the relational backends
type GormConfig struct {
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
	BatchSize     int           `json:"batchSize" mapstructure:"batchSize"`
}

// StorageConfig selects and configures the journal backend
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
	Gorm   GormConfig   `json:"gorm" mapstructure:"gorm"`
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
	// LogLevel is the lowest level exported through the log bridge.
	LogLevel     string        `json:"logLevel" mapstructure:"logLevel"`
}

// RconConfig holds outbound control channel settings
type RconConfig struct {
	QueueSize int
	Breaker   rcon.BreakerConfig
}

// MonitorConfig holds status file settings
type MonitorConfig struct {
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	StatusFile string        `json:"statusFile" mapstructure:"statusFile"`
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
}

// CatalogConfig holds extra vehicle naming tables merged into the defaults
type CatalogConfig struct {
	Aliases map[string]string   `json:"aliases" mapstructure:"aliases"`
	Groups  map[string][]string `json:"groups" mapstructure:"groups"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./wardenlogs")
	viper.SetDefault("admins", []string{})

	viper.SetDefault("server.name", "squad")
	viper.SetDefault("server.logPath", "./SquadGame/Saved/Logs/SquadGame.log")
	viper.SetDefault("server.fromStart", false)
	viper.SetDefault("server.dryRun", false)
	viper.SetDefault("server.pollInterval", "30s")
	viper.SetDefault("server.tailInterval", "250ms")
	viper.SetDefault("server.clockSkew", "2s")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "warden")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./journal")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./warden.db")
	viper.SetDefault("storage.gorm.flushInterval", "2s")
	viper.SetDefault("storage.gorm.batchSize", 500)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "squad-warden")
	viper.SetDefault("influx.bucket", "enforcement")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "squad-warden")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
	viper.SetDefault("otel.logLevel", "info")

	viper.SetDefault("rcon.queueSize", 256)
	viper.SetDefault("rcon.breaker.maxRequests", 1)
	viper.SetDefault("rcon.breaker.interval", "60s")
	viper.SetDefault("rcon.breaker.timeout", "30s")
	viper.SetDefault("rcon.breaker.failureThreshold", 5)

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.statusFile", "./warden.status.json")
	viper.SetDefault("monitor.interval", "10s")

	claims := vehicleclaims.DefaultConfig()
	viper.SetDefault("claims.enabled", claims.Enabled)
	viper.SetDefault("claims.command", claims.Command)
	viper.SetDefault("claims.secondWarningDelay", claims.SecondWarningDelay.String())
	viper.SetDefault("claims.killDelay", claims.KillDelay.String())
	viper.SetDefault("claims.lockedSquadMinSize", claims.LockedSquadMinSize)
	viper.SetDefault("claims.lockedSquadWarnWait", claims.LockedSquadWarnWait.String())
	viper.SetDefault("claims.lockedSquadWarns", claims.LockedSquadWarns)
	viper.SetDefault("claims.lockedSquadDisband", claims.LockedSquadDisband.String())
	viper.SetDefault("claims.rescueCommand", claims.RescueCommand)
	viper.SetDefault("claims.rescueTimeout", claims.RescueTimeout.String())
	viper.SetDefault("claims.aliases", map[string]string{})
	viper.SetDefault("claims.groups", map[string][]string{})

	viper.SetDefault("balance.command", "balance")
	viper.SetDefault("balance.delay", "10s")

	viper.SetDefault("autoswitch.enabled", true)
	viper.SetDefault("autoswitch.maxTeamSize", 55)
	viper.SetDefault("autoswitch.optOut", []string{})

	viper.SetDefault("nextlayer.command", "nextlayer")
	viper.SetDefault("nextlayer.broadcastInterval", "15m")

	viper.SetDefault("rotation.enabled", false)
	viper.SetDefault("rotation.file", "./layers.txt")
	viper.SetDefault("rotation.command", "newnextlayer")
	viper.SetDefault("rotation.mapRepeat", 3)
	viper.SetDefault("rotation.factionRepeat", 2)
	viper.SetDefault("rotation.invasionRepeat", 1)
	viper.SetDefault("rotation.minPlayers", 20)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetAdmins returns the primary ids allowed to run admin commands.
func GetAdmins() []string {
	return viper.GetStringSlice("admins")
}

// GetServerConfig returns the log source settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Name:         viper.GetString("server.name"),
		LogPath:      viper.GetString("server.logPath"),
		FromStart:    viper.GetBool("server.fromStart"),
		DryRun:       viper.GetBool("server.dryRun"),
		PollInterval: viper.GetDuration("server.pollInterval"),
		TailInterval: viper.GetDuration("server.tailInterval"),
		ClockSkew:    viper.GetDuration("server.clockSkew"),
	}
}

// GetStorageConfig returns the journal backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		Gorm: GormConfig{
			FlushInterval: viper.GetDuration("storage.gorm.flushInterval"),
			BatchSize:     viper.GetInt("storage.gorm.batchSize"),
		},
	}
}

// GetDatabaseConfig returns the Postgres connection settings.
func GetDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
		LogLevel:     viper.GetString("otel.logLevel"),
	}
}

// GetRconConfig returns the outbound control channel settings.
func GetRconConfig() RconConfig {
	return RconConfig{
		QueueSize: viper.GetInt("rcon.queueSize"),
		Breaker: rcon.BreakerConfig{
			Name:             "rcon",
			MaxRequests:      viper.GetUint32("rcon.breaker.maxRequests"),
			Interval:         viper.GetDuration("rcon.breaker.interval"),
			Timeout:          viper.GetDuration("rcon.breaker.timeout"),
			FailureThreshold: viper.GetUint32("rcon.breaker.failureThreshold"),
		},
	}
}

// GetMonitorConfig returns the status file settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		StatusFile: viper.GetString("monitor.statusFile"),
		Interval:   viper.GetDuration("monitor.interval"),
	}
}

// GetClaimsConfig returns the vehicle claims plugin settings.
func GetClaimsConfig() vehicleclaims.Config {
	return vehicleclaims.Config{
		Enabled:             viper.GetBool("claims.enabled"),
		Command:             viper.GetString("claims.command"),
		SecondWarningDelay:  viper.GetDuration("claims.secondWarningDelay"),
		KillDelay:           viper.GetDuration("claims.killDelay"),
		LockedSquadMinSize:  viper.GetInt("claims.lockedSquadMinSize"),
		LockedSquadWarnWait: viper.GetDuration("claims.lockedSquadWarnWait"),
		LockedSquadWarns:    viper.GetInt("claims.lockedSquadWarns"),
		LockedSquadDisband:  viper.GetDuration("claims.lockedSquadDisband"),
		RescueCommand:       viper.GetString("claims.rescueCommand"),
		RescueTimeout:       viper.GetDuration("claims.rescueTimeout"),
	}
}

// GetCatalogConfig returns the extra vehicle naming tables.
func GetCatalogConfig() CatalogConfig {
	cfg := CatalogConfig{
		Aliases: viper.GetStringMapString("claims.aliases"),
		Groups:  make(map[string][]string),
	}
	for label := range viper.GetStringMap("claims.groups") {
		cfg.Groups[label] = viper.GetStringSlice("claims.groups." + label)
	}
	return cfg
}

// GetBalanceConfig returns the balance plugin settings.
func GetBalanceConfig() balance.Config {
	return balance.Config{
		Command: viper.GetString("balance.command"),
		Delay:   viper.GetDuration("balance.delay"),
	}
}

// GetAutoSwitchConfig returns the auto switch plugin settings.
func GetAutoSwitchConfig() autoswitch.Config {
	return autoswitch.Config{
		MaxTeamSize: viper.GetInt("autoswitch.maxTeamSize"),
		OptOut:      viper.GetStringSlice("autoswitch.optOut"),
	}
}

// GetNextLayerConfig returns the next layer plugin settings.
func GetNextLayerConfig() nextlayer.Config {
	return nextlayer.Config{
		Command:           viper.GetString("nextlayer.command"),
		BroadcastInterval: viper.GetDuration("nextlayer.broadcastInterval"),
	}
}

// GetRotationConfig returns the layer rotation plugin settings.
func GetRotationConfig() rotation.Config {
	return rotation.Config{
		File:           viper.GetString("rotation.file"),
		Command:        viper.GetString("rotation.command"),
		MapRepeat:      viper.GetInt("rotation.mapRepeat"),
		FactionRepeat:  viper.GetInt("rotation.factionRepeat"),
		InvasionRepeat: viper.GetInt("rotation.invasionRepeat"),
		MinPlayers:     viper.GetInt("rotation.minPlayers"),
	}
}
