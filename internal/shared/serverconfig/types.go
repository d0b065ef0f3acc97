package serverconfig

import (
	"fmt"
	"time"
)

type Config struct {
	JWTSecret  string           `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	MySQL      MySQLConfig      `yaml:"mysql" mapstructure:"mysql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb" mapstructure:"mongodb"`
	SQLite     SQLiteConfig     `yaml:"sqlite" mapstructure:"sqlite"`
	Postgres   PostgresConfig   `yaml:"postgres" mapstructure:"postgres"`
	HTTPServer HTTPServerConfig `yaml:"httpserver" mapstructure:"httpserver"`
	GRPCServer GRPCServerConfig `yaml:"grpcserver" mapstructure:"grpcserver"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	World      WorldConfig      `yaml:"world" mapstructure:"world"`
	Combat     CombatConfig     `yaml:"combat" mapstructure:"combat"`
	Archive    ArchiveConfig    `yaml:"archive" mapstructure:"archive"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit" mapstructure:"ratelimit"`
	WS         WSConfig         `yaml:"ws" mapstructure:"ws"`
}

// StorageConfig 选择世界仓储的后端：memory / mysql / mongodb / sqlite / postgres。
type StorageConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
}

type MySQLConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	DBName   string `yaml:"dbname" mapstructure:"dbname"`
	Charset  string `yaml:"charset" mapstructure:"charset"`
	MaxIdle  int    `yaml:"max_idle" mapstructure:"max_idle"`
	MaxConn  int    `yaml:"max_conn" mapstructure:"max_conn"`
}

type MongoDBConfig struct {
	URI      string        `yaml:"uri" mapstructure:"uri"`
	Database string        `yaml:"database" mapstructure:"database"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn" mapstructure:"dsn"`
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

type HTTPServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

func (c HTTPServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type GRPCServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

func (c GRPCServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	FileDir    string `yaml:"file_dir" mapstructure:"file_dir"`
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"` // days
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
	Level      string `yaml:"level" mapstructure:"level"` // debug/info/warn/error...
	Dev        bool   `yaml:"dev" mapstructure:"dev"`
}

// EngineConfig 是调度与并发相关的参数。
type EngineConfig struct {
	TickInterval       time.Duration `yaml:"tick_interval" mapstructure:"tick_interval"`
	DispatchWorkers    int           `yaml:"dispatch_workers" mapstructure:"dispatch_workers"`
	MaxConflictRetries int           `yaml:"max_conflict_retries" mapstructure:"max_conflict_retries"`
	UpkeepInterval     time.Duration `yaml:"upkeep_interval" mapstructure:"upkeep_interval"`
	ActorTimeout       time.Duration `yaml:"actor_timeout" mapstructure:"actor_timeout"`
}

type WorldConfig struct {
	ID     int64   `yaml:"id" mapstructure:"id"`
	Name   string  `yaml:"name" mapstructure:"name"`
	Speed  float64 `yaml:"speed" mapstructure:"speed"`
	Seed   uint64  `yaml:"seed" mapstructure:"seed"`
	Tables string  `yaml:"tables" mapstructure:"tables"` // 为空则使用内置表
}

// CombatConfig 对应战斗结算的可调常量，默认值与原版玩法一致。
type CombatConfig struct {
	ConquestThreshold float64 `yaml:"conquest_threshold" mapstructure:"conquest_threshold"`
	LootFraction      float64 `yaml:"loot_fraction" mapstructure:"loot_fraction"`
	RaidLoot          bool    `yaml:"raid_loot" mapstructure:"raid_loot"`
	LuckRange         float64 `yaml:"luck_range" mapstructure:"luck_range"`
	MaxRounds         int     `yaml:"max_rounds" mapstructure:"max_rounds"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
}

type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" mapstructure:"per_second"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

type WSConfig struct {
	Secret     string `yaml:"secret" mapstructure:"secret"` // 非空则下行帧 AES-CBC 加密
	SendBuffer int    `yaml:"send_buffer" mapstructure:"send_buffer"`
}

// ApplyDefaults 补齐未配置的字段。
func (c *Config) ApplyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Engine.TickInterval <= 0 {
		c.Engine.TickInterval = time.Second
	}
	if c.Engine.DispatchWorkers <= 0 {
		c.Engine.DispatchWorkers = 8
	}
	if c.Engine.MaxConflictRetries <= 0 {
		c.Engine.MaxConflictRetries = 3
	}
	if c.Engine.UpkeepInterval <= 0 {
		c.Engine.UpkeepInterval = time.Hour
	}
	if c.Engine.ActorTimeout <= 0 {
		c.Engine.ActorTimeout = 5 * time.Second
	}
	if c.World.ID == 0 {
		c.World.ID = 1
	}
	if c.World.Speed <= 0 {
		c.World.Speed = 1
	}
	c.Combat = c.Combat.WithDefaults()
	if c.RateLimit.PerSecond <= 0 {
		c.RateLimit.PerSecond = 5
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 64
	}
	if c.MongoDB.Timeout <= 0 {
		c.MongoDB.Timeout = 10 * time.Second
	}
}

func (c CombatConfig) WithDefaults() CombatConfig {
	if c.ConquestThreshold <= 0 {
		c.ConquestThreshold = 0.5
	}
	if c.LootFraction <= 0 {
		c.LootFraction = 0.8
	}
	if c.LuckRange <= 0 {
		c.LuckRange = 0.25
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = 16
	}
	return c
}
