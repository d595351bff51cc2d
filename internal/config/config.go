package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `env:",prefix=SERVER_"`
	Database   DatabaseConfig   `env:",prefix=DB_"`
	AMQP       AMQPConfig       `env:",prefix=AMQP_"`
	Worker     WorkerConfig     `env:",prefix=WORKER_"`
	Limits     LimitsConfig     `env:",prefix=LIMITS_"`
	Automation AutomationConfig `env:",prefix=AUTOMATION_"`
	App        AppConfig        `env:",prefix=APP_"`
}

type ServerConfig struct {
	Port string `env:"PORT,default=8080"`
	Host string `env:"HOST,default=0.0.0.0"`
}

type DatabaseConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=postgres"`
	Password string `env:"PASSWORD,default=postgres"`
	Name     string `env:"NAME,default=outreach"`
	SSLMode  string `env:"SSL_MODE,default=disable"`
	MaxConns int    `env:"MAX_CONNS,default=25"`
}

type AMQPConfig struct {
	// Empty URL means no broker: the server runs campaigns in-process
	// through the in-memory queue.
	URL      string `env:"URL"`
	RunQueue string `env:"RUN_QUEUE,default=campaign_runs"`
}

// WorkerConfig carries the task-queue ceilings. Zero values are filled by
// Resolve with the environment profile; production ceilings are materially
// higher than development ones.
type WorkerConfig struct {
	Instances               int `env:"INSTANCES,default=0"`
	MaxConcurrentWorkflows  int `env:"MAX_CONCURRENT_WORKFLOWS,default=0"`
	MaxConcurrentActivities int `env:"MAX_CONCURRENT_ACTIVITIES,default=0"`
	MaxActivitiesPerSecond  int `env:"MAX_ACTIVITIES_PER_SECOND,default=0"`
	ShutdownGraceSeconds    int `env:"SHUTDOWN_GRACE_SECONDS,default=30"`
}

func (w WorkerConfig) ShutdownGrace() time.Duration {
	return time.Duration(w.ShutdownGraceSeconds) * time.Second
}

// LimitsConfig holds the platform-imposed hourly ceilings per operation.
// The effective bucket capacity is ceiling x safety factor; zero safety
// factor means "use the environment profile".
type LimitsConfig struct {
	ProfileVisitsPerHour int     `env:"PROFILE_VISITS_PER_HOUR,default=100"`
	InvitationsPerHour   int     `env:"INVITATIONS_PER_HOUR,default=25"`
	MessagesPerHour      int     `env:"MESSAGES_PER_HOUR,default=50"`
	PostCommentsPerHour  int     `env:"POST_COMMENTS_PER_HOUR,default=15"`
	PostReactionsPerHour int     `env:"POST_REACTIONS_PER_HOUR,default=40"`
	SafetyFactor         float64 `env:"SAFETY_FACTOR,default=0"`

	MinSpacingSeconds int `env:"MIN_SPACING_SECONDS,default=30"`
	MaxInFlight       int `env:"MAX_IN_FLIGHT,default=2"`

	GlobalMaxInFlight       int    `env:"GLOBAL_MAX_IN_FLIGHT,default=16"`
	GlobalMinSpacingSeconds int    `env:"GLOBAL_MIN_SPACING_SECONDS,default=2"`
	RefillIntervalCronSpec  string `env:"REFILL_CRON,default=0 * * * *"`
}

func (l LimitsConfig) MinSpacing() time.Duration {
	return time.Duration(l.MinSpacingSeconds) * time.Second
}

func (l LimitsConfig) GlobalMinSpacing() time.Duration {
	return time.Duration(l.GlobalMinSpacingSeconds) * time.Second
}

type AutomationConfig struct {
	BaseURL        string `env:"BASE_URL,default=http://localhost:9090"`
	APIKey         string `env:"API_KEY"`
	TimeoutSeconds int    `env:"TIMEOUT_SECONDS,default=60"`
}

func (a AutomationConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

type AppConfig struct {
	Environment string `env:"ENVIRONMENT,default=development"`
	Debug       bool   `env:"DEBUG,default=false"`
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// Load loads configuration from environment variables and applies the
// environment profile to values left unset.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	cfg.Resolve()
	return &cfg, nil
}

// Resolve fills zero-valued ceilings with the profile for the configured
// environment. Production runs a stricter rate-limit safety factor and
// much higher worker ceilings than development.
func (c *Config) Resolve() {
	prod := c.App.IsProduction()

	if c.Limits.SafetyFactor == 0 {
		if prod {
			c.Limits.SafetyFactor = 0.7
		} else {
			c.Limits.SafetyFactor = 0.9
		}
	}
	if c.Worker.Instances == 0 {
		if prod {
			c.Worker.Instances = 4
		} else {
			c.Worker.Instances = 1
		}
	}
	if c.Worker.MaxConcurrentWorkflows == 0 {
		if prod {
			c.Worker.MaxConcurrentWorkflows = 200
		} else {
			c.Worker.MaxConcurrentWorkflows = 20
		}
	}
	if c.Worker.MaxConcurrentActivities == 0 {
		if prod {
			c.Worker.MaxConcurrentActivities = 400
		} else {
			c.Worker.MaxConcurrentActivities = 40
		}
	}
	if c.Worker.MaxActivitiesPerSecond == 0 {
		if prod {
			c.Worker.MaxActivitiesPerSecond = 50
		} else {
			c.Worker.MaxActivitiesPerSecond = 10
		}
	}
}

// GetDatabaseURL returns the PostgreSQL connection URL
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}
