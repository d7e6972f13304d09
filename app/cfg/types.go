package cfg

import "time"

type Cfg struct {
	// Acquisition
	StartMonth     string
	EndMonth       string
	SourceFile     string
	OutputFile     string
	RequestTimeout time.Duration

	// Database configuration
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string
	TableName  string
	NoDB       bool

	// Release cache
	RedisAddr string
	CacheTTL  time.Duration

	// Serve mode
	Serve             bool
	Port              string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

func (c *Cfg) GetSchedulerInterval() time.Duration {
	return time.Duration(c.SchedulerInterval) * time.Second
}
