package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	icommon "github.com/goran-ethernal/FAssetIndexor/internal/common"
	"github.com/goran-ethernal/FAssetIndexor/internal/logger"
)

// Reindex strategy names accepted in IndexerConfig.Reindex.Type.
const (
	ReindexBack = "back"
	ReindexRace = "race"
)

// Supported underlying chain kinds.
const (
	UnderlyingXRP  = "xrp"
	UnderlyingDoge = "doge"
)

// Config represents the complete configuration of the FAsset indexer.
type Config struct {
	// Chain describes the EVM chain and the contracts deployed on it
	Chain ChainConfig `yaml:"chain" json:"chain" toml:"chain"`

	// DB contains the database configuration shared by every track of this process
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`

	// Indexer contains the event indexer knobs
	Indexer IndexerConfig `yaml:"indexer" json:"indexer" toml:"indexer"`

	// Underlying lists the non-EVM chains tracked by the "track" command
	Underlying []UnderlyingConfig `yaml:"underlying,omitempty" json:"underlying,omitempty" toml:"underlying,omitempty"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// ChainConfig represents the EVM chain the indexer is bound to.
type ChainConfig struct {
	// Name is the logical chain name recorded in the database on first start (e.g. "coston2")
	Name string `yaml:"name" json:"name" toml:"name"`

	// RPCURL is the EVM JSON-RPC endpoint URL
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// RPCAPIKey is sent as the x-apikey header when set
	RPCAPIKey string `yaml:"rpc_api_key,omitempty" json:"rpc_api_key,omitempty" toml:"rpc_api_key,omitempty"`

	// Retry enables in-client RPC retries with exponential backoff.
	// Unset means one attempt per request; the runner retries the whole step.
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`

	// Contracts holds the fixed, well-known contract addresses
	Contracts ContractsConfig `yaml:"contracts" json:"contracts" toml:"contracts"`
}

// ContractsConfig holds the addresses of contracts whose logs are classified by address.
type ContractsConfig struct {
	AssetManager     string `yaml:"asset_manager" json:"asset_manager" toml:"asset_manager"`
	FAsset           string `yaml:"fasset" json:"fasset" toml:"fasset"`
	PriceReader      string `yaml:"price_reader,omitempty" json:"price_reader,omitempty" toml:"price_reader,omitempty"`
	CoreVaultManager string `yaml:"core_vault_manager,omitempty" json:"core_vault_manager,omitempty" toml:"core_vault_manager,omitempty"` //nolint:lll
}

// AssetManagerAddress returns the parsed asset manager address.
func (c ContractsConfig) AssetManagerAddress() common.Address {
	return common.HexToAddress(c.AssetManager)
}

// FAssetAddress returns the parsed fasset token address.
func (c ContractsConfig) FAssetAddress() common.Address {
	return common.HexToAddress(c.FAsset)
}

// PriceReaderAddress returns the parsed price reader address or the zero address.
func (c ContractsConfig) PriceReaderAddress() common.Address {
	return common.HexToAddress(c.PriceReader)
}

// CoreVaultManagerAddress returns the parsed core vault manager address or the zero address.
func (c ContractsConfig) CoreVaultManagerAddress() common.Address {
	return common.HexToAddress(c.CoreVaultManager)
}

// RetryConfig represents RPC retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff icommon.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff icommon.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = icommon.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = icommon.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// Maintenance contains optional scheduled maintenance settings
	Maintenance *MaintenanceConfig `yaml:"maintenance,omitempty" json:"maintenance,omitempty" toml:"maintenance,omitempty"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
	if d.Maintenance != nil {
		d.Maintenance.ApplyDefaults()
	}
}

// Validate checks the database settings.
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("db.path is required")
	}
	if !slices.Contains([]string{"WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY"}, d.JournalMode) {
		return fmt.Errorf("db.journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}
	if !slices.Contains([]string{"FULL", "NORMAL", "OFF"}, d.Synchronous) {
		return fmt.Errorf("db.synchronous must be one of: FULL, NORMAL, OFF")
	}
	if d.Maintenance != nil {
		if err := d.Maintenance.Validate(); err != nil {
			return fmt.Errorf("db.maintenance: %w", err)
		}
	}
	return nil
}

// MaintenanceConfig configures scheduled database maintenance.
type MaintenanceConfig struct {
	// Enabled controls whether scheduled maintenance runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// Schedule is a cron spec (seconds field optional), e.g. "@every 30m" or "0 0 * * * *"
	Schedule string `yaml:"schedule" json:"schedule" toml:"schedule"`

	// WALCheckpointMode controls the WAL checkpoint aggressiveness
	// Options: PASSIVE, FULL, RESTART, TRUNCATE
	WALCheckpointMode string `yaml:"wal_checkpoint_mode" json:"wal_checkpoint_mode" toml:"wal_checkpoint_mode"`
}

// ApplyDefaults sets default values for optional maintenance configuration fields.
func (m *MaintenanceConfig) ApplyDefaults() {
	if m.Schedule == "" {
		m.Schedule = "@every 30m"
	}
	if m.WALCheckpointMode == "" {
		m.WALCheckpointMode = "TRUNCATE"
	}
}

// Validate checks if the maintenance configuration is valid.
func (m *MaintenanceConfig) Validate() error {
	validModes := []string{"PASSIVE", "FULL", "RESTART", "TRUNCATE"}
	if !slices.Contains(validModes, m.WALCheckpointMode) {
		return fmt.Errorf("wal_checkpoint_mode: must be one of: PASSIVE, FULL, RESTART, TRUNCATE")
	}
	return nil
}

// IndexerConfig holds the knobs of the watermark driven event indexer.
type IndexerConfig struct {
	// MinBlock is the minimum indexable block, recorded in the database on first start
	MinBlock uint64 `yaml:"min_block" json:"min_block" toml:"min_block"`

	// BatchSize is the block span of a single log fetch
	BatchSize uint64 `yaml:"batch_size" json:"batch_size" toml:"batch_size"`

	// BlockOffset is the number of blocks the indexer stays behind the chain head
	BlockOffset uint64 `yaml:"block_offset" json:"block_offset" toml:"block_offset"`

	// PollInterval is the sleep between iterations once caught up
	PollInterval icommon.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// ErrorSleep is the sleep after a failed iteration
	ErrorSleep icommon.Duration `yaml:"error_sleep" json:"error_sleep" toml:"error_sleep"`

	// StuckThreshold is the number of consecutive failures after which the runner
	// reports the track as stuck (it keeps retrying)
	StuckThreshold int `yaml:"stuck_threshold" json:"stuck_threshold" toml:"stuck_threshold"`

	// Events restricts indexing to the given event names; empty means every known event
	Events []string `yaml:"events,omitempty" json:"events,omitempty" toml:"events,omitempty"`

	// Reindex describes an in-flight migration of the indexed event set
	Reindex *ReindexConfig `yaml:"reindex,omitempty" json:"reindex,omitempty" toml:"reindex,omitempty"`
}

// ApplyDefaults sets default values for optional indexer configuration fields.
func (i *IndexerConfig) ApplyDefaults() {
	if i.BatchSize == 0 {
		i.BatchSize = 30
	}
	if i.BlockOffset == 0 {
		i.BlockOffset = 10
	}
	if i.PollInterval.Duration == 0 {
		i.PollInterval = icommon.NewDuration(2 * time.Second) //nolint:mnd
	}
	if i.ErrorSleep.Duration == 0 {
		i.ErrorSleep = icommon.NewDuration(5 * time.Second) //nolint:mnd
	}
	if i.StuckThreshold == 0 {
		i.StuckThreshold = 10
	}
	if i.Reindex != nil {
		i.Reindex.ApplyDefaults()
	}
}

// Validate checks the indexer knobs.
func (i *IndexerConfig) Validate() error {
	if i.Reindex != nil {
		if err := i.Reindex.Validate(); err != nil {
			return fmt.Errorf("indexer.reindex: %w", err)
		}
	}
	return nil
}

// ReindexConfig is the reindex descriptor: { kind, name, eventNameDiff }.
type ReindexConfig struct {
	// Type is either "back" or "race"
	Type string `yaml:"type" json:"type" toml:"type"`

	// Name keys the watermark tracks of this migration
	Name string `yaml:"name" json:"name" toml:"name"`

	// EventNameDiff lists the event names that are retroactively indexed
	EventNameDiff []string `yaml:"event_name_diff" json:"event_name_diff" toml:"event_name_diff"`

	// StepSize bounds how many blocks the back track advances per invocation
	StepSize uint64 `yaml:"step_size" json:"step_size" toml:"step_size"`

	// NewBlocksBeforeIndex is the slack the front track needs before it is advanced
	NewBlocksBeforeIndex uint64 `yaml:"new_blocks_before_index" json:"new_blocks_before_index" toml:"new_blocks_before_index"`
}

// ApplyDefaults sets default values for the reindex knobs.
func (r *ReindexConfig) ApplyDefaults() {
	if r.StepSize == 0 {
		r.StepSize = 100
	}
	if r.NewBlocksBeforeIndex == 0 {
		r.NewBlocksBeforeIndex = 200
	}
}

// Validate checks the reindex descriptor.
func (r *ReindexConfig) Validate() error {
	if r.Type != ReindexBack && r.Type != ReindexRace {
		return fmt.Errorf("type must be one of: %s, %s", ReindexBack, ReindexRace)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(r.EventNameDiff) == 0 {
		return fmt.Errorf("event_name_diff must list at least one event")
	}
	return nil
}

// UnderlyingConfig configures one non-EVM chain tracker.
type UnderlyingConfig struct {
	// Chain is "xrp" or "doge"
	Chain string `yaml:"chain" json:"chain" toml:"chain"`

	// RPCURL is the node endpoint
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// Username and Password are sent as HTTP basic auth when set
	Username string `yaml:"username,omitempty" json:"username,omitempty" toml:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty" toml:"password,omitempty"`

	// StartBlock is the first block tracked when no watermark exists yet
	StartBlock uint64 `yaml:"start_block" json:"start_block" toml:"start_block"`

	// Confirmations is the number of blocks the tracker stays behind the node head
	Confirmations uint64 `yaml:"confirmations" json:"confirmations" toml:"confirmations"`

	// BatchSize is the number of blocks handled per iteration
	BatchSize uint64 `yaml:"batch_size" json:"batch_size" toml:"batch_size"`

	// PollInterval and ErrorSleep drive the runner of this tracker
	PollInterval icommon.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`
	ErrorSleep   icommon.Duration `yaml:"error_sleep" json:"error_sleep" toml:"error_sleep"`

	// Retry contains node request retry configuration
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// ApplyDefaults sets default values for optional underlying tracker fields.
func (u *UnderlyingConfig) ApplyDefaults() {
	u.Chain = icommon.ToLowerWithTrim(u.Chain)
	if u.Confirmations == 0 {
		u.Confirmations = 1
	}
	if u.BatchSize == 0 {
		u.BatchSize = 10
	}
	if u.PollInterval.Duration == 0 {
		u.PollInterval = icommon.NewDuration(5 * time.Second) //nolint:mnd
	}
	if u.ErrorSleep.Duration == 0 {
		u.ErrorSleep = icommon.NewDuration(10 * time.Second) //nolint:mnd
	}
	if u.Retry != nil {
		u.Retry.ApplyDefaults()
	}
}

// Validate checks the underlying tracker configuration.
func (u *UnderlyingConfig) Validate() error {
	if u.Chain != UnderlyingXRP && u.Chain != UnderlyingDoge {
		return fmt.Errorf("chain must be one of: %s, %s", UnderlyingXRP, UnderlyingDoge)
	}
	if u.RPCURL == "" {
		return fmt.Errorf("rpc_url is required")
	}
	return nil
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components: indexer, runner, scraper, classifier, storer, watermark,
	// reindex, underlying, maintenance, integrity
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[icommon.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := icommon.AllComponents[icommon.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}
		if _, valid := logger.ValidLogLevels[icommon.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if l == nil {
		return "info"
	}
	if level, ok := l.ComponentLevels[component]; ok {
		return icommon.ToLowerWithTrim(level)
	}
	return l.GetDefaultLevel()
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	if l == nil || l.DefaultLevel == "" {
		return "info"
	}
	return icommon.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l != nil && l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" || m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Chain.Retry != nil {
		c.Chain.Retry.ApplyDefaults()
	}
	c.DB.ApplyDefaults()
	c.Indexer.ApplyDefaults()

	for i := range c.Underlying {
		c.Underlying[i].ApplyDefaults()
	}

	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Chain.Name == "" {
		return fmt.Errorf("chain.name is required")
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if !common.IsHexAddress(c.Chain.Contracts.AssetManager) {
		return fmt.Errorf("chain.contracts.asset_manager must be a hex address")
	}
	if !common.IsHexAddress(c.Chain.Contracts.FAsset) {
		return fmt.Errorf("chain.contracts.fasset must be a hex address")
	}
	for name, addr := range map[string]string{
		"price_reader":       c.Chain.Contracts.PriceReader,
		"core_vault_manager": c.Chain.Contracts.CoreVaultManager,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("chain.contracts.%s must be a hex address", name)
		}
	}

	if err := c.DB.Validate(); err != nil {
		return err
	}

	if err := c.Indexer.Validate(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.Underlying))
	for i := range c.Underlying {
		if err := c.Underlying[i].Validate(); err != nil {
			return fmt.Errorf("underlying[%d]: %w", i, err)
		}
		if _, dup := seen[c.Underlying[i].Chain]; dup {
			return fmt.Errorf("underlying[%d]: duplicate chain '%s'", i, c.Underlying[i].Chain)
		}
		seen[c.Underlying[i].Chain] = struct{}{}
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}
