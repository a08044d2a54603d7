package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/iron-fish/ironfish-bridge/contract/constants"
)

var ErrInvalidConfig = errors.New("invalid config")

type RPCConfig struct {
	Host    string        `yaml:"host" validate:"required"`
	Timeout time.Duration `yaml:"timeout"`
	RPS     float64       `yaml:"rps" validate:"gte=0"`
}

type EthereumConfig struct {
	RPC                     *RPCConfig     `yaml:"rpc" validate:"required"`
	ChainID                 string         `yaml:"chain_id" validate:"required,numeric"`
	BlockTime               time.Duration  `yaml:"block_time"`
	ExplorerURL             string         `yaml:"explorer_url" validate:"omitempty,url"`
	DepositAddress          common.Address `yaml:"deposit_address"`
	FinalityHeightRange     uint           `yaml:"finality_height_range"`
	QueryHeightRange        uint           `yaml:"query_height_range"`
	MaxBlockRangeSize       uint           `yaml:"max_block_range_size"`
	RefreshTransfersPeriod  time.Duration  `yaml:"refresh_transfers_period"`
	ConfirmationRetryDelay  time.Duration  `yaml:"confirmation_retry_delay"`
	MaxConfirmationAttempts uint           `yaml:"max_confirmation_attempts"`
}

// ConfirmationDelay is the wait before the first receipt check of a freshly
// submitted transaction: one block more than the finality range.
func (c *EthereumConfig) ConfirmationDelay() time.Duration {
	return time.Duration(c.FinalityHeightRange+1) * c.BlockTime
}

type DepositPath string

const (
	DepositPathBurn DepositPath = "burn"
	DepositPathMint DepositPath = "mint"
)

type AssetConfig struct {
	Name        string         `yaml:"-"`
	AssetID     string         `yaml:"asset_id" validate:"required,hexadecimal,len=64"`
	Contract    common.Address `yaml:"contract"`
	DepositPath DepositPath    `yaml:"deposit_path" validate:"required,oneof=burn mint"`
	PrivateKey  string         `yaml:"private_key"`
	StartBlock  uint           `yaml:"start_block"`
	StartHash   string         `yaml:"start_hash"`
}

type BridgeConfig struct {
	IronfishAddress string `yaml:"ironfish_address" validate:"required"`
	APIKey          string `yaml:"api_key" validate:"required"`
}

type WorkerConfig struct {
	Concurrency      int           `yaml:"concurrency" validate:"gte=0"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	StaleLockTimeout time.Duration `yaml:"stale_lock_timeout"`
	MaxAttempts      int           `yaml:"max_attempts" validate:"gte=0"`
}

type DBConfig struct {
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"required"`
	DB       string `yaml:"database" validate:"required"`
	SSLMode  string `yaml:"sslmode"`
}

type PresenterConfig struct {
	Host string `yaml:"host" validate:"required"`
}

type MetricsConfig struct {
	Host string `yaml:"host" validate:"required"`
}

type AlertConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Timeout   time.Duration `yaml:"timeout"`
	Threshold time.Duration `yaml:"threshold"`
}

type Config struct {
	Ethereum  *EthereumConfig         `yaml:"ethereum" validate:"required"`
	Assets    map[string]*AssetConfig `yaml:"assets" validate:"required,min=1,dive,required"`
	Bridge    *BridgeConfig           `yaml:"bridge" validate:"required"`
	Worker    *WorkerConfig           `yaml:"worker"`
	DBConfig  *DBConfig               `yaml:"postgres" validate:"required"`
	Presenter *PresenterConfig        `yaml:"presenter"`
	Metrics   *MetricsConfig          `yaml:"metrics"`
	Alerts    map[string]*AlertConfig `yaml:"alerts"`
	LogLevel  logrus.Level            `yaml:"log_level"`
}

func (cfg *Config) Asset(name string) *AssetConfig {
	return cfg.Assets[name]
}

func (cfg *Config) AssetByID(assetID string) *AssetConfig {
	assetID = strings.ToLower(assetID)
	for _, asset := range cfg.Assets {
		if asset.AssetID == assetID {
			return asset
		}
	}
	return nil
}

// AssetNames is sorted for deterministic job bootstrap order.
func (cfg *Config) AssetNames() []string {
	names := make([]string, 0, len(cfg.Assets))
	for name := range cfg.Assets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SupportedAssets maps an Iron Fish asset id to its Ethereum contract.
func (cfg *Config) SupportedAssets() map[string]common.Address {
	res := make(map[string]common.Address, len(cfg.Assets))
	for _, asset := range cfg.Assets {
		res[asset.AssetID] = asset.Contract
	}
	return res
}

func (cfg *Config) init() error {
	if cfg.Worker == nil {
		cfg.Worker = new(WorkerConfig)
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 5
	}
	if cfg.Worker.PollInterval == 0 {
		cfg.Worker.PollInterval = time.Second
	}
	if cfg.Worker.StaleLockTimeout == 0 {
		cfg.Worker.StaleLockTimeout = 4 * time.Hour
	}
	if cfg.Worker.MaxAttempts == 0 {
		cfg.Worker.MaxAttempts = 25
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{Host: ":2112"}
	}
	if cfg.DBConfig != nil && cfg.DBConfig.SSLMode == "" {
		cfg.DBConfig.SSLMode = "disable"
	}

	if eth := cfg.Ethereum; eth != nil {
		if eth.RPC != nil && eth.RPC.Timeout == 0 {
			eth.RPC.Timeout = 30 * time.Second
		}
		if eth.BlockTime == 0 {
			eth.BlockTime = constants.SepoliaBlockTime
		}
		if eth.ExplorerURL == "" && eth.ChainID == constants.SepoliaChainID {
			eth.ExplorerURL = constants.SepoliaExplorerURL
		}
		if eth.QueryHeightRange == 0 {
			eth.QueryHeightRange = 1000
		}
		if eth.MaxBlockRangeSize == 0 {
			eth.MaxBlockRangeSize = eth.QueryHeightRange
		}
		if eth.RefreshTransfersPeriod == 0 {
			eth.RefreshTransfersPeriod = 2 * time.Minute
		}
		if eth.ConfirmationRetryDelay == 0 {
			eth.ConfirmationRetryDelay = time.Minute
		}
		if eth.MaxConfirmationAttempts == 0 {
			eth.MaxConfirmationAttempts = 1440
		}
		if eth.DepositAddress == (common.Address{}) {
			return fmt.Errorf("ethereum.deposit_address is required: %w", ErrInvalidConfig)
		}
	}

	for name, asset := range cfg.Assets {
		if asset == nil {
			continue
		}
		asset.Name = name
		asset.AssetID = strings.ToLower(asset.AssetID)
		if asset.Contract == (common.Address{}) && cfg.Ethereum != nil && cfg.Ethereum.ChainID == constants.SepoliaChainID {
			asset.Contract = constants.SepoliaContracts[asset.AssetID]
		}
		if asset.Contract == (common.Address{}) {
			return fmt.Errorf("assets.%s.contract is required: %w", name, ErrInvalidConfig)
		}
	}

	for name, alert := range cfg.Alerts {
		if alert == nil {
			alert = new(AlertConfig)
			cfg.Alerts[name] = alert
		}
		if alert.Interval == 0 {
			alert.Interval = time.Minute
		}
		if alert.Timeout == 0 {
			alert.Timeout = 10 * time.Second
		}
		if alert.Threshold == 0 {
			alert.Threshold = time.Hour
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), ErrInvalidConfig)
	}
	return nil
}

func ReadConfigWithEnv(blob []byte) (*Config, error) {
	return ReadConfig([]byte(os.ExpandEnv(string(blob))))
}

func ReadConfig(blob []byte) (*Config, error) {
	cfg := &Config{LogLevel: logrus.InfoLevel}
	if err := parseYaml(cfg, blob); err != nil {
		return nil, err
	}
	if err := cfg.init(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}
