package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ruteri/collection-factory/factory"
	"github.com/ruteri/collection-factory/interfaces"
)

var ErrUnsupportedFormat = errors.New("unsupported config format")

// Config is the domain configuration of factoryd.
type Config struct {
	Factory     FactoryConfig     `toml:"factory" yaml:"factory"`
	Program     ProgramConfig     `toml:"program" yaml:"program"`
	Registry    RegistryConfig    `toml:"registry" yaml:"registry"`
	Runtime     RuntimeConfig     `toml:"runtime" yaml:"runtime"`
	Refunds     RefundConfig      `toml:"refunds" yaml:"refunds"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics" yaml:"diagnostics"`
	Auth        AuthConfig        `toml:"auth" yaml:"auth"`
}

type FactoryConfig struct {
	AccountID string `toml:"account_id" yaml:"account_id" validate:"required"`

	// Amounts are decimal strings in the smallest denomination.
	DeployCost      string `toml:"deploy_cost" yaml:"deploy_cost" validate:"required,numeric"`
	ContractBalance string `toml:"contract_balance" yaml:"contract_balance" validate:"required,numeric"`

	StrictReservation bool `toml:"strict_reservation" yaml:"strict_reservation"`
}

// ProgramConfig selects the program image deployed into children.
// "builtin" is the native collection program, "file" a local wasm file and
// "storage" a wasm image fetched by content id from the listed locations.
type ProgramConfig struct {
	Source           string   `toml:"source" yaml:"source" validate:"oneof=builtin file storage"`
	Path             string   `toml:"path" yaml:"path" validate:"required_if=Source file"`
	ContentID        string   `toml:"content_id" yaml:"content_id" validate:"required_if=Source storage,omitempty,len=64,hexadecimal"`
	Storage          []string `toml:"storage" yaml:"storage" validate:"required_if=Source storage,dive,uri"`
	InitMethod       string   `toml:"init_method" yaml:"init_method"`
	MemoryLimitPages uint32   `toml:"memory_limit_pages" yaml:"memory_limit_pages"`
}

type RegistryConfig struct {
	Driver string `toml:"driver" yaml:"driver" validate:"oneof=memory sqlite"`
	Path   string `toml:"path" yaml:"path" validate:"required_if=Driver sqlite"`
}

// RuntimeConfig seeds the local runtime with top-level accounts and their balances.
type RuntimeConfig struct {
	Genesis map[string]string `toml:"genesis" yaml:"genesis" validate:"dive,keys,required,endkeys,numeric"`
}

// RefundConfig selects where compensating refunds are paid.
type RefundConfig struct {
	Backend    string `toml:"backend" yaml:"backend" validate:"oneof=ledger ethereum"`
	RPCAddr    string `toml:"rpc_addr" yaml:"rpc_addr" validate:"required_if=Backend ethereum,omitempty,url"`
	PrivateKey string `toml:"private_key" yaml:"private_key" validate:"required_if=Backend ethereum,omitempty,hexadecimal"`
}

// AuthConfig lists the principals allowed to request children over HTTP, mapping each
// account to the hex SHA-256 of its bearer token ("factoryctl hash-token" prints one).
type AuthConfig struct {
	Tokens map[string]string `toml:"tokens" yaml:"tokens" validate:"dive,keys,required,endkeys,len=64,hexadecimal"`
}

type DiagnosticsConfig struct {
	Storage []string `toml:"storage" yaml:"storage" validate:"dive,uri"`
}

// Default returns a configuration that runs entirely in memory.
func Default() Config {
	return Config{
		Factory: FactoryConfig{
			AccountID:       "factory",
			DeployCost:      factory.DefaultDeployCost.String(),
			ContractBalance: factory.DefaultContractBalance.String(),
		},
		Program:  ProgramConfig{Source: "builtin"},
		Registry: RegistryConfig{Driver: "memory"},
		Refunds:  RefundConfig{Backend: "ledger"},
	}
}

// Load reads a TOML (.toml) or YAML (.yaml, .yml) file over the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("parse %s: unknown keys %v", path, undecoded)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field rules and the relations between amounts.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := interfaces.AccountID(c.Factory.AccountID).Validate(); err != nil {
		return fmt.Errorf("invalid config: factory: %w", err)
	}

	deployCost, contractBalance, err := c.Factory.Amounts()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !contractBalance.Lt(deployCost) {
		return fmt.Errorf("invalid config: contract_balance %s must be less than deploy_cost %s", contractBalance, deployCost)
	}

	for account := range c.Runtime.Genesis {
		if err := interfaces.AccountID(account).Validate(); err != nil {
			return fmt.Errorf("invalid config: genesis: %w", err)
		}
	}
	for account := range c.Auth.Tokens {
		if err := interfaces.AccountID(account).Validate(); err != nil {
			return fmt.Errorf("invalid config: auth: %w", err)
		}
	}
	return nil
}

// TokenDigests returns the configured token digests keyed by account.
func (c AuthConfig) TokenDigests() map[interfaces.AccountID]string {
	digests := make(map[interfaces.AccountID]string, len(c.Tokens))
	for account, digest := range c.Tokens {
		digests[interfaces.AccountID(account)] = digest
	}
	return digests
}

// Amounts parses the deploy cost and the contract balance.
func (c FactoryConfig) Amounts() (deployCost, contractBalance interfaces.Balance, err error) {
	if deployCost, err = interfaces.ParseBalance(c.DeployCost); err != nil {
		return deployCost, contractBalance, fmt.Errorf("deploy_cost: %w", err)
	}
	if contractBalance, err = interfaces.ParseBalance(c.ContractBalance); err != nil {
		return deployCost, contractBalance, fmt.Errorf("contract_balance: %w", err)
	}
	return deployCost, contractBalance, nil
}

// GenesisBalances parses the genesis map.
func (c RuntimeConfig) GenesisBalances() (map[interfaces.AccountID]interfaces.Balance, error) {
	balances := make(map[interfaces.AccountID]interfaces.Balance, len(c.Genesis))
	for account, raw := range c.Genesis {
		balance, err := interfaces.ParseBalance(raw)
		if err != nil {
			return nil, fmt.Errorf("genesis %s: %w", account, err)
		}
		balances[interfaces.AccountID(account)] = balance
	}
	return balances, nil
}

// StorageLocations parses storage URIs.
func StorageLocations(uris []string) ([]interfaces.StorageBackendLocation, error) {
	locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
	for _, uri := range uris {
		location, err := interfaces.ParseStorageLocation(uri)
		if err != nil {
			return nil, err
		}
		locations = append(locations, location)
	}
	return locations, nil
}
