package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath string
	JSON       bool
	Plain      bool
	Timeout    string
	Retries    int
	NoCache    bool
	Chain      string
	RPCURL     string
}

type Settings struct {
	OutputMode string
	Timeout    time.Duration
	Retries    int

	CacheEnabled  bool
	CachePath     string
	CacheLockPath string
	BalanceTTL    time.Duration

	JournalEnabled  bool
	JournalPath     string
	JournalLockPath string

	// Enabled chain names in priority order; the first becomes the wallet's
	// current chain. Empty means the registry default (mainnet).
	Chains       []string
	RPCOverrides map[string]string
	DefaultChain string

	KeySource   string
	TEEEndpoint string
	TEESalt     string
	AgentID     string

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	ZerionAPIKey  string
	ZerionBaseURL string

	LiFiBaseURL  string
	BebopBaseURL string

	GovernorAddress string
	TimelockAddress string

	SlippageBps int64
	Simulate    bool
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Cache   struct {
		Enabled    *bool  `yaml:"enabled"`
		Path       string `yaml:"path"`
		LockPath   string `yaml:"lock_path"`
		BalanceTTL string `yaml:"balance_ttl"`
	} `yaml:"cache"`
	Journal struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"journal"`
	Chains struct {
		Enabled []string          `yaml:"enabled"`
		Default string            `yaml:"default"`
		RPC     map[string]string `yaml:"rpc"`
	} `yaml:"chains"`
	Signer struct {
		Source      string `yaml:"source"`
		TEEEndpoint string `yaml:"tee_endpoint"`
		TEESalt     string `yaml:"tee_salt"`
		AgentID     string `yaml:"agent_id"`
	} `yaml:"signer"`
	LLM struct {
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env"`
		Model     string `yaml:"model"`
	} `yaml:"llm"`
	Providers struct {
		Zerion struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
			BaseURL   string `yaml:"base_url"`
		} `yaml:"zerion"`
		LiFi struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"lifi"`
		Bebop struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"bebop"`
	} `yaml:"providers"`
	Governance struct {
		Governor string `yaml:"governor"`
		Timelock string `yaml:"timelock"`
	} `yaml:"governance"`
	Execution struct {
		SlippageBps *int64 `yaml:"slippage_bps"`
		Simulate    *bool  `yaml:"simulate"`
	} `yaml:"execution"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.BalanceTTL <= 0 {
		settings.BalanceTTL = 5 * time.Second
	}
	if settings.SlippageBps <= 0 {
		settings.SlippageBps = 50
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	cacheDir := filepath.Dir(cachePath)
	return Settings{
		OutputMode:      "json",
		Timeout:         30 * time.Second,
		Retries:         2,
		CacheEnabled:    true,
		CachePath:       cachePath,
		CacheLockPath:   lockPath,
		BalanceTTL:      5 * time.Second,
		JournalEnabled:  false,
		JournalPath:     filepath.Join(cacheDir, "journal.db"),
		JournalLockPath: filepath.Join(cacheDir, "journal.lock"),
		RPCOverrides:    map[string]string{},
		KeySource:       "auto",
		LLMModel:        "gpt-4o-mini",
		SlippageBps:     50,
		Simulate:        true,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "evmagent", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "evmagent")
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Cache.BalanceTTL != "" {
		d, err := time.ParseDuration(cfg.Cache.BalanceTTL)
		if err != nil {
			return fmt.Errorf("config cache.balance_ttl: %w", err)
		}
		settings.BalanceTTL = d
	}
	if cfg.Journal.Enabled != nil {
		settings.JournalEnabled = *cfg.Journal.Enabled
	}
	if cfg.Journal.Path != "" {
		settings.JournalPath = cfg.Journal.Path
	}
	if cfg.Journal.LockPath != "" {
		settings.JournalLockPath = cfg.Journal.LockPath
	}
	if len(cfg.Chains.Enabled) > 0 {
		settings.Chains = cfg.Chains.Enabled
	}
	if cfg.Chains.Default != "" {
		settings.DefaultChain = strings.ToLower(cfg.Chains.Default)
	}
	for name, url := range cfg.Chains.RPC {
		settings.RPCOverrides[strings.ToLower(name)] = url
	}
	if cfg.Signer.Source != "" {
		settings.KeySource = strings.ToLower(cfg.Signer.Source)
	}
	if cfg.Signer.TEEEndpoint != "" {
		settings.TEEEndpoint = cfg.Signer.TEEEndpoint
	}
	if cfg.Signer.TEESalt != "" {
		settings.TEESalt = cfg.Signer.TEESalt
	}
	if cfg.Signer.AgentID != "" {
		settings.AgentID = cfg.Signer.AgentID
	}
	if cfg.LLM.BaseURL != "" {
		settings.LLMBaseURL = cfg.LLM.BaseURL
	}
	if cfg.LLM.APIKey != "" {
		settings.LLMAPIKey = cfg.LLM.APIKey
	}
	if cfg.LLM.APIKeyEnv != "" {
		settings.LLMAPIKey = os.Getenv(cfg.LLM.APIKeyEnv)
	}
	if cfg.LLM.Model != "" {
		settings.LLMModel = cfg.LLM.Model
	}
	if cfg.Providers.Zerion.APIKey != "" {
		settings.ZerionAPIKey = cfg.Providers.Zerion.APIKey
	}
	if cfg.Providers.Zerion.APIKeyEnv != "" {
		settings.ZerionAPIKey = os.Getenv(cfg.Providers.Zerion.APIKeyEnv)
	}
	if cfg.Providers.Zerion.BaseURL != "" {
		settings.ZerionBaseURL = cfg.Providers.Zerion.BaseURL
	}
	if cfg.Providers.LiFi.BaseURL != "" {
		settings.LiFiBaseURL = cfg.Providers.LiFi.BaseURL
	}
	if cfg.Providers.Bebop.BaseURL != "" {
		settings.BebopBaseURL = cfg.Providers.Bebop.BaseURL
	}
	if cfg.Governance.Governor != "" {
		settings.GovernorAddress = cfg.Governance.Governor
	}
	if cfg.Governance.Timelock != "" {
		settings.TimelockAddress = cfg.Governance.Timelock
	}
	if cfg.Execution.SlippageBps != nil {
		settings.SlippageBps = *cfg.Execution.SlippageBps
	}
	if cfg.Execution.Simulate != nil {
		settings.Simulate = *cfg.Execution.Simulate
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("EVMAGENT_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("EVMAGENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("EVMAGENT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("EVMAGENT_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("EVMAGENT_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("EVMAGENT_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("EVMAGENT_JOURNAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.JournalEnabled = b
		}
	}
	if v := os.Getenv("EVMAGENT_CHAINS"); v != "" {
		parts := strings.Split(v, ",")
		chains := make([]string, 0, len(parts))
		for _, part := range parts {
			if name := strings.ToLower(strings.TrimSpace(part)); name != "" {
				chains = append(chains, name)
			}
		}
		if len(chains) > 0 {
			settings.Chains = chains
		}
	}
	if v := os.Getenv("EVMAGENT_DEFAULT_CHAIN"); v != "" {
		settings.DefaultChain = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("EVMAGENT_KEY_SOURCE"); v != "" {
		settings.KeySource = strings.ToLower(v)
	}
	if v := os.Getenv("EVMAGENT_TEE_ENDPOINT"); v != "" {
		settings.TEEEndpoint = v
	}
	if v := os.Getenv("EVMAGENT_TEE_SALT"); v != "" {
		settings.TEESalt = v
	}
	if v := os.Getenv("EVMAGENT_AGENT_ID"); v != "" {
		settings.AgentID = v
	}
	if v := os.Getenv("EVMAGENT_LLM_BASE_URL"); v != "" {
		settings.LLMBaseURL = v
	}
	if v := os.Getenv("EVMAGENT_LLM_API_KEY"); v != "" {
		settings.LLMAPIKey = v
	}
	if v := os.Getenv("EVMAGENT_LLM_MODEL"); v != "" {
		settings.LLMModel = v
	}
	if v := os.Getenv("EVMAGENT_ZERION_API_KEY"); v != "" {
		settings.ZerionAPIKey = v
	}
	if v := os.Getenv("EVMAGENT_ZERION_BASE_URL"); v != "" {
		settings.ZerionBaseURL = v
	}
	if v := os.Getenv("EVMAGENT_LIFI_BASE_URL"); v != "" {
		settings.LiFiBaseURL = v
	}
	if v := os.Getenv("EVMAGENT_BEBOP_BASE_URL"); v != "" {
		settings.BebopBaseURL = v
	}
	if v := os.Getenv("EVMAGENT_GOVERNOR"); v != "" {
		settings.GovernorAddress = v
	}
	if v := os.Getenv("EVMAGENT_TIMELOCK"); v != "" {
		settings.TimelockAddress = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if strings.TrimSpace(flags.Chain) != "" {
		settings.DefaultChain = strings.ToLower(strings.TrimSpace(flags.Chain))
	}
	if strings.TrimSpace(flags.RPCURL) != "" && settings.DefaultChain != "" {
		settings.RPCOverrides[settings.DefaultChain] = strings.TrimSpace(flags.RPCURL)
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}
