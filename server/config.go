package server

import (
	"bytes"
	"fmt"
	"net"
	"os/exec"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/janelia-flyem/voxcoarsen/coarsen"
	"github.com/janelia-flyem/voxcoarsen/storage"
	"github.com/janelia-flyem/voxcoarsen/vox"
)

const (
	// DefaultWebAddress is the default URL of the voxcoarsen web server
	DefaultWebAddress = "localhost:8000"

	// DefaultGridCacheEntries is the number of decoded input grids kept in memory.
	DefaultGridCacheEntries = 8

	// DefaultShutdownDelay is the number of seconds in-flight requests are given on shutdown.
	DefaultShutdownDelay = 5
)

// DefaultHost is the default most understandable alias for this server.
var DefaultHost = "localhost"

func init() {
	// Set default Host name for understandability from user perspective.
	// Assumes Linux or Mac.
	cmd := exec.Command("/bin/hostname", "-f")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		vox.Debugf("Unable to get default Host name via /bin/hostname: %v\n", err)
		return
	}
	if host := bytes.TrimSpace(out.Bytes()); len(host) != 0 {
		DefaultHost = string(host)
	}
}

// Config is the parsed TOML configuration of a voxcoarsen server.
type Config struct {
	Server  serverConfig
	Logging vox.LogConfig
	Coarsen coarsenConfig
	Store   storage.StoreConfig
	Kafka   KafkaConfig
}

type serverConfig struct {
	HTTPAddress string `toml:"httpAddress"`
	Host        string
	Note        string

	// DataRoot, if set, is the directory local dataset references are resolved
	// against.  References may not leave it.
	DataRoot string `toml:"data_root"`

	// AllowBlobs lets clients name gs:// and s3:// datasets, which are read with
	// the server's credentials and are not confined by DataRoot.
	AllowBlobs bool `toml:"allow_blobs"`

	CorsOrigins      []string `toml:"cors_origins"`
	GridCacheEntries int      `toml:"grid_cache_entries"` // negative disables
	ShutdownDelay    int      `toml:"shutdown_delay"`     // seconds
}

// coarsenConfig holds defaults used when a request omits a setting.
type coarsenConfig struct {
	Rule       string
	Boundary   string
	Background int32
	Workers    int
}

func (c coarsenConfig) config() (coarsen.Config, error) {
	var cfg coarsen.Config
	var err error
	if c.Rule != "" {
		if cfg.Rule, err = coarsen.ParseRule(c.Rule); err != nil {
			return cfg, err
		}
	}
	if c.Boundary != "" {
		if cfg.Boundary, err = coarsen.ParseBoundary(c.Boundary); err != nil {
			return cfg, err
		}
	}
	cfg.Background = c.Background
	cfg.Workers = c.Workers
	return cfg, nil
}

// DefaultConfig returns the configuration used when no TOML file is given.
func DefaultConfig() *Config {
	c := new(Config)
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = DefaultWebAddress
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.GridCacheEntries == 0 {
		c.Server.GridCacheEntries = DefaultGridCacheEntries
	}
	if c.Server.ShutdownDelay == 0 {
		c.Server.ShutdownDelay = DefaultShutdownDelay
	}
}

// Some settings in the TOML can be given as relative paths.
// This function converts them in-place to absolute paths,
// assuming the given paths were relative to the TOML file's own directory.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	var err error

	configDir := filepath.Dir(configPath)

	// [server].data_root
	if c.Server.DataRoot != "" {
		c.Server.DataRoot, err = vox.ConvertToAbsolute(c.Server.DataRoot, configDir)
		if err != nil {
			return fmt.Errorf("error converting data_root setting to absolute path")
		}
	}

	// [logging].logfile
	if c.Logging.Logfile != "" {
		c.Logging.Logfile, err = vox.ConvertToAbsolute(c.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("error converting logfile setting to absolute path")
		}
	}

	// [store].path
	if c.Store.Path != "" && !c.Store.Testing {
		c.Store.Path, err = vox.ConvertToAbsolute(c.Store.Path, configDir)
		if err != nil {
			return fmt.Errorf("error converting store path to absolute path: %q", c.Store.Path)
		}
	}
	return nil
}

// LoadConfig loads server configuration from a TOML file.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no server TOML configuration file provided")
	}
	c := new(Config)
	if _, err := toml.DecodeFile(filename, c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %v", err)
	}
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	if _, err := c.Coarsen.config(); err != nil {
		return nil, fmt.Errorf("bad [coarsen] settings in %s: %v", filename, err)
	}
	c.setDefaults()
	vox.Debugf("server config: %+v\n", *c)
	return c, nil
}

// WebServer returns the configured host name plus the port of the web server.
func (c *Config) WebServer() string {
	host := c.Server.Host
	if host == "" {
		host = DefaultHost
	}
	_, port, err := net.SplitHostPort(c.Server.HTTPAddress)
	if err != nil || port == "" {
		return host
	}
	return host + ":" + port
}
