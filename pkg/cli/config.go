/*
Package cli facilitates building the snippet's command-line applications. It defines a [Config]
type that can be used to register common command-line flags (using the Golang flag package),
environment variable equivalents, and an optional YAML configuration file.

Values are taken from, in decreasing order of precedence: command-line flags, environment
variables, the configuration file, and built-in defaults.

# Examples

	import flag

	config, err := NewConfig(FlagAll)
	if err != nil {
		panic(err)
	}
	config.RegisterCommandLineFlags() // Adds command-line flags for the server, BLE and media.
	flag.Parse()
	config.ReadFromEnvironment()      // Fills in missing fields using environment variables
	if err := config.ReadFromFile(); err != nil {
		panic(err)
	}
	config.ApplyDefaults()

	adapter, err := config.NewAdapter()
	if err != nil {
		panic(err)
	}
	defer adapter.Close()

Use a [Flag] mask to control which [Config] fields are exposed. For example, a tool that only
talks to the Bluetooth adapter uses:

	config, err = NewConfig(FlagBLE | FlagLog)
*/
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blesnip/leaudio-snippet/internal/log"
	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
	"github.com/blesnip/leaudio-snippet/pkg/connector/ble/goble"
	"github.com/blesnip/leaudio-snippet/pkg/connector/ble/tinygo"
	"github.com/blesnip/leaudio-snippet/pkg/media"
)

// Environment variable names used are used by [Config.ReadFromEnvironment] to set common parameters.
const (
	EnvConfigFile     = "LEAUDIO_CONFIG"
	EnvListen         = "LEAUDIO_LISTEN"
	EnvRPCTimeout     = "LEAUDIO_RPC_TIMEOUT"
	EnvAnnounce       = "LEAUDIO_MDNS"
	EnvBackend        = "LEAUDIO_BACKEND"
	EnvAdapter        = "LEAUDIO_ADAPTER"
	EnvConnectTimeout = "LEAUDIO_CONNECT_TIMEOUT"
	EnvPlayer         = "LEAUDIO_PLAYER"
	EnvMediaCache     = "LEAUDIO_MEDIA_CACHE"
	EnvMediaCacheSize = "LEAUDIO_MEDIA_CACHE_SIZE"
	EnvMediaMaxSize   = "LEAUDIO_MEDIA_MAX_SIZE"
	EnvLogLevel       = "LEAUDIO_LOG_LEVEL"
)

const (
	DefaultListenAddress  = "127.0.0.1:9887"
	DefaultRPCTimeout     = 30 * time.Second
	DefaultConnectTimeout = 30 * time.Second
	DefaultLogLevel       = "info"
)

// Flag controls what options should be scanned from the command line and/or environment variables.
type Flag int

func (f Flag) isSet(other Flag) bool {
	return (f & other) == other
}

const (
	FlagServer Flag = 1 // Enable RPC server options.
	FlagBLE    Flag = 2 // Enable Bluetooth adapter options.
	FlagMedia  Flag = 4 // Enable media playback options.
	FlagLog    Flag = 8 // Enable logging options.
	FlagAll    Flag = FlagServer | FlagBLE | FlagMedia | FlagLog
)

var ErrUnknownBackend = errors.New("unknown bluetooth backend")

// Backend names a Bluetooth stack implementation.
type Backend string

const (
	BackendGoBLE  Backend = "goble"
	BackendTinyGo Backend = "tinygo"
)

// Set updates a Backend from a command-line argument.
func (b *Backend) Set(value string) error {
	switch name := Backend(strings.ToLower(strings.TrimSpace(value))); name {
	case BackendGoBLE, BackendTinyGo:
		*b = name
		return nil
	}
	return fmt.Errorf("%w '%s' (expected %s or %s)", ErrUnknownBackend, value, BackendGoBLE, BackendTinyGo)
}

func (b *Backend) String() string {
	return string(*b)
}

func (b *Backend) UnmarshalYAML(value *yaml.Node) error {
	return b.Set(value.Value)
}

// Config fields determine how the snippet server is exposed and which hardware it drives.
type Config struct {
	Flags          Flag   `yaml:"-"` // Controls which set of environment variables/CLI flags to use.
	ConfigFilename string `yaml:"-"`

	ListenAddress string        `yaml:"listen"`
	RPCTimeout    time.Duration `yaml:"rpc_timeout"`
	// Announce advertises the server over mDNS.
	Announce bool `yaml:"mdns"`

	Backend        Backend       `yaml:"backend"`
	AdapterID      string        `yaml:"adapter"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	PlayerCommand  string `yaml:"player"`
	MediaCacheDir  string `yaml:"media_cache"`
	MediaCacheSize int    `yaml:"media_cache_size"`
	MediaMaxSize   int64  `yaml:"media_max_size"`

	LogLevel string `yaml:"log_level"`
	Verbose  bool   `yaml:"-"`
}

func NewConfig(flags Flag) (*Config, error) {
	return &Config{Flags: flags}, nil
}

func (c *Config) RegisterCommandLineFlags() {
	flag.StringVar(&c.ConfigFilename, "config", "", "Load settings from YAML `file`. Defaults to $LEAUDIO_CONFIG.")
	if c.Flags.isSet(FlagServer) {
		flag.StringVar(&c.ListenAddress, "listen", "", "Serve RPCs on `address`. Defaults to $LEAUDIO_LISTEN or "+DefaultListenAddress+".")
		flag.DurationVar(&c.RPCTimeout, "rpc-timeout", 0, "Maximum execution time of an RPC. Defaults to $LEAUDIO_RPC_TIMEOUT or 30s.")
		flag.BoolVar(&c.Announce, "mdns", false, "Advertise the server over mDNS. Defaults to $LEAUDIO_MDNS.")
	}
	if c.Flags.isSet(FlagBLE) {
		flag.Var(&c.Backend, "backend", "Bluetooth `stack` (goble|tinygo). Defaults to $LEAUDIO_BACKEND or goble.")
		flag.StringVar(&c.AdapterID, "bt-adapter", "", "ID of the Bluetooth adapter to use. Defaults to $LEAUDIO_ADAPTER or hci0.")
		flag.DurationVar(&c.ConnectTimeout, "connect-timeout", 0, "Timeout of a direct GATT connection attempt. Defaults to $LEAUDIO_CONNECT_TIMEOUT or 30s.")
	}
	if c.Flags.isSet(FlagMedia) {
		flag.StringVar(&c.PlayerCommand, "player", "", "Media player `command`; {file} is replaced by the media path. Defaults to $LEAUDIO_PLAYER or '"+media.DefaultCommand+"'.")
		flag.StringVar(&c.MediaCacheDir, "media-cache", "", "`Directory` for downloaded media. Defaults to $LEAUDIO_MEDIA_CACHE.")
		flag.IntVar(&c.MediaCacheSize, "media-cache-size", 0, "Maximum number of downloaded media files to keep.")
		flag.Int64Var(&c.MediaMaxSize, "media-max-size", 0, "Maximum size of a downloaded media file in `bytes`. Defaults to $LEAUDIO_MEDIA_MAX_SIZE or 256 MiB.")
	}
	if c.Flags.isSet(FlagLog) {
		flag.StringVar(&c.LogLevel, "log-level", "", "Log `level` (none|error|warn|info|debug). Defaults to $LEAUDIO_LOG_LEVEL or info.")
		flag.BoolVar(&c.Verbose, "debug", false, "Enable verbose debugging messages (same as -log-level debug)")
	}
}

// ReadFromEnvironment populates c using environment variables. Values that are already populated
// are not overwritten.
//
// Calling ReadFromEnvironment after flag.Parse() (or other initialization method) will prevent the
// environment from overriding explicit command-line parameters and avoid potentially misleading
// debug log messages.
func (c *Config) ReadFromEnvironment() {
	if c.ConfigFilename == "" {
		c.ConfigFilename = os.Getenv(EnvConfigFile)
	}
	if c.Flags.isSet(FlagServer) {
		if c.ListenAddress == "" {
			c.ListenAddress = os.Getenv(EnvListen)
			log.Debug("Set listen address to '%s'", c.ListenAddress)
		}
		if c.RPCTimeout == 0 {
			c.RPCTimeout = durationFromEnvironment(EnvRPCTimeout)
		}
		if !c.Announce {
			c.Announce = boolFromEnvironment(EnvAnnounce)
		}
	}
	if c.Flags.isSet(FlagBLE) {
		if c.Backend == "" {
			if value := os.Getenv(EnvBackend); value != "" {
				if err := c.Backend.Set(value); err != nil {
					log.Warning("Ignoring $%s: %s", EnvBackend, err)
				} else {
					log.Debug("Set bluetooth backend to '%s'", c.Backend)
				}
			}
		}
		if c.AdapterID == "" {
			c.AdapterID = os.Getenv(EnvAdapter)
			log.Debug("Set bluetooth adapter to '%s'", c.AdapterID)
		}
		if c.ConnectTimeout == 0 {
			c.ConnectTimeout = durationFromEnvironment(EnvConnectTimeout)
		}
	}
	if c.Flags.isSet(FlagMedia) {
		if c.PlayerCommand == "" {
			c.PlayerCommand = os.Getenv(EnvPlayer)
			log.Debug("Set media player to '%s'", c.PlayerCommand)
		}
		if c.MediaCacheDir == "" {
			c.MediaCacheDir = os.Getenv(EnvMediaCache)
			log.Debug("Set media cache to '%s'", c.MediaCacheDir)
		}
		if c.MediaCacheSize == 0 {
			if value := os.Getenv(EnvMediaCacheSize); value != "" {
				size, err := strconv.Atoi(value)
				if err != nil {
					log.Warning("Ignoring $%s: %s", EnvMediaCacheSize, err)
				}
				c.MediaCacheSize = size
			}
		}
		if c.MediaMaxSize == 0 {
			if value := os.Getenv(EnvMediaMaxSize); value != "" {
				size, err := strconv.ParseInt(value, 10, 64)
				if err != nil {
					log.Warning("Ignoring $%s: %s", EnvMediaMaxSize, err)
				}
				c.MediaMaxSize = size
			}
		}
	}
	if c.Flags.isSet(FlagLog) && c.LogLevel == "" && !c.Verbose {
		c.LogLevel = os.Getenv(EnvLogLevel)
	}
}

func durationFromEnvironment(name string) time.Duration {
	value := os.Getenv(name)
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warning("Ignoring $%s: %s", name, err)
		return 0
	}
	log.Debug("Set $%s to %s", name, d)
	return d
}

func boolFromEnvironment(name string) bool {
	value, ok := os.LookupEnv(name)
	if !ok {
		return false
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		// Presence alone enables the option.
		return true
	}
	return enabled
}

// ReadFromFile fills fields that are still unset from the YAML file named by c.ConfigFilename.
// It does nothing if no file is configured.
func (c *Config) ReadFromFile() error {
	if c.ConfigFilename == "" {
		return nil
	}
	data, err := os.ReadFile(c.ConfigFilename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", c.ConfigFilename, err)
	}
	log.Debug("Loaded config file %s", c.ConfigFilename)
	c.merge(&file)
	return nil
}

func (c *Config) merge(other *Config) {
	if c.ListenAddress == "" {
		c.ListenAddress = other.ListenAddress
	}
	if c.RPCTimeout == 0 {
		c.RPCTimeout = other.RPCTimeout
	}
	c.Announce = c.Announce || other.Announce
	if c.Backend == "" {
		c.Backend = other.Backend
	}
	if c.AdapterID == "" {
		c.AdapterID = other.AdapterID
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = other.ConnectTimeout
	}
	if c.PlayerCommand == "" {
		c.PlayerCommand = other.PlayerCommand
	}
	if c.MediaCacheDir == "" {
		c.MediaCacheDir = other.MediaCacheDir
	}
	if c.MediaCacheSize == 0 {
		c.MediaCacheSize = other.MediaCacheSize
	}
	if c.MediaMaxSize == 0 {
		c.MediaMaxSize = other.MediaMaxSize
	}
	if c.LogLevel == "" && !c.Verbose {
		c.LogLevel = other.LogLevel
	}
}

// ApplyDefaults fills every field that is still unset.
func (c *Config) ApplyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if c.RPCTimeout == 0 {
		c.RPCTimeout = DefaultRPCTimeout
	}
	if c.Backend == "" {
		c.Backend = BackendGoBLE
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.PlayerCommand == "" {
		c.PlayerCommand = media.DefaultCommand
	}
	if c.MediaCacheDir == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			c.MediaCacheDir = filepath.Join(dir, "leaudio-snippet", "media")
		}
	}
	if c.MediaCacheSize <= 0 {
		c.MediaCacheSize = media.DefaultMaxEntries
	}
	if c.MediaMaxSize <= 0 {
		c.MediaMaxSize = media.DefaultMaxSize
	}
	if c.Verbose {
		c.LogLevel = "debug"
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Load runs the full configuration sequence after flag.Parse: environment, file, defaults. It
// also applies the log level.
func (c *Config) Load() error {
	c.ReadFromEnvironment()
	if err := c.ReadFromFile(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	} else if err != nil {
		log.Warning("Config file %s not found, using defaults", c.ConfigFilename)
	}
	c.ApplyDefaults()
	if c.Flags.isSet(FlagLog) {
		level, err := log.ParseLevel(c.LogLevel)
		if err != nil {
			return err
		}
		log.SetLevel(level)
	}
	return nil
}

// NewAdapter opens the configured Bluetooth adapter.
func (c *Config) NewAdapter() (ble.Adapter, error) {
	switch c.Backend {
	case BackendGoBLE, "":
		log.Debug("Opening bluetooth adapter '%s' with go-ble", c.AdapterID)
		return goble.NewAdapter(c.AdapterID)
	case BackendTinyGo:
		log.Debug("Opening bluetooth adapter '%s' with tinygo", c.AdapterID)
		return tinygo.NewAdapter(c.AdapterID)
	}
	return nil, fmt.Errorf("%w '%s'", ErrUnknownBackend, c.Backend)
}

// NewPlayer creates the configured media player. Remote media is cached in c.MediaCacheDir.
func (c *Config) NewPlayer() (*media.ExecPlayer, error) {
	var fetcher *media.Fetcher
	if c.MediaCacheDir != "" {
		var err error
		if fetcher, err = media.NewFetcher(c.MediaCacheDir, c.MediaCacheSize); err != nil {
			return nil, err
		}
		fetcher.MaxSize = c.MediaMaxSize
	}
	return media.NewExecPlayer(c.PlayerCommand, fetcher)
}
