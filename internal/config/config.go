// Package config handles loading and validation of application configuration.
//
// Settings are composed from layers: built-in defaults, then a configuration
// file (YAML or Java-style .properties), then command-line flags. The result
// is a plain value that is not modified after Compose returns.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gzillgi/splunkutils/internal/chunker"
	"github.com/gzillgi/splunkutils/internal/destination"
	"github.com/gzillgi/splunkutils/internal/forwarder"
	"github.com/gzillgi/splunkutils/internal/source"
)

const (
	// DefaultProtocol is the scheme used when no URL override is given.
	DefaultProtocol = "http:"
	// DefaultServer is the HEC host used when none is configured.
	DefaultServer = "localhost"
	// DefaultPort is the HEC port used when none is configured.
	DefaultPort = "8088"
	// DefaultEndpoint is the raw collector path, without a leading slash.
	DefaultEndpoint = "services/collector/raw/1.0"
	// DefaultFile is read when no configuration file is named explicitly.
	DefaultFile = "splunkutils.properties"
)

var (
	// ErrMissingToken is returned when no HEC token is configured.
	ErrMissingToken = errors.New("HEC token is required")
	// ErrMissingDestination is returned when neither a URL nor protocol, server and port are configured.
	ErrMissingDestination = errors.New("HEC destination is required: set url or protocol, server and port")
	// ErrInvalidBlockSize is returned for a block size outside (0, forwarder.MaxPayloadBytes].
	ErrInvalidBlockSize = errors.New("invalid upload block size")
	// ErrMissingInput is returned when a file transfer has no input path.
	ErrMissingInput = errors.New("input file is required")
	// ErrUnsupportedFormat is returned for a configuration file with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported configuration file format")
)

//go:embed config.template.yml
var configTemplate string

// Config is the composed, immutable application configuration.
type Config struct {
	Protocol string
	Server   string
	Port     string
	Endpoint string
	// URL, when set, replaces protocol, server, port and endpoint.
	URL string

	Token      string
	Index      string
	Source     string
	SourceType string

	InputFile      string
	BlockSize      int
	SplitOversized bool
	Gzip           bool
	KeepAlive      bool
	ClientTimeout  time.Duration
	JournalDir     string
	AWSRegion      string

	// Journal files older than these many days are deleted or gzipped; zero keeps them.
	JournalMaxAge      int
	JournalCompressAge int
}

// Layer holds the settings one source provides. A nil field leaves the value
// from earlier layers untouched.
type Layer struct {
	Protocol *string
	Server   *string
	Port     *string
	Endpoint *string
	URL      *string

	Token      *string
	Index      *string
	Source     *string
	SourceType *string

	InputFile      *string
	BlockSize      *int
	SplitOversized *bool
	Gzip           *bool
	KeepAlive      *bool
	ClientTimeout  *time.Duration
	JournalDir     *string
	AWSRegion      *string

	JournalMaxAge      *int
	JournalCompressAge *int
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Protocol:  DefaultProtocol,
		Server:    DefaultServer,
		Port:      DefaultPort,
		Endpoint:  DefaultEndpoint,
		BlockSize: chunker.DefaultBlockSize,
	}
}

// Compose applies layers to base in order; later layers win.
func Compose(base Config, layers ...Layer) Config {
	c := base
	for _, l := range layers {
		setString(&c.Protocol, l.Protocol)
		setString(&c.Server, l.Server)
		setString(&c.Port, l.Port)
		setString(&c.Endpoint, l.Endpoint)
		setString(&c.URL, l.URL)
		setString(&c.Token, l.Token)
		setString(&c.Index, l.Index)
		setString(&c.Source, l.Source)
		setString(&c.SourceType, l.SourceType)
		setString(&c.InputFile, l.InputFile)
		setString(&c.JournalDir, l.JournalDir)
		setString(&c.AWSRegion, l.AWSRegion)
		if l.BlockSize != nil {
			c.BlockSize = *l.BlockSize
		}
		if l.JournalMaxAge != nil {
			c.JournalMaxAge = *l.JournalMaxAge
		}
		if l.JournalCompressAge != nil {
			c.JournalCompressAge = *l.JournalCompressAge
		}
		if l.SplitOversized != nil {
			c.SplitOversized = *l.SplitOversized
		}
		if l.Gzip != nil {
			c.Gzip = *l.Gzip
		}
		if l.KeepAlive != nil {
			c.KeepAlive = *l.KeepAlive
		}
		if l.ClientTimeout != nil {
			c.ClientTimeout = *l.ClientTimeout
		}
	}
	return c
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks the settings every HEC operation needs.
func (c Config) Validate() error {
	if c.Token == "" {
		return ErrMissingToken
	}

	if c.URL != "" {
		if err := validateHECURL(c.URL); err != nil {
			return fmt.Errorf("invalid HEC URL: %w", err)
		}
	} else {
		if c.Protocol == "" || c.Server == "" || c.Port == "" {
			return ErrMissingDestination
		}
		switch strings.TrimSuffix(c.Protocol, ":") {
		case "http", "https":
		default:
			return fmt.Errorf("invalid protocol %q: must be http or https", c.Protocol)
		}
		if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
			return fmt.Errorf("invalid port %q", c.Port)
		}
	}

	if maxBlock := c.MaxBlockSize(); c.BlockSize <= 0 || c.BlockSize > maxBlock {
		return fmt.Errorf("%w: %d (must be between 1 and %d)", ErrInvalidBlockSize, c.BlockSize, maxBlock)
	}
	if c.ClientTimeout < 0 {
		return fmt.Errorf("invalid client timeout %s", c.ClientTimeout)
	}
	if c.JournalMaxAge < 0 || c.JournalCompressAge < 0 {
		return fmt.Errorf("journal retention ages must not be negative")
	}
	return nil
}

// MaxBlockSize is the largest block size whose chunks always fit in one HEC
// request. A split piece of an oversized record is sent with a terminator
// appended, so split mode leaves one byte for it.
func (c Config) MaxBlockSize() int {
	if c.SplitOversized {
		return forwarder.MaxPayloadBytes - 1
	}
	return forwarder.MaxPayloadBytes
}

// ValidateInput checks that the input file is set and, for a local path, that
// it exists and can be read.
func (c Config) ValidateInput() error {
	if c.InputFile == "" {
		return ErrMissingInput
	}
	loc, err := source.Parse(c.InputFile)
	if err != nil {
		return err
	}
	return source.CheckLocal(loc)
}

// validateHECURL validates the HEC URL format
func validateHECURL(hecURL string) error {
	u, err := url.Parse(hecURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("HEC URL must use http or https scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("HEC URL must include host")
	}
	return nil
}

// Destination resolves the HEC destination from the composed settings.
func (c Config) Destination() destination.Destination {
	return destination.Resolve(c.Protocol, c.Server, c.Port, c.Endpoint, destination.Overrides{
		URL:        c.URL,
		Source:     c.Source,
		SourceType: c.SourceType,
		Index:      c.Index,
	})
}

// Uploader returns the uploader settings. sink may be nil.
func (c Config) Uploader(sink forwarder.Sink) forwarder.Config {
	return forwarder.Config{
		Destination:    c.Destination(),
		Token:          c.Token,
		BlockSize:      c.BlockSize,
		SplitOversized: c.SplitOversized,
		UseGzip:        c.Gzip,
		KeepAlive:      c.KeepAlive,
		ClientTimeout:  c.ClientTimeout,
		Sink:           sink,
		Opener:         &source.Opener{Region: c.AWSRegion},
	}
}

// LogValue renders the configuration for logging with the token redacted.
func (c Config) LogValue() slog.Value {
	token := ""
	if c.Token != "" {
		token = "[REDACTED]"
	}
	return slog.GroupValue(
		slog.String("url", c.Destination().URL()),
		slog.String("token", token),
		slog.String("input_file", c.InputFile),
		slog.Int("block_size", c.BlockSize),
		slog.Bool("gzip", c.Gzip),
		slog.Bool("keep_alive", c.KeepAlive),
		slog.Bool("split_oversized", c.SplitOversized),
		slog.Duration("client_timeout", c.ClientTimeout),
		slog.String("journal_dir", c.JournalDir),
		slog.Int("journal_max_age_days", c.JournalMaxAge),
		slog.Int("journal_compress_age_days", c.JournalCompressAge),
	)
}

// LoadFile reads a configuration layer from path. The format is chosen by
// extension: .yml and .yaml are YAML, .properties is a Java properties file.
func LoadFile(path string) (Layer, error) {
	// #nosec G304 -- path is provided by the user via the --config flag.
	data, err := os.ReadFile(path)
	if err != nil {
		return Layer{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var l Layer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		l, err = parseYAML(data)
	case ".properties":
		l, err = parseProperties(data)
	default:
		return Layer{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return Layer{}, fmt.Errorf("%s: %w", path, err)
	}

	slog.Info("loaded configuration", "file", path)
	return l, nil
}

// LoadOptional reads path like LoadFile, but a missing file yields an empty
// layer and a warning instead of an error.
func LoadOptional(path string) (Layer, error) {
	l, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("configuration file not found, using defaults", "file", path)
		return Layer{}, nil
	}
	return l, err
}

// GetTemplate returns the embedded YAML configuration template.
func GetTemplate() string {
	return configTemplate
}
