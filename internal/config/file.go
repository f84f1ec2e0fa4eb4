package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/magiconair/properties"
	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML configuration file layout.
type fileConfig struct {
	HEC    hecSection    `yaml:"hec"`
	Upload uploadSection `yaml:"upload"`
}

type hecSection struct {
	Protocol      *string        `yaml:"protocol"`
	Server        *string        `yaml:"server"`
	Port          *string        `yaml:"port"`
	Endpoint      *string        `yaml:"endpoint"`
	URL           *string        `yaml:"url"`
	Token         *string        `yaml:"token"`
	Index         *string        `yaml:"index"`
	Source        *string        `yaml:"source"`
	SourceType    *string        `yaml:"sourcetype"`
	Gzip          *bool          `yaml:"gzip"`
	KeepAlive     *bool          `yaml:"keep_alive"`
	ClientTimeout *time.Duration `yaml:"client_timeout"`
}

type uploadSection struct {
	File           *string `yaml:"file"`
	BlockSize      *int    `yaml:"block_size"`
	SplitOversized *bool   `yaml:"split_oversized"`
	JournalDir     *string `yaml:"journal_dir"`
	JournalMaxAge  *int    `yaml:"journal_max_age_days"`
	JournalCompAge *int    `yaml:"journal_compress_age_days"`
	AWSRegion      *string `yaml:"aws_region"`
}

func parseYAML(data []byte) (Layer, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Layer{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return Layer{
		Protocol:       fc.HEC.Protocol,
		Server:         fc.HEC.Server,
		Port:           fc.HEC.Port,
		Endpoint:       fc.HEC.Endpoint,
		URL:            fc.HEC.URL,
		Token:          fc.HEC.Token,
		Index:          fc.HEC.Index,
		Source:         fc.HEC.Source,
		SourceType:     fc.HEC.SourceType,
		Gzip:           fc.HEC.Gzip,
		KeepAlive:      fc.HEC.KeepAlive,
		ClientTimeout:  fc.HEC.ClientTimeout,
		InputFile:      fc.Upload.File,
		BlockSize:      fc.Upload.BlockSize,
		SplitOversized: fc.Upload.SplitOversized,
		JournalDir:     fc.Upload.JournalDir,
		AWSRegion:      fc.Upload.AWSRegion,

		JournalMaxAge:      fc.Upload.JournalMaxAge,
		JournalCompressAge: fc.Upload.JournalCompAge,
	}, nil
}

// Property keys read from .properties files.
const (
	KeyProtocol       = "hec-protocol"
	KeyServer         = "hec-server"
	KeyPort           = "hec-port"
	KeyEndpoint       = "hec-endpoint"
	KeyURL            = "hec-url"
	KeyToken          = "hec-token"
	KeyIndex          = "hec-index"
	KeySource         = "hec-source"
	KeySourceType     = "hec-sourcetype"
	KeyGzip           = "hec-gzip"
	KeyKeepAlive      = "hec-keep-alive"
	KeyClientTimeout  = "hec-client-timeout"
	KeyInputFile      = "upload-file"
	KeyBlockSize      = "upload-block-size"
	KeySplitOversized = "upload-split-oversized"
	KeyJournalDir     = "upload-journal-dir"
	KeyJournalMaxAge  = "upload-journal-max-age-days"
	KeyJournalCompAge = "upload-journal-compress-age-days"
	KeyAWSRegion      = "upload-aws-region"
)

func parseProperties(data []byte) (Layer, error) {
	p, err := properties.Load(data, properties.UTF8)
	if err != nil {
		return Layer{}, fmt.Errorf("failed to parse properties config: %w", err)
	}

	l := Layer{
		Protocol:   propString(p, KeyProtocol),
		Server:     propString(p, KeyServer),
		Port:       propString(p, KeyPort),
		Endpoint:   propString(p, KeyEndpoint),
		URL:        propString(p, KeyURL),
		Token:      propString(p, KeyToken),
		Index:      propString(p, KeyIndex),
		Source:     propString(p, KeySource),
		SourceType: propString(p, KeySourceType),
		InputFile:  propString(p, KeyInputFile),
		JournalDir: propString(p, KeyJournalDir),
		AWSRegion:  propString(p, KeyAWSRegion),
	}

	if l.Gzip, err = propBool(p, KeyGzip); err != nil {
		return Layer{}, err
	}
	if l.KeepAlive, err = propBool(p, KeyKeepAlive); err != nil {
		return Layer{}, err
	}
	if l.SplitOversized, err = propBool(p, KeySplitOversized); err != nil {
		return Layer{}, err
	}
	if l.BlockSize, err = propInt(p, KeyBlockSize); err != nil {
		return Layer{}, err
	}
	if l.JournalMaxAge, err = propInt(p, KeyJournalMaxAge); err != nil {
		return Layer{}, err
	}
	if l.JournalCompressAge, err = propInt(p, KeyJournalCompAge); err != nil {
		return Layer{}, err
	}
	if v, ok := p.Get(KeyClientTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Layer{}, fmt.Errorf("%s: %w", KeyClientTimeout, err)
		}
		l.ClientTimeout = &d
	}
	return l, nil
}

func propString(p *properties.Properties, key string) *string {
	v, ok := p.Get(key)
	if !ok {
		return nil
	}
	return &v
}

func propBool(p *properties.Properties, key string) (*bool, error) {
	v, ok := p.Get(key)
	if !ok {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &b, nil
}

func propInt(p *properties.Properties, key string) (*int, error) {
	v, ok := p.Get(key)
	if !ok {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &n, nil
}
