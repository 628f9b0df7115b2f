package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/accessterm/cardid-go/relay"
	"github.com/ethereum/go-ethereum/log"
	"github.com/joho/godotenv"
)

var logger = log.New("package", "cardid/config")

// Environment variables read by Load.
const (
	EnvReader      = "CARDID_READER"
	EnvTimeout     = "CARDID_TIMEOUT"
	EnvPANKey      = "CARDID_PAN_KEY"
	EnvScanAllSFI  = "CARDID_SCAN_ALL_SFI"
	EnvNATSURL     = "CARDID_NATS_URL"
	EnvNATSSubject = "CARDID_NATS_SUBJECT"
	EnvNATSToken   = "CARDID_NATS_TOKEN"
	EnvMetricsAddr = "CARDID_METRICS_ADDR"
	EnvLogLevel    = "CARDID_LOG_LEVEL"
	EnvAllow       = "CARDID_ALLOW"
	EnvPulse       = "CARDID_PULSE"
)

const DefaultTimeout = 3 * time.Second

// Config holds the defaults of the command line flags.
type Config struct {
	Reader      string
	Timeout     time.Duration
	PANKey      string
	ScanAllSFI  bool
	NATSURL     string
	NATSSubject string
	NATSToken   string
	MetricsAddr string
	LogLevel    string
	Allow       string
	Pulse       time.Duration
}

// Load reads the given env files, missing ones are skipped, then the
// environment. Variables already set win over the files.
func Load(files ...string) (*Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
		logger.Debug("env file loaded", "path", f)
	}

	c := &Config{
		Reader:      os.Getenv(EnvReader),
		PANKey:      os.Getenv(EnvPANKey),
		NATSURL:     os.Getenv(EnvNATSURL),
		NATSSubject: os.Getenv(EnvNATSSubject),
		NATSToken:   os.Getenv(EnvNATSToken),
		MetricsAddr: os.Getenv(EnvMetricsAddr),
		LogLevel:    strings.ToLower(os.Getenv(EnvLogLevel)),
		Allow:       os.Getenv(EnvAllow),
	}

	var err error
	if c.Timeout, err = duration(EnvTimeout, DefaultTimeout); err != nil {
		return nil, err
	}

	if c.Pulse, err = duration(EnvPulse, relay.DefaultPulse); err != nil {
		return nil, err
	}

	if v := os.Getenv(EnvScanAllSFI); v != "" {
		if c.ScanAllSFI, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvScanAllSFI, err)
		}
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	return c, nil
}

func duration(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}

	return d, nil
}
