package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	ConfigFileName = "config.megumi"
	GroupsFileName = "groups.megumi"
	SeriesFileName = "serieslist.megumi"
)

const (
	ProtocolSFTP = "SFTP"
	ProtocolS3   = "S3"
)

// Config is the fixed-shape run configuration, populated once at load time.
type Config struct {
	Protocol    string
	Host        string
	User        string
	Password    string
	RemotePath  string
	LibraryRoot string
	StagingDir  string
	Chunks      int
	UseChunks   bool
	MoveLocal   bool
	Rename      bool
	SaveInfo    bool
}

// Load reads and validates config.megumi from dir.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	content, err := DecodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	values := parseKeyValues(content)
	cfg := &Config{
		Protocol:    strings.ToUpper(getDefault(values, "PROTOCOL", ProtocolSFTP)),
		Host:        values["HOST"],
		User:        values["USER"],
		Password:    values["PASSWORD"],
		RemotePath:  values["REMOTEPATCH"],
		LibraryRoot: values["LOCALPATCH"],
		StagingDir:  values["LOCALTEMP"],
		UseChunks:   parseSwitch(getDefault(values, "USE_CHUNKS", "ON")),
		MoveLocal:   parseSwitch(getDefault(values, "MOVELOCAL", "OFF")),
		Rename:      parseSwitch(getDefault(values, "RENAME", "ON")),
		SaveInfo:    parseSwitch(getDefault(values, "SAVEINFO", "OFF")),
	}
	chunks, err := strconv.Atoi(getDefault(values, "CHUNKS", "3"))
	if err != nil || chunks < 1 {
		return nil, fmt.Errorf("invalid CHUNKS value %q: must be an integer >= 1", values["CHUNKS"])
	}
	cfg.Chunks = chunks
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Protocol != ProtocolSFTP && c.Protocol != ProtocolS3 {
		return fmt.Errorf("invalid PROTOCOL value %q: must be SFTP or S3", c.Protocol)
	}
	if c.LibraryRoot == "" {
		return fmt.Errorf("missing required config key LOCALPATCH")
	}
	if c.StagingDir == "" {
		return fmt.Errorf("missing required config key LOCALTEMP")
	}
	if c.MoveLocal {
		return nil
	}
	if c.RemotePath == "" {
		return fmt.Errorf("missing required config key REMOTEPATCH")
	}
	if c.Protocol == ProtocolSFTP {
		for _, key := range []string{"HOST", "USER", "PASSWORD"} {
			if c.sftpValue(key) == "" {
				return fmt.Errorf("missing required config key %s", key)
			}
		}
	}
	return nil
}

func (c *Config) sftpValue(key string) string {
	switch key {
	case "HOST":
		return c.Host
	case "USER":
		return c.User
	case "PASSWORD":
		return c.Password
	}
	return ""
}

func parseKeyValues(content string) map[string]string {
	values := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.Contains(line, "=") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = strings.TrimSpace(parts[1])
	}
	return values
}

func parseSwitch(value string) bool {
	return strings.ToUpper(strings.TrimSpace(value)) == "ON"
}

func getDefault(values map[string]string, key, fallback string) string {
	if v, ok := values[key]; ok && v != "" {
		return v
	}
	return fallback
}
