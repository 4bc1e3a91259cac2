package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/user"
	"path"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".hwbp"
	configFile string = "config.yml"
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Commands aliases for the interactive terminal.
	Aliases map[string][]string `yaml:"aliases"`

	// Bits is the processor mode, 32 or 64, used when decoding
	// instructions and when deciding whether 8 byte breakpoints are
	// available. Defaults to 64.
	Bits int `yaml:"bits,omitempty"`

	// Color enables ANSI colors in the output. If unset colors are used
	// only when standard output is a terminal.
	Color *bool `yaml:"color,omitempty"`

	// Prompt of the interactive terminal.
	Prompt string `yaml:"prompt,omitempty"`

	// HexWidth is the number of hex digits used to print addresses.
	HexWidth int `yaml:"hex-width,omitempty"`
}

// GetBits returns the configured processor mode.
func (c *Config) GetBits() int {
	if c == nil || (c.Bits != 32 && c.Bits != 64) {
		return 64
	}
	return c.Bits
}

// GetHexWidth returns the configured address width.
func (c *Config) GetHexWidth() int {
	if c == nil || c.HexWidth <= 0 {
		if c.GetBits() == 32 {
			return 8
		}
		return 16
	}
	return c.HexWidth
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Printf("Could not create config directory: %v.", err)
		return &Config{}
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.", err)
		return &Config{}
	}

	if _, err := os.Stat(fullConfigFile); os.IsNotExist(err) {
		f, err := createDefaultConfig(fullConfigFile)
		if err != nil {
			fmt.Printf("Error creating default config file: %v", err)
			return &Config{}
		}
		f.Close()
	}

	c, err := LoadConfigFrom(fullConfigFile)
	if err != nil {
		fmt.Printf("%v.", err)
		return &Config{}
	}
	return c
}

// LoadConfigFrom reads the configuration stored at path.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config data: %v", err)
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return nil, fmt.Errorf("unable to decode config file: %v", err)
	}
	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}
	return SaveConfigTo(conf, fullConfigFile)
}

// SaveConfigTo marshals conf and writes it to path.
func SaveConfigTo(conf *Config, path string) error {
	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	return f, nil
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for hwbp.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Processor mode used to decode instructions, 32 or 64.
# bits: 64

# Force colored output on or off. By default colors are used when writing to a terminal.
# color: true

# Prompt of the interactive terminal.
# prompt: "(hwbp) "

# Number of hex digits used to print addresses.
# hex-width: 16

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}
