package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jRPC "github.com/0xPolygon/cdk-rpc/rpc"
	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	"github.com/zkgrants/aggregator/aggregator"
	"github.com/zkgrants/aggregator/api"
	"github.com/zkgrants/aggregator/etherman"
	"github.com/zkgrants/aggregator/finalizer"
	"github.com/zkgrants/aggregator/log"
	"github.com/zkgrants/aggregator/metrics"
	"github.com/zkgrants/aggregator/worker"
)

const (
	// FlagCfg is the flag for cfg.
	FlagCfg = "cfg"
	// FlagComponents is the flag for components.
	FlagComponents = "components"
	// FlagSaveConfigPath is the flag to save the final configuration file
	FlagSaveConfigPath = "save-config-path"
	// FlagMaxDepth is the flag for the maximum depth of the trees to generate circuit ids for
	FlagMaxDepth = "max-depth"
	// FlagInitialDepth is the flag for the depth of the leaf layer
	FlagInitialDepth = "initial-depth"
	// FlagExtraRounds is the flag for the number of extra evm rounds
	FlagExtraRounds = "extra-rounds"
	// FlagOutputFile is the flag for the output file
	FlagOutputFile = "output"

	EnvVarPrefix       = "ZKAGG"
	ConfigType         = "toml"
	SaveConfigFileName = "zkagg_config.toml"

	DefaultCreationFilePermissions = os.FileMode(0600)
)

/*
Config represents the configuration of the whole aggregation node.
The file is [TOML format]; any value can be overridden with an environment
variable named ZKAGG_<Section>_<Field>.

[TOML format]: https://en.wikipedia.org/wiki/TOML
*/
type Config struct {
	// Configure Log level for all the services, allow also to store the logs in a file
	Log log.Config
	// Scheduler is the configuration of the recursive proof scheduler and its executor
	Scheduler aggregator.Config
	// Finalizer is the configuration of the background jobs driving a request to settlement
	Finalizer finalizer.Config
	// API is the configuration of the REST API receiving aggregation requests
	API api.Config
	// RPC is the config for the JSON-RPC server
	RPC jRPC.Config
	// Worker is the configuration of the prover worker service
	Worker worker.Config
	// Etherman is the configuration of the client submitting final proofs on-chain
	Etherman etherman.Config
	// Metrics is the configuration of the prometheus endpoint
	Metrics metrics.Config
}

// Load loads the configuration
func Load(ctx *cli.Context) (*Config, error) {
	configFilePath := ctx.StringSlice(FlagCfg)
	filesData, err := readFiles(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading files: %w", err)
	}
	saveConfigPath := ctx.String(FlagSaveConfigPath)

	return LoadFile(filesData, saveConfigPath)
}

func readFiles(files []string) ([]FileData, error) {
	result := make([]FileData, 0, len(files))
	for _, file := range files {
		fileContent, err := readFileToString(file)
		if err != nil {
			return nil, fmt.Errorf("error reading file content: %s. Err: %w", file, err)
		}
		fileExtension := getFileExtension(file)
		if fileExtension != ConfigType {
			fileContent, err = convertFileToToml(fileContent, fileExtension)
			if err != nil {
				return nil, fmt.Errorf("error converting file: %s from %s to TOML. Err: %w", file, fileExtension, err)
			}
		}
		result = append(result, FileData{Name: file, Content: fileContent})
	}

	return result, nil
}

func getFileExtension(fileName string) string {
	return fileName[strings.LastIndex(fileName, ".")+1:]
}

// LoadFileFromString loads the configuration from already rendered data
func LoadFileFromString(configFileData string, configType string) (*Config, error) {
	cfg := &Config{}
	if err := loadString(cfg, configFileData, configType, true, EnvVarPrefix); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfigToString dumps the configuration as TOML
func SaveConfigToString(cfg Config) (string, error) {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// LoadFile merges the default values with the given files, resolves the
// {{vars}} and decodes the result
func LoadFile(files []FileData, saveConfigPath string) (*Config, error) {
	fileData := make([]FileData, 0, len(files)+2) //nolint:mnd
	fileData = append(fileData, FileData{Name: "default_vars", Content: DefaultVars})
	fileData = append(fileData, FileData{Name: "default_values", Content: DefaultValues})
	fileData = append(fileData, files...)

	merger := NewConfigRender(fileData, EnvVarPrefix)

	renderedCfg, err := merger.Render()
	if err != nil {
		return nil, err
	}
	if saveConfigPath != "" {
		fullPath := filepath.Join(saveConfigPath, SaveConfigFileName)
		err = os.WriteFile(fullPath, []byte(renderedCfg), DefaultCreationFilePermissions)
		if err != nil {
			err = fmt.Errorf("error writing config file: %s. Err: %w", fullPath, err)
			log.Error(err)
			return nil, err
		}
	}

	return LoadFileFromString(renderedCfg, ConfigType)
}

func loadString(cfg *Config, configData string, configType string,
	allowEnvVars bool, envPrefix string) error {
	v := viper.New()
	v.SetConfigType(configType)
	if allowEnvVars {
		replacer := strings.NewReplacer(".", "_")
		v.SetEnvKeyReplacer(replacer)
		v.SetEnvPrefix(envPrefix)
		v.AutomaticEnv()
	}
	if err := v.ReadConfig(bytes.NewBufferString(configData)); err != nil {
		return err
	}
	decodeHooks := []viper.DecoderConfigOption{
		// this allows arrays to be decoded from env var separated by ",", example: MY_VAR="value1,value2,value3"
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(), mapstructure.StringToSliceHookFunc(","))),
	}

	return v.Unmarshal(cfg, decodeHooks...)
}
