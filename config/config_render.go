package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/valyala/fasttemplate"
	"github.com/zkgrants/aggregator/log"
)

const (
	startTag = "{{"
	endTag   = "}}"
)

var (
	ErrCycleVars                 = errors.New("cycle vars")
	ErrMissingVars               = errors.New("missing vars")
	ErrUnsupportedConfigFileType = errors.New("unsupported config file type")

	// A={{B}} is not valid TOML, so bare vars are quoted and marked while merging
	bareVarRegexp   = regexp.MustCompile(`=\s*\{\{([^}:]+)\}\}`)
	quotedVarRegexp = regexp.MustCompile(`=\s*\"\{\{([^}:]+:int)\}\}\"`)
	typeMarkRegexp  = regexp.MustCompile(`\{\{([^}:]+:int)\}\}`)
)

// FileData is a named piece of configuration
type FileData struct {
	Name    string
	Content string
}

// ConfigRender merges several TOML files, later ones overriding earlier ones,
// and resolves the {{var}} references between values
type ConfigRender struct {
	// FilesData sorted by priority: the last one wins
	FilesData []FileData
	// LookupEnvFunc resolves environment variables, typically os.LookupEnv
	LookupEnvFunc func(key string) (string, bool)
	EnvPrefix     string
}

// NewConfigRender returns a ConfigRender reading the process environment
func NewConfigRender(filesData []FileData, envPrefix string) *ConfigRender {
	return &ConfigRender{
		FilesData:     filesData,
		LookupEnvFunc: os.LookupEnv,
		EnvPrefix:     envPrefix,
	}
}

// Render merges all files and resolves the vars inside
func (c *ConfigRender) Render() (string, error) {
	mergedData, err := c.Merge()
	if err != nil {
		return "", fmt.Errorf("failed to merge files: %w", err)
	}

	return c.ResolveVars(mergedData)
}

// Merge returns the TOML resulting of loading every file in order
func (c *ConfigRender) Merge() (string, error) {
	k := koanf.New(".")
	for _, data := range c.FilesData {
		dataToml := markVars(data.Content)
		if err := k.Load(rawbytes.Provider([]byte(dataToml)), toml.Parser()); err != nil {
			log.Errorf("error loading file %s. Err: %v. FileData: %v", data.Name, err, dataToml)
			return "", fmt.Errorf("failed to load converted template %s to toml: %w", data.Name, err)
		}
	}
	marshaled, err := k.Marshal(toml.Parser())
	if err != nil {
		return "", fmt.Errorf("failed to marshal to toml: %w", err)
	}

	return unquoteVars(string(marshaled)), nil
}

// ResolveVars replaces every {{var}} with the value of the key var, or the
// environment variable PREFIX_var. Missing vars and cycles are errors.
func (c *ConfigRender) ResolveVars(fullConfigData string) (string, error) {
	tpl, valuesDefined, err := c.readTemplateAndValues(fullConfigData)
	if err != nil {
		return "", err
	}
	rendered := removeTypeMarks(c.executeTemplate(tpl, valuesDefined))
	if unresolved := c.unresolvedVars(tpl, valuesDefined); len(unresolved) > 0 {
		return rendered, fmt.Errorf("missing vars: %v. Err: %w", unresolved, ErrMissingVars)
	}

	// vars still present after a full pass reference other vars, i.e.
	// A={{B}}, B={{C}}. Each pass must reduce them, otherwise it's a cycle
	finalConfigData, err := c.resolveChains(rendered)
	if err != nil {
		return fullConfigData, err
	}

	return finalConfigData, nil
}

func (c *ConfigRender) resolveChains(partial string) (string, error) {
	data := unquoteVars(partial)
	pending := varsOf(data)
	if len(pending) == 0 {
		return partial, nil
	}
	log.Debugf("resolving chained vars: %v", pending)
	for len(pending) > 0 {
		previous := pending
		tpl, valuesDefined, err := c.readTemplateAndValues(data)
		if err != nil {
			return "", fmt.Errorf("failed to read template resolving chained vars: %w", err)
		}
		data = removeTypeMarks(unquoteVars(c.executeTemplate(tpl, valuesDefined)))
		pending = varsOf(data)
		if len(pending) == len(previous) {
			return partial, fmt.Errorf("not resolved cycle vars: %v. Err: %w", pending, ErrCycleVars)
		}
	}

	return data, nil
}

// readTemplateAndValues expects vars unquoted: A={{B}}, not A="{{B}}"
func (c *ConfigRender) readTemplateAndValues(data string) (*fasttemplate.Template, map[string]interface{}, error) {
	tpl, err := fasttemplate.NewTemplate(data, startTag, endTag)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load template: %w", err)
	}
	out := markVars(data)
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider([]byte(out)), toml.Parser()); err != nil {
		return nil, nil, fmt.Errorf("failed to parse template values. Content: %s. Err: %w", out, err)
	}

	return tpl, k.All(), nil
}

func (c *ConfigRender) executeTemplate(tpl *fasttemplate.Template, data map[string]interface{}) string {
	return tpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		if v, ok := c.lookupEnv(tag); ok {
			return w.Write([]byte(v))
		}
		if v, ok := data[tag]; ok {
			return fmt.Fprintf(w, "%v", v)
		}

		return w.Write([]byte(startTag + tag + endTag))
	})
}

func (c *ConfigRender) unresolvedVars(tpl *fasttemplate.Template, data map[string]interface{}) []string {
	var unresolved []string
	tpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		if _, ok := c.lookupEnv(tag); ok {
			return 0, nil
		}
		if _, ok := data[tag]; !ok && !slices.Contains(unresolved, tag) {
			unresolved = append(unresolved, tag)
		}

		return 0, nil
	})

	return unresolved
}

func (c *ConfigRender) lookupEnv(tag string) (string, bool) {
	return c.LookupEnvFunc(c.EnvPrefix + "_" + strings.ReplaceAll(tag, ".", "_"))
}

func varsOf(configData string) []string {
	tpl, err := fasttemplate.NewTemplate(configData, startTag, endTag)
	if err != nil {
		return nil
	}
	var vars []string
	tpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		vars = append(vars, tag)
		return 0, nil
	})

	return vars
}

func markVars(data string) string {
	return bareVarRegexp.ReplaceAllString(data, `= "{{${1}:int}}"`)
}

func unquoteVars(data string) string {
	return quotedVarRegexp.ReplaceAllStringFunc(data, func(match string) string {
		submatch := quotedVarRegexp.FindStringSubmatch(match)
		return "= {{" + strings.Split(submatch[1], ":")[0] + "}}"
	})
}

func removeTypeMarks(data string) string {
	return typeMarkRegexp.ReplaceAllStringFunc(data, func(match string) string {
		submatch := typeMarkRegexp.FindStringSubmatch(match)
		return "{{" + strings.Split(submatch[1], ":")[0] + "}}"
	})
}

func readFileToString(filename string) (string, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}

	return string(content), nil
}

func convertFileToToml(fileData string, fileType string) (string, error) {
	switch strings.ToLower(fileType) {
	case "json":
		k := koanf.New(".")
		if err := k.Load(rawbytes.Provider([]byte(fileData)), json.Parser()); err != nil {
			return fileData, fmt.Errorf("error loading json file: %w", err)
		}
		tomlData, err := toml.Parser().Marshal(k.Raw())
		if err != nil {
			return fileData, fmt.Errorf("error converting json to toml: %w", err)
		}
		return string(tomlData), nil
	case "yml", "yaml", "ini":
		return fileData, fmt.Errorf("cant convert from %s to TOML. Err: %w", fileType, ErrUnsupportedConfigFileType)
	default:
		log.Warnf("filetype %s unknown, assuming is a TOML file", fileType)
		return fileData, nil
	}
}
