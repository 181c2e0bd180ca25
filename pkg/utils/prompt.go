package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"golang.org/x/term"

	"github.com/picogrid/rov-simulations/pkg/simulation"
)

const (
	// ParamEnvPrefix prefixes per-parameter environment defaults, e.g. ROV_NUM_ROVS
	ParamEnvPrefix = "ROV_"
	// SkipPromptsEnv disables interactive prompts when set to "true"
	SkipPromptsEnv = "ROV_SKIP_PROMPTS"
)

// Interactive reports whether parameters should be prompted for. Prompts are
// skipped in CI and whenever stdin is not a terminal.
func Interactive() bool {
	if os.Getenv(SkipPromptsEnv) == "true" {
		return false
	}
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// PromptForParameters asks for every parameter, offering the manifest default
// (or its ROV_* environment override) as the answer. When not interactive
// it falls back to ResolveParameters.
func PromptForParameters(params []simulation.Parameter) (map[string]interface{}, error) {
	if !Interactive() {
		return ResolveParameters(params, nil)
	}

	result := make(map[string]interface{})
	for _, param := range params {
		param = withEnvDefault(param)
		value, err := promptForParameter(param)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s: %w", param.Name, err)
		}
		result[param.Name] = value
	}
	return result, nil
}

// ResolveParameters builds parameters without prompting. Precedence is
// explicit value, then ROV_* environment variable, then manifest default.
// Explicit values may be strings, which are parsed by parameter type.
func ResolveParameters(params []simulation.Parameter, explicit map[string]interface{}) (map[string]interface{}, error) {
	result := make(map[string]interface{})

	for _, param := range params {
		param = withEnvDefault(param)

		value, ok := explicit[param.Name]
		if !ok {
			value = param.Default
		}
		if s, isString := value.(string); isString && param.Type != simulation.ParamString {
			parsed, err := ParseValue(s, param)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", param.Name, err)
			}
			value = parsed
		}

		if value == nil {
			if param.Required {
				return nil, fmt.Errorf("required parameter %s not provided and no default available", param.Name)
			}
			continue
		}
		if err := checkRange(param, value); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", param.Name, err)
		}
		result[param.Name] = value
	}

	for name, value := range explicit {
		if _, known := result[name]; !known {
			result[name] = value
		}
	}
	return result, nil
}

// withEnvDefault replaces the default with ROV_<NAME> when it parses
func withEnvDefault(param simulation.Parameter) simulation.Parameter {
	envKey := ParamEnvPrefix + strings.ToUpper(param.Name)
	if envValue := os.Getenv(envKey); envValue != "" {
		if parsed, err := ParseValue(envValue, param); err == nil {
			param.Default = parsed
		}
	}
	return param
}

func promptForParameter(param simulation.Parameter) (interface{}, error) {
	switch param.Type {
	case simulation.ParamInteger, simulation.ParamFloat, simulation.ParamDuration:
		return promptParsed(param)
	case simulation.ParamString:
		return promptString(param)
	case simulation.ParamBoolean:
		return promptBoolean(param)
	default:
		return nil, fmt.Errorf("unsupported parameter type: %s", param.Type)
	}
}

// ParseValue parses a textual value according to the parameter type
func ParseValue(value string, param simulation.Parameter) (interface{}, error) {
	switch param.Type {
	case simulation.ParamInteger:
		return strconv.Atoi(value)
	case simulation.ParamFloat:
		return strconv.ParseFloat(value, 64)
	case simulation.ParamString:
		return value, nil
	case simulation.ParamBoolean:
		return strconv.ParseBool(value)
	case simulation.ParamDuration:
		return time.ParseDuration(value)
	default:
		return nil, fmt.Errorf("unsupported parameter type: %s", param.Type)
	}
}

// checkRange enforces Min, Max and Options
func checkRange(param simulation.Parameter, value interface{}) error {
	switch param.Type {
	case simulation.ParamInteger, simulation.ParamFloat:
		v := toFloat64(value)
		if param.Min != nil && v < toFloat64(param.Min) {
			return fmt.Errorf("value must be at least %v", param.Min)
		}
		if param.Max != nil && v > toFloat64(param.Max) {
			return fmt.Errorf("value must be at most %v", param.Max)
		}
	case simulation.ParamString:
		if len(param.Options) == 0 {
			return nil
		}
		s := fmt.Sprintf("%v", value)
		for _, opt := range param.Options {
			if opt == s {
				return nil
			}
		}
		return fmt.Errorf("value must be one of %s", strings.Join(param.Options, ", "))
	}
	return nil
}

// promptParsed asks for a numeric or duration value, re-asking until the
// answer parses and is in range
func promptParsed(param simulation.Parameter) (interface{}, error) {
	defaultStr := ""
	if param.Default != nil {
		defaultStr = fmt.Sprintf("%v", param.Default)
	}

	message := param.Description
	if param.Type == simulation.ParamDuration {
		message += " (e.g., 100ms, 30s, 5m)"
	}

	var answer string
	err := survey.AskOne(&survey.Input{Message: message, Default: defaultStr}, &answer,
		survey.WithValidator(survey.Required),
		survey.WithValidator(func(val interface{}) error {
			parsed, err := ParseValue(val.(string), param)
			if err != nil {
				return fmt.Errorf("not a valid %s", param.Type)
			}
			return checkRange(param, parsed)
		}),
	)
	if err != nil {
		return nil, err
	}
	return ParseValue(answer, param)
}

func promptString(param simulation.Parameter) (string, error) {
	defaultStr := ""
	if param.Default != nil {
		defaultStr = fmt.Sprintf("%v", param.Default)
	}

	if len(param.Options) > 0 {
		prompt := &survey.Select{
			Message: param.Description,
			Options: param.Options,
			Default: defaultStr,
		}

		var result string
		if err := survey.AskOne(prompt, &result); err != nil {
			return "", err
		}
		return result, nil
	}

	prompt := &survey.Input{
		Message: param.Description,
		Default: defaultStr,
	}

	var opts []survey.AskOpt
	if param.Required {
		opts = append(opts, survey.WithValidator(survey.Required))
	}

	var result string
	if err := survey.AskOne(prompt, &result, opts...); err != nil {
		return "", err
	}
	return result, nil
}

func promptBoolean(param simulation.Parameter) (bool, error) {
	defaultBool := false
	switch v := param.Default.(type) {
	case bool:
		defaultBool = v
	case string:
		defaultBool = v == "true" || v == "yes" || v == "1"
	}

	prompt := &survey.Confirm{
		Message: param.Description,
		Default: defaultBool,
	}

	var result bool
	if err := survey.AskOne(prompt, &result); err != nil {
		return false, err
	}
	return result, nil
}

func toFloat64(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case time.Duration:
		return float64(val)
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}
