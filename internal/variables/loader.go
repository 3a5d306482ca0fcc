// ABOUTME: Variable file loader for loading workflow input from external files
// ABOUTME: Supports YAML, JSON, and .env file formats, merged into the engine's input map

package variables

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileLoader loads workflow input variables from files on disk, resolving
// relative paths against basePath. Used by the CLI's --var-file flag as an
// alternative to spelling every input out as --var key=value.
type FileLoader struct {
	basePath string
}

// New creates a variable file loader rooted at basePath.
func New(basePath string) *FileLoader {
	return &FileLoader{basePath: basePath}
}

// LoadVariableFile loads variables from a file, dispatching on extension
// (.yaml/.yml, .json, .env) or auto-detecting the format from content.
func (fl *FileLoader) LoadVariableFile(filePath string) (map[string]interface{}, error) {
	if !filepath.IsAbs(filePath) && fl.basePath != "" {
		filePath = filepath.Join(fl.basePath, filePath)
	}

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("variable file not found: %s", filePath)
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml", ".json":
		return fl.loadYAMLFile(filePath)
	case ".env":
		return fl.loadEnvFile(filePath)
	default:
		return fl.loadAutoDetect(filePath)
	}
}

// loadYAMLFile loads variables from a YAML file. JSON is a YAML subset, so
// the same decoder handles .json files too.
func (fl *FileLoader) loadYAMLFile(filePath string) (map[string]interface{}, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read variable file '%s': %w", filePath, err)
	}

	var vars map[string]interface{}
	if err := yaml.Unmarshal(content, &vars); err != nil {
		return nil, fmt.Errorf("failed to parse variable file '%s': %w", filePath, err)
	}

	return vars, nil
}

// loadEnvFile loads variables from a .env-style key=value file.
func (fl *FileLoader) loadEnvFile(filePath string) (map[string]interface{}, error) {
	lines, err := loadEnvironmentLines(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load env file '%s': %w", filePath, err)
	}

	vars := make(map[string]interface{}, len(lines))
	for _, line := range lines {
		key, value, err := parseVariableString(line)
		if err != nil {
			return nil, fmt.Errorf("failed to parse variable in file '%s': %w", filePath, err)
		}
		vars[key] = value
	}

	return vars, nil
}

// loadAutoDetect guesses the format of an extensionless variable file.
func (fl *FileLoader) loadAutoDetect(filePath string) (map[string]interface{}, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read variable file '%s': %w", filePath, err)
	}

	var vars map[string]interface{}
	if err := yaml.Unmarshal(content, &vars); err == nil {
		return vars, nil
	}

	contentStr := strings.TrimSpace(string(content))
	if strings.Contains(contentStr, "=") && !strings.Contains(contentStr, "{") {
		return fl.loadEnvFile(filePath)
	}

	return nil, fmt.Errorf("unable to determine format of variable file '%s'", filePath)
}

// LoadVariableFiles loads and merges multiple variable files; later files
// override keys set by earlier ones.
func (fl *FileLoader) LoadVariableFiles(filePaths []string) (map[string]interface{}, error) {
	merged := make(map[string]interface{})

	for _, filePath := range filePaths {
		vars, err := fl.LoadVariableFile(filePath)
		if err != nil {
			return nil, err
		}
		for key, value := range vars {
			merged[key] = value
		}
	}

	return merged, nil
}

// ResolveVariableReferences expands "@path/to/file" string values into the
// contents of the referenced file, recursing into nested maps. A
// single-key file whose key matches the referencing key collapses to that
// key's value directly rather than nesting one level deeper.
func (fl *FileLoader) ResolveVariableReferences(vars map[string]interface{}) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(vars))

	for key, value := range vars {
		switch v := value.(type) {
		case string:
			if !strings.HasPrefix(v, "@") {
				result[key] = v
				continue
			}
			fileVars, err := fl.LoadVariableFile(strings.TrimPrefix(v, "@"))
			if err != nil {
				return nil, fmt.Errorf("failed to resolve variable reference '%s': %w", v, err)
			}
			if single, ok := fileVars[key]; ok && len(fileVars) == 1 {
				result[key] = single
			} else {
				result[key] = fileVars
			}
		case map[string]interface{}:
			resolved, err := fl.ResolveVariableReferences(v)
			if err != nil {
				return nil, err
			}
			result[key] = resolved
		default:
			result[key] = v
		}
	}

	return result, nil
}

// loadEnvironmentLines reads non-blank, non-comment "key=value" lines from a file.
func loadEnvironmentLines(filename string) ([]string, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read '%s': %w", filename, err)
	}

	var lines []string
	for lineNum, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, "=") {
			return nil, fmt.Errorf("invalid format at line %d: %s", lineNum+1, line)
		}
		lines = append(lines, line)
	}

	return lines, nil
}

// parseVariableString splits a "key=value" string and type-coerces the value.
func parseVariableString(varStr string) (string, interface{}, error) {
	parts := strings.SplitN(varStr, "=", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("invalid variable format '%s' (expected key=value)", varStr)
	}
	return parts[0], parseValue(parts[1]), nil
}

// parseValue coerces a raw string into bool/int/float64 where it unambiguously
// parses as one, falling back to the original string.
func parseValue(value string) interface{} {
	if lower := strings.ToLower(value); lower == "true" || lower == "false" {
		return lower == "true"
	}
	if intVal, err := strconv.Atoi(value); err == nil {
		return intVal
	}
	if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
		return floatVal
	}
	return value
}
