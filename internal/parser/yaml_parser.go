package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ParseYAMLFile parses a YAML or JSON file holding one request or a list of them
func ParseYAMLFile(filePath string) ([]Request, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == ".json" || ext == ".jsonc" {
		// JSON is valid YAML once comments are gone
		data = jsonc.ToJSON(data)
	}
	return parseYAML(data)
}

func parseYAML(data []byte) ([]Request, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var requests []Request
		if err := root.Decode(&requests); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		return requests, nil
	}

	var request Request
	if err := root.Decode(&request); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return []Request{request}, nil
}
