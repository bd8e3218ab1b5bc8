package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/autods/core/protocol"
)

const (
	// ExecuteCode is the single tool advertised to the model.
	ExecuteCode = "execute_code"
	// ExecutePython is the earlier name of ExecuteCode, still accepted.
	ExecutePython = "execute_python"
)

// ExecuteCodeTool describes the code execution tool for the given dialect.
func ExecuteCodeTool(language string) protocol.Tool {
	return protocol.Tool{
		Name: ExecuteCode,
		Description: fmt.Sprintf(
			"Execute %s code for data analysis and plotting. The dataset is preloaded as `df`. "+
				"State is persistent across calls. Use print() to see results.", language),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": fmt.Sprintf("The %s code to execute.", language),
				},
				"description": map[string]any{
					"type":        "string",
					"description": "A brief description of what this code does.",
				},
			},
			"required": []string{"code", "description"},
		},
	}
}

// DecodeExecuteCode reads {"code": ..., "description": ...}.
func DecodeExecuteCode(args string) (string, string, error) {
	if strings.TrimSpace(args) == "" {
		return "", "", fmt.Errorf("%w: empty arguments", ErrMissingCode)
	}

	var params struct {
		Code        *string `json:"code"`
		Description string  `json:"description"`
	}
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrArguments, err)
	}
	if params.Code == nil || strings.TrimSpace(*params.Code) == "" {
		return "", params.Description, ErrMissingCode
	}
	return *params.Code, params.Description, nil
}
