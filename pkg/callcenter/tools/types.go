// Package tools executes the function calls the conversational model makes.
package tools

import (
	"context"
)

// Tool defines the interface for call tools. Run receives arguments that
// have already been validated against the tool's declaration.
type Tool interface {
	Name() string
	Description() string
	Run(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// BaseTool provides common functionality for tools
type BaseTool struct {
	name        string
	description string
}

// NewBaseTool creates a new BaseTool
func NewBaseTool(name, description string) BaseTool {
	return BaseTool{
		name:        name,
		description: description,
	}
}

// Name returns the tool name
func (b *BaseTool) Name() string {
	return b.name
}

// Description returns the tool description
func (b *BaseTool) Description() string {
	return b.description
}
