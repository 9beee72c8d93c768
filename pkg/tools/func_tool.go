package tools

import "context"

// HandlerFunc is the call surface of a FuncTool.
type HandlerFunc func(ctx context.Context, args map[string]interface{}) (string, error)

// FuncTool binds a declared parameter schema to a plain handler
// function, for capabilities that do not warrant their own struct.
type FuncTool struct {
	name        string
	description string
	params      map[string]interface{}
	handler     HandlerFunc
}

func NewFuncTool(name, description string, params map[string]interface{}, handler HandlerFunc) *FuncTool {
	return &FuncTool{
		name:        name,
		description: description,
		params:      params,
		handler:     handler,
	}
}

func (t *FuncTool) Name() string                       { return t.name }
func (t *FuncTool) Description() string                { return t.description }
func (t *FuncTool) Parameters() map[string]interface{} { return t.params }

func (t *FuncTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return t.handler(ctx, args)
}
