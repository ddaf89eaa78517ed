package voice

// Type is a JSON schema type name.
type Type string

const (
	TypeObject  Type = "object"
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
)

// Schema describes tool parameters. Providers convert it to their own
// representation.
type Schema struct {
	Type        Type
	Description string
	Properties  map[string]*Schema
	Required    []string
	Enum        []string
	Items       *Schema
}

// Map returns the schema as a JSON-schema style map.
func (s *Schema) Map() map[string]any {
	if s == nil {
		return nil
	}
	m := map[string]any{"type": string(s.Type)}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.Map()
		}
		m["properties"] = props
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	if len(s.Enum) > 0 {
		m["enum"] = s.Enum
	}
	if s.Items != nil {
		m["items"] = s.Items.Map()
	}
	return m
}

// Tool represents a function that the model can invoke during conversation.
type Tool struct {
	// Name is the unique identifier for the tool (e.g., "update_ui").
	Name string `json:"name"`

	// Description explains what the tool does, helping the model decide when to use it.
	Description string `json:"description"`

	// Parameters defines the tool's arguments.
	Parameters *Schema `json:"-"`
}

// ToolCall represents an invocation of a tool by the model.
type ToolCall struct {
	// ID is the unique identifier for this tool call.
	// Used to match responses back to the correct call.
	ID string

	// Name is the tool being invoked.
	Name string

	// Arguments contains the parsed arguments from the model.
	Arguments map[string]any
}

// ToolResponse acknowledges one ToolCall.
type ToolResponse struct {
	// ID matches the ToolCall.ID this response corresponds to.
	ID string

	// Name is the tool that was called.
	Name string

	// Response is the structured result returned to the model.
	Response map[string]any
}

// Success returns a response reporting that call was applied.
func Success(call ToolCall) ToolResponse {
	return ToolResponse{
		ID:       call.ID,
		Name:     call.Name,
		Response: map[string]any{"result": "ok"},
	}
}

// Failure returns a response carrying err so the model can continue its turn.
func Failure(call ToolCall, err error) ToolResponse {
	return ToolResponse{
		ID:       call.ID,
		Name:     call.Name,
		Response: map[string]any{"error": err.Error()},
	}
}

// IsError reports whether r carries an error result.
func (r ToolResponse) IsError() bool {
	_, ok := r.Response["error"]
	return ok
}
