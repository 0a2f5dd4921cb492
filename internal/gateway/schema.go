package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// inboundSchema validates the wire shape of inbound frames before they are
// decoded into typed messages.
const inboundSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {
      "enum": ["user_message", "ping", "heartbeat", "suggestion", "context_update"]
    },
    "content": {"type": "string"},
    "frontend_state": {"type": "object"},
    "suggestion_type": {"type": "string"},
    "action": {"type": "object"},
    "context_type": {"type": "string"},
    "data": {"type": "object"}
  },
  "additionalProperties": true
}`

var compiledInbound = jsonschema.MustCompileString("inbound.json", inboundSchema)

// validateInbound checks a raw frame against the inbound message schema.
func validateInbound(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := compiledInbound.Validate(doc); err != nil {
		return fmt.Errorf("schema violation: %w", err)
	}
	return nil
}
