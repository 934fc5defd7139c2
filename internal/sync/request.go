package sync

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bernardzulu23/phasesync/internal/phase"
)

// ErrMalformed wraps requests whose payload cannot be decoded.
var ErrMalformed = errors.New("sync: malformed request")

// Request is the transport form of a write, shared by the HTTP API, the
// inbox directory and the CLI. Payload uses the payload wire format.
type Request struct {
	UserID   string          `json:"user_id"`
	Phase    phase.Phase     `json:"phase"`
	DataType phase.DataType  `json:"data_type"`
	Priority Priority        `json:"priority,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// DecodeRequest parses a JSON-encoded Request.
func DecodeRequest(b []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(b, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return req, nil
}

// Submit decodes req's payload for its key and queues it. Unknown keys and
// priorities wrap ErrValidation; undecodable payloads wrap ErrMalformed.
func (c *Coordinator) Submit(req Request) (string, error) {
	key, err := phase.NewKey(req.Phase, req.DataType)
	if err != nil {
		return "", c.rejected(req.UserID, phase.Key{Phase: req.Phase, DataType: req.DataType}, err)
	}

	prio, err := ParsePriority(string(req.Priority))
	if err != nil {
		return "", err
	}

	if len(req.Payload) == 0 {
		return "", fmt.Errorf("%w: %s: missing payload", ErrMalformed, key)
	}

	payload, err := phase.DecodePayload(key, req.Payload)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return c.QueueSync(req.UserID, req.Phase, req.DataType, payload, prio)
}
