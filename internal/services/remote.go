package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RemoteInterpreter delegates node execution to an external flow runtime over
// HTTP: the engine owns every state transition, the runtime owns the node
// graph and per-node-type behavior. Each Execute call POSTs the execution
// input and decodes the runtime's verdict.
type RemoteInterpreter struct {
	endpoint string
	client   *http.Client
}

// NewRemoteInterpreter creates an interpreter client for the given endpoint.
func NewRemoteInterpreter(endpoint string) *RemoteInterpreter {
	return &RemoteInterpreter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Execute posts the node input to the runtime. A non-2xx response or a decode
// failure is an interpreter error; the engine records it and parks the session.
func (r *RemoteInterpreter) Execute(ctx context.Context, input NodeExecutionInput) (NodeExecutionResult, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return NodeExecutionResult{}, fmt.Errorf("encode node input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return NodeExecutionResult{}, fmt.Errorf("build interpreter request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return NodeExecutionResult{}, fmt.Errorf("call node interpreter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NodeExecutionResult{}, fmt.Errorf("node interpreter returned %d", resp.StatusCode)
	}

	var result NodeExecutionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return NodeExecutionResult{}, fmt.Errorf("decode interpreter result: %w", err)
	}
	if result.Outcome == "" {
		return NodeExecutionResult{}, fmt.Errorf("interpreter result has no outcome")
	}
	return result, nil
}

// LoopbackInterpreter is the development fallback used when no runtime is
// configured: every node run records the event and waits for more input, so
// sessions and the audit trail stay inspectable without a flow runtime.
type LoopbackInterpreter struct{}

// NewLoopbackInterpreter creates the fallback interpreter.
func NewLoopbackInterpreter() *LoopbackInterpreter {
	return &LoopbackInterpreter{}
}

// Execute always awaits further input at the current node.
func (l *LoopbackInterpreter) Execute(ctx context.Context, input NodeExecutionInput) (NodeExecutionResult, error) {
	return NodeExecutionResult{
		Outcome:         OutcomeAwaitingInput,
		NodeType:        "loopback",
		WaitingMetadata: fmt.Sprintf(`{"waiting_for":"input","last_event":%q}`, input.Event.Type),
		OutputData:      input.Event.Payload,
	}, nil
}
