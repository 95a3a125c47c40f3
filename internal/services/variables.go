package services

import (
	"fmt"
	"time"

	"github.com/ianampudia11/mecom-sub000/internal/models"
	"github.com/ianampudia11/mecom-sub000/internal/storage"
)

// VariableStore manages scoped session variables. Writes are idempotent
// upserts keyed (sessionId, variableKey); reads treat expired rows as absent.
type VariableStore struct {
	store storage.Store
}

// NewVariableStore creates a variable store backed by the given store handle.
func NewVariableStore(store storage.Store) *VariableStore {
	return &VariableStore{store: store}
}

// Set upserts a variable. A node-scoped variable must carry the owning node
// id; any other scope ignores it.
func (v *VariableStore) Set(sessionID, key string, value models.VariableValue, scope, nodeID string, expiresAt *time.Time) error {
	if !models.ValidScope(scope) {
		return fmt.Errorf("invalid variable scope %q", scope)
	}
	if scope == models.ScopeNode && nodeID == "" {
		return fmt.Errorf("node-scoped variable %q requires a node id", key)
	}
	if scope != models.ScopeNode {
		nodeID = ""
	}

	variable := &models.FlowSessionVariable{
		SessionID:   sessionID,
		VariableKey: key,
		Scope:       scope,
		NodeID:      nodeID,
		ExpiresAt:   expiresAt,
	}
	if err := variable.SetValue(value); err != nil {
		return err
	}
	return v.store.UpsertFlowSessionVariable(variable)
}

// Get returns the variable's value, or storage.ErrVariableNotFound when the
// key is missing or expired.
func (v *VariableStore) Get(sessionID, key string) (models.VariableValue, error) {
	variable, err := v.store.GetFlowSessionVariable(sessionID, key)
	if err != nil {
		return models.VariableValue{}, err
	}
	return variable.Value()
}

// GetAllByScope returns the non-expired variables of one scope as a map.
func (v *VariableStore) GetAllByScope(sessionID, scope string) (map[string]models.VariableValue, error) {
	if !models.ValidScope(scope) {
		return nil, fmt.Errorf("invalid variable scope %q", scope)
	}
	variables, err := v.store.GetFlowSessionVariables(sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result := make(map[string]models.VariableValue)
	for _, variable := range variables {
		if variable.Scope != scope || variable.Expired(now) {
			continue
		}
		value, err := variable.Value()
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", variable.VariableKey, err)
		}
		result[variable.VariableKey] = value
	}
	return result, nil
}

// Delete removes a variable. Deleting a missing key is a no-op.
func (v *VariableStore) Delete(sessionID, key string) error {
	return v.store.DeleteFlowSessionVariable(sessionID, key)
}

// Clear removes all variables for a session, or only one scope when scope is
// non-empty.
func (v *VariableStore) Clear(sessionID, scope string) error {
	if scope != "" && !models.ValidScope(scope) {
		return fmt.Errorf("invalid variable scope %q", scope)
	}
	return v.store.ClearFlowSessionVariables(sessionID, scope)
}

// Resolve looks a name up through the scope chain as seen from nodeID:
// node -> session -> flow -> global -> user, first match wins. The boolean
// reports whether any scope defined the key.
func (v *VariableStore) Resolve(sessionID, key, nodeID string) (models.VariableValue, bool, error) {
	variables, err := v.store.GetFlowSessionVariables(sessionID)
	if err != nil {
		return models.VariableValue{}, false, err
	}

	now := time.Now()
	byScope := make(map[string]*models.FlowSessionVariable)
	for _, variable := range variables {
		if variable.VariableKey != key || variable.Expired(now) {
			continue
		}
		if variable.Scope == models.ScopeNode && variable.NodeID != nodeID {
			continue
		}
		byScope[variable.Scope] = variable
	}

	for _, scope := range models.ScopeResolutionOrder {
		if variable, ok := byScope[scope]; ok {
			value, err := variable.Value()
			if err != nil {
				return models.VariableValue{}, false, err
			}
			return value, true, nil
		}
	}
	return models.VariableValue{}, false, nil
}

// Snapshot builds the variable view an interpreter call at nodeID sees: every
// visible key resolved through the scope chain.
func (v *VariableStore) Snapshot(sessionID, nodeID string) (map[string]models.VariableValue, error) {
	variables, err := v.store.GetFlowSessionVariables(sessionID)
	if err != nil {
		return nil, err
	}

	// Apply least specific scopes first so each more specific scope
	// overwrites, reproducing the resolution order per key.
	now := time.Now()
	result := make(map[string]models.VariableValue)
	for i := len(models.ScopeResolutionOrder) - 1; i >= 0; i-- {
		scope := models.ScopeResolutionOrder[i]
		for _, variable := range variables {
			if variable.Scope != scope || variable.Expired(now) {
				continue
			}
			if scope == models.ScopeNode && variable.NodeID != nodeID {
				continue
			}
			value, err := variable.Value()
			if err != nil {
				return nil, fmt.Errorf("variable %q: %w", variable.VariableKey, err)
			}
			result[variable.VariableKey] = value
		}
	}
	return result, nil
}
