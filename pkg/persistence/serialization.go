package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/solvency-labs/por-go/pkg/types"
)

// MarshalSnapshot serializes a Snapshot to JSON bytes.
func MarshalSnapshot(snapshot *types.Snapshot) ([]byte, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("cannot marshal nil Snapshot")
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Snapshot to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalSnapshot deserializes a Snapshot from JSON bytes.
func UnmarshalSnapshot(data []byte) (*types.Snapshot, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var snapshot types.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to Snapshot: %w", err)
	}

	return &snapshot, nil
}

// MarshalServiceState serializes ServiceState to JSON bytes.
func MarshalServiceState(ss *ServiceState) ([]byte, error) {
	if ss == nil {
		return nil, fmt.Errorf("cannot marshal nil ServiceState")
	}

	return json.Marshal(ss)
}

// UnmarshalServiceState deserializes ServiceState from JSON bytes.
func UnmarshalServiceState(data []byte) (*ServiceState, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var ss ServiceState
	if err := json.Unmarshal(data, &ss); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to ServiceState: %w", err)
	}

	return &ss, nil
}
