package persistence

// ServiceState represents operational state that must persist across
// restarts. This state is required for the service to resume publishing
// correctly after a restart.
type ServiceState struct {
	// LastPublishTime is the Unix timestamp of the last snapshot publish.
	// Used for operational monitoring and publish-interval checks.
	LastPublishTime int64 `json:"lastPublishTime"`

	// ServiceStartTime is the Unix timestamp when the service last started.
	ServiceStartTime int64 `json:"serviceStartTime"`

	// CustodianLabel identifies the custodian operating this service.
	// Stored for verification that persisted data matches the operator.
	CustodianLabel string `json:"custodianLabel"`
}
