package api

type (
	// ErrorResponse is the JSON error envelope for all API failures
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}

	// FlowsListResponse lists a tenant's flow definitions
	FlowsListResponse struct {
		Flows []*FlowDefinition `json:"flows"`
		Count int               `json:"count"`
	}

	// FlowSavedResponse acknowledges a definition save
	FlowSavedResponse struct {
		FlowID FlowID `json:"flow_id"`
	}

	// FlowActivatedResponse acknowledges an activation swap
	FlowActivatedResponse struct {
		FlowID   FlowID   `json:"flow_id"`
		TenantID TenantID `json:"tenant_id"`
	}

	// EventAcceptedResponse acknowledges an inbound event
	EventAcceptedResponse struct {
		EventID string `json:"event_id"`
	}

	// HealthResponse reports daemon health
	HealthResponse struct {
		Status string `json:"status"`
	}
)
