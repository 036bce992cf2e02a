package api

import "time"

// EnforceRequest asks whether the calling actor may perform an action
type EnforceRequest struct {
	OrgID     int64  `json:"org_id,omitempty"`
	Module    string `json:"module"`
	Submodule string `json:"submodule,omitempty"`
	Action    string `json:"action"`
	Write     bool   `json:"write,omitempty"`
}

// EnforceResponse is the decision for an enforcement request. Denials are
// answered with 200 and Allowed false; the transport status codes are
// reserved for the endpoint's own failures.
type EnforceResponse struct {
	Allowed   bool   `json:"allowed"`
	Bypass    string `json:"bypass,omitempty"`
	OrgID     int64  `json:"org_id,omitempty"`
	Corrected bool   `json:"corrected,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Message   string `json:"message,omitempty"`
}

// SetEntitlementRequest sets an explicit status override
type SetEntitlementRequest struct {
	Status         string     `json:"status"`
	TrialExpiresAt *time.Time `json:"trial_expires_at,omitempty"`
}

// EntitlementResponse is one resolved module row for an organization
type EntitlementResponse struct {
	Module         string     `json:"module"`
	Submodule      string     `json:"submodule,omitempty"`
	Status         string     `json:"status"`
	Enabled        bool       `json:"enabled"`
	Source         string     `json:"source"`
	TrialExpiresAt *time.Time `json:"trial_expires_at,omitempty"`
}
