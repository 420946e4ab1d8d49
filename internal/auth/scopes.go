package auth

const (
	ScopeOpenID         = "openid"
	ScopeProfile        = "profile"
	ScopeWorkflowsRead  = "workflows:read"
	ScopeWorkflowsWrite = "workflows:write"
)

// AllScopes defines the full set of scopes requested by the Swagger UI
var AllScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeWorkflowsRead,
	ScopeWorkflowsWrite,
}
