package gatewaysdk

// TokenResponse is returned by login and refresh. RefreshToken is empty on
// refresh since the gateway does not rotate refresh tokens.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type Policy struct {
	ID          string   `json:"policyId"`
	Description string   `json:"description"`
	Coverages   []string `json:"coverages"`
}

type Claim struct {
	ID          string `json:"claimId"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Date        string `json:"date"`
}

type User struct {
	Name string `json:"name"`
}

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
	Checks  *struct {
		Store     string `json:"store"`
		Signer    string `json:"signer"`
		Upstreams []struct {
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"upstreams"`
	} `json:"checks,omitempty"`
}
