package domain

// Policy is the public projection of an upstream policy.
type Policy struct {
	ID          string   `json:"policyId"`
	Description string   `json:"description"`
	Coverages   []string `json:"coverages"`
}

// Claim is the public projection of an upstream claim.
type Claim struct {
	ID          string `json:"claimId"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Date        string `json:"date"`
}

// PolicyIDs returns the ids of ps in order.
func PolicyIDs(ps []Policy) []string {
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID)
	}
	return ids
}
