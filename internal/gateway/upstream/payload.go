package upstream

import "github.com/aussiebroadwan/policygate/internal/gateway/domain"

// ExternalPolicy is the provider's policy shape.
type ExternalPolicy struct {
	ID          string   `json:"polizaId"`
	Description string   `json:"descripcion"`
	Coverages   []string `json:"coberturas"`
}

// ExternalClaim is the provider's claim shape.
type ExternalClaim struct {
	ID          string `json:"siniestroId"`
	Description string `json:"descripcion"`
	Status      string `json:"estado"`
	Date        string `json:"fecha"`
}

func ToPolicy(e ExternalPolicy) domain.Policy {
	coverages := e.Coverages
	if coverages == nil {
		coverages = []string{}
	}
	return domain.Policy{ID: e.ID, Description: e.Description, Coverages: coverages}
}

func ToClaim(e ExternalClaim) domain.Claim {
	return domain.Claim{ID: e.ID, Description: e.Description, Status: e.Status, Date: e.Date}
}

func toPolicies(es []ExternalPolicy) []domain.Policy {
	out := make([]domain.Policy, 0, len(es))
	for _, e := range es {
		out = append(out, ToPolicy(e))
	}
	return out
}

func toClaims(es []ExternalClaim) []domain.Claim {
	out := make([]domain.Claim, 0, len(es))
	for _, e := range es {
		out = append(out, ToClaim(e))
	}
	return out
}
