package acme

import "fmt"

// Wire messages from RFC 8555. Only the fields this client reads are mapped.

type directory struct {
	NewNonce   string `json:"newNonce"`
	NewAccount string `json:"newAccount"`
	NewOrder   string `json:"newOrder"`
}

type identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type newAccountRequest struct {
	TermsOfServiceAgreed bool     `json:"termsOfServiceAgreed"`
	Contact              []string `json:"contact,omitempty"`
}

type newOrderRequest struct {
	Identifiers []identifier `json:"identifiers"`
}

type orderResource struct {
	Status         string   `json:"status"`
	Authorizations []string `json:"authorizations"`
	Finalize       string   `json:"finalize"`
	Certificate    string   `json:"certificate"`
}

type authorizationResource struct {
	Status     string              `json:"status"`
	Identifier identifier          `json:"identifier"`
	Challenges []challengeResource `json:"challenges"`
}

type challengeResource struct {
	Type   string   `json:"type"`
	URL    string   `json:"url"`
	Token  string   `json:"token"`
	Status string   `json:"status"`
	Error  *problem `json:"error,omitempty"`
}

type finalizeRequest struct {
	CSR string `json:"csr"`
}

// problem is an RFC 7807 problem document as used by ACME error responses.
type problem struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
}

func (p *problem) String() string {
	if p == nil {
		return ""
	}
	if p.Detail == "" {
		return p.Type
	}
	return fmt.Sprintf("%s: %s", p.Type, p.Detail)
}

// Resource statuses from RFC 8555 §7.1.6.
const (
	statusPending    = "pending"
	statusProcessing = "processing"
	statusValid      = "valid"
	statusInvalid    = "invalid"
)

const challengeTypeHTTP01 = "http-01"
