package model

// Action is a side signal emitted alongside a reply.
type Action string

// ActionEscalate asks the channel to hand the user over to a human.
const ActionEscalate Action = "escalate"

// AgentResponse is the reply produced for one inbound message.
type AgentResponse struct {
	Message    string     `json:"message"`
	Action     Action     `json:"action,omitempty"`
	LeadStatus LeadStatus `json:"lead_status,omitempty"`
	Confidence float64    `json:"confidence"`

	// Usage is set when a model produced the reply.
	Usage *Usage `json:"-"`
}

// Usage describes the model call behind a reply.
type Usage struct {
	Model     string
	TokensIn  int
	TokensOut int
}

// Tokens returns the total token count.
func (u *Usage) Tokens() int {
	if u == nil {
		return 0
	}
	return u.TokensIn + u.TokensOut
}
