package orchestrator

// Stage is a step of the per-message state machine.
type Stage string

const (
	StageReceived             Stage = "received"
	StageUserResolved         Stage = "user_resolved"
	StageConversationResolved Stage = "conversation_resolved"
	StageInboundPersisted     Stage = "inbound_persisted"
	StageHistoryFetched       Stage = "history_fetched"
	StageGenerated            Stage = "generated"
	StageOutboundPersisted    Stage = "outbound_persisted"
	StageLeadUpdated          Stage = "lead_updated"
	StageDone                 Stage = "done"
	StageFailed               Stage = "failed"
)

// next returns the stage that follows s on the happy path.
func (s Stage) next() Stage {
	switch s {
	case StageReceived:
		return StageUserResolved
	case StageUserResolved:
		return StageConversationResolved
	case StageConversationResolved:
		return StageInboundPersisted
	case StageInboundPersisted:
		return StageHistoryFetched
	case StageHistoryFetched:
		return StageGenerated
	case StageGenerated:
		return StageOutboundPersisted
	case StageOutboundPersisted:
		return StageLeadUpdated
	case StageLeadUpdated:
		return StageDone
	default:
		return StageFailed
	}
}
