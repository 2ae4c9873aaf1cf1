package validate

import "time"

// Reason enumerates every expected rejection. None of these are errors;
// they are reported verbatim to the validator operator.
type Reason string

const (
	ReasonMalformed      Reason = "malformed"
	ReasonForged         Reason = "forged"
	ReasonPayloadExpired Reason = "payload_expired"
	ReasonUnknownTicket  Reason = "unknown_ticket"
	ReasonWrongEvent     Reason = "wrong_event"
	ReasonAlreadyUsed    Reason = "already_used"
	ReasonCancelled      Reason = "cancelled"
	ReasonEventExpired   Reason = "event_expired"
)

// Outcome is the engine's tagged result for one scan attempt. For
// already_used rejections UsedAt and ValidatedBy tell gate staff who
// admitted the holder earlier. Provisional is set only by the offline
// queue while a scan awaits server confirmation.
type Outcome struct {
	Accepted    bool      `json:"accepted"`
	Reason      Reason    `json:"reason,omitempty"`
	TicketID    string    `json:"ticket_id,omitempty"`
	HumanCode   string    `json:"human_code,omitempty"`
	Quantity    int       `json:"quantity,omitempty"`
	UsedAt      time.Time `json:"used_at,omitempty"`
	ValidatedBy string    `json:"validated_by,omitempty"`
	Provisional bool      `json:"provisional,omitempty"`
}

func rejected(reason Reason) Outcome {
	return Outcome{Reason: reason}
}
