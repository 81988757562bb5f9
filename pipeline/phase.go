package pipeline

// Phase identifies which ordered interceptor collection an entry belongs to.
type Phase int

const (
	// PhaseRequest runs before the transport call.
	PhaseRequest Phase = iota
	// PhaseResponse runs after a successful transport call.
	PhaseResponse
	// PhaseError runs when the transport call or a critical entry fails.
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseRequest:
		return "request"
	case PhaseResponse:
		return "response"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}
