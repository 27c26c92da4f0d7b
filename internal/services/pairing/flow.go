package pairing

// FlowState is the issuer-side UI state machine. Transition is pure so the
// machine can be exercised without any network or crypto effects; the
// surrounding command loop performs the effects and feeds events back in.
type FlowState string

const (
	FlowIdle         FlowState = "idle"
	FlowDisplayCode  FlowState = "display_code"
	FlowWaitingClaim FlowState = "waiting_claim"
	FlowVerifyCode   FlowState = "verify_code"
	FlowTransferring FlowState = "transferring"
	FlowSuccess      FlowState = "success"
	FlowError        FlowState = "error"
	FlowExpired      FlowState = "expired"
)

// FlowEvent drives the machine.
type FlowEvent string

const (
	EventSessionCreated FlowEvent = "session_created"
	EventCodeShown      FlowEvent = "code_shown"
	EventClaimerArrived FlowEvent = "claimer_arrived"
	EventVerified       FlowEvent = "verified"
	EventTransferred    FlowEvent = "transferred"
	EventFailed         FlowEvent = "failed"
	EventExpired        FlowEvent = "expired"
	EventReset          FlowEvent = "reset"
)

var flowTable = map[FlowState]map[FlowEvent]FlowState{
	FlowIdle: {
		EventSessionCreated: FlowDisplayCode,
	},
	FlowDisplayCode: {
		EventCodeShown: FlowWaitingClaim,
		EventFailed:    FlowError,
		EventExpired:   FlowExpired,
	},
	FlowWaitingClaim: {
		EventClaimerArrived: FlowVerifyCode,
		EventFailed:         FlowError,
		EventExpired:        FlowExpired,
	},
	FlowVerifyCode: {
		EventVerified: FlowTransferring,
		EventFailed:   FlowError,
		EventExpired:  FlowExpired,
	},
	FlowTransferring: {
		EventTransferred: FlowSuccess,
		EventFailed:      FlowError,
		EventExpired:     FlowExpired,
	},
	// Terminal states accept only an explicit reset.
	FlowSuccess: {EventReset: FlowIdle},
	FlowError:   {EventReset: FlowIdle},
	FlowExpired: {EventReset: FlowIdle},
}

// Transition returns the successor state, or the current state unchanged for
// events that are not legal from it.
func Transition(s FlowState, e FlowEvent) FlowState {
	if next, ok := flowTable[s][e]; ok {
		return next
	}
	return s
}

// Terminal reports whether s requires an explicit reset before reuse.
func Terminal(s FlowState) bool {
	return s == FlowSuccess || s == FlowError || s == FlowExpired
}
