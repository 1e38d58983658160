package registry

// State enumerates every stage a device record passes through during
// pairing, including both observed peripheral dialects.
type State int

const (
	Unpaired State = iota
	Discovering
	AliveCheck
	Broadcasting2A       // dialect B only: four CMD 0x2A broadcasts after alive check
	WaitingBeforeLearning // dialect B only: CMD 0x36 sent after the 0x2A broadcasts, awaiting 0x37
	LearningMode
	ChallengeSent     // dialect B: we challenged the peripheral, awaiting 0x3D
	ChallengeReceived // dialect A: peripheral challenged us, we answered
	PairingConfirmed
	AskingChallenge // key-push variant: CMD 0x31 sent, awaiting 0x3C
	KeyExchanged
	Paired
	PairingFailed
)

func (s State) String() string {
	switch s {
	case Unpaired:
		return "UNPAIRED"
	case Discovering:
		return "DISCOVERING"
	case AliveCheck:
		return "ALIVE_CHECK"
	case Broadcasting2A:
		return "BROADCASTING_2A"
	case WaitingBeforeLearning:
		return "WAITING_BEFORE_LEARNING"
	case LearningMode:
		return "LEARNING_MODE"
	case ChallengeSent:
		return "CHALLENGE_SENT"
	case ChallengeReceived:
		return "CHALLENGE_RECEIVED"
	case PairingConfirmed:
		return "PAIRING_CONFIRMED"
	case AskingChallenge:
		return "ASKING_CHALLENGE"
	case KeyExchanged:
		return "KEY_EXCHANGED"
	case Paired:
		return "PAIRED"
	case PairingFailed:
		return "PAIRING_FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsPairing reports whether s is one of the states a device passes
// through while an active pairing session targets it.
func (s State) IsPairing() bool {
	switch s {
	case Discovering, AliveCheck, Broadcasting2A, WaitingBeforeLearning,
		LearningMode, ChallengeSent, ChallengeReceived, PairingConfirmed,
		AskingChallenge, KeyExchanged:
		return true
	default:
		return false
	}
}
