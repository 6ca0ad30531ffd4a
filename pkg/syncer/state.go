package syncer

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateManifestLoaded
	StateFingerprinted
	StatePlanned
	StateExecuting
	StatePersisting
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateConnecting:     "connecting",
	StateManifestLoaded: "manifest-loaded",
	StateFingerprinted:  "fingerprinted",
	StatePlanned:        "planned",
	StateExecuting:      "executing",
	StatePersisting:     "persisting",
	StateDone:           "done",
	StateFailed:         "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
