package workflow

// State is the lifecycle position of a mint run.
type State string

const (
	StateIdle            State = "idle"
	StateCreatingProject State = "creating_project"
	StateUploadingToken  State = "uploading_token"
	StateCreatingPayment State = "creating_payment"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

// StepLabels are the progress labels indexed by State.Step.
var StepLabels = [...]string{"Preparing", "Creating Project", "Uploading Token", "Creating Payment", "Completed"}

// Step maps the state onto the 0..4 progress index. A failed run reports 0
// so callers can offer a fresh attempt.
func (s State) Step() int {
	switch s {
	case StateCreatingProject:
		return 1
	case StateUploadingToken:
		return 2
	case StateCreatingPayment:
		return 3
	case StateCompleted:
		return 4
	default:
		return 0
	}
}

func (s State) Label() string { return StepLabels[s.Step()] }

// Terminal reports whether a new run may be started from s.
func (s State) Terminal() bool {
	return s == StateIdle || s == StateCompleted || s == StateFailed
}
