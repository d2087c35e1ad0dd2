package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"nmkrmint/internal/config"
	"nmkrmint/internal/nmkr"
)

// Response log labels.
const (
	LabelCreateProject = "Create Project"
	LabelUploadToken   = "Upload Token"
	LabelCreatePayment = "Create Payment"
	LabelError         = "Error"
)

// Entry is one labeled payload in a run's response log.
type Entry struct {
	Label   string          `json:"step"`
	Payload json.RawMessage `json:"payload"`
}

// Observer receives step lifecycle notifications. Implementations must not block.
type Observer interface {
	StepStarted(step string)
	StepCompleted(step string, elapsed time.Duration)
	StepFailed(step string, elapsed time.Duration, err error)
	RunFinished(state State, elapsed time.Duration)
}

// Run executes the create project -> upload token -> create payment sequence.
// A Run is owned by one caller; Execute resets it, so it can be reused for a
// fresh attempt once the previous one reached a terminal state. Concurrent
// Execute calls are not coordinated. Accessors are safe while a run is in flight.
type Run struct {
	client   nmkr.Client
	mint     config.MintConfig
	observer Observer

	mu         sync.RWMutex
	id         string
	state      State
	entries    []Entry
	payURL     string
	err        error
	startedAt  time.Time
	finishedAt time.Time
}

func NewRun(client nmkr.Client, mint config.MintConfig, observer Observer) *Run {
	return NewRunWithID(uuid.NewString(), client, mint, observer)
}

// NewRunWithID is NewRun with a caller-chosen id, so a client can poll the
// run before Execute returns.
func NewRunWithID(id string, client nmkr.Client, mint config.MintConfig, observer Observer) *Run {
	return &Run{
		client:   client,
		mint:     mint,
		observer: observer,
		id:       id,
		state:    StateIdle,
	}
}

// Execute runs all three steps, stopping at the first failure. Remote
// resources created before a failing step are left in place.
func (r *Run) Execute(ctx context.Context, in Input) (PaymentHandle, error) {
	r.reset()
	start := time.Now()
	log.Printf("[workflow] run start id=%s token=%q supply=%q", r.ID(), in.TokenName, in.Supply)

	if in.Image == nil || len(in.Image.Bytes) == 0 {
		return PaymentHandle{}, r.fail(StateIdle, ErrMissingImage, start)
	}

	project, err := r.createProject(ctx, in)
	if err != nil {
		return PaymentHandle{}, r.fail(StateFailed, err, start)
	}

	token, err := r.uploadToken(ctx, in, project)
	if err != nil {
		return PaymentHandle{}, r.fail(StateFailed, err, start)
	}

	payment, err := r.createPayment(ctx, in, project, token)
	if err != nil {
		return PaymentHandle{}, r.fail(StateFailed, err, start)
	}

	r.mu.Lock()
	r.state = StateCompleted
	r.payURL = payment.PayURL
	r.finishedAt = time.Now()
	r.mu.Unlock()

	log.Printf("[workflow] run completed id=%s payUrl=%s elapsed=%s", r.ID(), payment.PayURL, time.Since(start))
	if r.observer != nil {
		r.observer.RunFinished(StateCompleted, time.Since(start))
	}
	return payment, nil
}

func (r *Run) createProject(ctx context.Context, in Input) (ProjectHandle, error) {
	req := ProjectRequest(r.mint, in)

	var handle ProjectHandle
	err := r.track(StateCreatingProject, StepCreateProject, func() error {
		resp, err := r.client.CreateProject(ctx, req)
		if err != nil {
			return remoteError(StepCreateProject, err)
		}
		r.appendEntry(LabelCreateProject, resp.Raw)
		if resp.UID == "" {
			return &MissingFieldError{Step: StepCreateProject, Field: "uid"}
		}
		handle = ProjectHandle{ProjectUID: resp.UID}
		return nil
	})
	return handle, err
}

func (r *Run) uploadToken(ctx context.Context, in Input, project ProjectHandle) (TokenHandle, error) {
	req := UploadRequest(in.TokenName, in.TokenName, in.Description, *in.Image)

	var handle TokenHandle
	err := r.track(StateUploadingToken, StepUploadToken, func() error {
		resp, err := r.client.UploadNft(ctx, project.ProjectUID, req)
		if err != nil {
			return remoteError(StepUploadToken, err)
		}
		r.appendEntry(LabelUploadToken, resp.Raw)
		if resp.NftUID == "" {
			return &MissingFieldError{Step: StepUploadToken, Field: "nftUid"}
		}
		handle = TokenHandle{NftUID: resp.NftUID}
		return nil
	})
	return handle, err
}

func (r *Run) createPayment(ctx context.Context, in Input, project ProjectHandle, token TokenHandle) (PaymentHandle, error) {
	req := PaymentRequest(r.mint, project, token, ParseSupply(in.Supply, DefaultTokenCount), in.CustomerIP)

	var handle PaymentHandle
	err := r.track(StateCreatingPayment, StepCreatePayment, func() error {
		resp, err := r.client.CreatePaymentTransaction(ctx, req)
		if err != nil {
			return remoteError(StepCreatePayment, err)
		}
		r.appendEntry(LabelCreatePayment, resp.Raw)
		if resp.NmkrPayURL == "" {
			return &MissingFieldError{Step: StepCreatePayment, Field: "nmkrPayUrl"}
		}
		handle = PaymentHandle{PayURL: resp.NmkrPayURL}
		return nil
	})
	return handle, err
}

func (r *Run) track(state State, step string, call func() error) error {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()

	if r.observer != nil {
		r.observer.StepStarted(step)
	}
	log.Printf("[workflow] step start id=%s step=%s", r.ID(), step)

	start := time.Now()
	err := call()
	elapsed := time.Since(start)
	if err != nil {
		log.Printf("[workflow] step FAILED id=%s step=%s err=%v elapsed=%s", r.ID(), step, err, elapsed)
		if r.observer != nil {
			r.observer.StepFailed(step, elapsed, err)
		}
		return err
	}

	log.Printf("[workflow] step ok id=%s step=%s elapsed=%s", r.ID(), step, elapsed)
	if r.observer != nil {
		r.observer.StepCompleted(step, elapsed)
	}
	return nil
}

func (r *Run) fail(state State, err error, start time.Time) error {
	detail, _ := json.Marshal(err)
	payload, _ := json.Marshal(struct {
		Message   string `json:"message"`
		FullError string `json:"fullError"`
	}{
		Message:   err.Error(),
		FullError: string(detail),
	})
	r.appendEntry(LabelError, payload)

	r.mu.Lock()
	r.state = state
	r.err = err
	r.finishedAt = time.Now()
	r.mu.Unlock()

	log.Printf("[workflow] run FAILED id=%s err=%v elapsed=%s", r.ID(), err, time.Since(start))
	if r.observer != nil {
		r.observer.RunFinished(state, time.Since(start))
	}
	return err
}

func (r *Run) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateIdle
	r.entries = nil
	r.payURL = ""
	r.err = nil
	r.startedAt = time.Now()
	r.finishedAt = time.Time{}
}

func (r *Run) appendEntry(label string, payload json.RawMessage) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Label: label, Payload: payload})
	r.mu.Unlock()
}

func remoteError(step string, err error) error {
	var statusErr *nmkr.StatusError
	if errors.As(err, &statusErr) {
		return &RemoteError{Step: step, Status: statusErr.StatusCode, Body: statusErr.Body, Err: err}
	}
	return &RemoteError{Step: step, Err: err}
}

func (r *Run) ID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.id
}

func (r *Run) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Log returns a copy of the response log.
func (r *Run) Log() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Run) PayURL() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.payURL
}

func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}
