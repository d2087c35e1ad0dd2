package workflow

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"nmkrmint/internal/config"
	"nmkrmint/internal/nmkr"
)

type stubClient struct {
	projectErr error
	uploadErr  error
	paymentErr error
	projectUID string
	nftUID     string
	payURL     string

	projectReqs []nmkr.CreateProjectRequest
	uploadReqs  []nmkr.UploadNftRequest
	uploadUIDs  []string
	paymentReqs []nmkr.PaymentTransactionRequest
}

func newStub() *stubClient {
	return &stubClient{projectUID: "proj-1", nftUID: "nft-1", payURL: "https://pay.nmkr.io/?p=abc"}
}

func (s *stubClient) CreateProject(_ context.Context, req nmkr.CreateProjectRequest) (*nmkr.ProjectResponse, error) {
	s.projectReqs = append(s.projectReqs, req)
	if s.projectErr != nil {
		return nil, s.projectErr
	}
	raw, _ := json.Marshal(map[string]string{"uid": s.projectUID, "name": "Project"})
	return &nmkr.ProjectResponse{UID: s.projectUID, Raw: raw}, nil
}

func (s *stubClient) UploadNft(_ context.Context, projectUID string, req nmkr.UploadNftRequest) (*nmkr.UploadNftResponse, error) {
	s.uploadReqs = append(s.uploadReqs, req)
	s.uploadUIDs = append(s.uploadUIDs, projectUID)
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	raw, _ := json.Marshal(map[string]string{"nftUid": s.nftUID})
	return &nmkr.UploadNftResponse{NftUID: s.nftUID, Raw: raw}, nil
}

func (s *stubClient) CreatePaymentTransaction(_ context.Context, req nmkr.PaymentTransactionRequest) (*nmkr.PaymentTransactionResponse, error) {
	s.paymentReqs = append(s.paymentReqs, req)
	if s.paymentErr != nil {
		return nil, s.paymentErr
	}
	raw, _ := json.Marshal(map[string]string{"nmkrPayUrl": s.payURL})
	return &nmkr.PaymentTransactionResponse{NmkrPayURL: s.payURL, Raw: raw}, nil
}

func pngImage() *Image {
	return &Image{Filename: "gold.png", MimeType: "image/png", Bytes: []byte("\x89PNG\r\n\x1a\nfake")}
}

func labels(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Label)
	}
	return out
}

func TestExecuteCompletesAllSteps(t *testing.T) {
	client := newStub()
	run := NewRun(client, config.DefaultMint(), nil)

	payment, err := run.Execute(context.Background(), Input{TokenName: "Gold", Supply: "500", Image: pngImage(), CustomerIP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if payment.PayURL != client.payURL {
		t.Fatalf("expected pay url %q, got %q", client.payURL, payment.PayURL)
	}
	if run.State() != StateCompleted || run.State().Step() != 4 {
		t.Fatalf("expected completed, got %s", run.State())
	}

	got := labels(run.Log())
	want := []string{LabelCreateProject, LabelUploadToken, LabelCreatePayment}
	if len(got) != len(want) {
		t.Fatalf("expected log %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected log %v, got %v", want, got)
		}
	}

	project := client.projectReqs[0]
	if project.ProjectName != "Project for Gold" || project.Description != "Fungible Token Project" {
		t.Fatalf("unexpected project request %+v", project)
	}
	if project.MaxNftSupply != 500 {
		t.Fatalf("expected maxNftSupply 500, got %d", project.MaxNftSupply)
	}
	if len(project.PriceList) != 1 || project.PriceList[0].CountNft != 1 || project.PriceList[0].PriceInLovelace != 20000000 {
		t.Fatalf("unexpected price list %+v", project.PriceList)
	}

	if client.uploadUIDs[0] != "proj-1" {
		t.Fatalf("upload used project %q", client.uploadUIDs[0])
	}
	upload := client.uploadReqs[0]
	if upload.PreviewImageNft.MimeType != "image/png" {
		t.Fatalf("unexpected mimetype %q", upload.PreviewImageNft.MimeType)
	}
	decoded, err := base64.StdEncoding.DecodeString(upload.PreviewImageNft.FileFromBase64)
	if err != nil || string(decoded) != string(pngImage().Bytes) {
		t.Fatalf("image bytes not round-tripped: %v", err)
	}

	pay := client.paymentReqs[0]
	if pay.ProjectUID != "proj-1" || pay.PaymentTransactionType != nmkr.PaymentTypeSpecific {
		t.Fatalf("unexpected payment request %+v", pay)
	}
	reserve := pay.PaymentGatewayParameters.MintNfts.ReserveNfts
	if len(reserve) != 1 || reserve[0].NftUID != "nft-1" || reserve[0].TokenCount != 500 {
		t.Fatalf("unexpected reservation %+v", reserve)
	}
	if pay.PaymentGatewayParameters.PriceInLovelace != 2000000 || pay.CustomerIPAddress != "10.0.0.1" {
		t.Fatalf("unexpected payment params %+v", pay)
	}
}

func TestExecuteEmptySupplyUsesSeparateDefaults(t *testing.T) {
	client := newStub()
	run := NewRun(client, config.DefaultMint(), nil)

	if _, err := run.Execute(context.Background(), Input{TokenName: "Gold", Image: pngImage()}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := client.projectReqs[0].MaxNftSupply; got != 1000000 {
		t.Fatalf("expected maxNftSupply 1000000, got %d", got)
	}
	if got := client.paymentReqs[0].PaymentGatewayParameters.MintNfts.ReserveNfts[0].TokenCount; got != 1 {
		t.Fatalf("expected tokencount 1, got %d", got)
	}
	if got := client.paymentReqs[0].CustomerIPAddress; got != "0.0.0.0" {
		t.Fatalf("expected fallback customer ip, got %q", got)
	}
}

func TestExecuteBlankNamesUseDefaults(t *testing.T) {
	client := newStub()
	run := NewRun(client, config.DefaultMint(), nil)

	if _, err := run.Execute(context.Background(), Input{TokenName: "  ", Image: pngImage()}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	upload := client.uploadReqs[0]
	if upload.TokenName != "DefaultTokenName" || upload.DisplayName != "Default Display Name" || upload.Description != "Default description" {
		t.Fatalf("unexpected upload defaults %+v", upload)
	}
}

func TestExecuteMissingImageMakesNoCalls(t *testing.T) {
	client := newStub()
	run := NewRun(client, config.DefaultMint(), nil)

	_, err := run.Execute(context.Background(), Input{TokenName: "Gold", Supply: "500"})
	if !errors.Is(err, ErrMissingImage) {
		t.Fatalf("expected ErrMissingImage, got %v", err)
	}
	if len(client.projectReqs)+len(client.uploadReqs)+len(client.paymentReqs) != 0 {
		t.Fatalf("expected no remote calls")
	}
	if run.State() != StateIdle {
		t.Fatalf("expected idle, got %s", run.State())
	}
	entries := run.Log()
	if len(entries) != 1 || entries[0].Label != LabelError {
		t.Fatalf("expected single error entry, got %v", labels(entries))
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(entries[0].Payload, &payload); err != nil || payload.Message != ErrMissingImage.Error() {
		t.Fatalf("unexpected error payload %s", entries[0].Payload)
	}
}

func TestExecuteCreateProjectFailureStopsRun(t *testing.T) {
	client := newStub()
	client.projectErr = &nmkr.StatusError{StatusCode: http.StatusBadRequest, Body: "maxNftSupply invalid"}
	run := NewRun(client, config.DefaultMint(), nil)

	_, err := run.Execute(context.Background(), Input{TokenName: "Gold", Image: pngImage()})
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.Step != StepCreateProject || remote.Status != http.StatusBadRequest || remote.Body != "maxNftSupply invalid" {
		t.Fatalf("unexpected remote error %+v", remote)
	}
	if len(client.uploadReqs) != 0 || len(client.paymentReqs) != 0 {
		t.Fatalf("expected upload and payment to be skipped")
	}
	if run.State() != StateFailed || run.State().Step() != 0 {
		t.Fatalf("expected failed state at step 0, got %s", run.State())
	}
	if got := labels(run.Log()); len(got) != 1 || got[0] != LabelError {
		t.Fatalf("unexpected log %v", got)
	}
}

func TestExecuteUploadWithoutNftUIDFails(t *testing.T) {
	client := newStub()
	client.nftUID = ""
	run := NewRun(client, config.DefaultMint(), nil)

	_, err := run.Execute(context.Background(), Input{TokenName: "Gold", Image: pngImage()})
	var missing *MissingFieldError
	if !errors.As(err, &missing) || missing.Field != "nftUid" {
		t.Fatalf("expected missing nftUid, got %v", err)
	}
	if len(client.paymentReqs) != 0 {
		t.Fatalf("payment must not be invoked")
	}
	got := labels(run.Log())
	if len(got) != 3 || got[1] != LabelUploadToken || got[2] != LabelError {
		t.Fatalf("unexpected log %v", got)
	}
}

func TestExecuteStepFailures(t *testing.T) {
	cases := []struct {
		name       string
		setup      func(*stubClient)
		check      func(t *testing.T, err error)
		wantLabels []string
		wantCalls  [3]int
	}{
		{
			name:  "upload non-2xx",
			setup: func(c *stubClient) { c.uploadErr = &nmkr.StatusError{StatusCode: http.StatusUnprocessableEntity, Body: "bad image"} },
			check: func(t *testing.T, err error) {
				var remote *RemoteError
				if !errors.As(err, &remote) {
					t.Fatalf("expected RemoteError, got %v", err)
				}
				if remote.Step != StepUploadToken || remote.Status != http.StatusUnprocessableEntity || remote.Body != "bad image" {
					t.Fatalf("unexpected remote error %+v", remote)
				}
			},
			wantLabels: []string{LabelCreateProject, LabelError},
			wantCalls:  [3]int{1, 1, 0},
		},
		{
			name:  "payment non-2xx",
			setup: func(c *stubClient) { c.paymentErr = &nmkr.StatusError{StatusCode: http.StatusBadGateway, Body: "gateway down"} },
			check: func(t *testing.T, err error) {
				var remote *RemoteError
				if !errors.As(err, &remote) {
					t.Fatalf("expected RemoteError, got %v", err)
				}
				if remote.Step != StepCreatePayment || remote.Status != http.StatusBadGateway || remote.Body != "gateway down" {
					t.Fatalf("unexpected remote error %+v", remote)
				}
			},
			wantLabels: []string{LabelCreateProject, LabelUploadToken, LabelError},
			wantCalls:  [3]int{1, 1, 1},
		},
		{
			name:  "project without uid",
			setup: func(c *stubClient) { c.projectUID = "" },
			check: func(t *testing.T, err error) {
				var missing *MissingFieldError
				if !errors.As(err, &missing) || missing.Step != StepCreateProject || missing.Field != "uid" {
					t.Fatalf("expected missing uid, got %v", err)
				}
			},
			wantLabels: []string{LabelCreateProject, LabelError},
			wantCalls:  [3]int{1, 0, 0},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newStub()
			tc.setup(client)
			run := NewRun(client, config.DefaultMint(), nil)

			_, err := run.Execute(context.Background(), Input{TokenName: "Gold", Image: pngImage()})
			tc.check(t, err)

			if run.State() != StateFailed || run.State().Step() != 0 {
				t.Fatalf("expected failed at step 0, got %s", run.State())
			}
			if run.PayURL() != "" {
				t.Fatalf("pay url must be empty after failure")
			}
			got := labels(run.Log())
			if len(got) != len(tc.wantLabels) {
				t.Fatalf("expected log %v, got %v", tc.wantLabels, got)
			}
			for i := range got {
				if got[i] != tc.wantLabels[i] {
					t.Fatalf("expected log %v, got %v", tc.wantLabels, got)
				}
			}
			calls := [3]int{len(client.projectReqs), len(client.uploadReqs), len(client.paymentReqs)}
			if calls != tc.wantCalls {
				t.Fatalf("expected calls %v, got %v", tc.wantCalls, calls)
			}
		})
	}
}

func TestExecuteTransportErrorIsRemoteError(t *testing.T) {
	client := newStub()
	cause := errors.New("connection reset")
	client.paymentErr = cause
	run := NewRun(client, config.DefaultMint(), nil)

	_, err := run.Execute(context.Background(), Input{TokenName: "Gold", Image: pngImage()})
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Step != StepCreatePayment || remote.Status != 0 {
		t.Fatalf("unexpected error %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be wrapped")
	}
	if run.PayURL() != "" {
		t.Fatalf("pay url must be empty after failure")
	}
}

func TestExecuteResetsBetweenRuns(t *testing.T) {
	client := newStub()
	run := NewRun(client, config.DefaultMint(), nil)

	if _, err := run.Execute(context.Background(), Input{TokenName: "Gold"}); err == nil {
		t.Fatalf("expected failure without image")
	}
	if _, err := run.Execute(context.Background(), Input{TokenName: "Gold", Image: pngImage()}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := labels(run.Log()); len(got) != 3 || got[0] != LabelCreateProject {
		t.Fatalf("log not reset: %v", got)
	}
	if run.Err() != nil {
		t.Fatalf("error not reset: %v", run.Err())
	}
}

type recordingObserver struct {
	started   []string
	completed []string
	failed    []string
	finished  []State
}

func (o *recordingObserver) StepStarted(step string) { o.started = append(o.started, step) }
func (o *recordingObserver) StepCompleted(step string, _ time.Duration) {
	o.completed = append(o.completed, step)
}
func (o *recordingObserver) StepFailed(step string, _ time.Duration, _ error) {
	o.failed = append(o.failed, step)
}
func (o *recordingObserver) RunFinished(state State, _ time.Duration) {
	o.finished = append(o.finished, state)
}

func TestObserverSeesStepLifecycle(t *testing.T) {
	client := newStub()
	client.uploadErr = &nmkr.StatusError{StatusCode: http.StatusInternalServerError, Body: "boom"}
	obs := &recordingObserver{}
	run := NewRun(client, config.DefaultMint(), obs)

	_, _ = run.Execute(context.Background(), Input{TokenName: "Gold", Image: pngImage()})

	if len(obs.started) != 2 || obs.started[1] != StepUploadToken {
		t.Fatalf("unexpected started %v", obs.started)
	}
	if len(obs.completed) != 1 || obs.completed[0] != StepCreateProject {
		t.Fatalf("unexpected completed %v", obs.completed)
	}
	if len(obs.failed) != 1 || obs.failed[0] != StepUploadToken {
		t.Fatalf("unexpected failed %v", obs.failed)
	}
	if len(obs.finished) != 1 || obs.finished[0] != StateFailed {
		t.Fatalf("unexpected finished %v", obs.finished)
	}
}

func TestSnapshotReflectsRun(t *testing.T) {
	run := NewRun(newStub(), config.DefaultMint(), nil)
	if snap := run.Snapshot(); snap.StepLabel != "Preparing" || snap.StartedAt != nil {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}

	if _, err := run.Execute(context.Background(), Input{TokenName: "Gold", Image: pngImage()}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	snap := run.Snapshot()
	if snap.Step != 4 || snap.StepLabel != "Completed" || snap.PayURL == "" || len(snap.Responses) != 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.FinishedAt == nil || snap.RunID == "" {
		t.Fatalf("expected run id and finish time")
	}
}
