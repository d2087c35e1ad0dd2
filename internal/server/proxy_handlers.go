package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"nmkrmint/internal/nmkr"
	"nmkrmint/internal/workflow"
)

type createPaymentRequest struct {
	ProjectUID string `json:"projectUid"`
	NftUID     string `json:"nftUid"`
	TokenCount int64  `json:"tokencount"`
}

type proxyError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	const route = "create-project"
	if !allowPost(w, r) {
		return
	}

	var payload nmkr.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.proxyFail(w, route, http.StatusBadRequest, "invalid json payload", err.Error())
		return
	}

	resp, err := s.client.CreateProject(r.Context(), payload)
	if err != nil {
		log.Printf("[server] create project FAILED err=%v", err)
		s.proxyFail(w, route, http.StatusInternalServerError, "Error creating project", err.Error())
		return
	}
	s.proxyOK(w, route, resp.Raw)
}

func (s *Server) handleUploadToken(w http.ResponseWriter, r *http.Request) {
	const route = "upload-token"
	if !allowPost(w, r) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Service.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.Service.MaxUploadBytes); err != nil {
		s.proxyFail(w, route, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}

	projectUID := strings.TrimSpace(r.FormValue("projectUid"))
	image, err := readFormImage(r, "image")
	if err != nil {
		s.proxyFail(w, route, http.StatusBadRequest, "invalid image", err.Error())
		return
	}
	if projectUID == "" || image == nil {
		s.proxyFail(w, route, http.StatusBadRequest, "Missing required fields", "")
		return
	}

	req := workflow.UploadRequest(r.FormValue("tokenname"), r.FormValue("displayname"), r.FormValue("description"), *image)
	resp, err := s.client.UploadNft(r.Context(), projectUID, req)
	if err != nil {
		log.Printf("[server] upload nft FAILED projectUid=%s err=%v", projectUID, err)
		s.proxyFail(w, route, http.StatusInternalServerError, "Error uploading NFT", err.Error())
		return
	}
	if resp.NftUID == "" {
		s.proxyFail(w, route, http.StatusInternalServerError, "Error uploading NFT", "NFT UID not received from NMKR API")
		return
	}
	s.proxyOK(w, route, resp.Raw)
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	const route = "create-payment"
	if !allowPost(w, r) {
		return
	}

	var payload createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.proxyFail(w, route, http.StatusBadRequest, "invalid json payload", err.Error())
		return
	}

	req := workflow.PaymentRequest(
		s.cfg.Mint,
		workflow.ProjectHandle{ProjectUID: payload.ProjectUID},
		workflow.TokenHandle{NftUID: payload.NftUID},
		payload.TokenCount,
		clientIP(r),
	)
	resp, err := s.client.CreatePaymentTransaction(r.Context(), req)
	if err != nil {
		log.Printf("[server] create payment FAILED projectUid=%s nftUid=%s err=%v", payload.ProjectUID, payload.NftUID, err)
		s.proxyFail(w, route, http.StatusInternalServerError, "Error creating payment transaction", err.Error())
		return
	}
	s.proxyOK(w, route, resp.Raw)
}

func allowPost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodPost {
		return true
	}
	w.Header().Set("Allow", http.MethodPost)
	http.Error(w, "Method "+r.Method+" Not Allowed", http.StatusMethodNotAllowed)
	return false
}

func (s *Server) proxyOK(w http.ResponseWriter, route string, raw json.RawMessage) {
	s.metrics.incProxy(route, http.StatusOK)
	writeJSON(w, http.StatusOK, raw)
}

func (s *Server) proxyFail(w http.ResponseWriter, route string, status int, msg, details string) {
	s.metrics.incProxy(route, status)
	body, _ := json.Marshal(proxyError{Error: msg, Details: details})
	writeJSON(w, status, body)
}
