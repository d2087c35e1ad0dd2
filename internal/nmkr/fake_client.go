package nmkr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// FakeClient derives deterministic identifiers from the payloads so the
// service can run locally without NMKR credentials.
type FakeClient struct {
	PayBaseURL string
}

func (FakeClient) CreateProject(_ context.Context, req CreateProjectRequest) (*ProjectResponse, error) {
	if req.ProjectName == "" {
		return nil, fmt.Errorf("missing project name")
	}
	uid := fakeUID("project", req.ProjectName, req.Description)
	return &ProjectResponse{UID: uid, Raw: rawBody(map[string]any{
		"uid":          uid,
		"projectname":  req.ProjectName,
		"maxNftSupply": req.MaxNftSupply,
	})}, nil
}

func (FakeClient) UploadNft(_ context.Context, projectUID string, req UploadNftRequest) (*UploadNftResponse, error) {
	if projectUID == "" {
		return nil, fmt.Errorf("missing project uid")
	}
	uid := fakeUID("nft", projectUID, req.TokenName)
	return &UploadNftResponse{NftID: 1, NftUID: uid, Raw: rawBody(map[string]any{
		"nftId":              1,
		"nftUid":             uid,
		"ipfsGatewayAddress": "ipfs://" + fakeUID("ipfs", req.PreviewImageNft.FileFromBase64),
	})}, nil
}

func (f FakeClient) CreatePaymentTransaction(_ context.Context, req PaymentTransactionRequest) (*PaymentTransactionResponse, error) {
	if req.ProjectUID == "" {
		return nil, fmt.Errorf("missing project uid")
	}
	base := f.PayBaseURL
	if base == "" {
		base = "https://pay.preprod.nmkr.io"
	}
	uid := fakeUID("payment", req.ProjectUID, fmt.Sprint(req.PaymentGatewayParameters.MintNfts.ReserveNfts))
	payURL := base + "/?p=" + uid
	return &PaymentTransactionResponse{PaymentTransactionUID: uid, NmkrPayURL: payURL, Raw: rawBody(map[string]any{
		"paymentTransactionUid": uid,
		"nmkrPayUrl":            payURL,
		"state":                 "active",
	})}, nil
}

// rawBody encodes the fake response; the maps only hold strings and numbers.
func rawBody(body map[string]any) json.RawMessage {
	raw, _ := json.Marshal(body)
	return raw
}

func fakeUID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	sum := hex.EncodeToString(h.Sum(nil))
	return sum[0:8] + "-" + sum[8:12] + "-" + sum[12:16] + "-" + sum[16:20] + "-" + sum[20:32]
}
