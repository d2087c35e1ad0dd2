package nmkr

import (
	"context"
	"encoding/json"
	"fmt"
)

// Client abstracts the NMKR Studio API calls a mint run depends on.
type Client interface {
	CreateProject(ctx context.Context, req CreateProjectRequest) (*ProjectResponse, error)
	UploadNft(ctx context.Context, projectUID string, req UploadNftRequest) (*UploadNftResponse, error)
	CreatePaymentTransaction(ctx context.Context, req PaymentTransactionRequest) (*PaymentTransactionResponse, error)
}

// StatusError is returned for any non-2xx answer. Body holds the raw text,
// which is not assumed to be JSON.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d, message: %s", e.StatusCode, e.Body)
}

type PriceListEntry struct {
	CountNft        int    `json:"countNft"`
	PriceInLovelace int64  `json:"priceInLovelace"`
	IsActive        bool   `json:"isActive"`
	ValidFrom       string `json:"validFrom,omitempty"`
	ValidTo         string `json:"validTo,omitempty"`
}

type CreateProjectRequest struct {
	ProjectName                     string           `json:"projectname"`
	Description                     string           `json:"description"`
	ProjectURL                      string           `json:"projecturl,omitempty"`
	TokenNamePrefix                 string           `json:"tokennamePrefix,omitempty"`
	TwitterHandle                   string           `json:"twitterHandle,omitempty"`
	PolicyExpires                   bool             `json:"policyExpires"`
	PolicyLocksDateTime             string           `json:"policyLocksDateTime,omitempty"`
	PayoutWalletAddress             string           `json:"payoutWalletaddress"`
	MaxNftSupply                    int64            `json:"maxNftSupply"`
	AddressExpireTime               int              `json:"addressExpiretime"`
	PriceList                       []PriceListEntry `json:"pricelist"`
	EnableDecentralPayments         bool             `json:"enableDecentralPayments"`
	EnableCrossSaleOnPaymentgateway bool             `json:"enableCrossSaleOnPaymentgateway"`
	ActivatePayinAddress            bool             `json:"activatePayinAddress"`
	PaymentGatewaySaleStart         string           `json:"paymentgatewaysalestart,omitempty"`
}

type ProjectResponse struct {
	UID string          `json:"uid"`
	Raw json.RawMessage `json:"-"`
}

type PreviewImage struct {
	MimeType       string `json:"mimetype"`
	FileFromBase64 string `json:"fileFromBase64"`
}

type UploadNftRequest struct {
	TokenName       string       `json:"tokenname"`
	DisplayName     string       `json:"displayname"`
	Description     string       `json:"description"`
	PreviewImageNft PreviewImage `json:"previewImageNft"`
}

type UploadNftResponse struct {
	NftID  int64           `json:"nftId"`
	NftUID string          `json:"nftUid"`
	Raw    json.RawMessage `json:"-"`
}

// PaymentTypeSpecific reserves specific NFTs for the buyer.
const PaymentTypeSpecific = "nmkr_pay_specific"

type ReserveNft struct {
	NftUID     string `json:"nftUid"`
	TokenCount int64  `json:"tokencount"`
}

type MintNfts struct {
	ReserveNfts []ReserveNft `json:"reserveNfts"`
}

type PaymentGatewayParameters struct {
	PriceInLovelace int64    `json:"priceInLovelace"`
	MintNfts        MintNfts `json:"mintnfts"`
}

type PaymentTransactionRequest struct {
	ProjectUID               string                   `json:"projectUid"`
	PaymentTransactionType   string                   `json:"paymentTransactionType"`
	CustomProperties         map[string]string        `json:"customProperties"`
	PaymentGatewayParameters PaymentGatewayParameters `json:"paymentgatewayParameters"`
	CustomerIPAddress        string                   `json:"customerIpAddress"`
}

type PaymentTransactionResponse struct {
	PaymentTransactionUID string          `json:"paymentTransactionUid"`
	NmkrPayURL            string          `json:"nmkrPayUrl"`
	Raw                   json.RawMessage `json:"-"`
}
