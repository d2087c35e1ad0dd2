package workflow

import (
	"encoding/base64"

	"nmkrmint/internal/config"
	"nmkrmint/internal/nmkr"
)

// ProjectRequest builds the CreateProject payload for a submission.
func ProjectRequest(mint config.MintConfig, in Input) nmkr.CreateProjectRequest {
	return nmkr.CreateProjectRequest{
		ProjectName:         "Project for " + in.TokenName,
		Description:         orDefault(in.Description, "Fungible Token Project"),
		ProjectURL:          mint.ProjectURL,
		TokenNamePrefix:     mint.TokenNamePrefix,
		TwitterHandle:       mint.TwitterHandle,
		PolicyExpires:       mint.PolicyExpires,
		PolicyLocksDateTime: mint.PolicyLocksDateTime,
		PayoutWalletAddress: mint.PayoutWalletAddress,
		MaxNftSupply:        ParseSupply(in.Supply, DefaultMaxSupply),
		AddressExpireTime:   mint.AddressExpireMinutes,
		PriceList: []nmkr.PriceListEntry{{
			CountNft:        1,
			PriceInLovelace: mint.ProjectPriceLovelace,
			IsActive:        true,
			ValidFrom:       mint.PriceValidFrom,
			ValidTo:         mint.PriceValidTo,
		}},
		EnableDecentralPayments:         true,
		EnableCrossSaleOnPaymentgateway: true,
		ActivatePayinAddress:            true,
		PaymentGatewaySaleStart:         mint.PaymentGatewaySaleStart,
	}
}

// UploadRequest builds the UploadNft payload. The image is sent base64 encoded.
func UploadRequest(tokenName, displayName, description string, image Image) nmkr.UploadNftRequest {
	return nmkr.UploadNftRequest{
		TokenName:   orDefault(tokenName, "DefaultTokenName"),
		DisplayName: orDefault(displayName, "Default Display Name"),
		Description: orDefault(description, "Default description"),
		PreviewImageNft: nmkr.PreviewImage{
			MimeType:       image.MimeType,
			FileFromBase64: base64.StdEncoding.EncodeToString(image.Bytes),
		},
	}
}

// PaymentRequest builds a specific-NFT reservation for tokenCount tokens.
func PaymentRequest(mint config.MintConfig, project ProjectHandle, token TokenHandle, tokenCount int64, customerIP string) nmkr.PaymentTransactionRequest {
	return nmkr.PaymentTransactionRequest{
		ProjectUID:             project.ProjectUID,
		PaymentTransactionType: nmkr.PaymentTypeSpecific,
		CustomProperties:       map[string]string{},
		PaymentGatewayParameters: nmkr.PaymentGatewayParameters{
			PriceInLovelace: mint.PaymentPriceLovelace,
			MintNfts: nmkr.MintNfts{
				ReserveNfts: []nmkr.ReserveNft{{
					NftUID:     token.NftUID,
					TokenCount: tokenCount,
				}},
			},
		},
		CustomerIPAddress: orDefault(customerIP, "0.0.0.0"),
	}
}
