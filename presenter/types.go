package presenter

import (
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/iron-fish/ironfish-bridge/bridge"
	"github.com/iron-fish/ironfish-bridge/entity"
)

// BridgeDataRequest is a bridge request as reported by the relay.
type BridgeDataRequest struct {
	Amount                 string                      `json:"amount" validate:"required,amount"`
	Asset                  string                      `json:"asset" validate:"required,hexadecimal"`
	SourceAddress          string                      `json:"source_address" validate:"required"`
	DestinationAddress     string                      `json:"destination_address" validate:"required"`
	SourceChain            entity.Chain                `json:"source_chain" validate:"required,chain"`
	DestinationChain       entity.Chain                `json:"destination_chain" validate:"required,chain,nefield=SourceChain"`
	SourceTransaction      *string                     `json:"source_transaction" validate:"omitempty,min=1"`
	DestinationTransaction *string                     `json:"destination_transaction" validate:"omitempty,min=1"`
	Status                 *entity.BridgeRequestStatus `json:"status" validate:"omitempty,bridge_status"`
}

type CreateRequest struct {
	Requests []*BridgeDataRequest `json:"requests" validate:"required,dive,required"`
}

type BurnRequest struct {
	Burns []*BridgeDataRequest `json:"burns" validate:"required,dive,required"`
}

// RetrieveRequest selects requests either by IDs or by the chain/status
// filter. IDs win when both are given.
type RetrieveRequest struct {
	IDs              []int64                     `json:"ids" validate:"omitempty,dive,gt=0"`
	SourceChain      *entity.Chain               `json:"source_chain" validate:"required_without=IDs,omitempty,chain"`
	DestinationChain *entity.Chain               `json:"destination_chain" validate:"required_without=IDs,omitempty,chain"`
	Status           *entity.BridgeRequestStatus `json:"status" validate:"required_without=IDs,omitempty,bridge_status"`
	Count            uint64                      `json:"count"`
}

type RetrieveResponse struct {
	Requests []*entity.BridgeRequest `json:"requests"`
}

type SendItemRequest struct {
	ID                *int64  `json:"id" validate:"required_without=SourceTransaction,omitempty,gt=0"`
	SourceTransaction *string `json:"source_transaction" validate:"omitempty,min=1"`
	SourceAddress     string  `json:"source_address" validate:"required"`
	Asset             string  `json:"asset" validate:"required"`
	Amount            string  `json:"amount" validate:"required,amount"`
}

type SendRequest struct {
	Sends []*SendItemRequest `json:"sends" validate:"required,dive,required"`
}

type ReleaseItemRequest struct {
	ID                    *int64  `json:"id" validate:"required_without=SourceBurnTransaction,omitempty,gt=0"`
	SourceBurnTransaction *string `json:"source_burn_transaction" validate:"omitempty,min=1"`
}

type ReleaseRequest struct {
	Releases []*ReleaseItemRequest `json:"releases" validate:"required,dive,required"`
}

type UpdateItemRequest struct {
	ID                     int64                       `json:"id" validate:"required,gt=0"`
	Status                 *entity.BridgeRequestStatus `json:"status" validate:"omitempty,bridge_status"`
	DestinationTransaction *string                     `json:"destination_transaction" validate:"omitempty,min=1"`
	SourceTransaction      *string                     `json:"source_transaction" validate:"omitempty,min=1"`
	SourceBurnTransaction  *string                     `json:"source_burn_transaction" validate:"omitempty,min=1"`
}

type UpdateRequestsRequest struct {
	Transactions []*UpdateItemRequest `json:"transactions" validate:"required,dive,required"`
}

type ConfirmItemRequest struct {
	ID                     int64  `json:"id" validate:"required,gt=0"`
	DestinationTransaction string `json:"destination_transaction" validate:"required"`
}

type ConfirmRequest struct {
	Confirms []*ConfirmItemRequest `json:"confirms" validate:"required,dive,required"`
}

type HeadRequest struct {
	Head string `json:"head" validate:"required"`
}

type HeadResponse struct {
	Hash *string `json:"hash"`
}

type AddressResponse struct {
	Address string `json:"address"`
}

type ListResponse struct {
	Object string                  `json:"object"`
	Data   []*entity.BridgeRequest `json:"data"`
}

type nextRequestsQuery struct {
	Count uint64 `validate:"min=1"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	mustRegister(v, "amount", func(fl validator.FieldLevel) bool {
		amount, err := decimal.NewFromString(fl.Field().String())
		return err == nil && amount.IsInteger() && amount.IsPositive()
	})
	mustRegister(v, "chain", func(fl validator.FieldLevel) bool {
		return fl.Field().Kind() == reflect.String && entity.Chain(fl.Field().String()).Valid()
	})
	mustRegister(v, "bridge_status", func(fl validator.FieldLevel) bool {
		return fl.Field().Kind() == reflect.String && entity.BridgeRequestStatus(fl.Field().String()).Valid()
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

func (r *BridgeDataRequest) toNewRequest() *bridge.NewRequest {
	req := &bridge.NewRequest{
		Asset:                  r.Asset,
		SourceAddress:          r.SourceAddress,
		DestinationAddress:     r.DestinationAddress,
		Amount:                 decimal.RequireFromString(r.Amount),
		SourceChain:            r.SourceChain,
		DestinationChain:       r.DestinationChain,
		SourceTransaction:      r.SourceTransaction,
		DestinationTransaction: r.DestinationTransaction,
	}
	if r.Status != nil {
		req.Status = *r.Status
	}
	return req
}

func toNewRequests(reqs []*BridgeDataRequest) []*bridge.NewRequest {
	res := make([]*bridge.NewRequest, len(reqs))
	for i, r := range reqs {
		res[i] = r.toNewRequest()
	}
	return res
}

func toSendItems(sends []*SendItemRequest) []*bridge.SendItem {
	res := make([]*bridge.SendItem, len(sends))
	for i, s := range sends {
		res[i] = &bridge.SendItem{
			ID:                s.ID,
			SourceTransaction: s.SourceTransaction,
			SourceAddress:     s.SourceAddress,
			Asset:             s.Asset,
			Amount:            decimal.RequireFromString(s.Amount),
		}
	}
	return res
}

func toReleaseItems(releases []*ReleaseItemRequest) []*bridge.ReleaseItem {
	res := make([]*bridge.ReleaseItem, len(releases))
	for i, r := range releases {
		res[i] = &bridge.ReleaseItem{ID: r.ID, SourceBurnTransaction: r.SourceBurnTransaction}
	}
	return res
}

func toUpdateItems(transactions []*UpdateItemRequest) []*bridge.UpdateItem {
	res := make([]*bridge.UpdateItem, len(transactions))
	for i, t := range transactions {
		res[i] = &bridge.UpdateItem{
			ID:                     t.ID,
			Status:                 t.Status,
			DestinationTransaction: t.DestinationTransaction,
			SourceTransaction:      t.SourceTransaction,
			SourceBurnTransaction:  t.SourceBurnTransaction,
		}
	}
	return res
}

func toConfirmItems(confirms []*ConfirmItemRequest) []*bridge.ConfirmItem {
	res := make([]*bridge.ConfirmItem, len(confirms))
	for i, c := range confirms {
		res[i] = &bridge.ConfirmItem{ID: c.ID, DestinationTransaction: c.DestinationTransaction}
	}
	return res
}
