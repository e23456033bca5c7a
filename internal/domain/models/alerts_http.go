package models

// Requests for alert HTTP endpoints.

type CreateAlertRequest struct {
	Owner       string `json:"owner" default:"api" validate:"max=64"`
	Symbol      string `json:"symbol" validate:"required,max=20"`
	Kind        string `json:"kind" default:"PRICE_ABOVE" validate:"required"`
	Threshold   Amount `json:"threshold" validate:"required"`
	Description string `json:"description" validate:"max=256"`
	OneShot     *bool  `json:"one_shot"`
}

type ListAlertsRequest struct {
	Owner string `query:"owner" json:"owner"`
}

type HistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,max=20"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}
