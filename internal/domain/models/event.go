package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TriggerEvent records one condition firing, whether or not delivery succeeded.
type TriggerEvent struct {
	ID            int64            `json:"id"`
	ConditionID   string           `json:"condition_id"`
	Owner         string           `json:"owner"`
	Symbol        string           `json:"symbol"`
	Kind          Kind             `json:"kind"`
	Threshold     decimal.Decimal  `json:"threshold"`
	Price         decimal.Decimal  `json:"price"`
	PreviousPrice *decimal.Decimal `json:"previous_price,omitempty"`
	OneShot       bool             `json:"one_shot"`
	Message       string           `json:"message"`
	Delivered     bool             `json:"delivered"`
	DeliveryError string           `json:"delivery_error,omitempty"`
	FiredAt       time.Time        `json:"fired_at"`
}
