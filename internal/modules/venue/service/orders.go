package service

import (
	"context"
	"fmt"

	"trade_engine/internal/models"
)

func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (models.OrderResult, error) {
	body := map[string]any{
		"symbol":  req.Symbol,
		"side":    string(req.Side),
		"volume":  req.Volume,
		"price":   req.Price,
		"sl":      req.StopLoss,
		"tp":      req.TakeProfit,
		"comment": req.Comment,
	}

	var payload struct {
		Ticket int64  `json:"ticket"`
		Status string `json:"status"`
	}
	if err := c.post(ctx, "/api/v1/order", body, &payload); err != nil {
		return models.OrderResult{}, fmt.Errorf("place order %s %s: %w", req.Symbol, req.Side, err)
	}
	if payload.Status != "FILLED" {
		return models.OrderResult{}, fmt.Errorf("order rejected: %s", payload.Status)
	}
	return models.OrderResult{Ticket: payload.Ticket, Status: payload.Status}, nil
}

// ModifyStop двигает стоп позиции; keepTakeProfit=true сохраняет текущий TP.
func (c *Client) ModifyStop(ctx context.Context, ticket int64, newStop float64, keepTakeProfit bool) error {
	body := map[string]any{
		"ticket":  ticket,
		"sl":      newStop,
		"keep_tp": keepTakeProfit,
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := c.post(ctx, "/api/v1/modify", body, &payload); err != nil {
		return fmt.Errorf("modify stop #%d: %w", ticket, err)
	}
	if payload.Status != "OK" {
		return fmt.Errorf("modify stop #%d rejected: %s", ticket, payload.Status)
	}
	return nil
}

func (c *Client) ClosePosition(ctx context.Context, ticket int64, volume float64) error {
	body := map[string]any{
		"ticket": ticket,
		"volume": volume,
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := c.post(ctx, "/api/v1/close", body, &payload); err != nil {
		return fmt.Errorf("close position #%d: %w", ticket, err)
	}
	if payload.Status != "OK" {
		return fmt.Errorf("close position #%d rejected: %s", ticket, payload.Status)
	}
	return nil
}
