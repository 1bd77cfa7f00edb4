package commerce

import (
	"context"
	"fmt"
	"time"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
)

// SkipReasonMerchantInitiated is the schedule edit reason used for dunning edits.
const SkipReasonMerchantInitiated = "MERCHANT_INITIATED"

const (
	opContract           = "subscriptionContract"
	opBillingCycle       = "subscriptionBillingCycle"
	opScheduleEdit       = "subscriptionBillingCycleScheduleEdit"
	opContractPause      = "subscriptionContractPause"
	opContractCancel     = "subscriptionContractCancel"
	opMetaobjectByHandle = "metaobjectByHandle"
	opMetaobjectUpsert   = "metaobjectUpsert"
)

type contractNode struct {
	ID       string                `json:"id"`
	Status   domain.ContractStatus `json:"status"`
	Customer *struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	} `json:"customer"`
}

// GetContract fetches the status and customer of a subscription contract.
func (c *Client) GetContract(ctx context.Context, shop, contractID string) (*domain.Contract, error) {
	var data struct {
		Contract *contractNode `json:"subscriptionContract"`
	}
	if err := c.do(ctx, shop, opContract, subscriptionContractQuery, map[string]any{"id": contractID}, &data); err != nil {
		return nil, err
	}
	if data.Contract == nil {
		return nil, domain.NewNotFoundError("subscription contract", contractID)
	}

	contract := &domain.Contract{ID: data.Contract.ID, Status: data.Contract.Status}
	if data.Contract.Customer != nil {
		contract.Customer = domain.Customer{
			ID:          data.Contract.Customer.ID,
			Email:       data.Contract.Customer.Email,
			DisplayName: data.Contract.Customer.DisplayName,
		}
	}
	return contract, nil
}

type billingCycleNode struct {
	CycleIndex                 int                       `json:"cycleIndex"`
	Status                     domain.BillingCycleStatus `json:"status"`
	Skipped                    bool                      `json:"skipped"`
	BillingAttemptExpectedDate time.Time                 `json:"billingAttemptExpectedDate"`
	BillingAttempts            struct {
		Edges []struct {
			Node domain.BillingAttempt `json:"node"`
		} `json:"edges"`
	} `json:"billingAttempts"`
}

// GetBillingCycle fetches one billing cycle of a contract with its attempts.
func (c *Client) GetBillingCycle(ctx context.Context, shop, contractID string, cycleIndex int) (*domain.BillingCycle, error) {
	var data struct {
		Cycle *billingCycleNode `json:"subscriptionBillingCycle"`
	}
	vars := map[string]any{"contractId": contractID, "index": cycleIndex}
	if err := c.do(ctx, shop, opBillingCycle, subscriptionBillingCycleQuery, vars, &data); err != nil {
		return nil, err
	}
	if data.Cycle == nil {
		return nil, domain.NewNotFoundError("billing cycle", fmt.Sprintf("%s#%d", contractID, cycleIndex))
	}

	cycle := &domain.BillingCycle{
		CycleIndex:                 data.Cycle.CycleIndex,
		Status:                     data.Cycle.Status,
		Skipped:                    data.Cycle.Skipped,
		BillingAttemptExpectedDate: data.Cycle.BillingAttemptExpectedDate,
		BillingAttempts:            make([]domain.BillingAttempt, 0, len(data.Cycle.BillingAttempts.Edges)),
	}
	for _, edge := range data.Cycle.BillingAttempts.Edges {
		cycle.BillingAttempts = append(cycle.BillingAttempts, edge.Node)
	}
	return cycle, nil
}

// RescheduleInput moves the billing date of one cycle.
type RescheduleInput struct {
	ContractID  string
	CycleIndex  int
	BillingDate time.Time
}

type scheduleEditData struct {
	Payload *struct {
		BillingCycle *struct {
			CycleIndex int `json:"cycleIndex"`
		} `json:"billingCycle"`
		UserErrors []UserError `json:"userErrors"`
	} `json:"subscriptionBillingCycleScheduleEdit"`
}

func (c *Client) scheduleEdit(ctx context.Context, shop, contractID string, cycleIndex int, input map[string]any) error {
	vars := map[string]any{
		"billingCycleInput": map[string]any{
			"contractId": contractID,
			"selector":   map[string]any{"index": cycleIndex},
		},
		"input": input,
	}

	var data scheduleEditData
	if err := c.do(ctx, shop, opScheduleEdit, billingCycleScheduleEditMutation, vars, &data); err != nil {
		return err
	}
	if data.Payload == nil {
		return &ProtocolError{Operation: opScheduleEdit, Expected: "a subscriptionBillingCycleScheduleEdit payload"}
	}
	return checkMutation(opScheduleEdit, "billingCycle or userErrors", data.Payload.UserErrors, data.Payload.BillingCycle != nil)
}

// RescheduleBillingCycle moves the next billing attempt of a cycle to input.BillingDate.
func (c *Client) RescheduleBillingCycle(ctx context.Context, shop string, input RescheduleInput) error {
	return c.scheduleEdit(ctx, shop, input.ContractID, input.CycleIndex, map[string]any{
		"billingDate": input.BillingDate.UTC().Format(time.RFC3339),
		"reason":      SkipReasonMerchantInitiated,
	})
}

// SkipBillingCycle marks a cycle skipped with a merchant initiated reason.
func (c *Client) SkipBillingCycle(ctx context.Context, shop, contractID string, cycleIndex int) error {
	return c.scheduleEdit(ctx, shop, contractID, cycleIndex, map[string]any{
		"skip":   true,
		"reason": SkipReasonMerchantInitiated,
	})
}

type contractMutationPayload struct {
	Contract *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"contract"`
	UserErrors []UserError `json:"userErrors"`
}

func (c *Client) contractMutation(ctx context.Context, shop, operation, mutation, contractID string) error {
	var data map[string]*contractMutationPayload
	vars := map[string]any{"subscriptionContractId": contractID}
	if err := c.do(ctx, shop, operation, mutation, vars, &data); err != nil {
		return err
	}
	payload := data[operation]
	if payload == nil {
		return &ProtocolError{Operation: operation, Expected: "a " + operation + " payload"}
	}
	return checkMutation(operation, "contract or userErrors", payload.UserErrors, payload.Contract != nil)
}

// PauseContract pauses a subscription contract.
func (c *Client) PauseContract(ctx context.Context, shop, contractID string) error {
	return c.contractMutation(ctx, shop, opContractPause, contractPauseMutation, contractID)
}

// CancelContract cancels a subscription contract.
func (c *Client) CancelContract(ctx context.Context, shop, contractID string) error {
	return c.contractMutation(ctx, shop, opContractCancel, contractCancelMutation, contractID)
}
