package domain

import (
	"fmt"
	"strings"
)

// OnFailureAction is what happens to a contract once its retries are exhausted.
type OnFailureAction string

const (
	OnFailureSkip   OnFailureAction = "skip"
	OnFailurePause  OnFailureAction = "pause"
	OnFailureCancel OnFailureAction = "cancel"
)

// Valid reports whether the action is one of the known values.
func (a OnFailureAction) Valid() bool {
	switch a {
	case OnFailureSkip, OnFailurePause, OnFailureCancel:
		return true
	default:
		return false
	}
}

// NotificationFrequency controls how merchants hear about inventory failures.
type NotificationFrequency string

const (
	NotificationFrequencyImmediately NotificationFrequency = "immediately"
	NotificationFrequencyWeekly      NotificationFrequency = "weekly"
	NotificationFrequencyMonthly     NotificationFrequency = "monthly"
)

// Valid reports whether the frequency is one of the known values.
func (f NotificationFrequency) Valid() bool {
	switch f {
	case NotificationFrequencyImmediately, NotificationFrequencyWeekly, NotificationFrequencyMonthly:
		return true
	default:
		return false
	}
}

// Documented bounds for the numeric settings fields.
const (
	MinRetryAttempts            = 0
	MaxRetryAttempts            = 10
	MinDaysBetweenRetryAttempts = 1
	MaxDaysBetweenRetryAttempts = 14
)

// Settings is the per-shop dunning configuration.
type Settings struct {
	ID                                string                `json:"id"`
	RetryAttempts                     int                   `json:"retryAttempts"`
	DaysBetweenRetryAttempts          int                   `json:"daysBetweenRetryAttempts"`
	OnFailure                         OnFailureAction       `json:"onFailure"`
	InventoryRetryAttempts            int                   `json:"inventoryRetryAttempts"`
	InventoryDaysBetweenRetryAttempts int                   `json:"inventoryDaysBetweenRetryAttempts"`
	InventoryOnFailure                OnFailureAction       `json:"inventoryOnFailure"`
	InventoryNotificationFrequency    NotificationFrequency `json:"inventoryNotificationFrequency"`
}

// DefaultSettings is used for shops that never saved their own settings.
func DefaultSettings() Settings {
	return Settings{
		RetryAttempts:                     3,
		DaysBetweenRetryAttempts:          7,
		OnFailure:                         OnFailureSkip,
		InventoryRetryAttempts:            5,
		InventoryDaysBetweenRetryAttempts: 1,
		InventoryOnFailure:                OnFailureSkip,
		InventoryNotificationFrequency:    NotificationFrequencyMonthly,
	}
}

// Policy is the retry triple that applies to one class of failure.
type Policy struct {
	RetryAttempts            int
	DaysBetweenRetryAttempts int
	OnFailure                OnFailureAction
}

// PolicyFor selects the payment or inventory triple for a failure class.
func (s Settings) PolicyFor(class FailureClass) Policy {
	switch class {
	case FailureClassInventory:
		return Policy{
			RetryAttempts:            s.InventoryRetryAttempts,
			DaysBetweenRetryAttempts: s.InventoryDaysBetweenRetryAttempts,
			OnFailure:                s.InventoryOnFailure,
		}
	case FailureClassPayment:
		return Policy{
			RetryAttempts:            s.RetryAttempts,
			DaysBetweenRetryAttempts: s.DaysBetweenRetryAttempts,
			OnFailure:                s.OnFailure,
		}
	default:
		panic(fmt.Sprintf("unhandled failure class %d", class))
	}
}

// SettingsInput is the unvalidated shape accepted at the settings write boundary.
type SettingsInput struct {
	RetryAttempts                     int    `json:"retryAttempts"`
	DaysBetweenRetryAttempts          int    `json:"daysBetweenRetryAttempts"`
	OnFailure                         string `json:"onFailure"`
	InventoryRetryAttempts            int    `json:"inventoryRetryAttempts"`
	InventoryDaysBetweenRetryAttempts int    `json:"inventoryDaysBetweenRetryAttempts"`
	InventoryOnFailure                string `json:"inventoryOnFailure"`
	InventoryNotificationFrequency    string `json:"inventoryNotificationFrequency"`
}

// Normalize clamps numeric fields into range and rejects unknown enum values.
func (in SettingsInput) Normalize() (Settings, error) {
	verr := &ValidationError{}

	onFailure := OnFailureAction(strings.ToLower(strings.TrimSpace(in.OnFailure)))
	if !onFailure.Valid() {
		verr.Add("onFailure", fmt.Sprintf("must be one of skip, pause, cancel; got %q", in.OnFailure))
	}

	inventoryOnFailure := OnFailureAction(strings.ToLower(strings.TrimSpace(in.InventoryOnFailure)))
	if !inventoryOnFailure.Valid() {
		verr.Add("inventoryOnFailure", fmt.Sprintf("must be one of skip, pause, cancel; got %q", in.InventoryOnFailure))
	}

	frequency := NotificationFrequency(strings.ToLower(strings.TrimSpace(in.InventoryNotificationFrequency)))
	if !frequency.Valid() {
		verr.Add("inventoryNotificationFrequency", fmt.Sprintf("must be one of immediately, weekly, monthly; got %q", in.InventoryNotificationFrequency))
	}

	if verr.HasErrors() {
		return Settings{}, verr
	}

	return Settings{
		RetryAttempts:                     clamp(in.RetryAttempts, MinRetryAttempts, MaxRetryAttempts),
		DaysBetweenRetryAttempts:          clamp(in.DaysBetweenRetryAttempts, MinDaysBetweenRetryAttempts, MaxDaysBetweenRetryAttempts),
		OnFailure:                         onFailure,
		InventoryRetryAttempts:            clamp(in.InventoryRetryAttempts, MinRetryAttempts, MaxRetryAttempts),
		InventoryDaysBetweenRetryAttempts: clamp(in.InventoryDaysBetweenRetryAttempts, MinDaysBetweenRetryAttempts, MaxDaysBetweenRetryAttempts),
		InventoryOnFailure:                inventoryOnFailure,
		InventoryNotificationFrequency:    frequency,
	}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
