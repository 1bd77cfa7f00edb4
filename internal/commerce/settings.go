package commerce

import (
	"context"
	"strconv"

	"github.com/jia-app/dunningservice/internal/dunning/domain"
)

// Settings live in one app-owned metaobject per shop.
const (
	SettingsMetaobjectType   = "$app:dunning_settings"
	SettingsMetaobjectHandle = "dunning-settings"
)

const (
	fieldRetryAttempts                     = "retry_attempts"
	fieldDaysBetweenRetryAttempts          = "days_between_retry_attempts"
	fieldOnFailure                         = "on_failure"
	fieldInventoryRetryAttempts            = "inventory_retry_attempts"
	fieldInventoryDaysBetweenRetryAttempts = "inventory_days_between_retry_attempts"
	fieldInventoryOnFailure                = "inventory_on_failure"
	fieldInventoryNotificationFrequency    = "inventory_notification_frequency"
)

type metaobjectField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type metaobjectNode struct {
	ID     string            `json:"id"`
	Fields []metaobjectField `json:"fields"`
}

func settingsHandle() map[string]any {
	return map[string]any{"type": SettingsMetaobjectType, "handle": SettingsMetaobjectHandle}
}

// GetDunningSettings reads the settings metaobject of a shop. It returns
// domain.ErrSettingsNotFound when the shop never saved settings.
func (c *Client) GetDunningSettings(ctx context.Context, shop string) (*domain.Settings, error) {
	var data struct {
		Metaobject *metaobjectNode `json:"metaobjectByHandle"`
	}
	if err := c.do(ctx, shop, opMetaobjectByHandle, metaobjectByHandleQuery, map[string]any{"handle": settingsHandle()}, &data); err != nil {
		return nil, err
	}
	if data.Metaobject == nil {
		return nil, domain.ErrSettingsNotFound
	}
	settings := decodeSettings(*data.Metaobject)
	return &settings, nil
}

// UpsertDunningSettings writes already validated settings and returns what was stored.
func (c *Client) UpsertDunningSettings(ctx context.Context, shop string, settings domain.Settings) (*domain.Settings, error) {
	vars := map[string]any{
		"handle":     settingsHandle(),
		"metaobject": map[string]any{"fields": encodeSettings(settings)},
	}

	var data struct {
		Payload *struct {
			Metaobject *metaobjectNode `json:"metaobject"`
			UserErrors []UserError     `json:"userErrors"`
		} `json:"metaobjectUpsert"`
	}
	if err := c.do(ctx, shop, opMetaobjectUpsert, metaobjectUpsertMutation, vars, &data); err != nil {
		return nil, err
	}
	if data.Payload == nil {
		return nil, &ProtocolError{Operation: opMetaobjectUpsert, Expected: "a metaobjectUpsert payload"}
	}
	if err := checkMutation(opMetaobjectUpsert, "metaobject or userErrors", data.Payload.UserErrors, data.Payload.Metaobject != nil); err != nil {
		return nil, err
	}

	stored := decodeSettings(*data.Payload.Metaobject)
	return &stored, nil
}

func encodeSettings(s domain.Settings) []metaobjectField {
	return []metaobjectField{
		{Key: fieldRetryAttempts, Value: strconv.Itoa(s.RetryAttempts)},
		{Key: fieldDaysBetweenRetryAttempts, Value: strconv.Itoa(s.DaysBetweenRetryAttempts)},
		{Key: fieldOnFailure, Value: string(s.OnFailure)},
		{Key: fieldInventoryRetryAttempts, Value: strconv.Itoa(s.InventoryRetryAttempts)},
		{Key: fieldInventoryDaysBetweenRetryAttempts, Value: strconv.Itoa(s.InventoryDaysBetweenRetryAttempts)},
		{Key: fieldInventoryOnFailure, Value: string(s.InventoryOnFailure)},
		{Key: fieldInventoryNotificationFrequency, Value: string(s.InventoryNotificationFrequency)},
	}
}

// decodeSettings trusts the stored shape; fields that are missing or not
// numeric keep their default.
func decodeSettings(node metaobjectNode) domain.Settings {
	s := domain.DefaultSettings()
	s.ID = node.ID

	for _, f := range node.Fields {
		switch f.Key {
		case fieldRetryAttempts:
			setInt(&s.RetryAttempts, f.Value)
		case fieldDaysBetweenRetryAttempts:
			setInt(&s.DaysBetweenRetryAttempts, f.Value)
		case fieldOnFailure:
			if a := domain.OnFailureAction(f.Value); a.Valid() {
				s.OnFailure = a
			}
		case fieldInventoryRetryAttempts:
			setInt(&s.InventoryRetryAttempts, f.Value)
		case fieldInventoryDaysBetweenRetryAttempts:
			setInt(&s.InventoryDaysBetweenRetryAttempts, f.Value)
		case fieldInventoryOnFailure:
			if a := domain.OnFailureAction(f.Value); a.Valid() {
				s.InventoryOnFailure = a
			}
		case fieldInventoryNotificationFrequency:
			if nf := domain.NotificationFrequency(f.Value); nf.Valid() {
				s.InventoryNotificationFrequency = nf
			}
		}
	}
	return s
}

func setInt(dst *int, raw string) {
	if v, err := strconv.Atoi(raw); err == nil {
		*dst = v
	}
}
