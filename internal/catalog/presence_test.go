package catalog

import "testing"

func TestHasDataScalars(t *testing.T) {
	record := map[string]any{
		"email":      "a@b.com",
		"middleName": "",
		"hasSurgery": false,
		"weight":     0.0,
	}

	if !HasData(record, "email") {
		t.Error("non-empty string should be data")
	}
	if HasData(record, "middleName") {
		t.Error("empty string should not be data")
	}
	if !HasData(record, "hasSurgery") {
		t.Error("boolean false is a meaningful answer")
	}
	if !HasData(record, "weight") {
		t.Error("numeric zero is a meaningful answer")
	}
	if HasData(record, "gender") {
		t.Error("absent key should not be data")
	}
	if HasData(map[string]any{}, "hasSurgery") {
		t.Error("empty record has no data")
	}
	if HasData(nil, "email") {
		t.Error("nil record has no data")
	}
}

func TestHasDataNested(t *testing.T) {
	record := map[string]any{
		"phone": map[string]any{
			"mobile": "5551234567",
			"home":   nil,
		},
		"address": map[string]any{},
	}

	if !HasData(record, "phone.mobile") {
		t.Error("nested value should be data")
	}
	if HasData(record, "phone.home") {
		t.Error("nil value should not be data")
	}
	if HasData(record, "phone.work") {
		t.Error("absent nested key should not be data")
	}
	if HasData(record, "address.city") {
		t.Error("missing segment should not be data")
	}
	if HasData(record, "phone.mobile.extra") {
		t.Error("walking through a scalar should not be data")
	}
}

func TestHasDataCollections(t *testing.T) {
	record := map[string]any{
		"careTeamProviders": []any{map[string]any{"providerName": "Dr. Lee"}},
		"allergies":         []any{},
	}

	if !HasData(record, "careTeamProviders") {
		t.Error("populated list should be data")
	}
	if HasData(record, "allergies") {
		t.Error("empty list should not be data")
	}
}
