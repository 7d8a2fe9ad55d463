package submission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMembershipFromMap(t *testing.T) {
	got := MembershipFromMap(map[string]interface{}{
		"fullName": "Mehmet Demir",
		"memberId": float64(1907),
		"consent":  true,
		"unknown":  "ignored",
	})

	assert.Equal(t, "Mehmet Demir", got.FullName)
	assert.Equal(t, "1907", got.MemberID)
	assert.True(t, got.Consent)
	assert.Empty(t, got.Address)
}

func TestContactFromMap(t *testing.T) {
	got := ContactFromMap(map[string]interface{}{
		"name":    "Ali",
		"phone":   nil,
		"message": "satır 1\nsatır 2",
	})
	assert.Equal(t, ContactSubmission{Name: "Ali", Message: "satır 1\nsatır 2"}, got)
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		in   interface{}
		want bool
	}{
		{true, true},
		{false, false},
		{"true", true},
		{"on", true},
		{"Evet", true},
		{"false", false},
		{float64(1), true},
		{float64(0), false},
		{nil, false},
		{[]interface{}{}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truthy(tt.in), "%v", tt.in)
	}
}

func TestFromMap_JSONNumbers(t *testing.T) {
	got := MembershipFromMap(map[string]interface{}{
		"memberId": json.Number("12345678901234567890"),
		"consent":  json.Number("1"),
	})
	assert.Equal(t, "12345678901234567890", got.MemberID)
	assert.True(t, got.Consent)
}

func TestFields(t *testing.T) {
	got := Fields(map[string]interface{}{
		"fullName": "Mehmet Demir",
		"memberId": json.Number("1907"),
		"phone":    nil,
		"consent":  "on",
	})
	assert.Equal(t, map[string]string{
		"fullName": "Mehmet Demir",
		"memberId": "1907",
		"phone":    "",
		"consent":  "true",
	}, got)

	assert.Equal(t, "false", Fields(map[string]interface{}{"consent": false})["consent"])
	assert.NotContains(t, Fields(map[string]interface{}{}), "consent")
}
