// Package submission holds the typed form records built from request
// payloads.
package submission

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a submission type. Its value doubles as the fallback file
// prefix.
type Kind string

const (
	KindMembership Kind = "membership-form"
	KindContact    Kind = "contact-form"
)

func (k Kind) String() string { return string(k) }

type MembershipSubmission struct {
	FullName          string `json:"fullName"`
	MemberID          string `json:"memberId"`
	BirthDate         string `json:"birthDate"`
	BloodType         string `json:"bloodType"`
	BirthCity         string `json:"birthCity"`
	EducationLevel    string `json:"educationLevel"`
	Occupation        string `json:"occupation"`
	Workplace         string `json:"workplace"`
	Phone             string `json:"phone"`
	Email             string `json:"email"`
	ResidenceCity     string `json:"residenceCity"`
	ResidenceDistrict string `json:"residenceDistrict"`
	Address           string `json:"address"`
	Consent           bool   `json:"consent"`
}

type ContactSubmission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// MembershipFromMap builds a record from an untyped payload. Missing keys
// stay empty and non-string values are rendered with fmt.
func MembershipFromMap(m map[string]interface{}) MembershipSubmission {
	return MembershipSubmission{
		FullName:          str(m, "fullName"),
		MemberID:          str(m, "memberId"),
		BirthDate:         str(m, "birthDate"),
		BloodType:         str(m, "bloodType"),
		BirthCity:         str(m, "birthCity"),
		EducationLevel:    str(m, "educationLevel"),
		Occupation:        str(m, "occupation"),
		Workplace:         str(m, "workplace"),
		Phone:             str(m, "phone"),
		Email:             str(m, "email"),
		ResidenceCity:     str(m, "residenceCity"),
		ResidenceDistrict: str(m, "residenceDistrict"),
		Address:           str(m, "address"),
		Consent:           truthy(m["consent"]),
	}
}

func ContactFromMap(m map[string]interface{}) ContactSubmission {
	return ContactSubmission{
		Name:    str(m, "name"),
		Email:   str(m, "email"),
		Phone:   str(m, "phone"),
		Subject: str(m, "subject"),
		Message: str(m, "message"),
	}
}

// Fields flattens a payload into the string map the field validator works
// on. Consent is normalised to "true" or "false".
func Fields(m map[string]interface{}) map[string]string {
	out := make(map[string]string, len(m))
	for k := range m {
		out[k] = str(m, k)
	}
	if v, ok := m["consent"]; ok {
		out["consent"] = strconv.FormatBool(truthy(v))
	}
	return out
}

func str(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "on", "1", "evet":
			return true
		}
	case float64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	}
	return false
}
