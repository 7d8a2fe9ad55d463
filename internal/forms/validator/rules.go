package validator

import (
	"regexp"
	"time"
)

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern  = regexp.MustCompile(`^(\+90|0)?\s?5\d{2}\s?\d{3}\s?\d{2}\s?\d{2}$`)
	memberPattern = regexp.MustCompile(`^[0-9]{1,20}$`)
)

var bloodTypes = map[string]struct{}{
	"A Rh+": {}, "A Rh-": {}, "B Rh+": {}, "B Rh-": {},
	"AB Rh+": {}, "AB Rh-": {}, "0 Rh+": {}, "0 Rh-": {},
}

func validBirthDate(v string) bool {
	d, err := time.Parse("2006-01-02", v)
	if err != nil {
		return false
	}
	return d.Before(time.Now())
}

func validBloodType(v string) bool {
	_, ok := bloodTypes[v]
	return ok
}

func consentGiven(v string) bool {
	return v == "true"
}

// MembershipRules returns the rule set of the membership application form.
// Consent is expected as "true" or "false".
func MembershipRules() Rules {
	return Rules{
		"fullName": {
			Required: true, RequiredMessage: "Ad soyad zorunludur",
			MinLength: 3, MinLengthMessage: "Ad soyad en az 3 karakter olmalıdır",
			MaxLength: 100, MaxLengthMessage: "Ad soyad en fazla 100 karakter olabilir",
		},
		"memberId": {
			Pattern: memberPattern, PatternMessage: "Üye numarası yalnızca rakamlardan oluşmalıdır",
		},
		"birthDate": {
			Required: true, RequiredMessage: "Doğum tarihi zorunludur",
			Custom: validBirthDate, CustomMessage: "Geçerli bir doğum tarihi giriniz",
		},
		"bloodType": {
			Custom: validBloodType, CustomMessage: "Geçerli bir kan grubu seçiniz",
		},
		"birthCity": {
			Required: true, RequiredMessage: "Doğum yeri zorunludur",
			MaxLength: 50,
		},
		"educationLevel": {
			Required: true, RequiredMessage: "Öğrenim durumu zorunludur",
		},
		"occupation": {
			Required: true, RequiredMessage: "Meslek zorunludur",
			MaxLength: 100,
		},
		"workplace": {
			MaxLength: 150,
		},
		"phone": {
			Required: true, RequiredMessage: "Telefon numarası zorunludur",
			Pattern: phonePattern, PatternMessage: "Geçerli bir telefon numarası giriniz",
		},
		"email": {
			Required: true, RequiredMessage: "E-posta adresi zorunludur",
			Pattern: emailPattern, PatternMessage: "Geçerli bir e-posta adresi giriniz",
		},
		"residenceCity": {
			Required: true, RequiredMessage: "İkamet edilen il zorunludur",
		},
		"residenceDistrict": {
			Required: true, RequiredMessage: "İkamet edilen ilçe zorunludur",
		},
		"address": {
			Required: true, RequiredMessage: "Adres zorunludur",
			MinLength: 10, MinLengthMessage: "Adres en az 10 karakter olmalıdır",
			MaxLength: 500, MaxLengthMessage: "Adres en fazla 500 karakter olabilir",
		},
		"consent": {
			Required: true, RequiredMessage: "Aydınlatma metnini onaylamanız gerekmektedir",
			Custom: consentGiven, CustomMessage: "Aydınlatma metnini onaylamanız gerekmektedir",
		},
	}
}

// ContactRules returns the rule set of the contact form.
func ContactRules() Rules {
	return Rules{
		"name": {
			Required: true, RequiredMessage: "Ad soyad zorunludur",
			MinLength: 2, MinLengthMessage: "Ad soyad en az 2 karakter olmalıdır",
			MaxLength: 100, MaxLengthMessage: "Ad soyad en fazla 100 karakter olabilir",
		},
		"email": {
			Required: true, RequiredMessage: "E-posta adresi zorunludur",
			Pattern: emailPattern, PatternMessage: "Geçerli bir e-posta adresi giriniz",
		},
		"phone": {
			Pattern: phonePattern, PatternMessage: "Geçerli bir telefon numarası giriniz",
		},
		"subject": {
			Required: true, RequiredMessage: "Konu zorunludur",
			MaxLength: 150, MaxLengthMessage: "Konu en fazla 150 karakter olabilir",
		},
		"message": {
			Required: true, RequiredMessage: "Mesaj zorunludur",
			MinLength: 10, MinLengthMessage: "Mesaj en az 10 karakter olmalıdır",
			MaxLength: 2000, MaxLengthMessage: "Mesaj en fazla 2000 karakter olabilir",
		},
	}
}
