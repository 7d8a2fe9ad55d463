package mailformat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"form-relay/internal/relay/submission"
)

func createValidMembership() submission.MembershipSubmission {
	return submission.MembershipSubmission{
		FullName:          "Mehmet Demir",
		MemberID:          "1907",
		BirthDate:         "1990-05-19",
		BloodType:         "0 Rh+",
		BirthCity:         "İstanbul",
		EducationLevel:    "Lisans",
		Occupation:        "Mühendis",
		Workplace:         "Liman A.Ş.",
		Phone:             "0532 123 45 67",
		Email:             "mehmet@example.com",
		ResidenceCity:     "İstanbul",
		ResidenceDistrict: "Kadıköy",
		Address:           "Moda Cad. No:1\nKat 2",
		Consent:           true,
	}
}

func TestMembership(t *testing.T) {
	out := Membership(createValidMembership())

	for _, label := range []string{"Ad Soyad", "Üye Numarası", "Kan Grubu", "İkamet İlçesi", "KVKK Onayı"} {
		assert.Contains(t, out, label)
	}
	assert.Contains(t, out, "Mehmet Demir")
	assert.Contains(t, out, "Moda Cad. No:1<br>Kat 2")
	assert.Contains(t, out, ">Evet<")
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))

	m := createValidMembership()
	m.Consent = false
	assert.Contains(t, Membership(m), ">Hayır<")
}

func TestMembership_EmptyRecordRendersBlankCells(t *testing.T) {
	out := Membership(submission.MembershipSubmission{})
	assert.Equal(t, 14, strings.Count(out, "<tr>"))
	assert.NotContains(t, out, "undefined")
	assert.Contains(t, out, ">Hayır<")
}

func TestContact(t *testing.T) {
	out := Contact(submission.ContactSubmission{
		Name:    "Zeynep <b>Kaya</b>",
		Email:   "zeynep@example.com",
		Subject: "Bilet & Kombine",
		Message: "Merhaba,\r\nbilgi almak istiyorum.\n<script>alert(1)</script>",
	})

	assert.Contains(t, out, "Zeynep &lt;b&gt;Kaya&lt;/b&gt;")
	assert.Contains(t, out, "Bilet &amp; Kombine")
	assert.Contains(t, out, "Merhaba,<br>bilgi almak istiyorum.<br>&lt;script&gt;")
	assert.NotContains(t, out, "<script>")
	assert.Equal(t, 5, strings.Count(out, "<tr>"))
}

func TestDeterministic(t *testing.T) {
	m := createValidMembership()
	assert.Equal(t, Membership(m), Membership(m))
	c := submission.ContactSubmission{Name: "A", Message: "x\ny"}
	assert.Equal(t, Contact(c), Contact(c))
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "Yeni Üyelik Başvurusu - Mehmet Demir", MembershipSubject(createValidMembership()))
	assert.Equal(t, "İletişim Formu - Bilet sorusu", ContactSubject(submission.ContactSubmission{Subject: "Bilet\r\nsorusu"}))
	assert.Equal(t, "İletişim Formu", ContactSubject(submission.ContactSubmission{}))
}
