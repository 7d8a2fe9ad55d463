// Package mailformat renders submissions as self-contained HTML mail bodies.
// Rendering is deterministic and does no validation: blank fields are
// rendered blank.
package mailformat

import (
	"html"
	"strings"

	"form-relay/internal/relay/submission"
)

type row struct {
	label     string
	value     string
	multiline bool
}

// Membership renders a membership application.
func Membership(s submission.MembershipSubmission) string {
	consent := "Hayır"
	if s.Consent {
		consent = "Evet"
	}
	return render("Yeni Üyelik Başvurusu", []row{
		{label: "Ad Soyad", value: s.FullName},
		{label: "Üye Numarası", value: s.MemberID},
		{label: "Doğum Tarihi", value: s.BirthDate},
		{label: "Kan Grubu", value: s.BloodType},
		{label: "Doğum Yeri", value: s.BirthCity},
		{label: "Öğrenim Durumu", value: s.EducationLevel},
		{label: "Meslek", value: s.Occupation},
		{label: "İş Yeri", value: s.Workplace},
		{label: "Telefon", value: s.Phone},
		{label: "E-posta", value: s.Email},
		{label: "İkamet İli", value: s.ResidenceCity},
		{label: "İkamet İlçesi", value: s.ResidenceDistrict},
		{label: "Adres", value: s.Address, multiline: true},
		{label: "KVKK Onayı", value: consent},
	})
}

// Contact renders a contact form message.
func Contact(s submission.ContactSubmission) string {
	return render("Yeni İletişim Formu Mesajı", []row{
		{label: "Ad Soyad", value: s.Name},
		{label: "E-posta", value: s.Email},
		{label: "Telefon", value: s.Phone},
		{label: "Konu", value: s.Subject},
		{label: "Mesaj", value: s.Message, multiline: true},
	})
}

func render(title string, rows []row) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html lang="tr"><head><meta charset="UTF-8"></head>`)
	b.WriteString(`<body style="font-family:Arial,sans-serif;color:#222">`)
	b.WriteString(`<h2 style="color:#b30000">`)
	b.WriteString(html.EscapeString(title))
	b.WriteString(`</h2>`)
	b.WriteString(`<table cellpadding="8" cellspacing="0" style="border-collapse:collapse;width:100%;max-width:640px">`)
	for _, r := range rows {
		b.WriteString(`<tr><td style="border:1px solid #ddd;font-weight:bold;width:180px;background:#f7f7f7">`)
		b.WriteString(html.EscapeString(r.label))
		b.WriteString(`</td><td style="border:1px solid #ddd">`)
		b.WriteString(value(r))
		b.WriteString(`</td></tr>`)
	}
	b.WriteString(`</table></body></html>`)
	return b.String()
}

func value(r row) string {
	v := html.EscapeString(r.value)
	if !r.multiline {
		return v
	}
	v = strings.ReplaceAll(v, "\r\n", "\n")
	return strings.ReplaceAll(v, "\n", "<br>")
}

// MembershipSubject and ContactSubject build the mail subject lines.
func MembershipSubject(s submission.MembershipSubmission) string {
	return subject("Yeni Üyelik Başvurusu", s.FullName)
}

func ContactSubject(s submission.ContactSubmission) string {
	return subject("İletişim Formu", s.Subject)
}

func subject(prefix, detail string) string {
	detail = strings.Join(strings.Fields(detail), " ")
	if detail == "" {
		return prefix
	}
	return prefix + " - " + detail
}
