package handler

import (
	"bytes"
	"encoding/json"
	"strings"

	relayerrors "form-relay/internal/common/errors"
	"form-relay/internal/common/logger"
	"form-relay/internal/common/metrics"
	"form-relay/internal/common/validation"
	"form-relay/internal/forms/validator"
	"form-relay/internal/relay/submission"
)

var fieldRules = map[string]validator.Rules{
	submission.KindMembership.String(): validator.MembershipRules(),
	submission.KindContact.String():    validator.ContactRules(),
}

// parseRequest enforces the only hard shape rule: formData is a JSON object
// and recipientEmail a non-blank string.
func parseRequest(body []byte) (map[string]interface{}, string, error) {
	var req RelayRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, "", relayerrors.NewInvalidRequestError(err)
	}

	var missing []string

	formData, ok := decodeObject(req.FormData)
	if !ok {
		missing = append(missing, "formData")
	}

	var recipient string
	if len(req.RecipientEmail) == 0 || json.Unmarshal(req.RecipientEmail, &recipient) != nil ||
		strings.TrimSpace(recipient) == "" {
		missing = append(missing, "recipientEmail")
	}

	if len(missing) > 0 {
		return nil, "", relayerrors.NewMissingRequiredFieldsError(missing...)
	}
	return formData, strings.TrimSpace(recipient), nil
}

func decodeObject(raw json.RawMessage) (map[string]interface{}, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	// numbers stay json.Number so the fallback file keeps them verbatim
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]interface{}
	if err := dec.Decode(&out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}

// checkSchema validates formData against the form's schema and field rules.
// Violations are logged and counted; they never change the response.
func (h *Handler) checkSchema(log logger.Logger, kind string, formData map[string]interface{}) {
	checkFieldRules(log, kind, formData)

	schema, ok := h.schemas[kind]
	if !ok {
		return
	}

	res, err := validation.ValidateJSONSchema(formData, schema)
	if err != nil {
		log.Warn("Schema check skipped", map[string]interface{}{"error": err})
		return
	}
	if res.Valid {
		return
	}

	metrics.SchemaViolations.WithLabelValues(kind).Inc()
	stdErr := relayerrors.NewSchemaValidationError(kind, res.GetErrorMessages())
	log.Warn("Submission does not match schema", map[string]interface{}{
		"errorCode":  string(stdErr.Code),
		"violations": stdErr.Details,
	})
}

func checkFieldRules(log logger.Logger, kind string, formData map[string]interface{}) {
	rules, ok := fieldRules[kind]
	if !ok {
		return
	}
	errs, valid := validator.Validate(rules, submission.Fields(formData))
	if valid {
		return
	}
	for field := range errs {
		metrics.FieldRuleViolations.WithLabelValues(kind, field).Inc()
	}
	log.Warn("Submission fails field rules", map[string]interface{}{"fields": errs})
}
