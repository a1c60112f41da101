// Package normalize turns an extractor's loosely typed field map into a
// strictly typed NormalizedFact.
package normalize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/claimrecon/internal/model"
)

// fieldAliases maps each canonical field to the raw keys accepted for it,
// in priority order. Keys are compared after lower-casing and replacing
// spaces and dashes with underscores.
var fieldAliases = []struct {
	field   string
	aliases []string
}{
	{"patient_ref", []string{"patient_ref", "patient", "patient_name", "member_id", "patient_id"}},
	{"provider_name", []string{"provider_name", "provider", "facility", "facility_name", "rendering_provider", "pharmacy", "practice"}},
	{"provider_id", []string{"provider_id", "npi", "provider_npi", "tax_id"}},
	{"service_date", []string{"service_date", "date_of_service", "dos", "date", "fill_date", "visit_date"}},
	{"code", []string{"code", "cpt", "cpt_code", "cdt", "ndc", "hcpcs", "procedure_code"}},
	{"description", []string{"description", "service", "service_description", "procedure", "item"}},
	{"billed", []string{"billed_amount", "billed", "charge", "charges", "total_charges", "amount_billed", "amount", "total"}},
	{"allowed", []string{"allowed_amount", "allowed", "amount_allowed", "plan_allowed"}},
	{"paid", []string{"paid_amount", "paid", "plan_paid", "insurance_paid", "amount_paid"}},
	{"patient_responsibility", []string{"patient_responsibility", "patient_resp", "you_owe", "patient_owes", "member_responsibility", "amount_due"}},
	{"adjustment", []string{"adjustment_amount", "adjustment", "contractual_adjustment", "discount", "write_off"}},
	{"claim_number", []string{"claim_number", "claim_id", "claim", "claim_no", "account_number", "reference_number"}},
}

var (
	keyCleaner   = strings.NewReplacer(" ", "_", "-", "_")
	codePrefixRe = regexp.MustCompile(`^(CPT|CDT|HCPCS|NDC|CODE)[:#\s]*`)
	cptModRe     = regexp.MustCompile(`^([0-9A-Z]{5})-[0-9A-Z]{2}$`)
)

// Normalize converts one raw field map into a NormalizedFact. It is a pure
// function; unknown fields are kept in Extras and never used for matching.
func Normalize(raw map[string]any, docType model.DocumentType) (model.NormalizedFact, error) {
	if !docType.Valid() {
		return model.NormalizedFact{}, &Error{Kind: KindInvalidDocumentType, Field: "document_type", Value: string(docType), Reason: "unknown document type"}
	}

	fields, extras := resolveFields(raw)
	fact := model.NormalizedFact{
		DocumentType: docType,
		PatientRef:   str(fields["patient_ref"]),
		ProviderName: ProviderName(str(fields["provider_name"])),
		ProviderID:   strings.Join(strings.Fields(str(fields["provider_id"])), ""),
		Code:         NormalizeCode(str(fields["code"])),
		Description:  strings.Join(strings.Fields(str(fields["description"])), " "),
		ClaimNumber:  NormalizeClaimNumber(str(fields["claim_number"])),
		Extras:       extras,
	}

	if fact.ProviderName == "" && fact.ProviderID == "" {
		return model.NormalizedFact{}, &Error{Kind: KindMissingField, Field: "provider_name", Reason: "provider name or id is required"}
	}

	date, ok, err := ParseDate("service_date", fields["service_date"])
	if err != nil {
		return model.NormalizedFact{}, err
	}
	if !ok {
		return model.NormalizedFact{}, &Error{Kind: KindMissingField, Field: "service_date", Reason: "service date is required"}
	}
	fact.ServiceDate = date

	amounts := []struct {
		field string
		dst   **int64
	}{
		{"billed", &fact.BilledCents},
		{"allowed", &fact.AllowedCents},
		{"paid", &fact.PaidCents},
		{"patient_responsibility", &fact.PatientResponsibility},
		{"adjustment", &fact.AdjustmentCents},
	}
	for _, a := range amounts {
		cents, ok, err := ParseCents(a.field, fields[a.field])
		if err != nil {
			return model.NormalizedFact{}, err
		}
		if ok {
			*a.dst = model.Cents(cents)
		}
	}

	if fact.BilledCents == nil && !docType.IsPayer() {
		return model.NormalizedFact{}, &Error{Kind: KindMissingField, Field: "billed", Reason: fmt.Sprintf("billed amount is required on %s documents", docType)}
	}
	if fact.Amounts().Empty() {
		return model.NormalizedFact{}, &Error{Kind: KindMissingField, Field: "billed", Reason: "fact carries no amounts"}
	}
	return fact, nil
}

// resolveFields picks the highest-priority alias for each canonical field and
// returns the remaining raw keys, stringified, as extras.
func resolveFields(raw map[string]any) (map[string]any, map[string]string) {
	byKey := make(map[string]string, len(raw))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ck := keyCleaner.Replace(strings.ToLower(strings.TrimSpace(k)))
		if _, dup := byKey[ck]; !dup {
			byKey[ck] = k
		}
	}

	used := make(map[string]bool, len(raw))
	fields := make(map[string]any, len(fieldAliases))
	for _, fa := range fieldAliases {
		for _, alias := range fa.aliases {
			orig, ok := byKey[alias]
			if !ok || used[orig] {
				continue
			}
			if v := raw[orig]; !blank(v) {
				fields[fa.field] = v
				used[orig] = true
				break
			}
		}
	}

	var extras map[string]string
	for _, k := range keys {
		if used[k] || blank(raw[k]) {
			continue
		}
		if extras == nil {
			extras = make(map[string]string)
		}
		extras[k] = fmt.Sprint(raw[k])
	}
	return fields, extras
}

// NormalizeCode upper-cases a procedure/drug code, drops a leading code
// system label, and strips a two-character CPT modifier ("45378-26").
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = codePrefixRe.ReplaceAllString(code, "")
	code = strings.Join(strings.Fields(code), "")
	if m := cptModRe.FindStringSubmatch(code); m != nil {
		return m[1]
	}
	return code
}

// NormalizeClaimNumber removes whitespace and '#' and upper-cases.
func NormalizeClaimNumber(s string) string {
	s = strings.ToUpper(strings.ReplaceAll(s, "#", ""))
	return strings.Join(strings.Fields(s), "")
}

func str(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
