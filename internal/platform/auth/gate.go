package auth

import (
	"embed"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/google/uuid"
)

//go:embed policy/model.conf policy/policy.csv
var policyFiles embed.FS

type Action string

const (
	ActList   Action = "list"
	ActView   Action = "view"
	ActCreate Action = "create"
	ActEdit   Action = "edit"
	ActDelete Action = "delete"
)

// Kind names a record type or portal feature in the role policy.
type Kind string

const (
	KindDashboard       Kind = "dashboard"
	KindAppointment     Kind = "appointment"
	KindPrescription    Kind = "prescription"
	KindReport          Kind = "report"
	KindTestResult      Kind = "test_result"
	KindBilling         Kind = "billing"
	KindPharmacy        Kind = "pharmacy"
	KindCareAssignment  Kind = "care_assignment"
	KindDrugDescription Kind = "drug_description"
	KindFacility        Kind = "facility"
)

// Target is a concrete record: its kind plus the patient and provider it
// belongs to. A nil reference never matches an owner.
type Target struct {
	Kind       Kind
	PatientID  *uuid.UUID
	ProviderID *uuid.UUID
}

// Gate decides whether a principal may perform an action. Role permissions
// come from the embedded casbin policy; row ownership is checked here.
type Gate struct {
	enforcer *casbin.Enforcer
}

func NewGate() (*Gate, error) {
	modelText, err := policyFiles.ReadFile("policy/model.conf")
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(string(modelText))
	if err != nil {
		return nil, fmt.Errorf("parse access model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}

	rules, err := loadPolicy()
	if err != nil {
		return nil, err
	}
	if _, err := enforcer.AddPolicies(rules); err != nil {
		return nil, fmt.Errorf("load access policy: %w", err)
	}

	return &Gate{enforcer: enforcer}, nil
}

func loadPolicy() ([][]string, error) {
	data, err := policyFiles.ReadFile("policy/policy.csv")
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(strings.NewReader(string(data)))
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse access policy: %w", err)
	}

	rules := make([][]string, 0, len(records))
	for _, rec := range records {
		if len(rec) != 4 || rec[0] != "p" {
			return nil, fmt.Errorf("malformed policy line %q", strings.Join(rec, ", "))
		}
		rules = append(rules, rec[1:])
	}
	return rules, nil
}

// Can reports whether p's role may attempt act on records of kind.
func (g *Gate) Can(p *Principal, act Action, kind Kind) bool {
	if p == nil || !p.Role.Valid() {
		return false
	}
	ok, err := g.enforcer.Enforce(string(p.Role), string(kind), string(act))
	return err == nil && ok
}

// Authorize checks the role permission and then ownership: a patient must be
// the target's patient, a provider the target's provider. Administrators
// skip the ownership check.
func (g *Gate) Authorize(p *Principal, act Action, t Target) bool {
	if !g.Can(p, act, t.Kind) {
		return false
	}
	switch p.Role {
	case RoleAdmin:
		return true
	case RolePatient:
		return t.PatientID != nil && *t.PatientID == p.ProfileID
	case RoleMedical:
		return t.ProviderID != nil && *t.ProviderID == p.ProfileID
	}
	return false
}
