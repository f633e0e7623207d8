package config

import (
	"fmt"
	"os"
	"strings"
)

// ApprovalLevel is one required approval step for a request kind.
// Level numbers start at 1 and are evaluated in ascending order.
type ApprovalLevel struct {
	Level int
	Role  string
}

// Default approval matrix. Override per kind via env:
//
//	APPROVAL_LEVELS_MSL="RSM,ASC"
//	APPROVAL_LEVELS_BULK="RSM,ASC,PLANT"
//
// A kind that requires NO approval must be listed explicitly:
//
//	APPROVAL_EXEMPT_KINDS="TECH_ISSUE"
//
// A kind found in neither place is a configuration error, not an implicit
// zero-approval flow.
var defaultApprovalMatrix = map[string][]string{
	"MSL":         {"RSM", "ASC"},
	"BULK":        {"RSM", "ASC"},
	"CONS_RETURN": {"ASC"},
	"CONS_FILLUP": {"RSM"},
}

var defaultExemptKinds = []string{"TECH_ISSUE"}

// RequiredApprovalLevels resolves the approval chain for a request kind.
// Returns an empty (non-nil) slice for explicitly exempt kinds and an error
// for unconfigured kinds.
func RequiredApprovalLevels(kind string) ([]ApprovalLevel, error) {
	kind = strings.ToUpper(strings.TrimSpace(kind))
	if kind == "" {
		return nil, fmt.Errorf("approval matrix: empty request kind")
	}

	for _, exempt := range exemptKinds() {
		if exempt == kind {
			return []ApprovalLevel{}, nil
		}
	}

	roles := rolesForKind(kind)
	if roles == nil {
		return nil, fmt.Errorf("approval matrix: request kind %q has no configured approval levels and is not exempt", kind)
	}

	levels := make([]ApprovalLevel, 0, len(roles))
	for i, role := range roles {
		levels = append(levels, ApprovalLevel{Level: i + 1, Role: role})
	}
	return levels, nil
}

func rolesForKind(kind string) []string {
	if raw := strings.TrimSpace(os.Getenv("APPROVAL_LEVELS_" + kind)); raw != "" {
		var roles []string
		for _, part := range strings.Split(raw, ",") {
			if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
				roles = append(roles, p)
			}
		}
		return roles
	}
	if roles, ok := defaultApprovalMatrix[kind]; ok {
		return roles
	}
	return nil
}

func exemptKinds() []string {
	raw := strings.TrimSpace(os.Getenv("APPROVAL_EXEMPT_KINDS"))
	if raw == "" {
		return defaultExemptKinds
	}
	var kinds []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			kinds = append(kinds, p)
		}
	}
	return kinds
}
