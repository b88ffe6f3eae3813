// Package identity parses and validates the identity fields encoded in
// archive file names. Archive names follow the wire format
// <empID>_<scanBy>_<roleCode>_<eventCode>.zip.
package identity

import (
	"fmt"
	"strings"

	"github.com/sirikarn/edoc-pipeline/internal/fault"
)

// Identity holds the fields parsed from a valid archive name. It is derived
// once per job and never mutated afterwards.
type Identity struct {
	EmpID     string
	ScanBy    string
	RoleCode  string
	Role      string
	EventCode string
	Event     string
}

// roleLabels resolves role codes (matched lowercase) to display labels.
var roleLabels = map[string]string{
	"emp": "Employee",
	"sup": "Supervisor",
	"mgr": "Manager",
	"exe": "Executive",
	"tmp": "Temporary Staff",
}

// eventLabels resolves event codes (matched uppercase) to document types.
var eventLabels = map[string]string{
	"NEW": "New Hire",
	"PRB": "Probation",
	"PRM": "Promotion",
	"TRF": "Transfer",
	"CON": "Contract Renewal",
	"RSG": "Resignation",
}

// Parse validates fileName against the archive wire format and returns the
// resolved identity. Validation happens before any payload is touched, so a
// bad name never triggers a download or extraction.
func Parse(fileName string) (*Identity, error) {
	base := strings.TrimSuffix(fileName, ".zip")
	base = strings.TrimSuffix(base, ".ZIP")
	parts := strings.Split(base, "_")

	if len(parts) < 4 {
		return nil, fault.New(fault.FilenameInvalid, fmt.Sprintf("invalid archive file name: %s", fileName))
	}

	empID, scanBy, roleCode, eventCode := parts[0], parts[1], parts[2], parts[3]

	if !isDigits(empID) {
		return nil, fault.New(fault.FilenameInvalid, fmt.Sprintf("invalid empID in file name: %s", empID))
	}
	if !isDigits(scanBy) {
		return nil, fault.New(fault.FilenameInvalid, fmt.Sprintf("invalid scanBy in file name: %s", scanBy))
	}

	role, ok := roleLabels[strings.ToLower(roleCode)]
	if !ok {
		return nil, fault.New(fault.FilenameInvalid, fmt.Sprintf("unknown roleCode: %s", roleCode))
	}
	event, ok := eventLabels[strings.ToUpper(eventCode)]
	if !ok {
		return nil, fault.New(fault.FilenameInvalid, fmt.Sprintf("unknown eventCode: %s", eventCode))
	}

	return &Identity{
		EmpID:     empID,
		ScanBy:    scanBy,
		RoleCode:  roleCode,
		Role:      role,
		EventCode: eventCode,
		Event:     event,
	}, nil
}

// RawFields extracts empID and scanBy without validation. Used to fill in
// summary rows for archives whose names failed validation.
func RawFields(fileName string) (empID, scanBy string) {
	base := strings.TrimSuffix(fileName, ".zip")
	base = strings.TrimSuffix(base, ".ZIP")
	parts := strings.Split(base, "_")
	if len(parts) > 0 {
		empID = parts[0]
	}
	if len(parts) > 1 {
		scanBy = parts[1]
	}
	return empID, scanBy
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
