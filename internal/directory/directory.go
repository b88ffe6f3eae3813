// Package directory resolves employee identities and mail recipients. The
// primary source is the organization directory; a relational HR store backs
// it up for records the directory has not synced yet.
package directory

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/sirikarn/edoc-pipeline/internal/db"
	"github.com/sirikarn/edoc-pipeline/internal/fault"
	"github.com/sirikarn/edoc-pipeline/internal/graph"
)

// Employee is a resolved employee record.
type Employee struct {
	EmpID       string
	FirstName   string
	LastName    string
	DisplayName string
	Mail        string
}

// User is a directory account used as a notification recipient.
type User struct {
	DisplayName string
	Mail        string
}

// NameStore is the relational fallback. *db.DB implements it.
type NameStore interface {
	GetEmployeeName(ctx context.Context, empID string) (*db.EmployeeName, error)
}

// Directory looks up employees by ID and users by principal name.
type Directory struct {
	api   graph.API
	store NameStore
	log   gklog.Logger
}

// New returns a Directory. store may be nil when no relational fallback is
// configured.
func New(api graph.API, store NameStore, logger gklog.Logger) *Directory {
	return &Directory{api: api, store: store, log: gklog.With(logger, "component", "directory")}
}

// Lookup resolves empID to an employee record. The directory is consulted
// first; on a miss the relational store is tried. When both miss, the
// returned error carries the employee-not-found kind, which is terminal for
// the job that needed it.
func (d *Directory) Lookup(ctx context.Context, empID string) (Employee, error) {
	emp, err := d.fromDirectory(ctx, empID)
	if err == nil {
		return emp, nil
	}
	level.Debug(d.log).Log("msg", "directory miss, trying relational store", "emp_id", empID, "err", err)

	if d.store != nil {
		rec, dbErr := d.store.GetEmployeeName(ctx, empID)
		if dbErr != nil {
			level.Warn(d.log).Log("msg", "relational lookup failed", "emp_id", empID, "err", dbErr)
		} else if rec != nil {
			return Employee{
				EmpID:       empID,
				FirstName:   rec.FirstName,
				LastName:    rec.LastName,
				DisplayName: strings.TrimSpace(rec.FirstName + " " + rec.LastName),
			}, nil
		}
	}

	return Employee{}, fault.Wrap(fault.EmpNotFound, "employee "+empID+" not found in any source", err)
}

// LookupUser fetches the account behind a user principal name, typically to
// address a notification.
func (d *Directory) LookupUser(ctx context.Context, principal string) (User, error) {
	var out struct {
		DisplayName string `json:"displayName"`
		Mail        string `json:"mail"`
		UPN         string `json:"userPrincipalName"`
	}
	path := "/users/" + url.PathEscape(principal) + "?$select=displayName,mail,userPrincipalName"
	if err := d.api.GetJSON(ctx, path, &out); err != nil {
		return User{}, err
	}
	mail := out.Mail
	if mail == "" {
		mail = out.UPN
	}
	return User{DisplayName: out.DisplayName, Mail: mail}, nil
}

func (d *Directory) fromDirectory(ctx context.Context, empID string) (Employee, error) {
	var page struct {
		Value []struct {
			GivenName   string `json:"givenName"`
			Surname     string `json:"surname"`
			DisplayName string `json:"displayName"`
			Mail        string `json:"mail"`
		} `json:"value"`
	}
	filter := url.QueryEscape(fmt.Sprintf("employeeId eq '%s'", empID))
	path := "/users?$filter=" + filter + "&$select=givenName,surname,displayName,mail"
	if err := d.api.GetJSON(ctx, path, &page); err != nil {
		return Employee{}, err
	}
	if len(page.Value) == 0 {
		return Employee{}, fault.New(fault.EmpNotFound, "no directory account with employee id "+empID)
	}

	u := page.Value[0]
	return Employee{
		EmpID:       empID,
		FirstName:   u.GivenName,
		LastName:    u.Surname,
		DisplayName: u.DisplayName,
		Mail:        u.Mail,
	}, nil
}
