package project

import (
	"errors"
	"testing"

	"github.com/onnwee/urbanscape/internal/apperr"
	"github.com/onnwee/urbanscape/internal/auth"
)

func TestCheckAccess(t *testing.T) {
	owner := &auth.User{ID: "owner"}
	stranger := &auth.User{ID: "someone-else"}
	super := &auth.User{ID: "admin", IsSuperuser: true}

	public := &Project{ID: 1, UserID: "owner", Public: true}
	private := &Project{ID: 2, UserID: "owner"}
	regional := &Project{ID: 3, UserID: "owner", Public: true, IsRegional: true}

	tests := []struct {
		name          string
		p             *Project
		user          *auth.User
		toEdit        bool
		allowRegional bool
		wantDenied    bool
		wantRegional  bool
	}{
		{"anonymous reads public", public, nil, false, true, false, false},
		{"anonymous cannot read private", private, nil, false, true, true, false},
		{"anonymous cannot edit public", public, nil, true, true, true, false},
		{"owner reads private", private, owner, false, true, false, false},
		{"owner edits private", private, owner, true, true, false, false},
		{"stranger reads public", public, stranger, false, true, false, false},
		{"stranger cannot read private", private, stranger, false, true, true, false},
		{"stranger cannot edit public", public, stranger, true, true, true, false},
		{"superuser edits anything", private, super, true, true, false, false},
		{"regional blocked when disallowed", regional, owner, false, false, false, true},
		{"regional allowed by default", regional, owner, false, true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkAccess(tt.p, tt.user, tt.toEdit, tt.allowRegional)
			switch {
			case tt.wantDenied:
				var denied *apperr.AccessDenied
				if !errors.As(err, &denied) {
					t.Errorf("checkAccess = %v, want AccessDenied", err)
				}
			case tt.wantRegional:
				if !errors.Is(err, apperr.ErrNotAllowedInRegionalProject) {
					t.Errorf("checkAccess = %v, want ErrNotAllowedInRegionalProject", err)
				}
			default:
				if err != nil {
					t.Errorf("checkAccess = %v, want nil", err)
				}
			}
		})
	}
}
