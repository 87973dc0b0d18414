package project

import (
	"github.com/onnwee/urbanscape/internal/apperr"
	"github.com/onnwee/urbanscape/internal/auth"
)

// checkAccess enforces the authorization contract on a loaded project: a
// project is readable if public, by its owner, or by a superuser;
// editable only by its owner or a superuser. When allowRegional is false,
// regional projects are rejected outright.
func checkAccess(p *Project, user *auth.User, toEdit, allowRegional bool) error {
	if user == nil {
		if !p.Public || toEdit {
			return apperr.NewAccessDenied("project", p.ID)
		}
	} else if p.UserID != user.ID && (!p.Public || toEdit) && !user.IsSuperuser {
		return apperr.NewAccessDenied("project", p.ID)
	}
	if p.IsRegional && !allowRegional {
		return apperr.ErrNotAllowedInRegionalProject
	}
	return nil
}
