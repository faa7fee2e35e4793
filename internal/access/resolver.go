// Package access is the single authorization choke point. Every read/write
// path asks the Resolver; no other component performs ad-hoc permission
// checks.
package access

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/hierarchy"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/storage"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
)

// Action names what the principal wants to do with the session. The rule set
// currently does not branch on it, but every call site states its intent so
// finer-grained policies can land without signature changes.
type Action string

const (
	ActionRead Action = "read"
	ActionSend Action = "send"
	ActionSync Action = "sync"
)

// Resolver decides session access. It is read-only and side-effect free.
type Resolver struct {
	directory storage.DirectoryRepo
	sessions  storage.SessionRepo
	tree      *hierarchy.Store
}

// NewResolver creates an access resolver.
func NewResolver(directory storage.DirectoryRepo, sessions storage.SessionRepo, tree *hierarchy.Store) *Resolver {
	return &Resolver{directory: directory, sessions: sessions, tree: tree}
}

// CanAccess evaluates the rule set in order, first match wins:
//
//  1. top_admin → allow.
//  2. owning admin of the session → allow.
//  3. admin above the session's owning admin → deny (admins do not inherit
//     across sibling sub-trees; only top_admin has global reach).
//  4. assignment naming the principal directly → allow.
//  5. assignment naming a team the principal belongs to → allow.
//  6. otherwise deny.
//
// Inactive principals are always denied. A corrupt assignment row (both or
// neither target) aborts with ErrIntegrity rather than granting anything.
func (r *Resolver) CanAccess(ctx context.Context, principalID, sessionID string, action Action) (bool, error) {
	principal, err := r.directory.FindPrincipalByID(ctx, principalID)
	if err != nil {
		return false, fmt.Errorf("resolving principal %s: %w", principalID, err)
	}
	if !principal.Active {
		return false, nil
	}

	if principal.Role == model.RoleTopAdmin {
		return true, nil
	}

	session, err := r.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("resolving session %s: %w", sessionID, err)
	}

	if principal.ID == session.AdminID {
		return true, nil
	}

	if principal.Role == model.RoleAdmin {
		above, err := r.tree.IsAncestor(ctx, principal.ID, session.AdminID)
		if err != nil {
			return false, err
		}
		if above {
			logger.FromContext(ctx).Debug("Denying cross-subtree admin access",
				zap.String("principal_id", principal.ID),
				zap.String("session_admin_id", session.AdminID),
				zap.String("action", string(action)))
			return false, nil
		}
	}

	assignments, err := r.directory.FindAssignmentsBySession(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("resolving assignments for session %s: %w", sessionID, err)
	}

	var teamGrants []string
	for i := range assignments {
		switch assignments[i].Target() {
		case "member":
			if *assignments[i].MemberID == principal.ID {
				return true, nil
			}
		case "team":
			teamGrants = append(teamGrants, *assignments[i].TeamID)
		default:
			return false, fmt.Errorf("%w: assignment %s has dual or absent target",
				apperrors.ErrIntegrity, assignments[i].ID)
		}
	}

	if len(teamGrants) > 0 {
		memberOf, err := r.directory.FindTeamIDsByMember(ctx, principal.ID)
		if err != nil {
			return false, fmt.Errorf("resolving team memberships for %s: %w", principal.ID, err)
		}
		granted := make(map[string]struct{}, len(teamGrants))
		for _, id := range teamGrants {
			granted[id] = struct{}{}
		}
		for _, id := range memberOf {
			if _, ok := granted[id]; ok {
				return true, nil
			}
		}
	}

	return false, nil
}

// Require is CanAccess with a deny mapped onto ErrUnauthorized, for call
// sites that want an error instead of a boolean.
func (r *Resolver) Require(ctx context.Context, principalID, sessionID string, action Action) error {
	allowed, err := r.CanAccess(ctx, principalID, sessionID, action)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: principal %s may not %s session %s",
			apperrors.ErrUnauthorized, principalID, action, sessionID)
	}
	return nil
}
