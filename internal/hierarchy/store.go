// Package hierarchy walks the org ownership tree (top_admin → admin → member)
// and team memberships. Depth is bounded at 3 by construction, so traversal is
// explicit two-hop iteration rather than general graph recursion; malformed
// edges surface as integrity errors instead of corrupting a walk.
package hierarchy

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/iter"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/storage"
)

// maxDepth is the number of owner hops a well-formed tree can have.
const maxDepth = 3

// Store resolves ancestry and descendants over the directory repository.
type Store struct {
	directory storage.DirectoryRepo
}

// NewStore creates a hierarchy store backed by the given directory repository.
func NewStore(directory storage.DirectoryRepo) *Store {
	return &Store{directory: directory}
}

// Ancestors returns the chain from the given principal up to the top of the
// tree, starting with the principal itself. A self-referential or
// upward-pointing owner edge is rejected with ErrIntegrity.
func (s *Store) Ancestors(ctx context.Context, principalID string) ([]model.Principal, error) {
	current, err := s.directory.FindPrincipalByID(ctx, principalID)
	if err != nil {
		return nil, err
	}

	chain := []model.Principal{*current}
	for current.OwnerID != nil && *current.OwnerID != "" {
		if len(chain) >= maxDepth {
			return nil, fmt.Errorf("%w: ownership chain exceeds depth %d starting at principal %s",
				apperrors.ErrIntegrity, maxDepth, principalID)
		}
		if *current.OwnerID == current.ID {
			return nil, fmt.Errorf("%w: principal %s owns itself", apperrors.ErrIntegrity, current.ID)
		}

		owner, err := s.directory.FindPrincipalByID(ctx, *current.OwnerID)
		if err != nil {
			return nil, err
		}
		if model.RoleRank(owner.Role) != model.RoleRank(current.Role)-1 {
			return nil, fmt.Errorf("%w: principal %s (%s) owned by %s (%s), roles must be one level apart",
				apperrors.ErrIntegrity, current.ID, current.Role, owner.ID, owner.Role)
		}

		chain = append(chain, *owner)
		current = owner
	}

	return chain, nil
}

// IsAncestor reports whether ancestorID appears strictly above principalID in
// the ownership chain.
func (s *Store) IsAncestor(ctx context.Context, ancestorID, principalID string) (bool, error) {
	if ancestorID == principalID {
		return false, nil
	}
	chain, err := s.Ancestors(ctx, principalID)
	if err != nil {
		return false, err
	}
	for _, p := range chain[1:] {
		if p.ID == ancestorID {
			return true, nil
		}
	}
	return false, nil
}

// Descendants returns every principal transitively created by the given one,
// plus, for an admin, the members of its teams. The result is deduplicated and
// never contains the principal itself.
func (s *Store) Descendants(ctx context.Context, principalID string) ([]model.Principal, error) {
	root, err := s.directory.FindPrincipalByID(ctx, principalID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]model.Principal)

	// Two explicit hops cover the whole bounded tree.
	firstHop, err := s.directory.FindPrincipalsByOwner(ctx, principalID)
	if err != nil {
		return nil, err
	}
	for _, p := range firstHop {
		if p.ID == principalID {
			return nil, fmt.Errorf("%w: principal %s owns itself", apperrors.ErrIntegrity, p.ID)
		}
		seen[p.ID] = p
	}
	for _, p := range firstHop {
		secondHop, err := s.directory.FindPrincipalsByOwner(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, q := range secondHop {
			if q.ID == principalID || q.ID == p.ID {
				return nil, fmt.Errorf("%w: ownership cycle through principal %s", apperrors.ErrIntegrity, q.ID)
			}
			seen[q.ID] = q
		}
	}

	if model.IsAdminRole(root.Role) {
		teamMembers, err := s.teamMembers(ctx, principalID)
		if err != nil {
			return nil, err
		}
		for _, p := range teamMembers {
			seen[p.ID] = p
		}
	}

	result := make([]model.Principal, 0, len(seen))
	for _, p := range seen {
		result = append(result, p)
	}
	return result, nil
}

// teamMembers gathers the principals on every team owned by the admin,
// fanning out per team.
func (s *Store) teamMembers(ctx context.Context, adminID string) ([]model.Principal, error) {
	teams, err := s.directory.FindTeamsByAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if len(teams) == 0 {
		return nil, nil
	}

	perTeam, err := iter.MapErr(teams, func(team *model.Team) ([]model.Principal, error) {
		memberIDs, err := s.directory.FindTeamMemberIDs(ctx, team.ID)
		if err != nil {
			return nil, err
		}
		members := make([]model.Principal, 0, len(memberIDs))
		for _, id := range memberIDs {
			p, err := s.directory.FindPrincipalByID(ctx, id)
			if err != nil {
				return nil, err
			}
			members = append(members, *p)
		}
		return members, nil
	})
	if err != nil {
		return nil, err
	}

	var all []model.Principal
	for _, members := range perTeam {
		all = append(all, members...)
	}
	return all, nil
}
