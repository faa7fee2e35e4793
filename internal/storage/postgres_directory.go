package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/observer"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/tenant"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/utils"
)

// SavePrincipal upserts a principal by primary key.
func (r *PostgresRepo) SavePrincipal(ctx context.Context, principal model.Principal) error {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if orgID != principal.OrgID {
		return fmt.Errorf("%w: principal OrgID %s does not match tenant ID %s", apperrors.ErrBadRequest, principal.OrgID, orgID)
	}
	if model.RoleRank(principal.Role) < 0 {
		return fmt.Errorf("%w: unknown role %q", apperrors.ErrValidation, principal.Role)
	}

	principal.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "owner_id", "name", "active", "updated_at"}),
		}).Create(&principal)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SavePrincipal Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "principal", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save principal after retries",
			zap.String("principal_id", principal.ID), zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindPrincipalByID finds a principal by primary key.
func (r *PostgresRepo) FindPrincipalByID(ctx context.Context, id string) (*model.Principal, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var principal model.Principal
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("id = ? AND org_id = ?", id, orgID).
			First(&principal)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindPrincipalByID", operation)
	observer.ObserveDbOperationDuration("find", "principal", orgID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find principal after retries",
			zap.String("principal_id", id), zap.Error(findErr))
		return nil, findErr
	}
	return &principal, nil
}

// FindPrincipalsByOwner returns the direct reports of a principal.
func (r *PostgresRepo) FindPrincipalsByOwner(ctx context.Context, ownerID string) ([]model.Principal, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var principals []model.Principal
	operation := func() error {
		query := r.db.WithContext(ctx).
			Where("owner_id = ? AND org_id = ?", ownerID, orgID).
			Find(&principals)
		if query.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, query.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindPrincipalsByOwner", operation)
	observer.ObserveDbOperationDuration("find_by_owner", "principal", orgID, time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to find principals by owner after retries",
			zap.String("owner_id", ownerID), zap.Error(err))
		return nil, err
	}
	return principals, nil
}

// SaveTeam upserts a team by primary key.
func (r *PostgresRepo) SaveTeam(ctx context.Context, team model.Team) error {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if orgID != team.OrgID {
		return fmt.Errorf("%w: team OrgID %s does not match tenant ID %s", apperrors.ErrBadRequest, team.OrgID, orgID)
	}

	team.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"admin_id", "name", "updated_at"}),
		}).Create(&team)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveTeam Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "team", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save team after retries",
			zap.String("team_id", team.ID), zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindTeamByID finds a team by primary key.
func (r *PostgresRepo) FindTeamByID(ctx context.Context, id string) (*model.Team, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var team model.Team
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("id = ? AND org_id = ?", id, orgID).
			First(&team)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindTeamByID", operation)
	observer.ObserveDbOperationDuration("find", "team", orgID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find team after retries",
			zap.String("team_id", id), zap.Error(findErr))
		return nil, findErr
	}
	return &team, nil
}

// FindTeamsByAdmin returns every team owned by the given admin.
func (r *PostgresRepo) FindTeamsByAdmin(ctx context.Context, adminID string) ([]model.Team, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var teams []model.Team
	operation := func() error {
		query := r.db.WithContext(ctx).
			Where("admin_id = ? AND org_id = ?", adminID, orgID).
			Find(&teams)
		if query.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, query.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindTeamsByAdmin", operation)
	observer.ObserveDbOperationDuration("find_by_admin", "team", orgID, time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to find teams by admin after retries",
			zap.String("admin_id", adminID), zap.Error(err))
		return nil, err
	}
	return teams, nil
}

// FindTeamMemberIDs returns the principal IDs belonging to a team.
func (r *PostgresRepo) FindTeamMemberIDs(ctx context.Context, teamID string) ([]string, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var principalIDs []string
	operation := func() error {
		query := r.db.WithContext(ctx).Model(&model.TeamMember{}).
			Where("team_id = ?", teamID).
			Pluck("principal_id", &principalIDs)
		if query.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, query.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindTeamMemberIDs", operation)
	observer.ObserveDbOperationDuration("find_members", "team_member", orgID, time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to find team member ids after retries",
			zap.String("team_id", teamID), zap.Error(err))
		return nil, err
	}
	return principalIDs, nil
}

// AddTeamMember inserts a membership edge; duplicates are ignored.
func (r *PostgresRepo) AddTeamMember(ctx context.Context, membership model.TeamMember) error {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	membership.CreatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "team_id"}, {Name: "principal_id"}},
			DoNothing: true,
		}).Create(&membership)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "AddTeamMember Commit", operation)
	observer.ObserveDbOperationDuration("insert", "team_member", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to add team member after retries",
			zap.String("team_id", membership.TeamID),
			zap.String("principal_id", membership.PrincipalID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// RemoveTeamMember deletes a membership edge.
func (r *PostgresRepo) RemoveTeamMember(ctx context.Context, teamID, principalID string) error {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("team_id = ? AND principal_id = ?", teamID, principalID).
			Delete(&model.TeamMember{})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "RemoveTeamMember Commit", operation)
	observer.ObserveDbOperationDuration("delete", "team_member", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to remove team member after retries",
			zap.String("team_id", teamID),
			zap.String("principal_id", principalID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindTeamIDsByMember returns the IDs of every team the principal belongs to.
func (r *PostgresRepo) FindTeamIDsByMember(ctx context.Context, principalID string) ([]string, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var teamIDs []string
	operation := func() error {
		query := r.db.WithContext(ctx).Model(&model.TeamMember{}).
			Where("principal_id = ?", principalID).
			Pluck("team_id", &teamIDs)
		if query.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, query.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindTeamIDsByMember", operation)
	observer.ObserveDbOperationDuration("find_by_member", "team_member", orgID, time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to find teams by member after retries",
			zap.String("principal_id", principalID), zap.Error(err))
		return nil, err
	}
	return teamIDs, nil
}

// SaveAssignment inserts a session assignment. Exactly one of MemberID and
// TeamID must be set.
func (r *PostgresRepo) SaveAssignment(ctx context.Context, assignment model.Assignment) error {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if assignment.Target() == "" {
		return fmt.Errorf("%w: assignment must reference exactly one of member or team", apperrors.ErrValidation)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"member_id", "team_id", "assigned_by"}),
		}).Create(&assignment)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveAssignment Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "assignment", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save assignment after retries",
			zap.String("assignment_id", assignment.ID),
			zap.String("session_id", assignment.SessionID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// DeleteAssignment removes an assignment by primary key.
func (r *PostgresRepo) DeleteAssignment(ctx context.Context, id string) error {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("id = ?", id).
			Delete(&model.Assignment{})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: assignment %s", apperrors.ErrNotFound, id)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "DeleteAssignment Commit", operation)
	observer.ObserveDbOperationDuration("delete", "assignment", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to delete assignment after retries",
			zap.String("assignment_id", id), zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindAssignmentsBySession returns every assignment attached to a session.
func (r *PostgresRepo) FindAssignmentsBySession(ctx context.Context, sessionID string) ([]model.Assignment, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var assignments []model.Assignment
	operation := func() error {
		query := r.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Find(&assignments)
		if query.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, query.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindAssignmentsBySession", operation)
	observer.ObserveDbOperationDuration("find_by_session", "assignment", orgID, time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to find assignments by session after retries",
			zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	return assignments, nil
}
