package service

import (
	"context"

	"github.com/gofrs/uuid"

	"github.com/datavault-ai/entity-backend/pkg/datamodel"
)

// unmetAccessRequirements returns the requirement UIDs still gating the given
// access type on the entity for this user. The entity's creator is exempt
// from requirements attached to the entity itself, but never from
// requirements attached to one of the user's teams.
func (s *service) unmetAccessRequirements(ctx context.Context, user *UserInfo, node *datamodel.Node, accessType datamodel.AccessType) ([]uuid.UUID, error) {
	accessTypes := []datamodel.AccessType{accessType}
	unmet := []uuid.UUID{}

	if node.CreatedBy != user.UID {
		entityUnmet, err := s.repository.GetAllUnmetAccessRequirements(
			ctx,
			[]uuid.UUID{node.UID},
			datamodel.SubjectTypeEntity,
			user.PrincipalUIDs(),
			accessTypes,
		)
		if err != nil {
			return nil, err
		}
		unmet = append(unmet, entityUnmet...)
	}

	if len(user.GroupUIDs) > 0 {
		teamUnmet, err := s.repository.GetAllUnmetAccessRequirements(
			ctx,
			user.GroupUIDs,
			datamodel.SubjectTypeTeam,
			user.PrincipalUIDs(),
			accessTypes,
		)
		if err != nil {
			return nil, err
		}
		unmet = append(unmet, teamUnmet...)
	}

	return unmet, nil
}
