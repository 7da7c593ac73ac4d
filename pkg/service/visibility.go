package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"

	"github.com/datavault-ai/entity-backend/pkg/constant"
)

// GetAccessibleBenefactors filters a candidate benefactor set down to the
// ones the user may read, in one batched store lookup. Its membership matches
// calling HasAccess with READ per candidate; the trash-folder benefactor is
// always excluded for non-administrators.
func (s *service) GetAccessibleBenefactors(ctx context.Context, user *UserInfo, benefactorUIDs []uuid.UUID) ([]uuid.UUID, error) {
	if user == nil {
		return nil, fmt.Errorf("filtering benefactors: missing user: %w", ErrInvalidArgument)
	}
	if len(benefactorUIDs) == 0 {
		return []uuid.UUID{}, nil
	}
	if user.IsAdmin {
		accessible := make([]uuid.UUID, len(benefactorUIDs))
		copy(accessible, benefactorUIDs)
		return accessible, nil
	}

	candidates := make([]uuid.UUID, 0, len(benefactorUIDs))
	for _, benefactorUID := range benefactorUIDs {
		if benefactorUID == constant.TrashFolderUID {
			continue
		}
		candidates = append(candidates, benefactorUID)
	}
	if len(candidates) == 0 {
		return []uuid.UUID{}, nil
	}

	return s.repository.GetAccessibleBenefactors(ctx, user.PrincipalUIDs(), candidates)
}

// GetAccessibleProjectUIDs returns every project the user may read.
func (s *service) GetAccessibleProjectUIDs(ctx context.Context, user *UserInfo) ([]uuid.UUID, error) {
	if user == nil {
		return nil, fmt.Errorf("listing accessible projects: missing user: %w", ErrInvalidArgument)
	}
	if user.IsAdmin {
		return s.repository.ListProjectUIDs(ctx)
	}
	return s.repository.GetAccessibleProjectUIDs(ctx, user.PrincipalUIDs())
}

// GetNonvisibleChildren returns the children of parentUID the user may not
// read. Administrators see everything, so the store is not consulted.
func (s *service) GetNonvisibleChildren(ctx context.Context, user *UserInfo, parentUID uuid.UUID) ([]uuid.UUID, error) {
	if user == nil || parentUID == uuid.Nil {
		return nil, fmt.Errorf("listing nonvisible children: missing user or parent: %w", ErrInvalidArgument)
	}
	if user.IsAdmin {
		return []uuid.UUID{}, nil
	}
	return s.repository.GetNonVisibleChildrenOfEntity(ctx, user.PrincipalUIDs(), parentUID)
}
