package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"

	"github.com/datavault-ai/entity-backend/pkg/constant"
	"github.com/datavault-ai/entity-backend/pkg/datamodel"
	"github.com/datavault-ai/entity-backend/pkg/logger"
	"github.com/datavault-ai/entity-backend/pkg/notification"
)

// UpdateACL replaces the grant set of an entity's local ACL. The submitted
// etag must match the stored one; the loser of a concurrent update observes
// ErrStateConflict and must re-fetch before retrying.
func (s *service) UpdateACL(ctx context.Context, user *UserInfo, acl *datamodel.AccessControlList) (*datamodel.AccessControlList, error) {
	if user == nil || acl == nil || acl.EntityUID == uuid.Nil {
		return nil, fmt.Errorf("updating ACL: missing user or ACL: %w", ErrInvalidArgument)
	}

	node, err := s.repository.GetNode(ctx, acl.EntityUID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if !node.HasLocalACL() {
		return nil, fmt.Errorf("entity %s inherits its ACL from %s; update the benefactor instead: %w", node.UID, node.BenefactorUID, ErrInvalidArgument)
	}

	if err := s.requireChangePermissions(ctx, user, node.BenefactorUID); err != nil {
		return nil, err
	}
	if err := s.validateACLContent(user, acl, node.CreatedBy); err != nil {
		return nil, err
	}

	previous, err := s.repository.GetACL(ctx, acl.EntityUID)
	if err != nil {
		return nil, mapNotFound(err)
	}

	updated, err := s.repository.UpdateACL(ctx, acl)
	if err != nil {
		return nil, err
	}

	if _, err := s.repository.TouchNode(ctx, user.UID, node.UID); err != nil {
		return nil, err
	}
	s.repository.PinUser(ctx, "access_control_list")

	// Fire-and-forget bookkeeping for principals that gained access.
	s.reportNewGrantees(ctx, previous, updated, node)

	return updated, nil
}

// OverrideInheritance gives the entity its own local ACL. The authority check
// runs against the current benefactor, before the transition.
func (s *service) OverrideInheritance(ctx context.Context, user *UserInfo, acl *datamodel.AccessControlList) (*datamodel.AccessControlList, error) {
	if user == nil || acl == nil || acl.EntityUID == uuid.Nil {
		return nil, fmt.Errorf("overriding inheritance: missing user or ACL: %w", ErrInvalidArgument)
	}

	node, err := s.repository.GetNode(ctx, acl.EntityUID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if node.HasLocalACL() {
		return nil, fmt.Errorf("entity %s: %w", node.UID, ErrAlreadyHasLocalACL)
	}
	if node.StorageRootUID.Valid && node.StorageRootUID.UUID != node.UID {
		return nil, fmt.Errorf("entity %s is inside linked-storage folder %s: %w", node.UID, node.StorageRootUID.UUID, ErrLinkedStorageACL)
	}

	if err := s.requireChangePermissions(ctx, user, node.BenefactorUID); err != nil {
		return nil, err
	}
	if err := s.validateACLContent(user, acl, node.CreatedBy); err != nil {
		return nil, err
	}

	if err := s.repository.CreateACL(ctx, acl); err != nil {
		return nil, err
	}
	if err := s.repository.SetBenefactor(ctx, node.UID, node.UID); err != nil {
		return nil, err
	}

	etag, err := s.repository.TouchNode(ctx, user.UID, node.UID)
	if err != nil {
		return nil, err
	}
	s.repository.PinUser(ctx, "access_control_list")
	s.notifyContainerChange(ctx, node, etag)

	return acl, nil
}

// RestoreInheritance removes the entity's local ACL and reverts it to the
// nearest ancestor's.
func (s *service) RestoreInheritance(ctx context.Context, user *UserInfo, entityUID uuid.UUID) error {
	if user == nil || entityUID == uuid.Nil {
		return fmt.Errorf("restoring inheritance: missing user or entity: %w", ErrInvalidArgument)
	}

	node, err := s.repository.GetNode(ctx, entityUID)
	if err != nil {
		return mapNotFound(err)
	}
	if !node.HasLocalACL() {
		return fmt.Errorf("entity %s: %w", node.UID, ErrAlreadyInheriting)
	}
	if !node.ParentUID.Valid {
		return fmt.Errorf("root entity %s has no ancestor to inherit from: %w", node.UID, ErrInvalidArgument)
	}

	if err := s.requireChangePermissions(ctx, user, node.BenefactorUID); err != nil {
		return err
	}

	parentBenefactor, err := s.repository.GetBenefactor(ctx, node.ParentUID.UUID)
	if err != nil {
		return mapNotFound(err)
	}

	if err := s.repository.DeleteACL(ctx, node.UID); err != nil {
		return err
	}
	if err := s.repository.SetBenefactor(ctx, node.UID, parentBenefactor); err != nil {
		return err
	}

	etag, err := s.repository.TouchNode(ctx, user.UID, node.UID)
	if err != nil {
		return err
	}
	s.repository.PinUser(ctx, "access_control_list")
	s.notifyContainerChange(ctx, node, etag)

	return nil
}

// requireChangePermissions verifies CHANGE_PERMISSIONS on the benefactor's
// ACL. Administrators bypass the check.
func (s *service) requireChangePermissions(ctx context.Context, user *UserInfo, benefactorUID uuid.UUID) error {
	if user.IsAdmin {
		return nil
	}
	acl, err := s.repository.GetACL(ctx, benefactorUID)
	if err != nil {
		return fmt.Errorf("benefactor %s has no access control list: %w", benefactorUID, err)
	}
	granted := acl.AccessTypesFor(user.principalSet())
	if !granted[datamodel.AccessTypeChangePermissions] {
		return fmt.Errorf("principal %s lacks %s on benefactor %s: %w", user.UID, datamodel.AccessTypeChangePermissions, benefactorUID, ErrNoPermission)
	}
	return nil
}

// validateACLContent applies the content rules every ACL write must satisfy.
// ownerUID is the creator of the governed entity, whose authority is never
// expressed in the ACL itself.
func (s *service) validateACLContent(user *UserInfo, acl *datamodel.AccessControlList, ownerUID uuid.UUID) error {
	if len(acl.Entries) == 0 {
		return fmt.Errorf("an ACL needs at least one grant: %w", ErrInvalidACL)
	}

	seen := map[uuid.UUID]bool{}
	for _, entry := range acl.Entries {
		if entry.PrincipalUID == uuid.Nil {
			return fmt.Errorf("a grant misses its principal: %w", ErrInvalidACL)
		}
		if seen[entry.PrincipalUID] {
			return fmt.Errorf("principal %s appears in more than one grant: %w", entry.PrincipalUID, ErrInvalidACL)
		}
		seen[entry.PrincipalUID] = true

		if len(entry.AccessTypes) == 0 {
			return fmt.Errorf("grant for principal %s carries no access types: %w", entry.PrincipalUID, ErrInvalidACL)
		}

		if entry.PrincipalUID == constant.AnonymousUserUID {
			return fmt.Errorf("grants to the anonymous user are not allowed; grant READ to the PUBLIC group instead: %w", ErrInvalidACL)
		}
		if entry.PrincipalUID == constant.PublicGroupUID {
			for _, t := range entry.AccessTypes {
				if t != datamodel.AccessTypeRead {
					return fmt.Errorf("the PUBLIC group may only be granted READ, not %s: %w", t, ErrInvalidACL)
				}
			}
		}
		if entry.PrincipalUID == constant.AuthenticatedUsersGroupUID && !user.IsAdmin && !s.certified(user) {
			for _, t := range entry.AccessTypes {
				if t != datamodel.AccessTypeRead {
					return fmt.Errorf("granting %s to all authenticated users: %w", t, ErrCertificationRequired)
				}
			}
		}
	}

	// Self-lockout prevention: the editor must keep the ability to change
	// permissions, unless that authority comes from outside the ACL.
	if !user.IsAdmin && user.UID != ownerUID {
		principals := user.principalSet()
		locked := true
		for _, entry := range acl.Entries {
			if !principals[entry.PrincipalUID] {
				continue
			}
			for _, t := range entry.AccessTypes {
				if t == datamodel.AccessTypeChangePermissions {
					locked = false
				}
			}
		}
		if locked {
			return fmt.Errorf("the submitted ACL would remove the editor's ability to change permissions: %w", ErrInvalidACL)
		}
	}

	return nil
}

// notifyContainerChange publishes an ENTITY_CONTAINER update for container
// nodes. Plain files emit nothing.
func (s *service) notifyContainerChange(ctx context.Context, node *datamodel.Node, etag string) {
	if !node.NodeType.IsContainer() {
		return
	}
	err := s.changeSink.SendMessageAfterCommit(ctx, notification.ChangeMessage{
		EntityUID:  node.UID,
		ObjectType: notification.ObjectTypeEntityContainer,
		Etag:       etag,
		ChangeType: notification.ChangeTypeUpdate,
	})
	if err != nil {
		log, _ := logger.GetZapLogger(ctx)
		log.Warn("failed to publish container change message",
			zap.String("entity_uid", node.UID.String()),
			zap.Error(err))
	}
}

// reportNewGrantees sends a project-stats data point for every principal that
// holds access in the updated ACL but held none in the previous one.
func (s *service) reportNewGrantees(ctx context.Context, previous, updated *datamodel.AccessControlList, node *datamodel.Node) {
	before := previous.GrantedPrincipals()
	now := time.Now()
	for principalUID := range updated.GrantedPrincipals() {
		if before[principalUID] {
			continue
		}
		err := s.statsSink.UpdateProjectStats(ctx, principalUID, node.UID, string(notification.ObjectTypeEntity), now)
		if err != nil {
			log, _ := logger.GetZapLogger(ctx)
			log.Warn("failed to update project stats",
				zap.String("principal_uid", principalUID.String()),
				zap.String("entity_uid", node.UID.String()),
				zap.Error(err))
		}
	}
}
