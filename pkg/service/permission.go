package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"

	"github.com/datavault-ai/entity-backend/pkg/constant"
	"github.com/datavault-ai/entity-backend/pkg/datamodel"
)

// PermissionBundle is the full capability set of one principal on one entity.
// It is a plain value computed per call, never cached.
type PermissionBundle struct {
	CanRead                  bool `json:"can_read"`
	CanEdit                  bool `json:"can_edit"`
	CanDelete                bool `json:"can_delete"`
	CanDownload              bool `json:"can_download"`
	CanUpload                bool `json:"can_upload"`
	CanAddChild              bool `json:"can_add_child"`
	CanChangePermissions     bool `json:"can_change_permissions"`
	CanChangeSettings        bool `json:"can_change_settings"`
	CanEnableInheritance     bool `json:"can_enable_inheritance"`
	CanPublicRead            bool `json:"can_public_read"`
	CanModerate              bool `json:"can_moderate"`
	CanCertifiedUserEdit     bool `json:"can_certified_user_edit"`
	CanCertifiedUserAddChild bool `json:"can_certified_user_add_child"`
	IsCertifiedUser          bool `json:"is_certified_user"`
}

func (s *service) certified(user *UserInfo) bool {
	return user.IsCertified || s.certificationDisabled
}

// GetUserPermissionsForEntity combines the benefactor's ACL grants with
// ownership, certification state and unmet access requirements into one
// capability bundle.
func (s *service) GetUserPermissionsForEntity(ctx context.Context, user *UserInfo, entityUID uuid.UUID) (*PermissionBundle, error) {
	if user == nil || entityUID == uuid.Nil {
		return nil, fmt.Errorf("computing permissions: missing user or entity: %w", ErrInvalidArgument)
	}

	node, err := s.repository.GetNode(ctx, entityUID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	acl, err := s.repository.GetACL(ctx, node.BenefactorUID)
	if err != nil {
		return nil, fmt.Errorf("benefactor %s of entity %s has no access control list: %w", node.BenefactorUID, entityUID, err)
	}

	bundle := &PermissionBundle{
		IsCertifiedUser: user.IsCertified,
		CanPublicRead:   publicCanRead(acl),
	}

	if user.IsAdmin {
		bundle.CanRead = true
		bundle.CanEdit = true
		bundle.CanDelete = true
		bundle.CanDownload = true
		bundle.CanUpload = true
		bundle.CanAddChild = true
		bundle.CanChangePermissions = true
		bundle.CanChangeSettings = true
		bundle.CanEnableInheritance = true
		bundle.CanModerate = true
		bundle.CanCertifiedUserEdit = true
		bundle.CanCertifiedUserAddChild = true
		return bundle, nil
	}

	if node.BenefactorUID == constant.TrashFolderUID {
		return bundle, nil
	}

	granted := acl.AccessTypesFor(user.principalSet())
	certified := s.certified(user)

	bundle.CanRead = granted[datamodel.AccessTypeRead]
	bundle.CanDelete = granted[datamodel.AccessTypeDelete]
	bundle.CanModerate = granted[datamodel.AccessTypeModerate]
	bundle.CanChangePermissions = granted[datamodel.AccessTypeChangePermissions]
	bundle.CanChangeSettings = granted[datamodel.AccessTypeChangePermissions]
	bundle.CanEnableInheritance = granted[datamodel.AccessTypeChangePermissions]
	bundle.CanUpload = granted[datamodel.AccessTypeUpdate] || granted[datamodel.AccessTypeCreate]

	// Certification gates edits everywhere but on projects.
	bundle.CanCertifiedUserEdit = granted[datamodel.AccessTypeUpdate]
	bundle.CanEdit = granted[datamodel.AccessTypeUpdate] &&
		(node.NodeType == datamodel.EntityTypeProject || certified)
	bundle.CanCertifiedUserAddChild = granted[datamodel.AccessTypeCreate]
	bundle.CanAddChild = granted[datamodel.AccessTypeCreate] && certified

	bundle.CanDownload = granted[datamodel.AccessTypeDownload]
	if bundle.CanDownload && user.IsAnonymous() && node.NodeType == datamodel.EntityTypeDockerRepository {
		bundle.CanDownload = false
	}
	if bundle.CanDownload {
		unmet, err := s.unmetAccessRequirements(ctx, user, node, datamodel.AccessTypeDownload)
		if err != nil {
			return nil, err
		}
		if len(unmet) > 0 {
			bundle.CanDownload = false
		}
	}

	return bundle, nil
}

// CanCreate reports whether the user may create a child of childType under
// parentUID. Creating projects is open to any principal with CREATE;
// everything else additionally requires certification.
func (s *service) CanCreate(ctx context.Context, user *UserInfo, parentUID uuid.UUID, childType datamodel.EntityType) (bool, error) {
	if user == nil || parentUID == uuid.Nil || childType == "" {
		return false, fmt.Errorf("checking create: missing user, parent or child type: %w", ErrInvalidArgument)
	}
	if user.IsAdmin {
		return true, nil
	}

	node, err := s.repository.GetNode(ctx, parentUID)
	if err != nil {
		return false, mapNotFound(err)
	}
	if err := s.checkACLGrant(ctx, user, node, datamodel.AccessTypeCreate); err != nil {
		if isDenial(err) {
			return false, nil
		}
		return false, err
	}
	if childType == datamodel.EntityTypeProject {
		return true, nil
	}
	return s.certified(user), nil
}

// CanCreateWiki reports whether the user may attach a wiki to the entity.
func (s *service) CanCreateWiki(ctx context.Context, user *UserInfo, entityUID uuid.UUID) (bool, error) {
	if user == nil || entityUID == uuid.Nil {
		return false, fmt.Errorf("checking wiki create: missing user or entity: %w", ErrInvalidArgument)
	}
	if user.IsAdmin {
		return true, nil
	}

	node, err := s.repository.GetNode(ctx, entityUID)
	if err != nil {
		return false, mapNotFound(err)
	}
	if err := s.checkACLGrant(ctx, user, node, datamodel.AccessTypeCreate); err != nil {
		if isDenial(err) {
			return false, nil
		}
		return false, err
	}
	if node.NodeType == datamodel.EntityTypeProject {
		return true, nil
	}
	return s.certified(user), nil
}

func publicCanRead(acl *datamodel.AccessControlList) bool {
	for _, entry := range acl.Entries {
		if entry.PrincipalUID != constant.PublicGroupUID {
			continue
		}
		for _, t := range entry.AccessTypes {
			if t == datamodel.AccessTypeRead {
				return true
			}
		}
	}
	return false
}
