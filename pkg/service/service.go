package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"

	"github.com/datavault-ai/entity-backend/pkg/constant"
	"github.com/datavault-ai/entity-backend/pkg/datamodel"
	"github.com/datavault-ai/entity-backend/pkg/notification"
	"github.com/datavault-ai/entity-backend/pkg/repository"
	"github.com/datavault-ai/entity-backend/pkg/stats"
)

// UserInfo bundles everything the engine needs to know about the caller: the
// principal itself, the transitive closure of its group memberships and the
// platform-level flags resolved by the identity service.
type UserInfo struct {
	UID         uuid.UUID
	GroupUIDs   []uuid.UUID
	IsAdmin     bool
	IsCertified bool
}

// IsAnonymous reports whether the request carries no credentials.
func (u *UserInfo) IsAnonymous() bool {
	return u.UID == constant.AnonymousUserUID
}

// PrincipalUIDs returns the caller's own UID plus its group closure, deduped.
func (u *UserInfo) PrincipalUIDs() []uuid.UUID {
	set := u.principalSet()
	uids := make([]uuid.UUID, 0, len(set))
	for p := range set {
		uids = append(uids, p)
	}
	return uids
}

func (u *UserInfo) principalSet() map[uuid.UUID]bool {
	set := map[uuid.UUID]bool{u.UID: true}
	for _, g := range u.GroupUIDs {
		set[g] = true
	}
	return set
}

// ACLResolution is the result of looking up an entity's ACL: either the
// entity holds a local ACL, or it inherits one and the caller should re-issue
// the lookup against the benefactor.
type ACLResolution struct {
	// ACL is set when the entity governs itself.
	ACL *datamodel.AccessControlList
	// BenefactorUID is set when the ACL is inherited from an ancestor.
	BenefactorUID uuid.UUID
}

// Inherited reports whether the entity inherits its ACL.
func (r *ACLResolution) Inherited() bool {
	return r.ACL == nil
}

// Service is the authorization facade consumed by the CRUD and query layers.
type Service interface {
	ResolveBenefactor(ctx context.Context, entityUID uuid.UUID) (uuid.UUID, error)
	HasAccess(ctx context.Context, user *UserInfo, entityUID uuid.UUID, accessType datamodel.AccessType) error
	GetUserPermissionsForEntity(ctx context.Context, user *UserInfo, entityUID uuid.UUID) (*PermissionBundle, error)
	CanCreate(ctx context.Context, user *UserInfo, parentUID uuid.UUID, childType datamodel.EntityType) (bool, error)
	CanCreateWiki(ctx context.Context, user *UserInfo, entityUID uuid.UUID) (bool, error)

	GetACL(ctx context.Context, user *UserInfo, entityUID uuid.UUID) (*ACLResolution, error)
	UpdateACL(ctx context.Context, user *UserInfo, acl *datamodel.AccessControlList) (*datamodel.AccessControlList, error)
	OverrideInheritance(ctx context.Context, user *UserInfo, acl *datamodel.AccessControlList) (*datamodel.AccessControlList, error)
	RestoreInheritance(ctx context.Context, user *UserInfo, entityUID uuid.UUID) error

	GetAccessibleBenefactors(ctx context.Context, user *UserInfo, benefactorUIDs []uuid.UUID) ([]uuid.UUID, error)
	GetAccessibleProjectUIDs(ctx context.Context, user *UserInfo) ([]uuid.UUID, error)
	GetNonvisibleChildren(ctx context.Context, user *UserInfo, parentUID uuid.UUID) ([]uuid.UUID, error)
}

type service struct {
	repository            repository.Repository
	changeSink            notification.ChangeSink
	statsSink             stats.ProjectStatsSink
	certificationDisabled bool
}

// NewService returns a new service instance. certificationDisabled lifts the
// certified-user requirement platform-wide; it is passed in explicitly rather
// than read from ambient configuration.
func NewService(
	r repository.Repository,
	cs notification.ChangeSink,
	ps stats.ProjectStatsSink,
	certificationDisabled bool) Service {
	return &service{
		repository:            r,
		changeSink:            cs,
		statsSink:             ps,
		certificationDisabled: certificationDisabled,
	}
}

// ResolveBenefactor returns the entity whose ACL governs entityUID: the
// entity itself when it holds a local ACL, otherwise the nearest ancestor
// with one. A pure lookup against the denormalized benefactor column.
func (s *service) ResolveBenefactor(ctx context.Context, entityUID uuid.UUID) (uuid.UUID, error) {
	if entityUID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("resolving benefactor: blank entity UID: %w", ErrInvalidArgument)
	}
	benefactorUID, err := s.repository.GetBenefactor(ctx, entityUID)
	if err != nil {
		return uuid.Nil, mapNotFound(err)
	}
	return benefactorUID, nil
}

// HasAccess returns nil when the user may perform accessType on the entity
// and an ErrNoPermission-wrapped denial otherwise. A missing entity is a
// NotFound error, never a silent denial.
func (s *service) HasAccess(ctx context.Context, user *UserInfo, entityUID uuid.UUID, accessType datamodel.AccessType) error {
	if user == nil || entityUID == uuid.Nil || accessType == "" {
		return fmt.Errorf("checking access: missing user, entity or access type: %w", ErrInvalidArgument)
	}

	node, err := s.repository.GetNode(ctx, entityUID)
	if err != nil {
		return mapNotFound(err)
	}

	if user.IsAdmin {
		return nil
	}

	if err := s.checkACLGrant(ctx, user, node, accessType); err != nil {
		return err
	}

	// The certification gate mirrors the permission bundle: uncertified users
	// may not update non-project entities or create children anywhere.
	if !s.certified(user) {
		if accessType == datamodel.AccessTypeUpdate && node.NodeType != datamodel.EntityTypeProject {
			return fmt.Errorf("principal %s must be certified to update entity %s: %w", user.UID, entityUID, ErrNoPermission)
		}
		if accessType == datamodel.AccessTypeCreate {
			return fmt.Errorf("principal %s must be certified to create children under entity %s: %w", user.UID, entityUID, ErrNoPermission)
		}
	}

	return nil
}

// checkACLGrant evaluates the governing ACL and any access requirements for a
// non-administrator caller. Certification is not checked here; CanCreate and
// CanCreateWiki apply their own child-type-aware rule on top.
func (s *service) checkACLGrant(ctx context.Context, user *UserInfo, node *datamodel.Node, accessType datamodel.AccessType) error {
	if accessType == datamodel.AccessTypeDownload && user.IsAnonymous() && node.NodeType == datamodel.EntityTypeDockerRepository {
		return fmt.Errorf("anonymous principals cannot download docker repositories: %w", ErrNoPermission)
	}

	if node.BenefactorUID == constant.TrashFolderUID {
		return fmt.Errorf("entity %s is in the trash can: %w", node.UID, ErrNoPermission)
	}

	acl, err := s.repository.GetACL(ctx, node.BenefactorUID)
	if err != nil {
		// Every entity resolves to exactly one governing ACL; a benefactor
		// without one is a configuration fault, not a denial.
		return fmt.Errorf("benefactor %s of entity %s has no access control list: %w", node.BenefactorUID, node.UID, err)
	}

	granted := acl.AccessTypesFor(user.principalSet())
	if !granted[accessType] {
		return fmt.Errorf("principal %s lacks %s on entity %s: %w", user.UID, accessType, node.UID, ErrNoPermission)
	}

	if accessType == datamodel.AccessTypeDownload || accessType == datamodel.AccessTypeParticipate {
		unmet, err := s.unmetAccessRequirements(ctx, user, node, accessType)
		if err != nil {
			return err
		}
		if len(unmet) > 0 {
			return fmt.Errorf("%d unmet access requirement(s) gate %s on entity %s: %w", len(unmet), accessType, node.UID, ErrNoPermission)
		}
	}

	return nil
}

// GetACL returns the entity's own ACL, or the benefactor pointer when the
// entity inherits. Callers pattern-match on Inherited() instead of catching a
// redirect error.
func (s *service) GetACL(ctx context.Context, user *UserInfo, entityUID uuid.UUID) (*ACLResolution, error) {
	if err := s.HasAccess(ctx, user, entityUID, datamodel.AccessTypeRead); err != nil {
		return nil, err
	}

	node, err := s.repository.GetNode(ctx, entityUID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if !node.HasLocalACL() {
		return &ACLResolution{BenefactorUID: node.BenefactorUID}, nil
	}

	acl, err := s.repository.GetACL(ctx, entityUID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &ACLResolution{ACL: acl}, nil
}
