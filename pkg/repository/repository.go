package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"

	"github.com/datavault-ai/entity-backend/config"
	"github.com/datavault-ai/entity-backend/pkg/constant"
	"github.com/datavault-ai/entity-backend/pkg/datamodel"
	"github.com/datavault-ai/entity-backend/pkg/resource"
)

// Repository is the data access layer of the authorization engine. Node rows
// carry a denormalized benefactor column, so benefactor resolution is a plain
// lookup; the tree walk happens only on the mutation paths that change
// inheritance state.
type Repository interface {
	PinUser(ctx context.Context, table string)

	GetNode(ctx context.Context, nodeUID uuid.UUID) (*datamodel.Node, error)
	GetBenefactor(ctx context.Context, nodeUID uuid.UUID) (uuid.UUID, error)
	GetNodeType(ctx context.Context, nodeUID uuid.UUID) (datamodel.EntityType, error)
	GetCreatedBy(ctx context.Context, nodeUID uuid.UUID) (uuid.UUID, error)
	TouchNode(ctx context.Context, principalUID uuid.UUID, nodeUID uuid.UUID) (newEtag string, err error)
	SetBenefactor(ctx context.Context, nodeUID uuid.UUID, benefactorUID uuid.UUID) error
	ListProjectUIDs(ctx context.Context) ([]uuid.UUID, error)

	GetACL(ctx context.Context, entityUID uuid.UUID) (*datamodel.AccessControlList, error)
	CreateACL(ctx context.Context, acl *datamodel.AccessControlList) error
	UpdateACL(ctx context.Context, acl *datamodel.AccessControlList) (*datamodel.AccessControlList, error)
	DeleteACL(ctx context.Context, entityUID uuid.UUID) error

	GetAccessibleBenefactors(ctx context.Context, principalUIDs []uuid.UUID, benefactorUIDs []uuid.UUID) ([]uuid.UUID, error)
	GetNonVisibleChildrenOfEntity(ctx context.Context, principalUIDs []uuid.UUID, parentUID uuid.UUID) ([]uuid.UUID, error)
	GetAccessibleProjectUIDs(ctx context.Context, principalUIDs []uuid.UUID) ([]uuid.UUID, error)

	GetAllUnmetAccessRequirements(ctx context.Context, subjectUIDs []uuid.UUID, subjectType datamodel.SubjectType, principalUIDs []uuid.UUID, accessTypes []datamodel.AccessType) ([]uuid.UUID, error)
}

type repository struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewRepository initiates a repository instance
func NewRepository(db *gorm.DB, redisClient *redis.Client) Repository {
	return &repository{
		db:          db,
		redisClient: redisClient,
	}
}

func (r *repository) checkPinnedUser(ctx context.Context, db *gorm.DB, table string) *gorm.DB {
	userUID := resource.GetRequestSingleHeader(ctx, constant.HeaderUserUIDKey)
	// If the user is pinned, we will use the primary database for querying.
	if !errors.Is(r.redisClient.Get(ctx, fmt.Sprintf(constant.DBPinUserKeyFormat, userUID, table)).Err(), redis.Nil) {
		db = db.Clauses(dbresolver.Write)
	}
	return db
}

func (r *repository) PinUser(ctx context.Context, table string) {
	userUID := resource.GetRequestSingleHeader(ctx, constant.HeaderUserUIDKey)
	// To solve the read-after-write inconsistency problem,
	// we will direct the user to read from the primary database for a certain time frame
	// to ensure that the data is synchronized from the primary DB to the replica DB.
	_ = r.redisClient.Set(ctx, fmt.Sprintf(constant.DBPinUserKeyFormat, userUID, table), time.Now(), time.Duration(config.Config.Database.Replica.ReplicationTimeFrame)*time.Second)
}

func newEtag() string {
	etag, _ := uuid.NewV4()
	return etag.String()
}

func (r *repository) GetNode(ctx context.Context, nodeUID uuid.UUID) (*datamodel.Node, error) {
	db := r.checkPinnedUser(ctx, r.db, "node")

	var node datamodel.Node
	if result := db.Model(&datamodel.Node{}).Where("uid = ?", nodeUID).First(&node); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNodeNotFound
		}
		return nil, result.Error
	}
	return &node, nil
}

func (r *repository) GetBenefactor(ctx context.Context, nodeUID uuid.UUID) (uuid.UUID, error) {
	node, err := r.GetNode(ctx, nodeUID)
	if err != nil {
		return uuid.Nil, err
	}
	return node.BenefactorUID, nil
}

func (r *repository) GetNodeType(ctx context.Context, nodeUID uuid.UUID) (datamodel.EntityType, error) {
	node, err := r.GetNode(ctx, nodeUID)
	if err != nil {
		return "", err
	}
	return node.NodeType, nil
}

func (r *repository) GetCreatedBy(ctx context.Context, nodeUID uuid.UUID) (uuid.UUID, error) {
	node, err := r.GetNode(ctx, nodeUID)
	if err != nil {
		return uuid.Nil, err
	}
	return node.CreatedBy, nil
}

// TouchNode bumps the entity's own etag after a permission-affecting change.
// The node etag is independent of the ACL etag used for optimistic locking.
func (r *repository) TouchNode(ctx context.Context, principalUID uuid.UUID, nodeUID uuid.UUID) (string, error) {
	etag := newEtag()
	result := r.db.Model(&datamodel.Node{}).
		Where("uid = ?", nodeUID).
		Updates(map[string]any{"etag": etag, "update_time": time.Now()})
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", ErrNodeNotFound
	}
	return etag, nil
}

func (r *repository) SetBenefactor(ctx context.Context, nodeUID uuid.UUID, benefactorUID uuid.UUID) error {
	result := r.db.Model(&datamodel.Node{}).
		Where("uid = ?", nodeUID).
		Update("benefactor_uid", benefactorUID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNodeNotFound
	}
	return nil
}

func (r *repository) ListProjectUIDs(ctx context.Context) ([]uuid.UUID, error) {
	uids := []uuid.UUID{}
	result := r.db.Model(&datamodel.Node{}).
		Where("node_type = ? AND benefactor_uid <> ?", datamodel.EntityTypeProject, constant.TrashFolderUID).
		Pluck("uid", &uids)
	if result.Error != nil {
		return nil, result.Error
	}
	return uids, nil
}

func (r *repository) GetACL(ctx context.Context, entityUID uuid.UUID) (*datamodel.AccessControlList, error) {
	db := r.checkPinnedUser(ctx, r.db, "access_control_list")

	var acl datamodel.AccessControlList
	if result := db.Model(&datamodel.AccessControlList{}).Where("entity_uid = ?", entityUID).First(&acl); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrACLNotFound
		}
		return nil, result.Error
	}
	return &acl, nil
}

func (r *repository) CreateACL(ctx context.Context, acl *datamodel.AccessControlList) error {
	acl.Etag = newEtag()
	if result := r.db.Model(&datamodel.AccessControlList{}).Create(acl); result.Error != nil {
		var pgErr *pgconn.PgError
		if errors.As(result.Error, &pgErr) && pgErr.Code == "23505" {
			return ErrACLAlreadyExists
		}
		return result.Error
	}
	return nil
}

// UpdateACL writes the submitted grant set if and only if the submitted etag
// matches the stored one. The etag check and the write happen in a single
// conditional UPDATE so that of two concurrent writers exactly one succeeds.
func (r *repository) UpdateACL(ctx context.Context, acl *datamodel.AccessControlList) (*datamodel.AccessControlList, error) {
	etag := newEtag()
	result := r.db.Model(&datamodel.AccessControlList{}).
		Where("entity_uid = ? AND etag = ?", acl.EntityUID, acl.Etag).
		Updates(map[string]any{"etag": etag, "entries": acl.Entries, "update_time": time.Now()})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		// Distinguish a stale etag from a missing row.
		if _, err := r.GetACL(ctx, acl.EntityUID); err != nil {
			return nil, err
		}
		return nil, ErrStateConflict
	}

	updated := *acl
	updated.Etag = etag
	return &updated, nil
}

func (r *repository) DeleteACL(ctx context.Context, entityUID uuid.UUID) error {
	result := r.db.Where("entity_uid = ?", entityUID).Delete(&datamodel.AccessControlList{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrACLNotFound
	}
	return nil
}

// GetAccessibleBenefactors returns the subset of candidate benefactors whose
// ACL grants READ to any of the given principals. One batched query instead of
// one authorization round trip per candidate.
func (r *repository) GetAccessibleBenefactors(ctx context.Context, principalUIDs []uuid.UUID, benefactorUIDs []uuid.UUID) ([]uuid.UUID, error) {
	db := r.checkPinnedUser(ctx, r.db, "access_control_list")

	uids := []uuid.UUID{}
	result := db.Raw(`
		SELECT DISTINCT acl.entity_uid
		FROM access_control_list acl, jsonb_array_elements(acl.entries) AS entry
		WHERE acl.entity_uid IN ?
		  AND (entry->>'principal_uid')::uuid IN ?
		  AND entry->'access_types' @> '"READ"'`,
		benefactorUIDs, principalUIDs).Scan(&uids)
	if result.Error != nil {
		return nil, result.Error
	}
	return uids, nil
}

// GetNonVisibleChildrenOfEntity returns the children of parentUID whose
// benefactor ACL grants none of the given principals READ.
func (r *repository) GetNonVisibleChildrenOfEntity(ctx context.Context, principalUIDs []uuid.UUID, parentUID uuid.UUID) ([]uuid.UUID, error) {
	db := r.checkPinnedUser(ctx, r.db, "access_control_list")

	uids := []uuid.UUID{}
	result := db.Raw(`
		SELECT n.uid
		FROM node n
		WHERE n.parent_uid = ?
		  AND NOT EXISTS (
			SELECT 1
			FROM access_control_list acl, jsonb_array_elements(acl.entries) AS entry
			WHERE acl.entity_uid = n.benefactor_uid
			  AND (entry->>'principal_uid')::uuid IN ?
			  AND entry->'access_types' @> '"READ"')`,
		parentUID, principalUIDs).Scan(&uids)
	if result.Error != nil {
		return nil, result.Error
	}
	return uids, nil
}

func (r *repository) GetAccessibleProjectUIDs(ctx context.Context, principalUIDs []uuid.UUID) ([]uuid.UUID, error) {
	db := r.checkPinnedUser(ctx, r.db, "access_control_list")

	uids := []uuid.UUID{}
	result := db.Raw(`
		SELECT DISTINCT n.uid
		FROM node n, access_control_list acl, jsonb_array_elements(acl.entries) AS entry
		WHERE n.node_type = ?
		  AND n.benefactor_uid <> ?
		  AND acl.entity_uid = n.benefactor_uid
		  AND (entry->>'principal_uid')::uuid IN ?
		  AND entry->'access_types' @> '"READ"'`,
		datamodel.EntityTypeProject, constant.TrashFolderUID, principalUIDs).Scan(&uids)
	if result.Error != nil {
		return nil, result.Error
	}
	return uids, nil
}

// GetAllUnmetAccessRequirements returns the requirements gating the given
// access types on the given subjects for which none of the principal's
// identities has a recorded approval.
func (r *repository) GetAllUnmetAccessRequirements(ctx context.Context, subjectUIDs []uuid.UUID, subjectType datamodel.SubjectType, principalUIDs []uuid.UUID, accessTypes []datamodel.AccessType) ([]uuid.UUID, error) {
	uids := []uuid.UUID{}
	result := r.db.Raw(`
		SELECT DISTINCT ar.uid
		FROM access_requirement ar
		JOIN access_requirement_subject s ON s.requirement_uid = ar.uid
		WHERE s.subject_uid IN ?
		  AND s.subject_type = ?
		  AND ar.access_type IN ?
		  AND NOT EXISTS (
			SELECT 1 FROM access_approval ap
			WHERE ap.requirement_uid = ar.uid
			  AND ap.principal_uid IN ?)`,
		subjectUIDs, subjectType, accessTypes, principalUIDs).Scan(&uids)
	if result.Error != nil {
		return nil, result.Error
	}
	return uids, nil
}
