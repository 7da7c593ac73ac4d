package datamodel

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

// BaseStatic contains common columns for tables with static UUID as primary key
type BaseStatic struct {
	UID        uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	CreateTime time.Time `gorm:"autoCreateTime:nano"`
	UpdateTime time.Time `gorm:"autoUpdateTime:nano"`
}

// EntityType is the closed set of node types in the entity tree.
type EntityType string

const (
	EntityTypeProject          EntityType = "PROJECT"
	EntityTypeFolder           EntityType = "FOLDER"
	EntityTypeFile             EntityType = "FILE"
	EntityTypeTable            EntityType = "TABLE"
	EntityTypeLink             EntityType = "LINK"
	EntityTypeDockerRepository EntityType = "DOCKER_REPOSITORY"
)

// IsContainer reports whether nodes of this type may hold children. Only
// container nodes emit change-feed messages on inheritance transitions.
func (t EntityType) IsContainer() bool {
	return t == EntityTypeProject || t == EntityTypeFolder
}

func (t *EntityType) Scan(value any) error {
	switch v := value.(type) {
	case string:
		*t = EntityType(v)
	case []byte:
		*t = EntityType(v)
	default:
		return errors.New("incompatible type for EntityType")
	}
	return nil
}

func (t EntityType) Value() (driver.Value, error) {
	return string(t), nil
}

// AccessType is the closed set of permissions an ACL entry may grant.
type AccessType string

const (
	AccessTypeRead              AccessType = "READ"
	AccessTypeUpdate            AccessType = "UPDATE"
	AccessTypeCreate            AccessType = "CREATE"
	AccessTypeDelete            AccessType = "DELETE"
	AccessTypeDownload          AccessType = "DOWNLOAD"
	AccessTypeUpload            AccessType = "UPLOAD"
	AccessTypeChangePermissions AccessType = "CHANGE_PERMISSIONS"
	AccessTypeModerate          AccessType = "MODERATE"
	AccessTypeParticipate       AccessType = "PARTICIPATE"
)

func (t *AccessType) Scan(value any) error {
	switch v := value.(type) {
	case string:
		*t = AccessType(v)
	case []byte:
		*t = AccessType(v)
	default:
		return errors.New("incompatible type for AccessType")
	}
	return nil
}

func (t AccessType) Value() (driver.Value, error) {
	return string(t), nil
}

// RequirementType is the kind of gate an access requirement imposes.
type RequirementType string

const (
	RequirementTypeTermsOfUse RequirementType = "TERMS_OF_USE"
	RequirementTypeACT        RequirementType = "ACT"
	RequirementTypeLock       RequirementType = "LOCK"
)

func (t *RequirementType) Scan(value any) error {
	switch v := value.(type) {
	case string:
		*t = RequirementType(v)
	case []byte:
		*t = RequirementType(v)
	default:
		return errors.New("incompatible type for RequirementType")
	}
	return nil
}

func (t RequirementType) Value() (driver.Value, error) {
	return string(t), nil
}

// SubjectType distinguishes what an access requirement is attached to.
type SubjectType string

const (
	SubjectTypeEntity SubjectType = "ENTITY"
	SubjectTypeTeam   SubjectType = "TEAM"
)

func (t *SubjectType) Scan(value any) error {
	switch v := value.(type) {
	case string:
		*t = SubjectType(v)
	case []byte:
		*t = SubjectType(v)
	default:
		return errors.New("incompatible type for SubjectType")
	}
	return nil
}

func (t SubjectType) Value() (driver.Value, error) {
	return string(t), nil
}

// Node is one entity in the tree. ParentUID is null only for roots.
// BenefactorUID is denormalized: it always points at the entity whose ACL
// governs this node (the node itself when it holds a local ACL) and is
// recomputed by the tree-maintenance path whenever an ancestor's inheritance
// state changes. StorageRootUID, when valid, marks the node as living inside a
// linked-storage (STS) scope rooted at that UID.
type Node struct {
	BaseStatic
	ParentUID      uuid.NullUUID `gorm:"type:uuid"`
	NodeType       EntityType    `sql:"type:entity_type"`
	CreatedBy      uuid.UUID     `gorm:"type:uuid"`
	ProjectUID     uuid.UUID     `gorm:"type:uuid"`
	BenefactorUID  uuid.UUID     `gorm:"type:uuid;index"`
	StorageRootUID uuid.NullUUID `gorm:"type:uuid"`
	Etag           string
}

func (*Node) TableName() string {
	return "node"
}

// HasLocalACL reports whether the node governs itself.
func (n *Node) HasLocalACL() bool {
	return n.BenefactorUID == n.UID
}

// ResourceAccess is one ACL grant: a principal and the set of access types it holds.
type ResourceAccess struct {
	PrincipalUID uuid.UUID    `json:"principal_uid"`
	AccessTypes  []AccessType `json:"access_types"`
}

// ResourceAccessList is the jsonb-encoded grant set of an ACL.
type ResourceAccessList []ResourceAccess

func (l ResourceAccessList) Value() (driver.Value, error) {
	valueString, err := json.Marshal(l)
	return string(valueString), err
}

func (l *ResourceAccessList) Scan(value any) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("incompatible type for ResourceAccessList: %T", value)
	}
}

// AccessControlList is the local ACL of an entity that overrode inheritance.
// Exactly the entities with a row here are their own benefactor.
type AccessControlList struct {
	EntityUID  uuid.UUID          `gorm:"type:uuid;primaryKey;<-:create"`
	Etag       string             `gorm:"not null"`
	Entries    ResourceAccessList `gorm:"type:jsonb;not null"`
	CreateTime time.Time          `gorm:"autoCreateTime:nano"`
	UpdateTime time.Time          `gorm:"autoUpdateTime:nano"`
}

func (*AccessControlList) TableName() string {
	return "access_control_list"
}

// AccessTypesFor returns the union of access types the given principals hold
// in this ACL.
func (a *AccessControlList) AccessTypesFor(principals map[uuid.UUID]bool) map[AccessType]bool {
	granted := map[AccessType]bool{}
	for _, entry := range a.Entries {
		if !principals[entry.PrincipalUID] {
			continue
		}
		for _, t := range entry.AccessTypes {
			granted[t] = true
		}
	}
	return granted
}

// GrantedPrincipals returns the set of principals holding at least one access type.
func (a *AccessControlList) GrantedPrincipals() map[uuid.UUID]bool {
	principals := map[uuid.UUID]bool{}
	for _, entry := range a.Entries {
		if len(entry.AccessTypes) > 0 {
			principals[entry.PrincipalUID] = true
		}
	}
	return principals
}

// AccessRequirement is an extra gate, beyond ACL grants, on one access type.
type AccessRequirement struct {
	BaseStatic
	AccessType      AccessType                 `sql:"type:access_type"`
	RequirementType RequirementType            `sql:"type:requirement_type"`
	Subjects        []AccessRequirementSubject `gorm:"foreignKey:RequirementUID;references:UID;constraint:OnDelete:CASCADE"`
}

func (*AccessRequirement) TableName() string {
	return "access_requirement"
}

// AccessRequirementSubject binds a requirement to an entity or a team.
type AccessRequirementSubject struct {
	RequirementUID uuid.UUID   `gorm:"type:uuid;primaryKey"`
	SubjectUID     uuid.UUID   `gorm:"type:uuid;primaryKey"`
	SubjectType    SubjectType `gorm:"primaryKey" sql:"type:subject_type"`
}

func (*AccessRequirementSubject) TableName() string {
	return "access_requirement_subject"
}

// AccessApproval records that a principal satisfied a requirement.
type AccessApproval struct {
	BaseStatic
	RequirementUID uuid.UUID `gorm:"type:uuid;index:idx_approval_req_principal,unique"`
	PrincipalUID   uuid.UUID `gorm:"type:uuid;index:idx_approval_req_principal,unique"`
}

func (*AccessApproval) TableName() string {
	return "access_approval"
}
