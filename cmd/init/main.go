package main

import (
	"context"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/datavault-ai/entity-backend/config"
	"github.com/datavault-ai/entity-backend/pkg/constant"
	"github.com/datavault-ai/entity-backend/pkg/datamodel"
	"github.com/datavault-ai/entity-backend/pkg/db"
	"github.com/datavault-ai/entity-backend/pkg/logger"
)

// RootProjectUID anchors the entity tree. Every other entity resolves its
// benefactor to an ancestor at or below this node.
var RootProjectUID = uuid.FromStringOrNil("22222222-0000-0000-0000-000000000002")

func createNodeRecord(database *gorm.DB, node *datamodel.Node) error {
	result := database.Model(&datamodel.Node{}).FirstOrCreate(node)
	return result.Error
}

func main() {
	ctx := context.Background()

	if err := config.Init(config.ParseConfigFlag()); err != nil {
		panic(err)
	}

	log, _ := logger.GetZapLogger(ctx)
	defer func() {
		_ = log.Sync()
	}()

	database := db.GetConnection()
	defer db.Close(database)

	if err := database.AutoMigrate(
		&datamodel.Node{},
		&datamodel.AccessControlList{},
		&datamodel.AccessRequirement{},
		&datamodel.AccessRequirementSubject{},
		&datamodel.AccessApproval{},
	); err != nil {
		log.Fatal("failed to migrate schema", zap.Error(err))
	}

	etag, _ := uuid.NewV4()
	rootProject := &datamodel.Node{
		BaseStatic:    datamodel.BaseStatic{UID: RootProjectUID},
		NodeType:      datamodel.EntityTypeProject,
		CreatedBy:     constant.AdministratorsGroupUID,
		ProjectUID:    RootProjectUID,
		BenefactorUID: RootProjectUID,
		Etag:          etag.String(),
	}
	if err := createNodeRecord(database, rootProject); err != nil {
		log.Fatal("failed to create root project", zap.Error(err))
	}

	aclEtag, _ := uuid.NewV4()
	rootACL := &datamodel.AccessControlList{
		EntityUID: RootProjectUID,
		Etag:      aclEtag.String(),
		Entries: datamodel.ResourceAccessList{
			{
				PrincipalUID: constant.AdministratorsGroupUID,
				AccessTypes: []datamodel.AccessType{
					datamodel.AccessTypeRead,
					datamodel.AccessTypeUpdate,
					datamodel.AccessTypeCreate,
					datamodel.AccessTypeDelete,
					datamodel.AccessTypeDownload,
					datamodel.AccessTypeChangePermissions,
					datamodel.AccessTypeModerate,
				},
			},
		},
	}
	if result := database.Model(&datamodel.AccessControlList{}).FirstOrCreate(rootACL); result.Error != nil {
		log.Fatal("failed to create root project ACL", zap.Error(result.Error))
	}

	trashEtag, _ := uuid.NewV4()
	trashFolder := &datamodel.Node{
		BaseStatic:    datamodel.BaseStatic{UID: constant.TrashFolderUID},
		ParentUID:     uuid.NullUUID{UUID: RootProjectUID, Valid: true},
		NodeType:      datamodel.EntityTypeFolder,
		CreatedBy:     constant.AdministratorsGroupUID,
		ProjectUID:    RootProjectUID,
		BenefactorUID: constant.TrashFolderUID,
		Etag:          trashEtag.String(),
	}
	if err := createNodeRecord(database, trashFolder); err != nil {
		log.Fatal("failed to create trash folder", zap.Error(err))
	}

	trashACLEtag, _ := uuid.NewV4()
	trashACL := &datamodel.AccessControlList{
		EntityUID: constant.TrashFolderUID,
		Etag:      trashACLEtag.String(),
		Entries: datamodel.ResourceAccessList{
			{
				PrincipalUID: constant.AdministratorsGroupUID,
				AccessTypes:  []datamodel.AccessType{datamodel.AccessTypeRead},
			},
		},
	}
	if result := database.Model(&datamodel.AccessControlList{}).FirstOrCreate(trashACL); result.Error != nil {
		log.Fatal("failed to create trash folder ACL", zap.Error(result.Error))
	}

	log.Info("bootstrap completed",
		zap.String("root_project_uid", RootProjectUID.String()),
		zap.String("trash_folder_uid", constant.TrashFolderUID.String()))
}
