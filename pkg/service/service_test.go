package service_test

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datavault-ai/entity-backend/pkg/constant"
	"github.com/datavault-ai/entity-backend/pkg/datamodel"
	"github.com/datavault-ai/entity-backend/pkg/service"
)

var trashUID = constant.TrashFolderUID

// fixture is a small entity tree: a project with a local ACL, a folder
// inheriting from it and a file inside the folder.
type fixture struct {
	repo    *fakeRepository
	changes *fakeChangeSink
	stats   *fakeStatsSink
	svc     service.Service

	project uuid.UUID
	folder  uuid.UUID
	file    uuid.UUID

	owner  *service.UserInfo
	reader *service.UserInfo
	admin  *service.UserInfo
	anon   *service.UserInfo
}

func ownerGrant(principalUID uuid.UUID) datamodel.ResourceAccess {
	return datamodel.ResourceAccess{
		PrincipalUID: principalUID,
		AccessTypes: []datamodel.AccessType{
			datamodel.AccessTypeRead,
			datamodel.AccessTypeUpdate,
			datamodel.AccessTypeCreate,
			datamodel.AccessTypeDelete,
			datamodel.AccessTypeDownload,
			datamodel.AccessTypeChangePermissions,
			datamodel.AccessTypeModerate,
		},
	}
}

func readGrant(principalUID uuid.UUID) datamodel.ResourceAccess {
	return datamodel.ResourceAccess{
		PrincipalUID: principalUID,
		AccessTypes: []datamodel.AccessType{
			datamodel.AccessTypeRead,
			datamodel.AccessTypeDownload,
		},
	}
}

func newFixture(t *testing.T, certificationDisabled bool) *fixture {
	t.Helper()

	f := &fixture{
		repo:    newFakeRepository(),
		changes: &fakeChangeSink{},
		stats:   &fakeStatsSink{},
		project: mustUUID(),
		folder:  mustUUID(),
		file:    mustUUID(),
	}

	f.owner = &service.UserInfo{UID: mustUUID(), IsCertified: true}
	f.reader = &service.UserInfo{UID: mustUUID()}
	f.admin = &service.UserInfo{UID: mustUUID(), IsAdmin: true}
	f.anon = &service.UserInfo{UID: constant.AnonymousUserUID}

	f.repo.addNode(datamodel.Node{
		BaseStatic:    datamodel.BaseStatic{UID: f.project},
		NodeType:      datamodel.EntityTypeProject,
		CreatedBy:     f.owner.UID,
		ProjectUID:    f.project,
		BenefactorUID: f.project,
	})
	f.repo.addNode(datamodel.Node{
		BaseStatic:    datamodel.BaseStatic{UID: f.folder},
		ParentUID:     uuid.NullUUID{UUID: f.project, Valid: true},
		NodeType:      datamodel.EntityTypeFolder,
		CreatedBy:     f.owner.UID,
		ProjectUID:    f.project,
		BenefactorUID: f.project,
	})
	f.repo.addNode(datamodel.Node{
		BaseStatic:    datamodel.BaseStatic{UID: f.file},
		ParentUID:     uuid.NullUUID{UUID: f.folder, Valid: true},
		NodeType:      datamodel.EntityTypeFile,
		CreatedBy:     f.owner.UID,
		ProjectUID:    f.project,
		BenefactorUID: f.project,
	})

	f.repo.addACL(f.project, ownerGrant(f.owner.UID), readGrant(f.reader.UID))

	f.svc = service.NewService(f.repo, f.changes, f.stats, certificationDisabled)
	return f
}

func TestResolveBenefactor(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	benefactor, err := f.svc.ResolveBenefactor(ctx, f.folder)
	require.NoError(t, err)
	assert.Equal(t, f.project, benefactor)

	benefactor, err = f.svc.ResolveBenefactor(ctx, f.project)
	require.NoError(t, err)
	assert.Equal(t, f.project, benefactor)

	_, err = f.svc.ResolveBenefactor(ctx, mustUUID())
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestHasAccess(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.svc.HasAccess(ctx, f.reader, f.file, datamodel.AccessTypeRead))

	err := f.svc.HasAccess(ctx, f.reader, f.file, datamodel.AccessTypeUpdate)
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrNoPermission)

	// A missing entity surfaces as NotFound, never as a silent denial.
	err = f.svc.HasAccess(ctx, f.reader, mustUUID(), datamodel.AccessTypeRead)
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.NotErrorIs(t, err, service.ErrNoPermission)

	// Administrators pass every check.
	require.NoError(t, f.svc.HasAccess(ctx, f.admin, f.file, datamodel.AccessTypeChangePermissions))
}

// TestHasAccessCertificationGate pins the facade to the permission bundle: an
// uncertified UPDATE holder may not edit a non-project entity through either
// entry point.
func TestHasAccessCertificationGate(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	uncertified := &service.UserInfo{UID: mustUUID()}
	f.repo.addACL(f.folder,
		ownerGrant(f.owner.UID),
		grant(uncertified.UID,
			datamodel.AccessTypeRead,
			datamodel.AccessTypeUpdate,
			datamodel.AccessTypeCreate))
	require.NoError(t, f.repo.SetBenefactor(ctx, f.folder, f.folder))

	bundle, err := f.svc.GetUserPermissionsForEntity(ctx, uncertified, f.folder)
	require.NoError(t, err)
	require.False(t, bundle.CanEdit)

	err = f.svc.HasAccess(ctx, uncertified, f.folder, datamodel.AccessTypeUpdate)
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrNoPermission)

	err = f.svc.HasAccess(ctx, uncertified, f.folder, datamodel.AccessTypeCreate)
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrNoPermission)

	// READ is never certification-gated.
	require.NoError(t, f.svc.HasAccess(ctx, uncertified, f.folder, datamodel.AccessTypeRead))

	// Projects stay editable without certification.
	f.repo.addACL(f.project,
		ownerGrant(f.owner.UID),
		grant(uncertified.UID, datamodel.AccessTypeRead, datamodel.AccessTypeUpdate))
	require.NoError(t, f.svc.HasAccess(ctx, uncertified, f.project, datamodel.AccessTypeUpdate))

	// Certified users pass.
	require.NoError(t, f.svc.HasAccess(ctx, f.owner, f.folder, datamodel.AccessTypeUpdate))
}

func TestHasAccessCertificationDisabled(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	uncertified := &service.UserInfo{UID: mustUUID()}
	f.repo.addACL(f.folder,
		ownerGrant(f.owner.UID),
		grant(uncertified.UID,
			datamodel.AccessTypeRead,
			datamodel.AccessTypeUpdate,
			datamodel.AccessTypeCreate))
	require.NoError(t, f.repo.SetBenefactor(ctx, f.folder, f.folder))

	require.NoError(t, f.svc.HasAccess(ctx, uncertified, f.folder, datamodel.AccessTypeUpdate))
	require.NoError(t, f.svc.HasAccess(ctx, uncertified, f.folder, datamodel.AccessTypeCreate))
}

func TestHasAccessDeniesTrashedEntities(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	trashed := mustUUID()
	f.repo.addNode(datamodel.Node{
		BaseStatic:    datamodel.BaseStatic{UID: trashed},
		ParentUID:     uuid.NullUUID{UUID: trashUID, Valid: true},
		NodeType:      datamodel.EntityTypeFile,
		CreatedBy:     f.owner.UID,
		BenefactorUID: trashUID,
	})

	err := f.svc.HasAccess(ctx, f.owner, trashed, datamodel.AccessTypeRead)
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrNoPermission)

	require.NoError(t, f.svc.HasAccess(ctx, f.admin, trashed, datamodel.AccessTypeRead))
}

func TestGetACLInheritanceResolution(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	// The project governs itself.
	res, err := f.svc.GetACL(ctx, f.reader, f.project)
	require.NoError(t, err)
	require.False(t, res.Inherited())
	assert.Equal(t, f.project, res.ACL.EntityUID)

	// The folder inherits: the caller gets the benefactor pointer.
	res, err = f.svc.GetACL(ctx, f.reader, f.folder)
	require.NoError(t, err)
	require.True(t, res.Inherited())
	assert.Equal(t, f.project, res.BenefactorUID)
}

func TestGetACLRequiresRead(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	stranger := &service.UserInfo{UID: mustUUID()}
	_, err := f.svc.GetACL(ctx, stranger, f.folder)
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrNoPermission)
}

// TestEndToEndInheritanceScenario walks the full override/restore cycle on a
// child folder and verifies the benefactor relation at every step.
func TestEndToEndInheritanceScenario(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	res, err := f.svc.GetACL(ctx, f.owner, f.folder)
	require.NoError(t, err)
	require.True(t, res.Inherited())
	require.Equal(t, f.project, res.BenefactorUID)

	_, err = f.svc.OverrideInheritance(ctx, f.admin, &datamodel.AccessControlList{
		EntityUID: f.folder,
		Entries:   datamodel.ResourceAccessList{ownerGrant(f.owner.UID)},
	})
	require.NoError(t, err)

	benefactor, err := f.svc.ResolveBenefactor(ctx, f.folder)
	require.NoError(t, err)
	assert.Equal(t, f.folder, benefactor)

	res, err = f.svc.GetACL(ctx, f.owner, f.folder)
	require.NoError(t, err)
	require.False(t, res.Inherited())
	assert.Equal(t, f.folder, res.ACL.EntityUID)

	require.NoError(t, f.svc.RestoreInheritance(ctx, f.admin, f.folder))

	benefactor, err = f.svc.ResolveBenefactor(ctx, f.folder)
	require.NoError(t, err)
	assert.Equal(t, f.project, benefactor)

	res, err = f.svc.GetACL(ctx, f.owner, f.folder)
	require.NoError(t, err)
	require.True(t, res.Inherited())
	assert.Equal(t, f.project, res.BenefactorUID)
}
