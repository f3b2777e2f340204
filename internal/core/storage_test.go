package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/almecha/GlucoseIoT/pkg/domain"
)

func defaultsForTest() Metadata {
	return Metadata{
		CatalogURL:    "http://localhost:9080",
		Broker:        BrokerConfig{"IP": "test.mosquitto.org", "port": 1883},
		ProjectOwners: []string{"GlucoseIoT team"},
		ProjectName:   "GlucoseIoT",
	}
}

func TestOpenPersistentStoreFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "service_catalog.json")
	opts := StorageOptions{Driver: StorageFile, FilePath: path, Defaults: defaultsForTest()}

	store, closer, err := OpenPersistentStore(ctx, opts, NewDefaultRulesEngine())
	require.NoError(t, err)
	svc := NewService(store)
	_, err = svc.CreateService(ctx, payload(t, servicePayload("adaptor")))
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	reopened, closer, err := OpenPersistentStore(ctx, opts, NewDefaultRulesEngine())
	require.NoError(t, err)
	defer closer.Close()
	doc := reopened.ExportState()
	require.Len(t, doc.Services, 1)
	assert.Equal(t, "adaptor", doc.Services[0].ServiceID)
	assert.Equal(t, "GlucoseIoT", doc.ProjectName)
}

func TestOpenPersistentStoreHealsDamagedFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "service_catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"project_name":"Legacy","servicesList":null,"doctorsList":[{"userID":"d1","role":"Doctor","patients_id":["ghost"]}]}`), 0o600))

	core, logs := observer.New(zap.WarnLevel)
	store, closer, err := OpenPersistentStore(ctx, StorageOptions{
		Driver:   StorageFile,
		FilePath: path,
		Defaults: defaultsForTest(),
		Logger:   zap.New(core),
	}, NewDefaultRulesEngine())
	require.NoError(t, err)
	defer closer.Close()

	doc := store.ExportState()
	assert.Equal(t, "Legacy", doc.ProjectName)
	assert.Empty(t, doc.Services)
	require.Len(t, doc.Doctors, 1)
	assert.Empty(t, doc.Doctors[0].PatientsID)
	assert.NotZero(t, logs.FilterMessage("catalog document repaired").Len())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"servicesList": []`)
}

func TestOpenPersistentStoreFailsOnUnreadableFile(t *testing.T) {
	ctx := context.Background()
	// A directory at the document path fails the read with something other
	// than not-exist.
	path := t.TempDir()
	_, _, err := OpenPersistentStore(ctx, StorageOptions{Driver: StorageFile, FilePath: path, Defaults: defaultsForTest()}, NewDefaultRulesEngine())
	var perr domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "load", perr.Op)

	info, statErr := os.Stat(path)
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestOpenPersistentStoreLogsLocation(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "service_catalog.json")
	core, logs := observer.New(zap.InfoLevel)
	_, closer, err := OpenPersistentStore(ctx, StorageOptions{
		Driver:   StorageFile,
		FilePath: path,
		Defaults: defaultsForTest(),
		Logger:   zap.New(core),
	}, NewDefaultRulesEngine())
	require.NoError(t, err)
	defer closer.Close()

	ready := logs.FilterMessage("catalog store ready").All()
	require.Len(t, ready, 1)
	assert.Equal(t, path, ready[0].ContextMap()["location"])
}

func TestOpenPersistentStoreSQLite(t *testing.T) {
	ctx := context.Background()
	opts := StorageOptions{Driver: StorageSQLite, SQLitePath: filepath.Join(t.TempDir(), "catalog.db"), Defaults: defaultsForTest()}
	store, closer, err := OpenPersistentStore(ctx, opts, NewDefaultRulesEngine())
	require.NoError(t, err)
	svc := NewService(store, WithPasswordHasher(NewPasswordHasher(4)))
	mustDoctor(t, svc, "d1", domain.RoleMasterDoctor)
	mustPatient(t, svc, "p1", "d1")
	require.NoError(t, closer.Close())

	reopened, closer, err := OpenPersistentStore(ctx, opts, NewDefaultRulesEngine())
	require.NoError(t, err)
	defer closer.Close()
	doc := reopened.ExportState()
	require.Len(t, doc.Patients, 1)
	assert.Equal(t, []string{"p1"}, doc.Doctors[0].PatientsID)
}

func TestOpenPersistentStoreMemoryAndUnknown(t *testing.T) {
	ctx := context.Background()
	store, closer, err := OpenPersistentStore(ctx, StorageOptions{Driver: StorageMemory, Defaults: defaultsForTest()}, nil)
	require.NoError(t, err)
	require.NoError(t, closer.Close())
	assert.Equal(t, "http://localhost:9080", store.ExportState().CatalogURL)

	_, _, err = OpenPersistentStore(ctx, StorageOptions{Driver: "etcd"}, nil)
	assert.Error(t, err)
}
