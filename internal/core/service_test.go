package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/almecha/GlucoseIoT/internal/infra/persistence/memory"
	"github.com/almecha/GlucoseIoT/pkg/domain"
)

func TestCreatePatientRejectsUnknownDoctor(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)

	_, err := svc.CreatePatient(ctx, payload(t, patientPayload("p1", "ghost")))
	var integrity domain.IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Contains(t, integrity.Message, "ghost")

	patients, err := svc.ListPatients(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, patients)
}

func TestCreatePatientRejectsNullDoctor(t *testing.T) {
	svc, _ := newCatalog(t)
	_, err := svc.CreatePatient(context.Background(), payload(t, patientPayload("p1", "")))
	var integrity domain.IntegrityError
	require.ErrorAs(t, err, &integrity)
}

func TestDuplicateServiceConflicts(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)

	created, err := svc.CreateService(ctx, payload(t, servicePayload("adaptor")))
	require.NoError(t, err)
	assert.NotEmpty(t, created.Timestamp)

	_, err = svc.CreateService(ctx, payload(t, servicePayload("adaptor")))
	var conflict domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Service with ID 'adaptor' already exists", err.Error())

	services, err := svc.ListServices(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, services, 1)
}

func TestDeleteDoctorMovesPatientsToMasterDoctor(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	mustDoctor(t, svc, "d1", domain.RoleMasterDoctor)
	mustDoctor(t, svc, "d2", domain.RoleDoctor)
	mustPatient(t, svc, "p1", "d2")

	require.NoError(t, svc.DeleteDoctor(ctx, "d2"))

	p1, err := svc.GetPatient(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, p1.DoctorID)
	assert.Equal(t, "d1", *p1.DoctorID)

	d1, err := svc.GetDoctor(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, d1.PatientsID)

	_, err = svc.GetDoctor(ctx, "d2")
	var notFound domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
	requireLinksConsistent(t, svc)
}

func TestDeleteDoctorWithoutFallbackUnassignsPatients(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	mustDoctor(t, svc, "m1", domain.RoleMasterDoctor)
	mustPatient(t, svc, "p1", "m1")
	mustPatient(t, svc, "p2", "m1")

	require.NoError(t, svc.DeleteDoctor(ctx, "m1"))

	patients, err := svc.ListPatients(ctx, nil)
	require.NoError(t, err)
	require.Len(t, patients, 2)
	for _, p := range patients {
		assert.Nil(t, p.DoctorID, p.UserID)
	}
	requireLinksConsistent(t, svc)
}

func TestDeleteDoctorPicksFirstOtherMaster(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	mustDoctor(t, svc, "m1", domain.RoleMasterDoctor)
	mustDoctor(t, svc, "d1", domain.RoleDoctor)
	mustDoctor(t, svc, "m2", domain.RoleMasterDoctor)
	mustPatient(t, svc, "p1", "m1")
	mustPatient(t, svc, "p2", "m2")

	require.NoError(t, svc.DeleteDoctor(ctx, "m1"))

	m2, err := svc.GetDoctor(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1"}, m2.PatientsID)
	requireLinksConsistent(t, svc)
}

func TestReassignToUnknownDoctorLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	mustDoctor(t, svc, "d1", domain.RoleDoctor)
	mustPatient(t, svc, "p1", "d1")

	_, err := svc.ReplacePatient(ctx, "p1", payload(t, `{"doctorID":"nobody"}`))
	var integrity domain.IntegrityError
	require.ErrorAs(t, err, &integrity)

	p1, err := svc.GetPatient(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "d1", *p1.DoctorID)
	d1, err := svc.GetDoctor(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, d1.PatientsID)
}

func TestReassignPatientMovesBetweenDoctors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	mustDoctor(t, svc, "d1", domain.RoleDoctor)
	mustDoctor(t, svc, "d2", domain.RoleDoctor)
	mustPatient(t, svc, "p1", "d1")

	updated, err := svc.ReplacePatient(ctx, "p1", payload(t, `{"doctorID":"d2","threshold_parameters":{"max":200}}`))
	require.NoError(t, err)
	assert.Equal(t, "d2", *updated.DoctorID)
	assert.Equal(t, map[string]any{"name": "p1"}, updated.UserInformation, "unspecified fields keep their stored value")

	d1, _ := svc.GetDoctor(ctx, "d1")
	d2, _ := svc.GetDoctor(ctx, "d2")
	assert.Empty(t, d1.PatientsID)
	assert.Equal(t, []string{"p1"}, d2.PatientsID)
	requireLinksConsistent(t, svc)
}

func TestReassignToNullRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	mustDoctor(t, svc, "d1", domain.RoleDoctor)
	mustPatient(t, svc, "p1", "d1")

	_, err := svc.ReplacePatient(ctx, "p1", payload(t, `{"doctorID":null}`))
	var integrity domain.IntegrityError
	require.ErrorAs(t, err, &integrity)
}

func TestConcurrentDeviceCreatesAreNotLost(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	bodies := make([]any, n)
	for i := range bodies {
		bodies[i] = payload(t, devicePayload(fmt.Sprintf("dev-%02d", i)))
	}
	for _, body := range bodies {
		wg.Add(1)
		go func(body any) {
			defer wg.Done()
			_, err := svc.CreateDevice(ctx, body)
			errs <- err
		}(body)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	devices, err := svc.ListDevices(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, devices, n)
}

func TestReplaceDoctorRoleIsImmutable(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	mustDoctor(t, svc, "d1", domain.RoleDoctor)

	_, err := svc.ReplaceDoctor(ctx, "d1", payload(t, `{"role":"MasterDoctor"}`))
	var verr domain.ValidationError
	require.ErrorAs(t, err, &verr)

	d1, err := svc.GetDoctor(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleDoctor, d1.Role)
}

func TestReplaceDoctorPatientsListIsManaged(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	mustDoctor(t, svc, "d1", domain.RoleDoctor)
	mustPatient(t, svc, "p1", "d1")

	_, err := svc.ReplaceDoctor(ctx, "d1", payload(t, `{"patients_id":[]}`))
	var integrity domain.IntegrityError
	require.ErrorAs(t, err, &integrity)

	updated, err := svc.ReplaceDoctor(ctx, "d1", payload(t, `{"patients_id":["p1"],"userName":"Dr Who","telegram_chat_id":42}`))
	require.NoError(t, err)
	assert.Equal(t, "Dr Who", updated.UserName)
	assert.Equal(t, int64(42), *updated.TelegramChatID)
	assert.Empty(t, updated.PasswordHash)
}

func TestCreateDoctorRejectsPrefilledPatients(t *testing.T) {
	svc, _ := newCatalog(t)
	_, err := svc.CreateDoctor(context.Background(), payload(t,
		`{"userID":"d1","userName":"A","role":"Doctor","password_hash":"$2b$12$abc","patients_id":["p1"]}`))
	var integrity domain.IntegrityError
	require.ErrorAs(t, err, &integrity)
}

func TestCreateDoctorRequiresCredential(t *testing.T) {
	svc, _ := newCatalog(t)
	_, err := svc.CreateDoctor(context.Background(), payload(t, `{"userID":"d1","userName":"A","role":"Doctor"}`))
	var verr domain.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = svc.CreateDoctor(context.Background(), payload(t, `{"userID":"d1","userName":"A","role":"Doctor","password":"x","password_hash":"y"}`))
	require.ErrorAs(t, err, &verr)
}

func TestDoctorReadsNeverExposeHash(t *testing.T) {
	ctx := context.Background()
	svc, store := newCatalog(t)
	created := mustDoctor(t, svc, "d1", domain.RoleDoctor)
	assert.Empty(t, created.PasswordHash)

	stored := store.ExportState().Doctors[0]
	assert.NotEmpty(t, stored.PasswordHash, "hash is persisted")

	listed, err := svc.ListDoctors(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, listed[0].PasswordHash)
	user, err := svc.GetUser(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, user.(Doctor).PasswordHash)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	mustDoctor(t, svc, "d1", domain.RoleDoctor)

	d, err := svc.Login(ctx, "d1", "secret-d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", d.UserID)
	assert.Empty(t, d.PasswordHash)

	_, err = svc.Login(ctx, "d1", "wrong")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Login(ctx, "ghost", "secret")
	var notFound domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	_, err = svc.Login(ctx, "", "")
	var verr domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestLoginAcceptsClientSideHash(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	hash, err := svc.hasher.Hash("bot-password")
	require.NoError(t, err)
	_, err = svc.CreateDoctor(ctx, map[string]any{
		"userID": "d9", "userName": "Bot", "role": "MasterDoctor", "password_hash": hash,
	})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "d9", "bot-password")
	require.NoError(t, err)
}

func TestReplaceDoctorPasswordRehashes(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	mustDoctor(t, svc, "d1", domain.RoleDoctor)

	_, err := svc.ReplaceDoctor(ctx, "d1", payload(t, `{"password":"rotated"}`))
	require.NoError(t, err)
	_, err = svc.Login(ctx, "d1", "rotated")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "d1", "secret-d1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestReplaceMergesAndRefreshesTimestamps(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	_, err := svc.CreateService(ctx, payload(t, servicePayload("bot")))
	require.NoError(t, err)

	updated, err := svc.ReplaceService(ctx, "bot", payload(t, `{"REST_endpoint":"http://bot:9000","timestamp":"1999-01-01 00:00:00"}`))
	require.NoError(t, err)
	assert.Equal(t, "http://bot:9000", updated.RESTEndpoint)
	assert.Equal(t, []string{"glucose/+"}, updated.MQTTSub)
	assert.NotEqual(t, "1999-01-01 00:00:00", updated.Timestamp)
}

func TestReplaceRejectsKeyChangeAndMissing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	_, err := svc.CreateDevice(ctx, payload(t, devicePayload("dev1")))
	require.NoError(t, err)

	_, err = svc.ReplaceDevice(ctx, "dev1", payload(t, `{"deviceID":"dev2"}`))
	var verr domain.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = svc.ReplaceDevice(ctx, "nope", payload(t, `{"deviceName":"x"}`))
	var notFound domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Device not found", err.Error())

	_, err = svc.ReplaceDevice(ctx, "dev1", payload(t, `{"measureType":"glucose"}`))
	require.ErrorAs(t, err, &verr)
}

func TestDeletePatientDetachesFromDoctor(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	mustDoctor(t, svc, "d1", domain.RoleDoctor)
	mustPatient(t, svc, "p1", "d1")
	mustPatient(t, svc, "p2", "d1")

	require.NoError(t, svc.DeletePatient(ctx, "p1"))
	d1, err := svc.GetDoctor(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, d1.PatientsID)

	err = svc.DeletePatient(ctx, "p1")
	var notFound domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
	requireLinksConsistent(t, svc)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	mustDoctor(t, svc, "m1", domain.RoleMasterDoctor)
	mustDoctor(t, svc, "d1", domain.RoleDoctor)
	mustPatient(t, svc, "p1", "d1")
	mustPatient(t, svc, "p2", "m1")
	_, err := svc.ReplacePatient(ctx, "p2", payload(t, `{"telegram_chat_id":555}`))
	require.NoError(t, err)

	masters, err := svc.ListDoctors(ctx, Query{"role": "masterdoctor"})
	require.NoError(t, err)
	require.Len(t, masters, 1)
	assert.Equal(t, "m1", masters[0].UserID)

	byDoctor, err := svc.ListPatients(ctx, Query{"doctorID": "d1"})
	require.NoError(t, err)
	require.Len(t, byDoctor, 1)
	assert.Equal(t, "p1", byDoctor[0].UserID)

	byChat, err := svc.ListPatients(ctx, Query{"telegram_chat_id": "555"})
	require.NoError(t, err)
	require.Len(t, byChat, 1)
	assert.Equal(t, "p2", byChat[0].UserID)

	none, err := svc.ListPatients(ctx, Query{"telegram_chat_id": "abc"})
	require.NoError(t, err)
	assert.Empty(t, none)

	users, err := svc.ListUsers(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, users, 4)
	patientUsers, err := svc.ListUsers(ctx, Query{"role": "patient"})
	require.NoError(t, err)
	assert.Len(t, patientUsers, 2)
}

func TestKeyFilterEqualsPathLookup(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	_, err := svc.CreateService(ctx, payload(t, servicePayload("s1")))
	require.NoError(t, err)

	byQuery, err := svc.List(ctx, EntityService, Query{"serviceID": "s1"})
	require.NoError(t, err)
	byPath, err := svc.Get(ctx, EntityService, "s1")
	require.NoError(t, err)
	assert.Equal(t, byPath, byQuery)

	again, err := svc.Get(ctx, EntityService, "s1")
	require.NoError(t, err)
	assert.Equal(t, byPath, again)

	_, err = svc.List(ctx, EntityService, Query{"serviceID": "missing"})
	var notFound domain.NotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = svc.Create(ctx, EntityUser, map[string]any{})
	assert.True(t, errors.Is(err, ErrUnsupportedEntity))
}

func TestBrokerAndConfig(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)

	_, err := svc.ReplaceBroker(ctx, payload(t, `[1]`))
	var verr domain.ValidationError
	require.ErrorAs(t, err, &verr)

	broker, err := svc.ReplaceBroker(ctx, payload(t, `{"IP":"mqtt.eclipseprojects.io","port":1883}`))
	require.NoError(t, err)
	assert.Equal(t, "mqtt.eclipseprojects.io", broker["IP"])

	got, err := svc.Broker(ctx)
	require.NoError(t, err)
	assert.Equal(t, broker, got)

	cfg, err := svc.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mqtt.eclipseprojects.io", cfg.Broker["IP"])
	assert.NotEmpty(t, cfg.LastUpdate)
}

type failingPersister struct{ err error }

func (f failingPersister) Load(context.Context) ([]byte, error)      { return nil, nil }
func (f failingPersister) Save(context.Context, domain.Document) error { return f.err }

func TestPersistenceFailureKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	seed, store := newCatalog(t)
	mustDoctor(t, seed, "d1", domain.RoleDoctor)
	mustPatient(t, seed, "p1", "d1")
	before := store.ExportState()

	failingStore := memory.NewStore(NewDefaultRulesEngine(), memory.WithPersister(failingPersister{err: errors.New("disk full")}))
	failingStore.ImportState(before)
	svc := NewService(failingStore)

	err := svc.DeleteDoctor(ctx, "d1")
	var perr domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, before, failingStore.ExportState())
}

func TestRepeatedGetReturnsIdenticalContent(t *testing.T) {
	var (
		mu  sync.Mutex
		now = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	)
	tick := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}
	store := memory.NewStore(NewDefaultRulesEngine(), memory.WithClock(tick))
	svc := NewService(store, WithPasswordHasher(NewPasswordHasher(bcrypt.MinCost)))
	ctx := context.Background()
	_, err := svc.CreateService(ctx, payload(t, servicePayload("s1")))
	require.NoError(t, err)
	mustDoctor(t, svc, "d1", domain.RoleMasterDoctor)
	mustPatient(t, svc, "p1", "d1")
	before := store.ExportState()

	reads := []struct {
		entity EntityType
		id     string
	}{
		{EntityService, "s1"},
		{EntityDoctor, "d1"},
		{EntityPatient, "p1"},
	}
	for _, r := range reads {
		first, err := svc.Get(ctx, r.entity, r.id)
		require.NoError(t, err)
		second, err := svc.Get(ctx, r.entity, r.id)
		require.NoError(t, err)
		a, err := json.Marshal(first)
		require.NoError(t, err)
		b, err := json.Marshal(second)
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), "%s %s", r.entity, r.id)
	}

	after := store.ExportState()
	assert.Equal(t, before.LastUpdate, after.LastUpdate)
	assert.Equal(t, before.Services[0].Timestamp, after.Services[0].Timestamp)
	assert.Equal(t, before.Doctors[0].LastUpdate, after.Doctors[0].LastUpdate)
	assert.Equal(t, before.Patients[0].LastUpdate, after.Patients[0].LastUpdate)
}
