package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-roster-api/internal/dto"
	"github.com/noah-isme/gema-roster-api/internal/models"
	"github.com/noah-isme/gema-roster-api/internal/repository"
)

func TestStudentServiceCreateSanitizesAndRejectsDuplicates(t *testing.T) {
	f := newRosterFixture(t)
	ctx := context.Background()
	class := f.createClass(t, "10A")

	created, err := f.roster.Create(ctx, dto.StudentCreateRequest{
		Name:    "<b>Lan</b> Nguyen",
		Email:   "Lan@X.com",
		ClassID: class.ID,
		Gender:  "female",
	}, staffActor())
	require.NoError(t, err)
	require.Equal(t, "Lan Nguyen", created.Name)
	require.Equal(t, "lan@x.com", created.Email)
	require.Equal(t, "10A", created.ClassName)
	require.Equal(t, models.StudentCodeStateNone, created.CodeState)

	_, err = f.roster.Create(ctx, dto.StudentCreateRequest{Name: "Lan 2", Email: "lan@x.com", ClassID: class.ID}, staffActor())
	require.ErrorIs(t, err, ErrEmailTaken)

	_, err = f.roster.Create(ctx, dto.StudentCreateRequest{Name: "Ghost", Email: "ghost@x.com", ClassID: "missing"}, staffActor())
	require.ErrorIs(t, err, ErrClassNotFound)

	_, err = f.roster.Create(ctx, dto.StudentCreateRequest{Name: "Bad", Email: "not-email", ClassID: class.ID}, staffActor())
	require.Error(t, err)
}

func TestStudentServiceCreateIssuesInitialCode(t *testing.T) {
	f := newRosterFixture(t)
	ctx := context.Background()
	class := f.createClass(t, "10A")

	roster := NewStudentService(f.students, f.classes, f.records, f.users, repository.NewTransactor(f.db), f.verifier, f.activity,
		validator.New(validator.WithRequiredStructEnabled()), testLogger())

	f.issuer.queue("AB12CD")
	created, err := roster.Create(ctx, dto.StudentCreateRequest{Name: "Lan", Email: "lan@x.com", ClassID: class.ID}, staffActor())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		student, err := f.students.GetByID(ctx, created.ID)
		return err == nil && student.HasCode()
	}, 2*time.Second, 20*time.Millisecond)

	result, err := login(f, "lan@x.com", "AB12CD")
	require.NoError(t, err)
	require.Equal(t, created.ID, result.StudentID)
}

func TestStudentServiceListAndUpdate(t *testing.T) {
	f := newRosterFixture(t)
	ctx := context.Background()
	classA := f.createClass(t, "10A")
	classB := f.createClass(t, "10B")

	f.createStudent(t, "An", "an@x.com", classA.ID)
	binh := f.createStudent(t, "Binh", "binh@x.com", classA.ID)
	f.createStudent(t, "Chi", "chi@x.com", classB.ID)

	result, err := f.roster.List(ctx, dto.StudentListRequest{ClassID: classA.ID, Sort: "name"})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	require.Equal(t, "An", result.Items[0].Name)
	require.Equal(t, int64(2), result.Pagination.TotalItems)

	result, err = f.roster.List(ctx, dto.StudentListRequest{Search: "chi"})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	name := "Binh Tran"
	phone := " 0901 "
	updated, err := f.roster.Update(ctx, binh.ID, dto.StudentUpdateRequest{Name: &name, Phone: &phone}, staffActor())
	require.NoError(t, err)
	require.Equal(t, "Binh Tran", updated.Name)
	require.Equal(t, "0901", updated.Phone)

	_, err = f.roster.Update(ctx, "missing", dto.StudentUpdateRequest{Name: &name}, staffActor())
	require.ErrorIs(t, err, ErrStudentNotFound)
}

func TestStudentServiceSoftDeleteKeepsRows(t *testing.T) {
	f := newRosterFixture(t)
	ctx := context.Background()
	class := f.createClass(t, "10A")
	lan := f.createStudent(t, "Lan", "lan@x.com", class.ID)

	require.NoError(t, f.roster.Delete(ctx, lan.ID, false, staffActor()))

	_, err := f.roster.Get(ctx, lan.ID)
	require.ErrorIs(t, err, ErrStudentNotFound)

	stored, err := f.students.GetByID(ctx, lan.ID)
	require.NoError(t, err)
	require.True(t, stored.IsDeleted)
	require.NotNil(t, stored.DeletedAt)

	require.ErrorIs(t, f.roster.Delete(ctx, lan.ID, false, staffActor()), ErrStudentNotFound)

	// The email is free again for a new active record.
	_, err = f.roster.Create(ctx, dto.StudentCreateRequest{Name: "Lan", Email: "lan@x.com", ClassID: class.ID}, staffActor())
	require.NoError(t, err)
}

func TestStudentServiceHardDeleteCascades(t *testing.T) {
	f := newRosterFixture(t)
	ctx := context.Background()
	class := f.createClass(t, "10A")
	lan := f.createStudent(t, "Lan", "lan@x.com", class.ID)

	f.issuer.queue("AB12CD")
	_, err := f.verifier.IssueOrResendCode(ctx, lan.ID, staffActor())
	require.NoError(t, err)
	result, err := login(f, "lan@x.com", "AB12CD")
	require.NoError(t, err)

	records := NewRecordService(f.records, f.students, f.activity, validator.New(), testLogger())
	_, err = records.Add(ctx, lan.ID, "notes", dto.RecordCreateRequest{Content: "hello"}, staffActor())
	require.NoError(t, err)

	require.NoError(t, f.roster.Delete(ctx, lan.ID, true, staffActor()))

	_, err = f.students.GetByID(ctx, lan.ID)
	require.Error(t, err)
	require.Equal(t, int64(0), countRows(t, f, &models.StudentNote{}, "student_id = ?", lan.ID))
	require.Equal(t, int64(0), countRows(t, f, &models.UserProfile{}, "id = ?", result.IdentityID))
	require.Equal(t, int64(1), countRows(t, f, &models.Identity{}, "id = ?", result.IdentityID))

	require.ErrorIs(t, f.roster.Delete(ctx, lan.ID, true, staffActor()), ErrStudentNotFound)
}

func TestClassServiceDeleteSoftDeletesStudents(t *testing.T) {
	f := newRosterFixture(t)
	ctx := context.Background()

	class, err := f.classSvc.Create(ctx, dto.ClassCreateRequest{Name: " 10A ", Grade: "10"}, staffActor())
	require.NoError(t, err)
	require.Equal(t, "10A", class.Name)

	f.createStudent(t, "An", "an@x.com", class.ID)
	f.createStudent(t, "Binh", "binh@x.com", class.ID)
	other := f.createClass(t, "10B")
	chi := f.createStudent(t, "Chi", "chi@x.com", other.ID)

	deleted, err := f.classSvc.Delete(ctx, class.ID, staffActor())
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted.StudentsRemoved)

	classes, err := f.classSvc.List(ctx)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	require.Equal(t, other.ID, classes[0].ID)

	active, err := f.students.ListActiveByEmail(ctx, "an@x.com")
	require.NoError(t, err)
	require.Empty(t, active)

	remaining, err := f.roster.Get(ctx, chi.ID)
	require.NoError(t, err)
	require.Equal(t, "Chi", remaining.Name)

	_, err = f.classSvc.Delete(ctx, class.ID, staffActor())
	require.ErrorIs(t, err, ErrClassNotFound)
}

func TestClassServiceCreateValidates(t *testing.T) {
	f := newRosterFixture(t)

	_, err := f.classSvc.Create(context.Background(), dto.ClassCreateRequest{Name: ""}, staffActor())
	require.Error(t, err)

	_, err = f.classSvc.Create(context.Background(), dto.ClassCreateRequest{Name: "<script></script>"}, staffActor())
	require.ErrorIs(t, err, ErrInvalidFormat)
}

func TestStudentServiceCreateRejectsStaffEmail(t *testing.T) {
	f := newRosterFixture(t)
	ctx := context.Background()
	class := f.createClass(t, "10A")

	_, err := f.auth.Register(ctx, dto.RegisterRequest{Name: "Boss", Email: "boss@x.com", Password: "bosspass1", Role: "admin"})
	require.NoError(t, err)

	_, err = f.roster.Create(ctx, dto.StudentCreateRequest{Name: "Boss", Email: "BOSS@x.com", ClassID: class.ID}, staffActor())
	require.ErrorIs(t, err, ErrEmailTaken)

	active, err := f.students.ListActiveByEmail(ctx, "boss@x.com")
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestClassServiceUpdateRenamesStudents(t *testing.T) {
	f := newRosterFixture(t)
	ctx := context.Background()

	class, err := f.classSvc.Create(ctx, dto.ClassCreateRequest{Name: "10A", Grade: "10"}, staffActor())
	require.NoError(t, err)
	lan := f.createStudent(t, "Lan", "lan@x.com", class.ID)

	name := " <b>10B</b> "
	teacher := "Ms. Hoa"
	updated, err := f.classSvc.Update(ctx, class.ID, dto.ClassUpdateRequest{Name: &name, TeacherName: &teacher}, staffActor())
	require.NoError(t, err)
	require.Equal(t, "10B", updated.Name)
	require.Equal(t, "10", updated.Grade)
	require.Equal(t, "Ms. Hoa", updated.TeacherName)

	student, err := f.roster.Get(ctx, lan.ID)
	require.NoError(t, err)
	require.Equal(t, "10B", student.ClassName)

	unchanged, err := f.classSvc.Update(ctx, class.ID, dto.ClassUpdateRequest{}, staffActor())
	require.NoError(t, err)
	require.Equal(t, "10B", unchanged.Name)

	empty := "<script></script>"
	_, err = f.classSvc.Update(ctx, class.ID, dto.ClassUpdateRequest{Name: &empty}, staffActor())
	require.ErrorIs(t, err, ErrInvalidFormat)

	_, err = f.classSvc.Update(ctx, "missing", dto.ClassUpdateRequest{Name: &name}, staffActor())
	require.ErrorIs(t, err, ErrClassNotFound)

	_, err = f.classSvc.Update(ctx, "missing", dto.ClassUpdateRequest{}, staffActor())
	require.ErrorIs(t, err, ErrClassNotFound)
}
