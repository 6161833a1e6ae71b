package service

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-roster-api/internal/models"
)

func TestIssueCodeStoresCodeAndRecordsActivity(t *testing.T) {
	f := newRosterFixture(t)
	ctx := context.Background()
	class := f.createClass(t, "c1")
	lan := f.createStudent(t, "Lan", "lan@x.com", class.ID)

	f.issuer.queue("AB12CD")
	issuance, err := f.verifier.IssueOrResendCode(ctx, lan.ID, staffActor())
	require.NoError(t, err)
	require.Equal(t, lan.ID, issuance.StudentID)
	require.Equal(t, "lan@x.com", issuance.Email)
	require.False(t, issuance.IssuedAt.IsZero())
	require.Equal(t, []string{"lan@x.com"}, f.issuer.emails)

	stored, err := f.students.GetByID(ctx, lan.ID)
	require.NoError(t, err)
	require.Equal(t, "AB12CD", *stored.VerificationCode)
	require.NotNil(t, stored.VerificationCodeCreatedAt)
	require.Equal(t, models.StudentCodeStateIssued, stored.CodeState())

	var logs []models.ActivityLog
	require.NoError(t, f.db.Where("action = ?", "student.code_issued").Find(&logs).Error)
	require.Len(t, logs, 1)
	require.Equal(t, lan.ID, logs[0].EntityID)
}

func TestIssueCodeDeliveryFailureLeavesStudentUntouched(t *testing.T) {
	f := newRosterFixture(t)
	ctx := context.Background()
	class := f.createClass(t, "c1")
	lan := f.createStudent(t, "Lan", "lan@x.com", class.ID)

	f.issuer.queue("AB12CD")
	_, err := f.verifier.IssueOrResendCode(ctx, lan.ID, staffActor())
	require.NoError(t, err)

	f.issuer.err = errors.New("smtp down")
	_, err = f.verifier.IssueOrResendCode(ctx, lan.ID, staffActor())
	require.ErrorIs(t, err, ErrDeliveryFailed)
	require.Equal(t, "delivery_failed", AuthErrorKind(err))

	stored, err := f.students.GetByID(ctx, lan.ID)
	require.NoError(t, err)
	require.Equal(t, "AB12CD", *stored.VerificationCode)
}

func TestIssueCodeRejectsEmptyCode(t *testing.T) {
	f := newRosterFixture(t)
	class := f.createClass(t, "c1")
	lan := f.createStudent(t, "Lan", "lan@x.com", class.ID)

	f.issuer.queue("")
	_, err := f.verifier.IssueOrResendCode(context.Background(), lan.ID, staffActor())
	require.ErrorIs(t, err, ErrDeliveryFailed)

	stored, err := f.students.GetByID(context.Background(), lan.ID)
	require.NoError(t, err)
	require.False(t, stored.HasCode())
}

func TestIssueCodeUnknownOrDeletedStudent(t *testing.T) {
	f := newRosterFixture(t)
	ctx := context.Background()

	_, err := f.verifier.IssueOrResendCode(ctx, "missing", staffActor())
	require.ErrorIs(t, err, ErrStudentNotFound)

	class := f.createClass(t, "c1")
	lan := f.createStudent(t, "Lan", "lan@x.com", class.ID)
	require.NoError(t, f.students.SoftDelete(ctx, lan.ID))

	_, err = f.verifier.IssueOrResendCode(ctx, lan.ID, staffActor())
	require.ErrorIs(t, err, ErrStudentNotFound)
	require.Zero(t, f.issuer.calls)
}

func TestIssueCodeRotatesExistingIdentity(t *testing.T) {
	f := newRosterFixture(t)
	ctx := context.Background()
	class := f.createClass(t, "c1")
	lan := f.createStudent(t, "Lan", "lan@x.com", class.ID)

	identity, err := f.identities.Upsert(ctx, "lan@x.com", "OLD111")
	require.NoError(t, err)

	f.issuer.queue("NEW222")
	_, err = f.verifier.IssueOrResendCode(ctx, lan.ID, staffActor())
	require.NoError(t, err)

	_, err = f.identities.VerifyCredential(ctx, "lan@x.com", "OLD111")
	require.ErrorIs(t, err, ErrCredentialMismatch)

	verified, err := f.identities.VerifyCredential(ctx, "lan@x.com", "NEW222")
	require.NoError(t, err)
	require.Equal(t, identity.ID, verified.ID)
}

func TestResendByEmail(t *testing.T) {
	f := newRosterFixture(t)
	ctx := context.Background()
	class := f.createClass(t, "c1")
	lan := f.createStudent(t, "Lan", "lan@x.com", class.ID)

	f.issuer.queue("AB12CD")
	issuance, err := f.verifier.ResendByEmail(ctx, " Lan@X.com")
	require.NoError(t, err)
	require.Equal(t, lan.ID, issuance.StudentID)

	_, err = f.verifier.ResendByEmail(ctx, "nobody@x.com")
	require.ErrorIs(t, err, ErrEmailNotRegistered)

	_, err = f.verifier.ResendByEmail(ctx, "broken")
	require.ErrorIs(t, err, ErrInvalidFormat)
}

func TestResendCooldownUsesRedis(t *testing.T) {
	f := newRosterFixture(t)
	ctx := context.Background()
	class := f.createClass(t, "c1")
	lan := f.createStudent(t, "Lan", "lan@x.com", class.ID)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	verifier := NewVerificationService(f.students, f.identities, f.issuer, redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute, f.activity, testLogger())

	f.issuer.queue("AB12CD", "ZZ99YY")
	_, err = verifier.IssueOrResendCode(ctx, lan.ID, staffActor())
	require.NoError(t, err)
	require.True(t, mr.Exists("verification:cooldown:"+lan.ID))

	_, err = verifier.IssueOrResendCode(ctx, lan.ID, staffActor())
	require.ErrorIs(t, err, ErrResendTooSoon)
	require.Equal(t, 1, f.issuer.calls)

	mr.FastForward(2 * time.Minute)
	issuance, err := verifier.IssueOrResendCode(ctx, lan.ID, staffActor())
	require.NoError(t, err)
	require.Equal(t, "ZZ99YY", issuance.Code)
}

func TestResendCooldownClearedOnDeliveryFailure(t *testing.T) {
	f := newRosterFixture(t)
	ctx := context.Background()
	class := f.createClass(t, "c1")
	lan := f.createStudent(t, "Lan", "lan@x.com", class.ID)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	verifier := NewVerificationService(f.students, f.identities, f.issuer, redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute, f.activity, testLogger())

	f.issuer.err = errors.New("relay offline")
	_, err = verifier.IssueOrResendCode(ctx, lan.ID, staffActor())
	require.ErrorIs(t, err, ErrDeliveryFailed)
	require.False(t, mr.Exists("verification:cooldown:"+lan.ID))

	f.issuer.err = nil
	f.issuer.queue("AB12CD")
	_, err = verifier.IssueOrResendCode(ctx, lan.ID, staffActor())
	require.NoError(t, err)
}
