package access

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medihub/access-api/internal/model"
	apperrors "github.com/medihub/access-api/pkg/errors"
)

func TestVerifier_CaseInsensitiveRedeem(t *testing.T) {
	f := newFixture(t, WithGenerator(sequence("K7M2P")))
	ctx := context.Background()

	result, err := f.ledger.RequestAccess(ctx, f.doctor.ID, "jane@example.com")
	require.NoError(t, err)
	require.Equal(t, "K7M2P", result.Grant.Passkey)

	f.clock.Advance(5 * time.Minute)
	bundle, err := f.verifier.Verify(ctx, f.doctor.ID, "jane@example.com", " k7m2p ")
	require.NoError(t, err)
	assert.Equal(t, f.patient.ID, bundle.Patient.ID)
	assert.NotNil(t, bundle.MedicalRecords)

	grant := f.store.grant(result.Grant.ID)
	assert.Equal(t, model.GrantStatusConsumed, grant.Status)
	require.NotNil(t, grant.ConsumedAt)
	assert.Equal(t, f.clock.Now(), *grant.ConsumedAt)
	assert.Equal(t, []string{model.EventAccessRequested, model.EventAccessVerified}, f.store.eventTypes())

	_, err = f.verifier.Verify(ctx, f.doctor.ID, "jane@example.com", "K7M2P")
	assert.ErrorIs(t, err, apperrors.ExpiredError)
}

func TestVerifier_InvalidFormatSkipsStorage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.RequestAccess(ctx, f.doctor.ID, "jane@example.com")
	require.NoError(t, err)
	before := f.store.storageLookups()

	for _, input := range []string{"K7M2", "K7M2PQ", "", "   ", "AB-C1"} {
		_, err := f.verifier.Verify(ctx, f.doctor.ID, "jane@example.com", input)
		assert.ErrorIs(t, err, apperrors.InvalidFormatError, "input %q", input)
	}
	assert.Equal(t, before, f.store.storageLookups())
}

func TestVerifier_InvalidCode(t *testing.T) {
	f := newFixture(t, WithGenerator(sequence("K7M2P")))
	ctx := context.Background()

	_, err := f.ledger.RequestAccess(ctx, f.doctor.ID, "jane@example.com")
	require.NoError(t, err)

	_, err = f.verifier.Verify(ctx, f.doctor.ID, "jane@example.com", "ZZZZZ")
	assert.ErrorIs(t, err, apperrors.InvalidCodeError)

	// A wrong guess does not burn the grant.
	_, err = f.verifier.Verify(ctx, f.doctor.ID, "jane@example.com", "K7M2P")
	assert.NoError(t, err)
}

func TestVerifier_UnknownPatient(t *testing.T) {
	f := newFixture(t)

	_, err := f.verifier.Verify(context.Background(), f.doctor.ID, "nobody@example.com", "K7M2P")
	assert.ErrorIs(t, err, apperrors.NotFoundError)
}

func TestVerifier_ExpiryBoundary(t *testing.T) {
	f := newFixture(t, WithGenerator(sequence("K7M2P")))
	ctx := context.Background()

	_, err := f.ledger.RequestAccess(ctx, f.doctor.ID, "jane@example.com")
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	_, err = f.verifier.Verify(ctx, f.doctor.ID, "jane@example.com", "K7M2P")
	assert.NoError(t, err)
}

func TestVerifier_ExpiredAfterThirtyOneMinutes(t *testing.T) {
	f := newFixture(t, WithGenerator(sequence("K7M2P")))
	ctx := context.Background()

	result, err := f.ledger.RequestAccess(ctx, f.doctor.ID, "jane@example.com")
	require.NoError(t, err)

	f.clock.Advance(31 * time.Minute)
	_, err = f.verifier.Verify(ctx, f.doctor.ID, "jane@example.com", "K7M2P")
	assert.ErrorIs(t, err, apperrors.ExpiredError)
	assert.Equal(t, model.GrantStatusExpired, f.store.grant(result.Grant.ID).Status)

	_, err = f.verifier.Verify(ctx, f.doctor.ID, "jane@example.com", "K7M2P")
	assert.ErrorIs(t, err, apperrors.ExpiredError)
}

func TestVerifier_ConcurrentRedeemSucceedsOnce(t *testing.T) {
	f := newFixture(t, WithGenerator(sequence("K7M2P")))
	ctx := context.Background()

	_, err := f.ledger.RequestAccess(ctx, f.doctor.ID, "jane@example.com")
	require.NoError(t, err)

	const workers = 32
	var (
		wg        sync.WaitGroup
		successes int32
		expired   int32
		start     = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.verifier.Verify(ctx, f.doctor.ID, "jane@example.com", "k7m2p")
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case errors.Is(err, apperrors.ExpiredError):
				atomic.AddInt32(&expired, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	assert.Equal(t, int32(workers-1), expired)
}

func TestVerifier_DeletedNotificationDoesNotAffectGrant(t *testing.T) {
	f := newFixture(t, WithGenerator(sequence("K7M2P")))
	ctx := context.Background()

	_, err := f.ledger.RequestAccess(ctx, f.doctor.ID, "jane@example.com")
	require.NoError(t, err)

	for _, n := range f.store.notificationList() {
		require.NoError(t, f.store.Notifications().Delete(ctx, n.ID))
	}

	_, err = f.verifier.Verify(ctx, f.doctor.ID, "jane@example.com", "K7M2P")
	assert.NoError(t, err)
}

func TestVerifier_RecordsFailureKeepsGrantConsumed(t *testing.T) {
	f := newFixture(t, WithGenerator(sequence("K7M2P")))
	ctx := context.Background()
	f.records.err = errors.New("records unavailable")

	result, err := f.ledger.RequestAccess(ctx, f.doctor.ID, "jane@example.com")
	require.NoError(t, err)

	_, err = f.verifier.Verify(ctx, f.doctor.ID, "jane@example.com", "K7M2P")
	assert.ErrorIs(t, err, apperrors.InternalError)
	assert.Equal(t, model.GrantStatusConsumed, f.store.grant(result.Grant.ID).Status)

	f.records.err = nil
	_, err = f.verifier.Verify(ctx, f.doctor.ID, "jane@example.com", "K7M2P")
	assert.ErrorIs(t, err, apperrors.ExpiredError)
}

func TestVerifier_EventFailureStillGrants(t *testing.T) {
	f := newFixture(t, WithGenerator(sequence("K7M2P")))
	ctx := context.Background()
	f.store.failOutboxVerified = errors.New("outbox down")

	_, err := f.ledger.RequestAccess(ctx, f.doctor.ID, "jane@example.com")
	require.NoError(t, err)

	bundle, err := f.verifier.Verify(ctx, f.doctor.ID, "jane@example.com", "K7M2P")
	require.NoError(t, err)
	assert.NotNil(t, bundle)
}
