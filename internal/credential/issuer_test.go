package credential

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymcore/access-service/internal/domain"
	"github.com/gymcore/access-service/internal/repository"
)

type stubMembers struct {
	reports map[string]*domain.MembershipReport
	err     error
	calls   int
}

func (s *stubMembers) GetStatus(_ context.Context, subjectID string) (*domain.MembershipReport, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	report, ok := s.reports[subjectID]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	return report, nil
}

func newStubMembers(statuses map[string]domain.MembershipStatus) *stubMembers {
	reports := make(map[string]*domain.MembershipReport, len(statuses))
	for id, status := range statuses {
		reports[id] = &domain.MembershipReport{
			Member:     domain.Member{ID: id, Name: "Member " + id, Email: id + "@gym.test"},
			Membership: domain.Membership{MemberID: id, Status: status, ExpiresAt: time.Now().Add(240 * time.Hour)},
		}
	}
	return &stubMembers{reports: reports}
}

func TestIssuerIssuesWindowedCredential(t *testing.T) {
	codec := newTestCodec(t)
	now := time.Date(2025, time.June, 1, 18, 30, 0, 123_456_789, time.UTC)
	members := newStubMembers(map[string]domain.MembershipStatus{"S1": domain.MembershipActive})

	issuer := NewIssuer(codec, members, 30*time.Second, WithClock(func() time.Time { return now }))

	issued, err := issuer.Issue(context.Background(), "S1")
	require.NoError(t, err)

	assert.Equal(t, "S1", issued.SubjectID)
	assert.True(t, issued.IssuedAt.Equal(now.Truncate(time.Millisecond)))
	assert.Equal(t, 30*time.Second, issued.ExpiresAt.Sub(issued.IssuedAt))
	assert.Equal(t, 1, members.calls)

	cred, err := codec.Decode(issued.Encoded)
	require.NoError(t, err)
	assert.Equal(t, "S1", cred.SubjectID)
	assert.Equal(t, issued.Nonce, cred.Nonce)
	assert.True(t, issued.IssuedAt.Equal(cred.IssuedAt))
	assert.True(t, issued.ExpiresAt.Equal(cred.ExpiresAt(issuer.Window())))
}

func TestIssuerDefaultsWindow(t *testing.T) {
	issuer := NewIssuer(newTestCodec(t), nil, 0)
	assert.Equal(t, domain.DefaultValidityWindow, issuer.Window())
}

func TestIssuerRejectsUnknownSubject(t *testing.T) {
	issuer := NewIssuer(newTestCodec(t), newStubMembers(nil), 30*time.Second)

	_, err := issuer.Issue(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrSubjectNotFound)

	_, err = issuer.Issue(context.Background(), "")
	assert.ErrorIs(t, err, ErrSubjectNotFound)
}

func TestIssuerStillIssuesForSuspendedMember(t *testing.T) {
	members := newStubMembers(map[string]domain.MembershipStatus{"S2": domain.MembershipSuspended})
	issuer := NewIssuer(newTestCodec(t), members, 30*time.Second)

	issued, err := issuer.Issue(context.Background(), "S2")
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Encoded)
}

func TestIssuerPropagatesLookupFailure(t *testing.T) {
	members := &stubMembers{err: errors.New("connection refused")}
	issuer := NewIssuer(newTestCodec(t), members, 30*time.Second)

	_, err := issuer.Issue(context.Background(), "S1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSubjectNotFound)
}

func TestIssuerNoncesAreUnique(t *testing.T) {
	members := newStubMembers(map[string]domain.MembershipStatus{"S1": domain.MembershipActive})
	issuer := NewIssuer(newTestCodec(t), members, 30*time.Second)

	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		issued, err := issuer.Issue(context.Background(), "S1")
		require.NoError(t, err)
		_, dup := seen[issued.Nonce]
		require.False(t, dup, "nonce reused: %s", issued.Nonce)
		seen[issued.Nonce] = struct{}{}
	}
}

func TestNewNonce(t *testing.T) {
	nonce, err := NewNonce(bytes.NewReader(bytes.Repeat([]byte{0xff}, NonceBytes)))
	require.NoError(t, err)
	assert.Equal(t, "_____________________w", nonce)

	_, err = NewNonce(iotest.ErrReader(errors.New("entropy exhausted")))
	assert.Error(t, err)

	_, err = NewNonce(bytes.NewReader([]byte{1, 2, 3}))
	assert.Error(t, err)
}

type hangingMembers struct {
	release chan struct{}
}

func (h hangingMembers) GetStatus(context.Context, string) (*domain.MembershipReport, error) {
	<-h.release
	return nil, domain.ErrMemberNotFound
}

func TestIssuerLookupIsBoundedByOracleTimeout(t *testing.T) {
	members := hangingMembers{release: make(chan struct{})}
	defer close(members.release)

	issuer := NewIssuer(newTestCodec(t), repository.NewTimeoutOracle(members, 20*time.Millisecond), 30*time.Second)

	start := time.Now()
	_, err := issuer.Issue(context.Background(), "member-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrSubjectNotFound)
	assert.Less(t, time.Since(start), time.Second)
}
