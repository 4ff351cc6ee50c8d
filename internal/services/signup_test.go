package services_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/sbilibin2017/gw-user-signup/internal/models"
	"github.com/sbilibin2017/gw-user-signup/internal/repositories"
	"github.com/sbilibin2017/gw-user-signup/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fromEmail = "noreply@example.com"

type signupMocks struct {
	pinger    *services.MockStorePinger
	reader    *services.MockUserReader
	writer    *services.MockUserWriter
	hasher    *services.MockPasswordHasher
	notifier  *services.MockNotifier
	publisher *services.MockEventPublisher
}

func newSignupMocks(ctrl *gomock.Controller) (*signupMocks, *services.SignupService) {
	m := &signupMocks{
		pinger:    services.NewMockStorePinger(ctrl),
		reader:    services.NewMockUserReader(ctrl),
		writer:    services.NewMockUserWriter(ctrl),
		hasher:    services.NewMockPasswordHasher(ctrl),
		notifier:  services.NewMockNotifier(ctrl),
		publisher: services.NewMockEventPublisher(ctrl),
	}
	svc := services.NewSignupService(
		services.Config{FromEmail: fromEmail},
		m.pinger, m.reader, m.writer, m.hasher, m.notifier, m.publisher,
	)
	return m, svc
}

func validRequest() models.SignupRequest {
	return models.SignupRequest{
		Username:  "alice",
		Email:     "alice@example.com",
		Password:  "securepassword123",
		FirstName: "Alice",
		LastName:  "Liddell",
	}
}

func TestSignupService_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No store expectations: any store call fails the test.
	_, svc := newSignupMocks(ctrl)

	tests := []struct {
		name    string
		req     models.SignupRequest
		wantMsg string
	}{
		{
			name:    "missing username",
			req:     models.SignupRequest{Email: "alice@example.com", Password: "securepassword123"},
			wantMsg: services.MsgUsernameRequired,
		},
		{
			name:    "whitespace username",
			req:     models.SignupRequest{Username: "   ", Email: "alice@example.com", Password: "securepassword123"},
			wantMsg: services.MsgUsernameRequired,
		},
		{
			name:    "missing email",
			req:     models.SignupRequest{Username: "alice", Password: "securepassword123"},
			wantMsg: services.MsgEmailRequired,
		},
		{
			name:    "whitespace email",
			req:     models.SignupRequest{Username: "alice", Email: " \t ", Password: "securepassword123"},
			wantMsg: services.MsgEmailRequired,
		},
		{
			name:    "email without domain",
			req:     models.SignupRequest{Username: "alice", Email: "not-an-email", Password: "securepassword123"},
			wantMsg: services.MsgInvalidEmail,
		},
		{
			name:    "email without tld",
			req:     models.SignupRequest{Username: "alice", Email: "a@b", Password: "securepassword123"},
			wantMsg: services.MsgInvalidEmail,
		},
		{
			name:    "email without local part",
			req:     models.SignupRequest{Username: "alice", Email: "@b.com", Password: "securepassword123"},
			wantMsg: services.MsgInvalidEmail,
		},
		{
			name:    "missing password",
			req:     models.SignupRequest{Username: "alice", Email: "alice@example.com"},
			wantMsg: services.MsgPasswordRequired,
		},
		{
			name:    "short password",
			req:     models.SignupRequest{Username: "alice", Email: "alice@example.com", Password: "short"},
			wantMsg: services.MsgPasswordTooShort,
		},
		{
			name:    "first failing check wins",
			req:     models.SignupRequest{Email: "bad", Password: "x"},
			wantMsg: services.MsgUsernameRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := svc.Signup(context.Background(), tt.req)
			assert.Empty(t, id)

			var vErr *services.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantMsg, vErr.Message)
		})
	}
}

func TestSignupService_Signup(t *testing.T) {
	dbErr := errors.New("db error")

	tests := []struct {
		name     string
		setup    func(m *signupMocks)
		wantID   string
		wantErr  error
		checkErr func(t *testing.T, err error)
	}{
		{
			name: "successful signup",
			setup: func(m *signupMocks) {
				m.pinger.EXPECT().Ping(gomock.Any()).Return(nil)
				m.reader.EXPECT().GetByUsernameOrEmail(gomock.Any(), "alice", "alice@example.com").Return(nil, nil)
				m.hasher.EXPECT().Hash("securepassword123").Return("digest", nil)
				m.writer.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ context.Context, u *models.UserDB) (string, error) {
						assert.Equal(t, "digest", u.Password)
						assert.True(t, u.IsActive)
						assert.Equal(t, "Alice", u.FirstName)
						assert.Equal(t, "Liddell", u.LastName)
						return "id-1", nil
					})
				m.notifier.EXPECT().Send(gomock.Any(), services.WelcomeSubject, gomock.Any(), fromEmail, []string{"alice@example.com"}).Return(nil)
				m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ context.Context, e models.UserRegisteredEvent) error {
						assert.Equal(t, "id-1", e.UserID)
						assert.Equal(t, "alice", e.Username)
						return nil
					})
			},
			wantID: "id-1",
		},
		{
			name: "store unreachable",
			setup: func(m *signupMocks) {
				m.pinger.EXPECT().Ping(gomock.Any()).Return(errors.New("server selection timeout"))
				m.pinger.EXPECT().Name().Return("MongoDB").AnyTimes()
			},
			checkErr: func(t *testing.T, err error) {
				var sErr *services.StoreConnectError
				require.ErrorAs(t, err, &sErr)
				assert.Equal(t, "MongoDB connection failed: server selection timeout", sErr.Error())
			},
		},
		{
			name: "reader error",
			setup: func(m *signupMocks) {
				m.pinger.EXPECT().Ping(gomock.Any()).Return(nil)
				m.reader.EXPECT().GetByUsernameOrEmail(gomock.Any(), "alice", "alice@example.com").Return(nil, dbErr)
			},
			wantErr: dbErr,
		},
		{
			name: "user already exists",
			setup: func(m *signupMocks) {
				m.pinger.EXPECT().Ping(gomock.Any()).Return(nil)
				m.reader.EXPECT().GetByUsernameOrEmail(gomock.Any(), "alice", "alice@example.com").
					Return(&models.UserDB{UserID: "existing"}, nil)
			},
			wantErr: services.ErrUserAlreadyExists,
		},
		{
			name: "hasher error",
			setup: func(m *signupMocks) {
				m.pinger.EXPECT().Ping(gomock.Any()).Return(nil)
				m.reader.EXPECT().GetByUsernameOrEmail(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
				m.hasher.EXPECT().Hash(gomock.Any()).Return("", errors.New("hash error"))
			},
			checkErr: func(t *testing.T, err error) {
				assert.EqualError(t, err, "hash password: hash error")
			},
		},
		{
			name: "writer error",
			setup: func(m *signupMocks) {
				m.pinger.EXPECT().Ping(gomock.Any()).Return(nil)
				m.reader.EXPECT().GetByUsernameOrEmail(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
				m.hasher.EXPECT().Hash(gomock.Any()).Return("digest", nil)
				m.writer.EXPECT().Save(gomock.Any(), gomock.Any()).Return("", dbErr)
			},
			wantErr: dbErr,
		},
		{
			name: "notifier error does not fail signup",
			setup: func(m *signupMocks) {
				m.pinger.EXPECT().Ping(gomock.Any()).Return(nil)
				m.reader.EXPECT().GetByUsernameOrEmail(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
				m.hasher.EXPECT().Hash(gomock.Any()).Return("digest", nil)
				m.writer.EXPECT().Save(gomock.Any(), gomock.Any()).Return("id-2", nil)
				m.notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					Return(errors.New("connection refused"))
				m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
			},
			wantID: "id-2",
		},
		{
			name: "publisher error does not fail signup",
			setup: func(m *signupMocks) {
				m.pinger.EXPECT().Ping(gomock.Any()).Return(nil)
				m.reader.EXPECT().GetByUsernameOrEmail(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
				m.hasher.EXPECT().Hash(gomock.Any()).Return("digest", nil)
				m.writer.EXPECT().Save(gomock.Any(), gomock.Any()).Return("id-3", nil)
				m.notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
				m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
			},
			wantID: "id-3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			m, svc := newSignupMocks(ctrl)
			tt.setup(m)

			id, err := svc.Signup(context.Background(), validRequest())
			svc.Wait()

			switch {
			case tt.checkErr != nil:
				assert.Empty(t, id)
				tt.checkErr(t, err)
			case tt.wantErr != nil:
				assert.Empty(t, id)
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				assert.NoError(t, err)
				assert.Equal(t, tt.wantID, id)
			}
		})
	}
}

func TestSignupService_NilPublisher(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := repositories.NewMemoryUserRepository()
	notifier := services.NewMockNotifier(ctrl)
	notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	svc := services.NewSignupService(services.Config{}, repo, repo, repo, services.SHA256Hasher{}, notifier, nil)

	id, err := svc.Signup(context.Background(), validRequest())
	svc.Wait()
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func newMemoryService(t *testing.T) (*repositories.MemoryUserRepository, *services.SignupService) {
	t.Helper()

	ctrl := gomock.NewController(t)
	notifier := services.NewMockNotifier(ctrl)
	notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	repo := repositories.NewMemoryUserRepository()
	svc := services.NewSignupService(
		services.Config{FromEmail: fromEmail},
		repo, repo, repo, services.SHA256Hasher{}, notifier, nil,
	)
	t.Cleanup(svc.Wait)
	return repo, svc
}

func TestSignupService_StoresDigestAndLowercasedEmail(t *testing.T) {
	repo, svc := newMemoryService(t)

	req := validRequest()
	req.Email = "  Alice@Example.COM "

	id, err := svc.Signup(context.Background(), req)
	require.NoError(t, err)

	users := repo.List()
	require.Len(t, users, 1)
	stored := users[0]

	assert.Equal(t, id, stored.UserID)
	assert.Equal(t, "alice@example.com", stored.Email)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), stored.Password)
	assert.NotEqual(t, req.Password, stored.Password)
	assert.Equal(t, "dda69783f28fdf6f1c5a83e8400f2472e9300887d1dffffe12a07b92a3d0aa25", stored.Password)
	assert.Equal(t, "UTC", stored.CreatedAt.Location().String())
	assert.True(t, stored.IsActive)
}

func TestSignupService_DuplicateEmail(t *testing.T) {
	repo, svc := newMemoryService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, validRequest())
	require.NoError(t, err)

	other := validRequest()
	other.Username = "alice2"
	_, err = svc.Signup(ctx, other)
	assert.ErrorIs(t, err, services.ErrUserAlreadyExists)
	assert.Len(t, repo.List(), 1)
}

func TestSignupService_NotIdempotent(t *testing.T) {
	repo, svc := newMemoryService(t)
	ctx := context.Background()

	id, err := svc.Signup(ctx, validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	id, err = svc.Signup(ctx, validRequest())
	assert.ErrorIs(t, err, services.ErrUserAlreadyExists)
	assert.Empty(t, id)
	assert.Len(t, repo.List(), 1)
}

// Both signups run their duplicate check before either insert lands, so both
// are stored. The store has no uniqueness constraint to stop the second one.
func TestSignupService_CheckThenInsertRace(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	m, svc := newSignupMocks(ctrl)
	m.pinger.EXPECT().Ping(gomock.Any()).Return(nil).Times(2)
	m.reader.EXPECT().GetByUsernameOrEmail(gomock.Any(), "alice", "alice@example.com").Return(nil, nil).Times(2)
	m.hasher.EXPECT().Hash(gomock.Any()).Return("digest", nil).Times(2)
	gomock.InOrder(
		m.writer.EXPECT().Save(gomock.Any(), gomock.Any()).Return("id-1", nil),
		m.writer.EXPECT().Save(gomock.Any(), gomock.Any()).Return("id-2", nil),
	)
	m.notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
	m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	first, err := svc.Signup(context.Background(), validRequest())
	require.NoError(t, err)
	second, err := svc.Signup(context.Background(), validRequest())
	require.NoError(t, err)
	svc.Wait()

	assert.NotEqual(t, first, second)
}

// barrierReader holds every duplicate check until the expected number of
// callers have finished reading.
type barrierReader struct {
	services.UserReader
	checked *sync.WaitGroup
}

func (r barrierReader) GetByUsernameOrEmail(ctx context.Context, username, email string) (*models.UserDB, error) {
	user, err := r.UserReader.GetByUsernameOrEmail(ctx, username, email)
	r.checked.Done()
	r.checked.Wait()
	return user, err
}

func TestSignupService_ConcurrentSignupsBothStored(t *testing.T) {
	repo := repositories.NewMemoryUserRepository()

	var checked sync.WaitGroup
	checked.Add(2)
	reader := barrierReader{UserReader: repo, checked: &checked}

	svc := services.NewSignupService(
		services.Config{FromEmail: fromEmail},
		repo, reader, repo, services.SHA256Hasher{}, &recordingNotifier{}, nil,
	)
	t.Cleanup(svc.Wait)

	type result struct {
		id  string
		err error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			id, err := svc.Signup(context.Background(), validRequest())
			results <- result{id: id, err: err}
		}()
	}

	var ids []string
	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			require.NoError(t, r.err)
			ids = append(ids, r.id)
		case <-time.After(5 * time.Second):
			t.Fatal("signup did not finish")
		}
	}

	assert.NotEqual(t, ids[0], ids[1])
	users := repo.List()
	require.Len(t, users, 2)
	assert.Equal(t, users[0].Username, users[1].Username)
	assert.Equal(t, users[0].Email, users[1].Email)
}

// recordingNotifier blocks each Send until its context is done and records the
// context error it observed.
type recordingNotifier struct {
	mu    sync.Mutex
	block bool
	errs  []error
}

func (n *recordingNotifier) Send(ctx context.Context, _, _, _ string, _ []string) error {
	var err error
	if n.block {
		<-ctx.Done()
		err = ctx.Err()
	}
	n.mu.Lock()
	n.errs = append(n.errs, err)
	n.mu.Unlock()
	return err
}

func TestSignupService_DeliveryDoesNotBlockSignup(t *testing.T) {
	repo := repositories.NewMemoryUserRepository()
	notifier := &recordingNotifier{block: true}
	svc := services.NewSignupService(
		services.Config{FromEmail: fromEmail, NotifyTimeout: time.Second},
		repo, repo, repo, services.SHA256Hasher{}, notifier, nil,
	)

	ctx, cancel := context.WithCancel(context.Background())

	start := time.Now()
	id, err := svc.Signup(ctx, validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	// Ending the request does not cancel delivery; only the timeout does.
	cancel()
	svc.Wait()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.errs, 1)
	assert.ErrorIs(t, notifier.errs[0], context.DeadlineExceeded)
}
