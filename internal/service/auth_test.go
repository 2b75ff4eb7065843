package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/grievance-portal/internal/model"
	"github.com/iliyamo/grievance-portal/internal/utils"
)

func TestRegister(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	u, err := h.auth.Register(ctx, RegisterInput{Email: "  Sam@Uni.edu ", Password: "secret", FullName: "Sam"})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "Sam@Uni.edu", u.Email)
	assert.True(t, u.IsActive)
	assert.False(t, u.IsAdmin)
	assert.NotEqual(t, "secret", u.PasswordHash)

	_, err = h.auth.Register(ctx, RegisterInput{Email: "Sam@Uni.edu", Password: "other"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "email already registered", err.Error())

	// comparison is case-sensitive
	_, err = h.auth.Register(ctx, RegisterInput{Email: "sam@uni.edu", Password: "other"})
	assert.NoError(t, err)
}

func TestRegister_Invalid(t *testing.T) {
	h := newHarness(t)
	_, err := h.auth.Register(context.Background(), RegisterInput{Email: "a@x.io"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.auth.Register(context.Background(), RegisterInput{Email: "a@x.io", Password: strings.Repeat("p", 73)})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLogin_Success(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u, err := h.auth.Register(ctx, RegisterInput{Email: "a@x.io", Password: "pw"})
	require.NoError(t, err)

	res, err := h.auth.Login(ctx, "a@x.io", "pw")
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.User.ID)
	assert.True(t, res.Token.Exp.After(time.Now()))

	claims, err := h.signer.Decode(res.Token.Token)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatUint(u.ID, 10), claims.Subject)
	assert.Equal(t, "a@x.io", claims.Email)
}

func TestLogin_SixthAttemptIsRateLimited(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.auth.Register(ctx, RegisterInput{Email: "a@x.io", Password: "pw"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := h.auth.Login(ctx, "a@x.io", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i+1)
	}

	// even the right password is refused now
	_, err = h.auth.Login(ctx, "a@x.io", "pw")
	require.ErrorIs(t, err, ErrRateLimited)
	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Greater(t, rl.RetryAfter, time.Duration(0))

	d, err := h.limiter.Check(ctx, "a@x.io", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 5, d.Count, "blocked attempts are not recorded")
}

func TestLogin_SuccessResetsCounter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.auth.Register(ctx, RegisterInput{Email: "a@x.io", Password: "pw"})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := h.auth.Login(ctx, "a@x.io", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err = h.auth.Login(ctx, "a@x.io", "pw")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := h.auth.Login(ctx, "a@x.io", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d after reset", i+1)
	}
	_, err = h.auth.Login(ctx, "a@x.io", "wrong")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestLogin_ParallelGuessesStopAtLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.auth.Register(ctx, RegisterInput{Email: "v@x.io", Password: "pw"})
	require.NoError(t, err)

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		evaluated   int
		rateLimited int
	)
	start := make(chan struct{})
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.auth.Login(ctx, "v@x.io", "guess")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrRateLimited):
				rateLimited++
			case errors.Is(err, ErrInvalidCredentials):
				evaluated++
			default:
				t.Errorf("unexpected login result: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 5, evaluated)
	assert.Equal(t, 45, rateLimited)

	d, err := h.limiter.Check(ctx, "v@x.io", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 5, d.Count)
}

func TestLogin_UnknownEmailCountsAsFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.auth.Login(ctx, "ghost@x.io", "pw")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	d, err := h.limiter.Check(ctx, "ghost@x.io", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, d.Count)
}

func TestLogin_InactiveAccount(t *testing.T) {
	h := newHarness(t)
	hash, err := utils.HashPassword("pw", bcrypt.MinCost)
	require.NoError(t, err)
	off := model.User{Email: "off@x.io", PasswordHash: hash, IsActive: false}
	require.NoError(t, h.store.Users().Insert(context.Background(), &off))

	_, err = h.auth.Login(context.Background(), "off@x.io", "pw")
	assert.ErrorIs(t, err, ErrAccountDisabled)

	_, err = h.auth.Login(context.Background(), "off@x.io", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestBootstrapAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.auth.BootstrapAdmin(ctx, "root@uni.edu", "pw")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = h.auth.BootstrapAdmin(ctx, "root@uni.edu", "pw")
	require.NoError(t, err)
	assert.False(t, created)

	u, err := h.store.Users().GetByEmail(ctx, "root@uni.edu")
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
}
