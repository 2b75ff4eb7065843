package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/grievance-portal/internal/limiter"
	"github.com/iliyamo/grievance-portal/internal/model"
	"github.com/iliyamo/grievance-portal/internal/queue"
	"github.com/iliyamo/grievance-portal/internal/repository/memory"
	"github.com/iliyamo/grievance-portal/internal/utils"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recordingNotifier struct {
	mu     sync.Mutex
	events []queue.Event
}

func (n *recordingNotifier) Dispatch(ev queue.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) count(kind queue.Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, ev := range n.events {
		if ev.Kind == kind {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func (n *recordingNotifier) last() queue.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

// harness wires every service over the in-memory store.
type harness struct {
	store       *memory.Store
	signer      *utils.TokenSigner
	limiter     *limiter.Memory
	notifier    *recordingNotifier
	auth        *AuthService
	guard       *Guard
	grievances  *GrievanceService
	departments *DepartmentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	signer, err := utils.NewTokenSigner("test-secret", "HS256", time.Hour)
	require.NoError(t, err)
	lim := limiter.NewMemory(15*time.Minute, 5)
	t.Cleanup(lim.Close)

	h := &harness{
		store:    memory.New(),
		signer:   signer,
		limiter:  lim,
		notifier: &recordingNotifier{},
	}
	h.auth = NewAuthService(h.store.Users(), signer, lim, bcrypt.MinCost, discard())
	h.guard = NewGuard(h.store.Users(), signer, discard())
	h.grievances = NewGrievanceService(h.store.Grievances(), h.store.Users(), h.store.Departments(), h.notifier, "admin@uni.edu", discard())
	h.departments = NewDepartmentService(h.store.Departments())
	return h
}

// user inserts an identity directly.
func (h *harness) user(t *testing.T, email string, admin bool) model.User {
	t.Helper()
	hash, err := utils.HashPassword("pw", bcrypt.MinCost)
	require.NoError(t, err)
	u := model.User{Email: email, PasswordHash: hash, IsActive: true, IsAdmin: admin}
	require.NoError(t, h.store.Users().Insert(context.Background(), &u))
	return u
}
