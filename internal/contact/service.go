package contact

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/suPer8Hu/snapquestion/internal/common"
)

var ErrInvalid = errors.New("contact: invalid request")

// ErrInFlight means another worker holds the request and its lease has not
// run out; try again later.
var ErrInFlight = errors.New("contact: request is being delivered")

const (
	maxMessageLen = 5000
	maxKeyLen     = 128

	// a running request untouched for this long is reclaimed
	defaultLease = time.Minute
	// status writes outlive worker shutdown by at most this long
	finalizeTimeout = 10 * time.Second
)

// Publisher enqueues a request id for the notification worker.
type Publisher interface {
	PublishJob(ctx context.Context, id string) error
}

// Notifier tells the sales/support inbox about a request.
type Notifier interface {
	Notify(ctx context.Context, req *Request) error
}

type Service struct {
	repo     *Repo
	pub      Publisher
	notifier Notifier
	now      func() time.Time
	lease    time.Duration
}

func NewService(repo *Repo, pub Publisher, notifier Notifier) *Service {
	return &Service{repo: repo, pub: pub, notifier: notifier, now: time.Now, lease: defaultLease}
}

type Input struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Company        string `json:"company"`
	Message        string `json:"message"`
	IdempotencyKey string `json:"-"`
}

func (in *Input) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Company = strings.TrimSpace(in.Company)
	in.Message = strings.TrimSpace(in.Message)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)

	switch {
	case in.Name == "":
		return fmt.Errorf("%w: name required", ErrInvalid)
	case in.Message == "":
		return fmt.Errorf("%w: message required", ErrInvalid)
	case len(in.Message) > maxMessageLen:
		return fmt.Errorf("%w: message too long", ErrInvalid)
	case len(in.IdempotencyKey) > maxKeyLen:
		return fmt.Errorf("%w: idempotency key too long", ErrInvalid)
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil {
		return fmt.Errorf("%w: invalid email", ErrInvalid)
	}
	in.Email = addr.Address
	return nil
}

// Submit stores the request and enqueues a notification. A repeated
// idempotency key returns the stored request and enqueues nothing.
func (s *Service) Submit(ctx context.Context, in Input) (*Request, bool, error) {
	if err := in.normalize(); err != nil {
		return nil, false, err
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}

	req := &Request{
		ID:      id,
		Name:    in.Name,
		Email:   in.Email,
		Company: in.Company,
		Message: in.Message,
		Status:  StatusQueued,
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		req.IdempotencyKey = &key
	}

	req, created, err := s.repo.CreateOrGetExisting(ctx, req)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return req, false, nil
	}

	if err := s.pub.PublishJob(ctx, req.ID); err != nil {
		_ = s.repo.MarkFailed(ctx, req.ID, "enqueue failed: "+err.Error())
		return nil, true, fmt.Errorf("enqueue contact request: %w", err)
	}
	return req, true, nil
}

// Deliver is run by the worker for one request. Finished requests
// (redelivered messages) are skipped; a request held by a live worker
// returns ErrInFlight. The final status write survives ctx cancellation.
func (s *Service) Deliver(ctx context.Context, id string) error {
	claimed, err := s.repo.MarkRunning(ctx, id, s.now().Add(-s.lease))
	if err != nil {
		return err
	}
	if !claimed {
		req, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if req.Status == StatusRunning {
			return ErrInFlight
		}
		return nil
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	req, err := s.repo.GetByID(wctx, id)
	if err != nil {
		_ = s.repo.MarkFailed(wctx, id, err.Error())
		return err
	}

	if err := s.notifier.Notify(ctx, req); err != nil {
		_ = s.repo.MarkFailed(wctx, id, err.Error())
		return err
	}
	return s.repo.MarkDelivered(wctx, id, s.now())
}

// Retry puts an undelivered request back in line. The caller re-enqueues it.
func (s *Service) Retry(ctx context.Context, id string) (bool, error) {
	return s.repo.Requeue(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*Request, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListRecent(ctx context.Context, limit int, status Status) ([]Request, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListRecent(ctx, limit, status)
}
