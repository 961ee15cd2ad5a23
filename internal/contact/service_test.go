package contact

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	ids []string
	err error
}

func (p *recordingPublisher) PublishJob(ctx context.Context, id string) error {
	_ = ctx
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, id)
	return nil
}

type recordingNotifier struct {
	got []string
	err error
}

func (n *recordingNotifier) Notify(ctx context.Context, req *Request) error {
	_ = ctx
	n.got = append(n.got, req.ID)
	return n.err
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// one private in-memory database per test
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := NewRepo(db).AutoMigrate(); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestSubmit_StoresAndEnqueues(t *testing.T) {
	db := openTestDB(t)
	pub := &recordingPublisher{}
	svc := NewService(NewRepo(db), pub, &recordingNotifier{})

	req, created, err := svc.Submit(context.Background(), Input{
		Name:    " Ada ",
		Email:   "Ada Lovelace <ada@example.com>",
		Message: "We want a demo",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !created {
		t.Fatalf("expected a new request")
	}
	if req.Name != "Ada" || req.Email != "ada@example.com" || req.Status != StatusQueued {
		t.Fatalf("unexpected request: %+v", req)
	}
	if len(pub.ids) != 1 || pub.ids[0] != req.ID {
		t.Fatalf("expected one publish for %s, got %v", req.ID, pub.ids)
	}
}

func TestSubmit_Validation(t *testing.T) {
	svc := NewService(NewRepo(openTestDB(t)), &recordingPublisher{}, &recordingNotifier{})

	cases := []Input{
		{Email: "a@b.c", Message: "m"},
		{Name: "n", Email: "not-an-email", Message: "m"},
		{Name: "n", Email: "a@b.c", Message: "   "},
	}
	for i, in := range cases {
		if _, _, err := svc.Submit(context.Background(), in); !errors.Is(err, ErrInvalid) {
			t.Fatalf("case %d: expected ErrInvalid, got %v", i, err)
		}
	}
}

func TestSubmit_IdempotencyKey(t *testing.T) {
	db := openTestDB(t)
	pub := &recordingPublisher{}
	svc := NewService(NewRepo(db), pub, &recordingNotifier{})

	in := Input{Name: "n", Email: "a@example.com", Message: "m", IdempotencyKey: "k1"}
	first, created, err := svc.Submit(context.Background(), in)
	if err != nil || !created {
		t.Fatalf("first submit: created=%v err=%v", created, err)
	}
	second, created, err := svc.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if created {
		t.Fatalf("expected existing request")
	}
	if second.ID != first.ID {
		t.Fatalf("expected %s, got %s", first.ID, second.ID)
	}
	if len(pub.ids) != 1 {
		t.Fatalf("expected a single publish, got %d", len(pub.ids))
	}
}

func TestSubmit_EnqueueFailureMarksFailed(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(NewRepo(db), &recordingPublisher{err: errors.New("broker down")}, &recordingNotifier{})

	if _, _, err := svc.Submit(context.Background(), Input{Name: "n", Email: "a@example.com", Message: "m"}); err == nil {
		t.Fatalf("expected enqueue error")
	}

	var reqs []Request
	if err := db.Find(&reqs).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(reqs) != 1 || reqs[0].Status != StatusFailed {
		t.Fatalf("expected one failed request, got %+v", reqs)
	}
}

func TestDeliver_MarksDeliveredOnce(t *testing.T) {
	db := openTestDB(t)
	notifier := &recordingNotifier{}
	svc := NewService(NewRepo(db), &recordingPublisher{}, notifier)

	req, _, err := svc.Submit(context.Background(), Input{Name: "n", Email: "a@example.com", Message: "m"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := svc.Deliver(context.Background(), req.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	// redelivery of the same message is a no-op
	if err := svc.Deliver(context.Background(), req.ID); err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	if len(notifier.got) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.got))
	}

	got, err := svc.Get(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusDelivered || got.DeliveredAt == nil {
		t.Fatalf("unexpected state: status=%s delivered_at=%v", got.Status, got.DeliveredAt)
	}
}

func TestDeliver_NotifierFailure(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(NewRepo(db), &recordingPublisher{}, &recordingNotifier{err: errors.New("smtp 550")})

	req, _, err := svc.Submit(context.Background(), Input{Name: "n", Email: "a@example.com", Message: "m"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.Deliver(context.Background(), req.ID); err == nil {
		t.Fatalf("expected notifier error")
	}

	got, _ := svc.Get(context.Background(), req.ID)
	if got.Status != StatusFailed || got.Error == nil || *got.Error != "smtp 550" {
		t.Fatalf("unexpected state: %+v", got)
	}
}

func TestRetry_AfterFailure(t *testing.T) {
	db := openTestDB(t)
	notifier := &recordingNotifier{err: errors.New("smtp timeout")}
	svc := NewService(NewRepo(db), &recordingPublisher{}, notifier)

	req, _, err := svc.Submit(context.Background(), Input{Name: "n", Email: "a@example.com", Message: "m"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := svc.Deliver(context.Background(), req.ID); err == nil {
		t.Fatalf("expected notifier error")
	}
	if ok, err := svc.Retry(context.Background(), req.ID); err != nil || !ok {
		t.Fatalf("retry: ok=%v err=%v", ok, err)
	}

	notifier.err = nil
	if err := svc.Deliver(context.Background(), req.ID); err != nil {
		t.Fatalf("second deliver: %v", err)
	}
	got, _ := svc.Get(context.Background(), req.ID)
	if got.Status != StatusDelivered || got.Error != nil {
		t.Fatalf("unexpected state: status=%s error=%v", got.Status, got.Error)
	}
	if len(notifier.got) != 2 {
		t.Fatalf("expected two notification attempts, got %d", len(notifier.got))
	}

	// delivered requests stay delivered
	if ok, err := svc.Retry(context.Background(), req.ID); err != nil || ok {
		t.Fatalf("retry of delivered request: ok=%v err=%v", ok, err)
	}
}

func TestDeliver_RedeliveryAfterWorkerCrash(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	notifier := &recordingNotifier{}
	svc := NewService(repo, &recordingPublisher{}, notifier)
	ctx := context.Background()

	req, _, err := svc.Submit(ctx, Input{Name: "n", Email: "a@example.com", Message: "m"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// a worker claims the request and dies before finishing
	if ok, err := repo.MarkRunning(ctx, req.ID, time.Now()); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	// the redelivered message must not be dropped while the lease is live
	if err := svc.Deliver(ctx, req.ID); !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}
	if len(notifier.got) != 0 {
		t.Fatalf("unexpected notification: %v", notifier.got)
	}

	// once the lease has run out the request is reclaimed
	stale := time.Now().Add(-2 * defaultLease)
	if err := db.Model(&Request{}).Where("id = ?", req.ID).UpdateColumn("updated_at", stale).Error; err != nil {
		t.Fatalf("age row: %v", err)
	}
	if err := svc.Deliver(ctx, req.ID); err != nil {
		t.Fatalf("deliver after lease: %v", err)
	}
	got, _ := svc.Get(ctx, req.ID)
	if got.Status != StatusDelivered || len(notifier.got) != 1 {
		t.Fatalf("unexpected state: status=%s notified=%v", got.Status, notifier.got)
	}
}

func TestRetry_RunningAndQueued(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	svc := NewService(repo, &recordingPublisher{}, &recordingNotifier{})
	ctx := context.Background()

	req, _, err := svc.Submit(ctx, Input{Name: "n", Email: "a@example.com", Message: "m"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ok, err := svc.Retry(ctx, req.ID); err != nil || !ok {
		t.Fatalf("retry of queued request: ok=%v err=%v", ok, err)
	}

	if _, err := repo.MarkRunning(ctx, req.ID, time.Now()); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if ok, err := svc.Retry(ctx, req.ID); err != nil || !ok {
		t.Fatalf("retry of running request: ok=%v err=%v", ok, err)
	}
	got, _ := svc.Get(ctx, req.ID)
	if got.Status != StatusQueued {
		t.Fatalf("expected queued, got %s", got.Status)
	}
}

// cancelingNotifier cancels the worker context mid-send, as a shutdown does.
type cancelingNotifier struct {
	cancel context.CancelFunc
}

func (n *cancelingNotifier) Notify(ctx context.Context, req *Request) error {
	n.cancel()
	return ctx.Err()
}

func TestDeliver_StatusWriteSurvivesShutdown(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewService(NewRepo(db), &recordingPublisher{}, &cancelingNotifier{cancel: cancel})

	req, _, err := svc.Submit(context.Background(), Input{Name: "n", Email: "a@example.com", Message: "m"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.Deliver(ctx, req.ID); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	got, _ := svc.Get(context.Background(), req.ID)
	if got.Status != StatusFailed {
		t.Fatalf("expected failed after shutdown, got %s", got.Status)
	}
}

func TestListRecent_NewestFirst(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(NewRepo(db), &recordingPublisher{}, &recordingNotifier{})

	var ids []string
	for i := 0; i < 3; i++ {
		req, _, err := svc.Submit(context.Background(), Input{Name: "n", Email: "a@example.com", Message: fmt.Sprint(i)})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		ids = append(ids, req.ID)
	}

	got, err := svc.ListRecent(context.Background(), 2, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != ids[2] || got[1].ID != ids[1] {
		t.Fatalf("unexpected order: %v", got)
	}
}
