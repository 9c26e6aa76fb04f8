package delay_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	delay "github.com/jdziat/simple-delay"
	"github.com/jdziat/simple-delay/pkg/ref/gormref"
	"github.com/jdziat/simple-delay/pkg/storage"
)

type Invoice struct {
	ID     uint
	Number string
}

var reminders = make(chan string, 16)

func (i Invoice) SendReminder(ctx context.Context, to string) error {
	reminders <- fmt.Sprintf("%s->%s#%d", i.Number, to, delay.AttemptFromContext(ctx))
	return nil
}

type Billing struct{}

func (Billing) Close(ctx context.Context, month string) error {
	if month == "" {
		return delay.NoRetry(errors.New("month required"))
	}
	reminders <- "closed " + month
	return nil
}

type harness struct {
	db    *gorm.DB
	queue *delay.Queue
	store delay.Storage
}

// setup builds the full stack over one in-memory SQLite connection shared
// by records and job storage.
func setup(t *testing.T) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, storage.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}.Apply(db))
	require.NoError(t, db.AutoMigrate(&Invoice{}))

	reg := delay.NewRegistry()
	records := gormref.New(db, reg)
	records.MustRegister("Invoice", &Invoice{})
	reg.MustRegister("Billing", Billing{})

	codec, err := delay.NewCodec(reg, delay.WithKinds(records.Kinds()...))
	require.NoError(t, err)

	store := delay.NewGormStorage(db)
	require.NoError(t, store.Migrate(context.Background()))

	return &harness{db: db, queue: delay.New(store, delay.NewDispatcher(codec)), store: store}
}

func runWorker(t *testing.T, q *delay.Queue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = q.NewWorker(delay.PollInterval(10 * time.Millisecond)).Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

func waitFor(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-reminders:
		assert.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestDelay_RecordMethodRunsOnWorker(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	inv := &Invoice{Number: "INV-7"}
	require.NoError(t, h.db.Create(inv).Error)

	call, id, err := h.queue.Delay(ctx, inv, "send_reminder", []any{"ap@example.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "AR:Invoice:1", call.Object)
	assert.Equal(t, "Invoice#send_reminder", call.DisplayName())

	job, err := h.store.GetJob(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, delay.DefaultQueue, job.Queue)

	// The worker reloads the record, so later edits are visible.
	require.NoError(t, h.db.Model(inv).Update("number", "INV-7b").Error)

	runWorker(t, h.queue)
	waitFor(t, "INV-7b->ap@example.com#1")
}

func TestDelay_DeletedRecordIsSkipped(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	inv := &Invoice{Number: "INV-9"}
	require.NoError(t, h.db.Create(inv).Error)
	_, id, err := h.queue.Delay(ctx, inv, "send_reminder", []any{"x@example.com"}, nil)
	require.NoError(t, err)
	require.NoError(t, h.db.Delete(inv).Error)

	events := h.queue.Events()
	runWorker(t, h.queue)

	var skipped string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-events:
			switch ev := e.(type) {
			case *delay.CallSkipped:
				skipped = ev.Ref
			case *delay.JobCompleted:
				assert.Equal(t, id, ev.Job.ID)
				assert.Equal(t, "AR:Invoice:1", skipped)
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for completion")
		}
	}
}

func TestDelay_ClassMethodAndPermanentFailure(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, _, err := h.queue.Delay(ctx, Billing{}, "close", []any{"2026-09"}, nil, delay.In(0))
	require.NoError(t, err)
	_, failID, err := h.queue.Delay(ctx, Billing{}, "close", []any{""}, nil)
	require.NoError(t, err)

	runWorker(t, h.queue)
	waitFor(t, "closed 2026-09")

	require.Eventually(t, func() bool {
		job, err := h.store.GetJob(ctx, failID)
		return err == nil && job != nil && job.Status == delay.StatusFailed
	}, 5*time.Second, 20*time.Millisecond)
}

func TestDelay_UniqueRejectsDuplicates(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, _, err := h.queue.Delay(ctx, Billing{}, "close", []any{"2026-10"}, nil, delay.Unique("close:2026-10"), delay.In(time.Hour))
	require.NoError(t, err)
	_, _, err = h.queue.Delay(ctx, Billing{}, "close", []any{"2026-10"}, nil, delay.Unique("close:2026-10"))
	assert.ErrorIs(t, err, delay.ErrDuplicateJob)
}

func TestPerform_RunsPayloadInProcess(t *testing.T) {
	reg := delay.NewRegistry()
	reg.MustRegister("Billing", Billing{})
	codec, err := delay.NewCodec(reg)
	require.NoError(t, err)
	d := delay.NewDispatcher(codec, delay.WithTracing())

	payload := `{"object":"CLASS:Billing","method":"close","args":["2026-11"]}`
	require.NoError(t, delay.Perform(context.Background(), d, payload))
	waitFor(t, "closed 2026-11")
}

func TestFacadeOptions_ReturnNonNil(t *testing.T) {
	assert.NotNil(t, delay.To("mail"))
	assert.NotNil(t, delay.In(time.Minute))
	assert.NotNil(t, delay.At(time.Now()))
	assert.NotNil(t, delay.Priority(3))
	assert.NotNil(t, delay.Retries(4))
	assert.NotNil(t, delay.Retry(delay.RetryBackoff))
	assert.NotNil(t, delay.Unique("k"))
	assert.NotNil(t, delay.Concurrency(2))
	assert.NotNil(t, delay.WithScheduler(true))
	assert.NotNil(t, delay.WorkerQueue("mail", delay.Concurrency(2)))
	assert.NotNil(t, delay.Every(time.Minute))
	assert.NotNil(t, delay.Daily(9, 0))
	assert.NotNil(t, delay.Weekly(time.Monday, 9, 0))
	assert.NotNil(t, delay.Cron("0 * * * *"))
}

func TestFacadeErrors_Wrap(t *testing.T) {
	var nr *delay.NoRetryError
	assert.ErrorAs(t, delay.NoRetry(errors.New("x")), &nr)

	var ra *delay.RetryAfterError
	require.ErrorAs(t, delay.RetryAfter(time.Second, errors.New("x")), &ra)
	assert.Equal(t, time.Second, ra.Delay)
}

func TestJobFromContext_OutsideWorker(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, delay.JobFromContext(ctx))
	assert.Empty(t, delay.JobIDFromContext(ctx))
	assert.Zero(t, delay.AttemptFromContext(ctx))
}
