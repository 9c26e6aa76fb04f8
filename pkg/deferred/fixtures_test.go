package deferred

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/simple-delay/pkg/ref"
	"github.com/jdziat/simple-delay/pkg/ref/gormref"
)

var errBoom = errors.New("boom")

// recorder collects what invoked methods saw. Rehydrated receivers are
// fresh instances, so effects are recorded here rather than on them.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

var rec recorder

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.calls
	r.calls = nil
	return out
}

type Story struct {
	ID    uint
	Title string
}

type EndingOptions struct {
	Which ref.Symbol
	Twist bool `kwarg:"plot_twist"`
}

func (s *Story) Tell() {
	rec.add("tell %s", s.Title)
}

func (s *Story) Ending(opts EndingOptions) error {
	rec.add("ending %s which=%s twist=%v", s.Title, opts.Which, opts.Twist)
	return nil
}

func (s *Story) Annotate(ctx context.Context, note string, times int) error {
	if ctx == nil {
		return errors.New("no context")
	}
	rec.add("annotate %s %s x%d", s.Title, note, times)
	return nil
}

func (s *Story) Tag(prefix string, tags ...string) {
	rec.add("tag %s %s:%s", s.Title, prefix, strings.Join(tags, ","))
}

func (s *Story) Mention(other *Story) error {
	rec.add("mention %s -> %s", s.Title, other.Title)
	return nil
}

func (s *Story) Options(opts map[string]int) {
	rec.add("options %s a=%d b=%d", s.Title, opts["a"], opts["b"])
}

func (s *Story) Fail() error {
	return errBoom
}

func (s *Story) SendDigest(to string) (int, error) {
	rec.add("digest %s to %s", s.Title, to)
	return 1, nil
}

// Mailer has no store identity; it is referenced by type.
type Mailer struct{}

func (Mailer) Deliver(to string) error {
	rec.add("deliver %s", to)
	return nil
}

type testEnv struct {
	db    *gorm.DB
	codec *ref.Codec
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	rec.take()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open in-memory sqlite")
	require.NoError(t, db.AutoMigrate(&Story{}))

	reg := ref.NewRegistry()
	reg.MustRegister("Mailer", Mailer{})
	store := gormref.New(db, reg)
	store.MustRegister("Story", &Story{})

	codec, err := ref.NewCodec(reg, ref.WithKinds(store.Kinds()...))
	require.NoError(t, err)
	return &testEnv{db: db, codec: codec}
}

func (e *testEnv) story(t *testing.T, title string) *Story {
	t.Helper()
	s := &Story{Title: title}
	require.NoError(t, e.db.Create(s).Error)
	return s
}
