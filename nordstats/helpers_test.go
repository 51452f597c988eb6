package nordstats

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/stretchr/testify/require"
)

const (
	playerA = "0b6b3c1e-8f0a-4c3b-9a77-2f0d3f5c1a01"
	playerB = "0b6b3c1e-8f0a-4c3b-9a77-2f0d3f5c1a02"
	playerC = "0b6b3c1e-8f0a-4c3b-9a77-2f0d3f5c1a03"
)

// mockLogger is a simple logger that implements runtime.Logger for testing.
type mockLogger struct{}

func (l *mockLogger) Debug(format string, v ...interface{})                   {}
func (l *mockLogger) Info(format string, v ...interface{})                    {}
func (l *mockLogger) Warn(format string, v ...interface{})                    {}
func (l *mockLogger) Error(format string, v ...interface{})                   {}
func (l *mockLogger) WithField(key string, v interface{}) runtime.Logger      { return l }
func (l *mockLogger) WithFields(fields map[string]interface{}) runtime.Logger { return l }
func (l *mockLogger) Fields() map[string]interface{}                          { return nil }

// testNakama backs the storage, file and notification calls with memory. Any other call panics on the
// nil embedded module.
type testNakama struct {
	runtime.NakamaModule

	mu            sync.Mutex
	storage       map[string]*api.StorageObject
	versions      int
	rootDir       string
	notifications []*runtime.NotificationSend
	failRead      bool
	failWrite     bool
}

func newTestNakama(t *testing.T) *testNakama {
	return &testNakama{
		storage: make(map[string]*api.StorageObject),
		rootDir: t.TempDir(),
	}
}

func storageKey(userID, collection, key string) string {
	return userID + ":" + collection + ":" + key
}

func (m *testNakama) StorageRead(ctx context.Context, reads []*runtime.StorageRead) ([]*api.StorageObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead {
		return nil, errors.New("storage read failed")
	}
	var objects []*api.StorageObject
	for _, read := range reads {
		if obj, ok := m.storage[storageKey(read.UserID, read.Collection, read.Key)]; ok {
			objects = append(objects, obj)
		}
	}
	return objects, nil
}

func (m *testNakama) StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return nil, errors.New("storage write failed")
	}
	acks := make([]*api.StorageObjectAck, 0, len(writes))
	for _, write := range writes {
		key := storageKey(write.UserID, write.Collection, write.Key)
		existing, exists := m.storage[key]
		switch {
		case write.Version == "*" && exists:
			return nil, runtime.NewError("storage write rejected - version check failed", 9)
		case write.Version != "" && write.Version != "*" && (!exists || existing.Version != write.Version):
			return nil, runtime.NewError("storage write rejected - version check failed", 9)
		}
		m.versions++
		obj := &api.StorageObject{
			Collection:      write.Collection,
			Key:             write.Key,
			UserId:          write.UserID,
			Value:           write.Value,
			Version:         strconv.Itoa(m.versions),
			PermissionRead:  int32(write.PermissionRead),
			PermissionWrite: int32(write.PermissionWrite),
		}
		m.storage[key] = obj
		acks = append(acks, &api.StorageObjectAck{Collection: obj.Collection, Key: obj.Key, UserId: obj.UserId, Version: obj.Version})
	}
	return acks, nil
}

func (m *testNakama) ReadFile(relPath string) (*os.File, error) {
	return os.Open(filepath.Join(m.rootDir, relPath))
}

func (m *testNakama) writeFile(t *testing.T, relPath, content string) {
	path := filepath.Join(m.rootDir, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (m *testNakama) NotificationSend(ctx context.Context, userID, subject string, content map[string]interface{}, code int, sender string, persistent bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, &runtime.NotificationSend{
		UserID:     userID,
		Subject:    subject,
		Content:    content,
		Code:       code,
		Sender:     sender,
		Persistent: persistent,
	})
	return nil
}

type rpcFunc = func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error)

// testInitializer records registered RPCs.
type testInitializer struct {
	runtime.Initializer
	rpcs map[string]rpcFunc
}

func newTestInitializer() *testInitializer {
	return &testInitializer{rpcs: make(map[string]rpcFunc)}
}

func (i *testInitializer) RegisterRpc(id string, fn func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error)) error {
	i.rpcs[id] = fn
	return nil
}

// fakeProvider serves fixed raw records and counts upstream fetches.
type fakeProvider struct {
	mu      sync.Mutex
	records map[string]RawStatRecord
	fail    map[string]error
	// gate, when set, blocks every fetch until it is closed.
	gate    chan struct{}
	started chan string
	calls   atomic.Int64
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		records: make(map[string]RawStatRecord),
		fail:    make(map[string]error),
	}
}

func (p *fakeProvider) set(playerID string, record RawStatRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[playerID] = record
}

func (p *fakeProvider) setError(playerID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.fail, playerID)
		return
	}
	p.fail[playerID] = err
}

func (p *fakeProvider) FetchRawStats(ctx context.Context, playerID string) (RawStatRecord, error) {
	p.calls.Add(1)
	if p.started != nil {
		p.started <- playerID
	}
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.fail[playerID]; ok {
		return nil, err
	}
	out := make(RawStatRecord, len(p.records[playerID]))
	for k, v := range p.records[playerID] {
		out[k] = v
	}
	return out, nil
}

func (p *fakeProvider) ListPlayerIDs(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.records)+len(p.fail))
	for id := range p.records {
		ids = append(ids, id)
	}
	for id := range p.fail {
		if _, ok := p.records[id]; !ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestTierStore opens a migrated, seeded SQLite store in the test's temp dir.
func newTestTierStore(t *testing.T, definitions []*AchievementDefinition) *GormTierStore {
	store, err := OpenSQLiteTierStore(filepath.Join(t.TempDir(), "tiers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.SeedTiers(context.Background(), definitions))
	return store
}

// recordingPublisher keeps every event it receives.
type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]*PublisherEvent
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(map[string][]*PublisherEvent)}
}

func (p *recordingPublisher) Send(ctx context.Context, logger runtime.Logger, userID string, events []*PublisherEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[userID] = append(p.events[userID], events...)
}

func (p *recordingPublisher) count(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events[userID])
}
