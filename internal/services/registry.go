package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mescon/motion/internal/animation"
	"github.com/mescon/motion/internal/clock"
	"github.com/mescon/motion/internal/db"
	"github.com/mescon/motion/internal/domain"
	"github.com/mescon/motion/internal/easing"
	"github.com/mescon/motion/internal/eventbus"
	"github.com/mescon/motion/internal/logger"
	"github.com/mescon/motion/internal/motion"
	"github.com/mescon/motion/internal/signal"
)

var (
	// ErrMotionNotFound is returned for IDs the registry does not hold.
	ErrMotionNotFound = errors.New("motion not found")
	// ErrInvalidSpec wraps every validation failure of a MotionSpec.
	ErrInvalidSpec = errors.New("invalid motion spec")
)

// MotionSpec is the serialisable form of a motion descriptor.
type MotionSpec struct {
	Name    string  `json:"name"`
	Initial float64 `json:"initial"`
	Target  float64 `json:"target"`
	// DurationMs is the run time in milliseconds. nil means the configured
	// default; zero completes each run on its first tick.
	DurationMs *int64 `json:"duration_ms,omitempty"`
	Easing     string `json:"easing,omitempty"`
}

// MotionInfo is a snapshot of a registered motion.
type MotionInfo struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Initial         float64         `json:"initial"`
	Target          float64         `json:"target"`
	DurationMs      int64           `json:"duration_ms"`
	Easing          string          `json:"easing"`
	Value           float64         `json:"value"`
	State           animation.State `json:"state"`
	Runs            uint64          `json:"runs"`
	CreatedAt       time.Time       `json:"created_at"`
	LastCompletedAt *time.Time      `json:"last_completed_at,omitempty"`
}

// ValueUpdate is delivered to SubscribeValues callbacks whenever a motion's
// value or state changes.
type ValueUpdate struct {
	MotionID string          `json:"motion_id"`
	Value    float64         `json:"value"`
	State    animation.State `json:"state"`
}

// RegistryConfig holds the driver settings shared by every motion.
type RegistryConfig struct {
	TimeSource      clock.TimeSource
	TickInterval    time.Duration
	RestartPolicy   animation.RestartPolicy
	// DefaultDuration applies to specs without duration_ms. Zero or less
	// means motion.DefaultDuration; a spec asks for an instant run with an
	// explicit duration_ms of 0.
	DefaultDuration time.Duration
	DefaultEasing   string
}

type registryEntry struct {
	handle        *animation.Handle
	name          string
	easing        string
	createdAt     time.Time
	lastCompleted atomic.Int64 // unix nanos, 0 = never
	unsubscribe   []func()
}

// MotionRegistry owns the animation handles served by the API.
type MotionRegistry struct {
	ctx    context.Context
	cancel context.CancelFunc
	repo   *db.Repository
	eb     eventbus.Publisher
	cfg    RegistryConfig

	mu      sync.RWMutex
	entries map[uuid.UUID]*registryEntry

	subsMu  sync.RWMutex
	subs    map[uint64]func(ValueUpdate)
	nextSub uint64
}

// NewMotionRegistry creates an empty registry. repo may be nil, in which
// case motions live only in memory.
func NewMotionRegistry(ctx context.Context, repo *db.Repository, eb eventbus.Publisher, cfg RegistryConfig) *MotionRegistry {
	if cfg.TimeSource == nil {
		cfg.TimeSource = clock.NewNative()
	}
	if cfg.DefaultEasing == "" {
		cfg.DefaultEasing = "linear"
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = motion.DefaultDuration
	}
	ctx, cancel := context.WithCancel(ctx)
	return &MotionRegistry{
		ctx:     ctx,
		cancel:  cancel,
		repo:    repo,
		eb:      eb,
		cfg:     cfg,
		entries: make(map[uuid.UUID]*registryEntry),
		subs:    make(map[uint64]func(ValueUpdate)),
	}
}

// Create validates spec, starts a driver for it and persists it.
func (r *MotionRegistry) Create(spec MotionSpec) (*animation.Handle, error) {
	rec, err := r.resolve(spec)
	if err != nil {
		return nil, err
	}
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now().UTC()

	if r.repo != nil {
		if err := r.repo.SaveMotion(rec); err != nil {
			return nil, err
		}
	}

	h, err := r.register(rec)
	if err != nil {
		return nil, err
	}
	r.publish(domain.MotionCreated, rec.ID, map[string]interface{}{
		"name":        rec.Name,
		"initial":     rec.Initial,
		"target":      rec.Target,
		"duration_ms": rec.DurationMs,
		"easing":      rec.Easing,
	})
	logger.Infof("Created motion %s (%s): %g -> %g over %dms", rec.ID, rec.Name, rec.Initial, rec.Target, rec.DurationMs)
	return h, nil
}

// Restore recreates drivers for every stored motion, keeping their IDs. It
// returns the number restored.
func (r *MotionRegistry) Restore() (int, error) {
	if r.repo == nil {
		return 0, nil
	}
	records, err := r.repo.LoadMotions()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, rec := range records {
		if _, err := r.register(rec); err != nil {
			logger.Errorf("Skipping stored motion %s: %v", rec.ID, err)
			continue
		}
		count++
	}
	logger.Infof("Restored %d motions", count)
	return count, nil
}

// resolve fills defaults and validates spec.
func (r *MotionRegistry) resolve(spec MotionSpec) (db.MotionRecord, error) {
	durationMs := r.cfg.DefaultDuration.Milliseconds()
	if spec.DurationMs != nil {
		durationMs = *spec.DurationMs
	}
	if durationMs < 0 {
		return db.MotionRecord{}, fmt.Errorf("%w: %v", ErrInvalidSpec, motion.ErrNegativeDuration)
	}
	easingName := spec.Easing
	if easingName == "" {
		easingName = r.cfg.DefaultEasing
	}
	easingName, err := easing.Canonical(easingName)
	if err != nil {
		return db.MotionRecord{}, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	m := motion.New(float32(spec.Initial)).To(float32(spec.Target))
	if err := m.Validate(); err != nil {
		return db.MotionRecord{}, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return db.MotionRecord{
		Name:       spec.Name,
		Initial:    spec.Initial,
		Target:     spec.Target,
		DurationMs: durationMs,
		Easing:     easingName,
	}, nil
}

func (r *MotionRegistry) register(rec db.MotionRecord) (*animation.Handle, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad id %q", ErrInvalidSpec, rec.ID)
	}
	curve, err := easing.Lookup(rec.Easing)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	entry := &registryEntry{name: rec.Name, easing: rec.Easing, createdAt: rec.CreatedAt}
	m := motion.New(float32(rec.Initial)).
		To(float32(rec.Target)).
		WithDuration(time.Duration(rec.DurationMs) * time.Millisecond).
		WithEasing(curve).
		WithID(id).
		OnCompleteFunc(func() {
			entry.lastCompleted.Store(time.Now().UnixNano())
		})
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	value := signal.New(m.Initial())
	state := signal.New(animation.Idle)
	idStr := id.String()
	entry.unsubscribe = []func(){
		value.Subscribe(func(v float32) {
			r.broadcast(ValueUpdate{MotionID: idStr, Value: float64(v), State: state.Read()})
		}),
		state.Subscribe(func(s animation.State) {
			r.broadcast(ValueUpdate{MotionID: idStr, Value: float64(value.Read()), State: s})
		}),
	}

	entry.handle = animation.UseMotion(r.ctx, m,
		animation.WithTimeSource(r.cfg.TimeSource),
		animation.WithTickInterval(r.cfg.TickInterval),
		animation.WithValueCell(value),
		animation.WithStateCell(state),
		animation.WithPublisher(r.eb),
		animation.WithRestartPolicy(r.cfg.RestartPolicy),
	)

	r.mu.Lock()
	if old, ok := r.entries[id]; ok {
		r.mu.Unlock()
		entry.close()
		logger.Warnf("Motion %s already registered", id)
		return old.handle, nil
	}
	r.entries[id] = entry
	r.mu.Unlock()
	return entry.handle, nil
}

func (e *registryEntry) close() {
	for _, unsub := range e.unsubscribe {
		unsub()
	}
	e.handle.Close()
}

func (e *registryEntry) info() MotionInfo {
	m := e.handle.Motion()
	info := MotionInfo{
		ID:         m.ID().String(),
		Name:       e.name,
		Initial:    float64(m.Initial()),
		Target:     float64(m.Target()),
		DurationMs: m.Duration().Milliseconds(),
		Easing:     e.easing,
		Value:      float64(e.handle.Value()),
		State:      e.handle.State(),
		Runs:       e.handle.Runs(),
		CreatedAt:  e.createdAt,
	}
	if ns := e.lastCompleted.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		info.LastCompletedAt = &t
	}
	return info
}

func (r *MotionRegistry) lookup(id string) (*registryEntry, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrMotionNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[uid]
	if !ok {
		return nil, ErrMotionNotFound
	}
	return entry, nil
}

// Handle returns the driver for id.
func (r *MotionRegistry) Handle(id string) (*animation.Handle, error) {
	entry, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return entry.handle, nil
}

// Get returns a snapshot of one motion.
func (r *MotionRegistry) Get(id string) (MotionInfo, error) {
	entry, err := r.lookup(id)
	if err != nil {
		return MotionInfo{}, err
	}
	return entry.info(), nil
}

// List returns snapshots of every motion, oldest first.
func (r *MotionRegistry) List() []MotionInfo {
	r.mu.RLock()
	out := make([]MotionInfo, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry.info())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Count returns the number of registered motions.
func (r *MotionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Start requests a run of id.
func (r *MotionRegistry) Start(id string) error {
	h, err := r.Handle(id)
	if err != nil {
		return err
	}
	h.Start()
	return nil
}

// Finish ends the current run of id early.
func (r *MotionRegistry) Finish(id string) error {
	h, err := r.Handle(id)
	if err != nil {
		return err
	}
	h.Finish()
	return nil
}

// Remove stops the driver for id and deletes it from storage.
func (r *MotionRegistry) Remove(id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrMotionNotFound
	}
	r.mu.Lock()
	entry, ok := r.entries[uid]
	delete(r.entries, uid)
	r.mu.Unlock()
	if !ok {
		return ErrMotionNotFound
	}

	state := entry.handle.State()
	entry.close()
	if r.repo != nil {
		if err := r.repo.DeleteMotion(uid.String()); err != nil && !errors.Is(err, db.ErrNotFound) {
			logger.Errorf("Failed to delete stored motion %s: %v", uid, err)
		}
	}
	r.publish(domain.MotionRemoved, uid.String(), map[string]interface{}{
		"name":  entry.name,
		"runs":  int64(entry.handle.Runs()),
		"state": state.String(),
	})
	logger.Infof("Removed motion %s", uid)
	return nil
}

// SubscribeValues registers fn for every value and state change of every
// motion. fn runs on driver goroutines and must not block.
func (r *MotionRegistry) SubscribeValues(fn func(ValueUpdate)) (unsubscribe func()) {
	r.subsMu.Lock()
	r.nextSub++
	id := r.nextSub
	r.subs[id] = fn
	r.subsMu.Unlock()

	return func() {
		r.subsMu.Lock()
		delete(r.subs, id)
		r.subsMu.Unlock()
	}
}

func (r *MotionRegistry) broadcast(u ValueUpdate) {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()
	for _, fn := range r.subs {
		fn(u)
	}
}

// Shutdown stops every driver. The registry is unusable afterwards.
func (r *MotionRegistry) Shutdown() {
	r.cancel()
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[uuid.UUID]*registryEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.close()
	}
	logger.Infof("Motion registry stopped (%d drivers)", len(entries))
}

func (r *MotionRegistry) publish(t domain.EventType, id string, data map[string]interface{}) {
	if r.eb == nil {
		return
	}
	if err := r.eb.Publish(domain.NewMotionEvent(t, id, data)); err != nil {
		logger.Warnf("Failed to publish %s for motion %s: %v", t, id, err)
	}
}
