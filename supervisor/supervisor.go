package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kornnellio/gosv/cgroup"
	"github.com/kornnellio/gosv/logging"
	"github.com/kornnellio/gosv/workerpool"
)

// DefaultRetries is the retry argument KillChildren is given by default,
// matching the teacher's retry=3 default. Phase 4 recurses while the
// argument is not negative, so stragglers get up to DefaultRetries+1 further
// attempts before KillChildren concedes.
const DefaultRetries = 3

// StableAfter is how long a child must run before a death resets its
// restart-backoff counter, unchanged from the teacher's constant.
const StableAfter = 60 * time.Second

// Supervisor is the parent-side registry of supervised children: start,
// restart-on-crash, watch, and shut the whole tree down.
type Supervisor struct {
	name        string
	waitForKill time.Duration
	ownerPID    int
	isSubWorker bool

	priorTermHandler func()

	mu       sync.Mutex
	children map[int]*ChildRecord

	restartEnabled atomic.Bool

	pool      *workerpool.Pool
	cgroupMgr *cgroup.Manager
	logSink   logging.Sink
	logLevel  logrus.Level
	log       *logrus.Logger

	signalOnce       sync.Once
	triggeringSignal atomic.Value // syscall.Signal
}

// Option configures a Supervisor at construction time.
type Option func(*Supervisor)

// WithPriorHandler registers a delegation target for KillChildren
// invocations that occur outside the owner process (see SPEC_FULL.md
// §4.4.7 Phase 0 and Testable Property 8).
func WithPriorHandler(fn func()) Option {
	return func(s *Supervisor) { s.priorTermHandler = fn }
}

// WithSubWorker marks this Supervisor as running inside a process the true
// parent already owns the task-tree kill for (relevant on Windows only).
func WithSubWorker() Option {
	return func(s *Supervisor) { s.isSubWorker = true }
}

// WithLogger overrides the default standard logrus logger.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// WithLogSink attaches the supervisor's own logger to sink at the given
// level, and remembers both; the level is stamped into every child's opts
// so children can log at the same level (see propagateLogging).
func WithLogSink(sink logging.Sink, level logrus.Level) Option {
	return func(s *Supervisor) {
		s.logSink = sink
		s.logLevel = level
		s.log = logging.Setup(sink, level)
	}
}

// WithPool overrides the default worker pool used to fire off
// restart-delay sleeps without blocking checkChildren's scan.
func WithPool(p *workerpool.Pool) Option {
	return func(s *Supervisor) { s.pool = p }
}

// WithCgroupManager enables cgroup v2 resource-limit enforcement on
// children whose Opts carry cgroup.OptMemoryLimitBytes /
// cgroup.OptCPUQuotaPercent / cgroup.OptPidsMax.
func WithCgroupManager(m *cgroup.Manager) Option {
	return func(s *Supervisor) { s.cgroupMgr = m }
}

// New constructs a Supervisor. name is used for the process title;
// waitForKill is the graceful-shutdown window before escalating to a
// forced kill.
func New(name string, waitForKill time.Duration, opts ...Option) *Supervisor {
	s := &Supervisor{
		name:        name,
		waitForKill: waitForKill,
		ownerPID:    os.Getpid(),
		children:    make(map[int]*ChildRecord),
		log:         logrus.StandardLogger(),
	}
	s.restartEnabled.Store(true)

	for _, opt := range opts {
		opt(s)
	}

	if s.pool == nil {
		s.pool = workerpool.New(0, 32, s.log)
	}

	return s
}

// AddProcessFunc wraps entryName (which must already be registered via
// Register) in the generic harness and starts it as a re-exec of the
// current binary. This is the "wrap target in a generic child" branch of
// SPEC_FULL.md §4.4.1.
func (s *Supervisor) AddProcessFunc(entryName string, args []string, opts map[string]any, name string) (ChildHandle, error) {
	if _, ok := Lookup(entryName); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntry, entryName)
	}

	spec := ChildSpec{
		EntryName:   entryName,
		Args:        append([]string{}, args...),
		Opts:        cloneOpts(opts),
		Name:        name,
		SignalAware: true,
	}
	if spec.Name == "" {
		spec.Name = entryName
	}

	return s.start(spec)
}

// AddProcessClass constructs and starts spec.Factory directly - the
// factory owns its own harness and process object.
func (s *Supervisor) AddProcessClass(factory ProcessFactory, spec ChildSpec) (ChildHandle, error) {
	spec.Factory = factory
	if spec.Opts == nil {
		spec.Opts = map[string]any{}
	}
	if spec.Args == nil {
		spec.Args = []string{}
	}
	if spec.Name == "" {
		spec.Name = funcName(factory)
	}
	return s.start(spec)
}

// funcName derives a human-readable label from a ProcessFactory's
// underlying function, used when a caller doesn't supply spec.Name.
func funcName(factory ProcessFactory) string {
	pc := reflect.ValueOf(factory).Pointer()
	if fn := runtime.FuncForPC(pc); fn != nil {
		return fn.Name()
	}
	return "anonymous"
}

// start performs the common spawn/record sequence for both AddProcess*
// entry points: populate the logging propagation keys, spawn (inside the
// scoped signal mask when signal-aware), apply cgroup limits, and record
// the ChildRecord before returning.
func (s *Supervisor) start(spec ChildSpec) (ChildHandle, error) {
	if spec.Opts == nil {
		spec.Opts = map[string]any{}
	}
	propagateLogging(spec.Opts, s.logLevel)

	handle, err := s.spawn(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	if s.cgroupMgr != nil {
		if err := s.cgroupMgr.ApplyLimits(spec.Name, handle.Pid(), spec.Opts); err != nil {
			s.log.WithError(err).WithField("child", spec.Name).Warn("supervisor: cgroup limits not applied")
		}
	}

	s.mu.Lock()
	s.children[handle.Pid()] = &ChildRecord{
		Spec:      spec,
		Handle:    handle,
		State:     StateRunning,
		StartTime: timeNow(),
	}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"child": spec.Name, "pid": handle.Pid()}).Info("supervisor: started child")
	return handle, nil
}

func (s *Supervisor) spawn(spec ChildSpec) (ChildHandle, error) {
	if spec.isClass() {
		if spec.SignalAware {
			var handle ChildHandle
			var err error
			withSignalScope(func() { handle, err = spec.Factory(spec) })
			return handle, err
		}
		return spec.Factory(spec)
	}

	cmd, err := buildReexecCommand(spec)
	if err != nil {
		return nil, err
	}

	var handle ChildHandle
	var startErr error
	if spec.SignalAware {
		withSignalScope(func() { handle, startErr = startExecHandle(cmd) })
	} else {
		handle, startErr = startExecHandle(cmd)
	}
	return handle, startErr
}

// withSignalScope brackets body with the scoped signal mask over
// SIGINT/SIGTERM, per SPEC_FULL.md §4.1: a spawn() happening mid-window
// must not have those signals land on this process's own channel-based
// subscription instead of being left for the child's own handler install.
func withSignalScope(body func()) {
	withDefaultSignals(body)
}

// propagateLogging stamps the numeric log level into opts so it survives
// the JSON round trip through the child's environment (logrus.Level itself
// doesn't need to: it's just a uint32 under the hood).
func propagateLogging(opts map[string]any, level logrus.Level) {
	if _, ok := opts["__log_level"]; !ok {
		opts["__log_level"] = uint32(level)
	}
}

func cloneOpts(opts map[string]any) map[string]any {
	out := make(map[string]any, len(opts))
	for k, v := range opts {
		out[k] = v
	}
	return out
}

// buildReexecCommand constructs the `<self> __child__ <entryName>` command
// used to run an EntryFunc target in a freshly spawned OS process.
func buildReexecCommand(spec ChildSpec) (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("supervisor: resolve self executable: %w", err)
	}

	cmd := exec.Command(self, append([]string{"__child__", spec.EntryName}, spec.Args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), encodeChildEnv(spec)...)
	return cmd, nil
}

// pollInterval is how often Run re-scans for dead children between signal
// events, mirroring the teacher's reap-loop cadence.
const pollInterval = 200 * time.Millisecond

// Run blocks until the child map empties or ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.prepareRun()

	for {
		s.checkChildren()

		if s.childCount() == 0 {
			return nil
		}

		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			if err := s.KillChildrenContext(ctx, DefaultRetries); err != nil {
				s.log.WithError(err).Warn("supervisor: kill_children returned an error")
			}
			return ctx.Err()
		}
	}
}

// RunAsync launches Run in a goroutine and returns immediately with a
// 1-buffered channel that receives Run's result. This is the "yield to a
// surrounding event driver" shape from SPEC_FULL.md §4.4.2, rendered as
// context-cancellation since that is the idiomatic Go hook for an external
// driver to stop the loop.
func (s *Supervisor) RunAsync(ctx context.Context) <-chan error {
	out := make(chan error, 1)
	go func() {
		out <- s.Run(ctx)
	}()
	return out
}

func (s *Supervisor) prepareRun() {
	setProcessTitle(s.name)

	s.signalOnce.Do(func() {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			for sig := range ch {
				if posixSig, ok := sig.(syscall.Signal); ok {
					s.triggeringSignal.Store(posixSig)
				}
				if err := s.KillChildren(DefaultRetries); err != nil {
					s.log.WithError(err).Warn("supervisor: kill_children returned an error")
				}
			}
		}()
	})
}

// TriggeringSignal returns the signal that most recently initiated
// KillChildren via the installed SIGINT/SIGTERM handler, or false if
// shutdown has never been triggered that way (e.g. KillChildren was called
// directly).
func (s *Supervisor) TriggeringSignal() (syscall.Signal, bool) {
	v := s.triggeringSignal.Load()
	if v == nil {
		return 0, false
	}
	return v.(syscall.Signal), true
}

func (s *Supervisor) childCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.children)
}

// snapshot returns a shallow copy of the children map, safe to range over
// without holding s.mu - every mutation path in this package takes the
// same approach (see SPEC_FULL.md §5 Ordering guarantees).
func (s *Supervisor) snapshot() map[int]*ChildRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]*ChildRecord, len(s.children))
	for pid, rec := range s.children {
		out[pid] = rec
	}
	return out
}

var timeNow = time.Now
