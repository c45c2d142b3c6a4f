package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coredispatch/agentcore/internal/agent"
	"github.com/coredispatch/agentcore/internal/observability"
	"github.com/coredispatch/agentcore/internal/sessions"
	"github.com/coredispatch/agentcore/internal/tools/policy"
	"github.com/coredispatch/agentcore/pkg/models"
)

// DefaultHistoryWindow is how many prior turns are loaded into a fresh
// conversation build, absent an explicit Config override.
const DefaultHistoryWindow = 50

// busyDiagnostic is returned verbatim when a channel's execution queue is
// already full (queue depth 1; a third concurrent request fails fast).
const busyDiagnostic = "busy"

// DispatchResult is what one dispatch() call returns to the channel
// adapter: either a final assistant response, or an error diagnostic.
// Never both.
type DispatchResult struct {
	Response string
	Error    string
}

// PermissionResolver loads the tool-group allow-set for a channel from the
// persistence interface. The Dispatcher depends on this narrow contract
// rather than a concrete settings store.
type PermissionResolver interface {
	ResolvePolicy(ctx context.Context, channelID int64) (policy.Policy, error)
}

// StaticPermissionResolver grants the same Policy to every channel,
// suitable for single-tenant deployments or tests.
type StaticPermissionResolver struct {
	Policy policy.Policy
}

func (s StaticPermissionResolver) ResolvePolicy(context.Context, int64) (policy.Policy, error) {
	return s.Policy, nil
}

// Config bundles the Dispatcher's tunables.
type Config struct {
	SystemPrompt  string
	Model         string
	HistoryWindow int
	WorkspaceDir  string
	SecurityMode  agent.SecurityMode
	APIKeys       map[string]string
}

// Dispatcher is the entry point C7: it resolves a session, computes the
// permitted tool set, serializes execution per channel, drives the Agent
// Loop, and persists the result.
type Dispatcher struct {
	cfg         Config
	sessions    sessions.Store
	registry    *agent.ToolRegistry
	providers   *agent.ProviderRegistry
	executor    *agent.Executor
	subagents   agent.SubagentSpawner
	broadcaster *Broadcaster
	normalizer  *Normalizer
	permissions PermissionResolver
	metrics     *observability.Metrics
	logger      *observability.Logger

	mu       sync.Mutex
	channels map[int64]*channelSlot
}

// channelSlot enforces "queue, depth 1, reject overflow with busy" for one
// channel_id: at most one execution running, at most one more waiting.
type channelSlot struct {
	running bool
	queued  bool
	waitCh  chan struct{}
}

func NewDispatcher(
	cfg Config,
	store sessions.Store,
	registry *agent.ToolRegistry,
	providers *agent.ProviderRegistry,
	executor *agent.Executor,
	subagents agent.SubagentSpawner,
	broadcaster *Broadcaster,
	permissions PermissionResolver,
	metrics *observability.Metrics,
	logger *observability.Logger,
) *Dispatcher {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if permissions == nil {
		permissions = StaticPermissionResolver{Policy: policy.FromProfile(policy.ProfileMessaging)}
	}
	return &Dispatcher{
		cfg:         cfg,
		sessions:    store,
		registry:    registry,
		providers:   providers,
		executor:    executor,
		subagents:   subagents,
		broadcaster: broadcaster,
		normalizer:  NewNormalizer(),
		permissions: permissions,
		metrics:     metrics,
		logger:      logger,
		channels:    make(map[int64]*channelSlot),
	}
}

// Dispatch runs the full seven-step pipeline for one inbound message.
func (d *Dispatcher) Dispatch(ctx context.Context, raw RawMessage) DispatchResult {
	msg := d.normalizer.Normalize(raw)
	ctx = observability.AddRequestID(ctx, uuid.NewString())
	ctx = observability.AddChannel(ctx, msg.ChannelType)

	release, err := d.acquireSlot(msg.ChannelID)
	if err != nil {
		if d.metrics != nil {
			d.metrics.DispatchRejections.Inc()
		}
		return DispatchResult{Error: busyDiagnostic}
	}
	defer release()

	start := time.Now()
	execCtx, collector := observability.NewCollector(ctx, "dispatch", d.logger)
	defer collector.End()

	result := d.runPipeline(execCtx, msg)
	if d.metrics != nil {
		d.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}
	return result
}

func (d *Dispatcher) runPipeline(ctx context.Context, msg models.NormalizedMessage) DispatchResult {
	sessionID := DeriveSessionID(msg.ChannelType, msg.ChannelID, msg.ChatID)

	// Step 1: resolve or create the session, load recent turns.
	sess, err := d.sessions.GetOrCreate(ctx, sessionID, msg.ChannelID, msg.ChannelType, msg.ChatID)
	if err != nil {
		d.logger.Error(ctx, "session resolve failed", "error", err, "channel_id", msg.ChannelID)
		return DispatchResult{Error: "internal error"}
	}
	ctx = observability.AddSessionID(ctx, sess.ID)

	history, err := d.sessions.History(ctx, sess.ID, d.cfg.HistoryWindow)
	if err != nil {
		d.logger.Error(ctx, "history load failed", "error", err)
		return DispatchResult{Error: "internal error"}
	}

	// Step 2: compute the executable tool list for this channel.
	pol, err := d.permissions.ResolvePolicy(ctx, msg.ChannelID)
	if err != nil {
		d.logger.Error(ctx, "policy resolve failed", "error", err, "channel_id", msg.ChannelID)
		return DispatchResult{Error: "internal error"}
	}
	toolDefs := d.registry.ListForGroups(pol.Allow)

	provider, err := d.providers.Resolve(d.cfg.Model)
	if err != nil {
		d.logger.Error(ctx, "provider resolve failed", "error", err, "model", d.cfg.Model)
		return DispatchResult{Error: "internal error"}
	}

	// Step 4: build the conversation.
	userMsg := models.Message{Role: models.RoleUser, Content: msg.Text, CreatedAt: time.Now()}
	transcript := make([]models.Message, 0, len(history)+1)
	transcript = append(transcript, history...)
	transcript = append(transcript, userMsg)

	tc := agent.ToolContext{
		Ctx:             ctx,
		WorkspaceDir:    d.cfg.WorkspaceDir,
		APIKeys:         d.cfg.APIKeys,
		ChannelID:       msg.ChannelID,
		Broadcaster:     d.broadcaster,
		SubagentManager: d.subagents,
		Spawner:         d,
		SecurityMode:    d.cfg.SecurityMode,
	}

	d.broadcaster.Publish(models.EventExecutionTaskStarted, map[string]any{"channel_id": msg.ChannelID})

	// Step 5: run the Agent Loop.
	loop := agent.NewLoop(provider, d.executor, d.cfg.SystemPrompt, toolDefs)
	produced, runErr := loop.Run(ctx, transcript, tc, agent.DefaultBudget())

	// Step 6: persist appended turns atomically, regardless of runErr kind,
	// so a mid-loop failure doesn't silently drop the turns already agreed
	// on with the provider.
	toPersist := append([]models.Message{userMsg}, produced...)
	if perr := d.sessions.AppendMessages(ctx, sess.ID, toPersist); perr != nil {
		d.logger.Error(ctx, "persist failed", "error", perr)
		return DispatchResult{Error: "internal error"}
	}

	d.broadcaster.Publish(models.EventTaskCompleted, map[string]any{"channel_id": msg.ChannelID})

	// Step 7: release (deferred by the caller) and return the result.
	if runErr != nil {
		return d.resultForError(ctx, runErr)
	}
	return DispatchResult{Response: finalContent(produced)}
}

func (d *Dispatcher) resultForError(ctx context.Context, err error) DispatchResult {
	var toolErr *agent.ToolError
	if errors.As(err, &toolErr) {
		switch toolErr.Kind {
		case agent.KindCancelled:
			return DispatchResult{Response: ""}
		case agent.KindInternal:
			d.logger.Error(ctx, "internal error in agent loop", "error", err)
			return DispatchResult{Error: "internal error"}
		case agent.KindAuth:
			d.logger.Error(ctx, "provider authentication failed", "error", err, "provider", toolErr.Tool)
			return DispatchResult{Error: "provider authentication failed"}
		default:
			return DispatchResult{Error: toolErr.Message}
		}
	}
	return DispatchResult{Error: err.Error()}
}

// RunChild implements agent.SpawnRunner: it drives one spawned sub-agent's
// child agent loop to completion in the background, against the task-only
// transcript the spawn tool requested, marking Start/Finish on the
// sub-agent manager as it transitions. A failure to resolve the provider
// or policy also reaches Finish(false, ...) so the run never sits
// Pending forever waiting on its own timeout.
func (d *Dispatcher) RunChild(ctx context.Context, id string, channelID int64, task string) {
	go func() {
		if err := d.subagents.Start(id); err != nil {
			return
		}

		provider, err := d.providers.Resolve(d.cfg.Model)
		if err != nil {
			_ = d.subagents.Finish(id, false, "", err.Error())
			return
		}
		pol, err := d.permissions.ResolvePolicy(ctx, channelID)
		if err != nil {
			_ = d.subagents.Finish(id, false, "", err.Error())
			return
		}
		toolDefs := d.registry.ListForGroups(pol.Allow)

		childTC := agent.ToolContext{
			Ctx:             ctx,
			WorkspaceDir:    d.cfg.WorkspaceDir,
			APIKeys:         d.cfg.APIKeys,
			ChannelID:       channelID,
			Broadcaster:     d.broadcaster,
			SubagentManager: d.subagents,
			Spawner:         d,
			SecurityMode:    d.cfg.SecurityMode,
		}

		loop := agent.NewLoop(provider, d.executor, d.cfg.SystemPrompt, toolDefs)
		transcript := []models.Message{{Role: models.RoleUser, Content: task, CreatedAt: time.Now()}}
		produced, runErr := loop.Run(ctx, transcript, childTC, agent.DefaultBudget())
		if runErr != nil {
			// Finish no-ops on an already-terminal run, so a child cancelled
			// via Cancel()/CancelAllForChannel (whose KindCancelled error
			// surfaces here) doesn't overwrite the Cancelled outcome.
			_ = d.subagents.Finish(id, false, "", runErr.Error())
			return
		}
		_ = d.subagents.Finish(id, true, finalContent(produced), "")
	}()
}

// finalContent returns the content of the last assistant turn produced
// this round, which is the reply surfaced to the caller.
func finalContent(produced []models.Message) string {
	for i := len(produced) - 1; i >= 0; i-- {
		if produced[i].Role == models.RoleAssistant {
			return produced[i].Content
		}
	}
	return ""
}

// acquireSlot returns immediately when no execution is running on the
// channel. When one is running and none is queued, this call becomes the
// queued one and blocks until the running execution releases the slot.
// When a request is already queued (a third concurrent request for the same
// channel), it fails at once with busyDiagnostic.
func (d *Dispatcher) acquireSlot(channelID int64) (release func(), err error) {
	d.mu.Lock()
	slot, ok := d.channels[channelID]
	if !ok {
		slot = &channelSlot{}
		d.channels[channelID] = slot
	}

	if !slot.running {
		slot.running = true
		d.mu.Unlock()
		return func() { d.releaseSlot(channelID) }, nil
	}
	if slot.queued {
		d.mu.Unlock()
		return nil, errors.New(busyDiagnostic)
	}

	slot.queued = true
	wait := make(chan struct{})
	slot.waitCh = wait
	d.mu.Unlock()

	<-wait
	return func() { d.releaseSlot(channelID) }, nil
}

func (d *Dispatcher) releaseSlot(channelID int64) {
	d.mu.Lock()
	slot, ok := d.channels[channelID]
	if !ok {
		d.mu.Unlock()
		return
	}
	if slot.queued {
		slot.queued = false
		wait := slot.waitCh
		slot.waitCh = nil
		d.mu.Unlock()
		close(wait)
		return
	}
	slot.running = false
	d.mu.Unlock()
}
