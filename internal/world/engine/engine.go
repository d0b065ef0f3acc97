// Package engine 是世界模拟引擎的入口：玩家指令（IssueCommand）和时间推进（Tick）。
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"TribalRealms/internal/shared/gameconfig"
	"TribalRealms/internal/shared/serverconfig"
	"TribalRealms/internal/shared/utils"
	"TribalRealms/internal/world/clock"
	"TribalRealms/internal/world/combat"
	"TribalRealms/internal/world/command"
	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/ledger"
	"TribalRealms/internal/world/store"
	"TribalRealms/modules/kit/errx"
	"TribalRealms/modules/kit/logx"
	"TribalRealms/modules/kit/tracex"
)

// EventSource 提供重启时重建事件时钟所需的持久化事件。
type EventSource interface {
	LoadEvents(ctx context.Context, worldID entity.WorldID) ([]entity.ScheduledEvent, error)
}

type Deps struct {
	WorldID   entity.WorldID
	Store     store.Store
	Events    EventSource
	Clock     *clock.Clock
	Tables    *gameconfig.Tables
	Resolver  *combat.Resolver
	IDs       utils.IDGenerator
	Metrics   *Metrics
	Logger    logx.Logger
	Config    serverconfig.EngineConfig
	RateLimit serverconfig.RateLimitConfig
}

// CommandResult 是 IssueCommand 的回执。
type CommandResult struct {
	CommandID  string           `json:"command_id"`
	Kind       command.Kind     `json:"kind"`
	VillageID  entity.VillageID `json:"village_id"`
	ItemID     int64            `json:"item_id,omitempty"`
	ArmyID     entity.ArmyID    `json:"army_id,omitempty"`
	CompleteAt time.Time        `json:"complete_at,omitempty"`
	IssuedAt   time.Time        `json:"issued_at"`
	Village    *entity.Village  `json:"village"`
}

type commandHandler func(ctx context.Context, player entity.PlayerID, villageID entity.VillageID, p command.Payload, now time.Time) (*command.Result, error)

type eventHandler func(ctx context.Context, ev entity.ScheduledEvent, now time.Time) error

type Engine struct {
	worldID   entity.WorldID
	store     store.Store
	source    EventSource
	clock     *clock.Clock
	tables    *gameconfig.Tables
	ledger    *ledger.Ledger
	resolver  *combat.Resolver
	processor *command.Processor
	ids       utils.IDGenerator
	metrics   *Metrics
	limiter   *playerLimiter
	log       logx.Logger
	cfg       serverconfig.EngineConfig

	commands map[command.Kind]commandHandler
	handlers map[entity.EventKind]eventHandler

	tickMu sync.Mutex
	wake   chan struct{}
}

func New(d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = logx.NewZapLogger(nil)
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(nil)
	}
	if d.Config.DispatchWorkers <= 0 {
		d.Config.DispatchWorkers = 1
	}
	if d.Config.UpkeepInterval <= 0 {
		d.Config.UpkeepInterval = time.Hour
	}
	e := &Engine{
		worldID:   d.WorldID,
		store:     d.Store,
		source:    d.Events,
		clock:     d.Clock,
		tables:    d.Tables,
		ledger:    ledger.New(d.Tables),
		resolver:  d.Resolver,
		processor: command.NewProcessor(d.Store, d.Tables, d.IDs, d.Config.MaxConflictRetries, d.Logger),
		ids:       d.IDs,
		metrics:   d.Metrics,
		limiter:   newPlayerLimiter(d.RateLimit.PerSecond, d.RateLimit.Burst),
		log:       d.Logger,
		cfg:       d.Config,
		wake:      make(chan struct{}, 1),
	}
	e.commands = map[command.Kind]commandHandler{
		command.KindBuild:    e.handleBuild,
		command.KindTrain:    e.handleTrain,
		command.KindDispatch: e.handleDispatch,
		command.KindRecall:   e.handleRecall,
	}
	e.handlers = map[entity.EventKind]eventHandler{
		entity.EventConstructionComplete: e.onConstructionComplete,
		entity.EventTrainingComplete:     e.onTrainingComplete,
		entity.EventArmyArrival:          e.onArmyArrival,
		entity.EventPeriodicUpkeep:       e.onPeriodicUpkeep,
	}
	return e
}

// Start 从存储重建事件时钟，并保证周期维护事件存在。
func (e *Engine) Start(ctx context.Context, now time.Time) error {
	if e.source != nil {
		evs, err := e.source.LoadEvents(ctx, e.worldID)
		if err != nil {
			return entity.ErrPersistenceUnavailable.WithCause(err)
		}
		e.clock.Restore(evs)
		e.log.WithContext(ctx).Info("event clock restored", zap.Int("events", len(evs)))
	}
	if e.clock.HasKind(entity.EventPeriodicUpkeep) {
		return nil
	}
	return e.store.ApplyWorldMutation(ctx, now, func(m *store.Mutation) error {
		_, err := m.Schedule(entity.ScheduledEvent{Kind: entity.EventPeriodicUpkeep, Due: m.Now.Add(e.cfg.UpkeepInterval)})
		return err
	})
}

// IssueCommand 校验限流与指令类型后交给指令处理器，归属校验在村庄修改内完成。
func (e *Engine) IssueCommand(ctx context.Context, player entity.PlayerID, villageID entity.VillageID,
	payload command.Payload, now time.Time) (*CommandResult, error) {
	if payload == nil {
		return nil, entity.ErrInvalidCommand
	}
	ctx = tracex.WithPlayer(tracex.WithVillage(ctx, int64(villageID)), int64(player))
	kind := payload.Kind()
	if !e.limiter.Allow(player, now) {
		e.metrics.commands.WithLabelValues(string(kind), string(errx.CodeRateLimited)).Inc()
		return nil, errx.ErrRateLimited.WithData("player_id", player)
	}
	h, ok := e.commands[kind]
	if !ok {
		return nil, entity.ErrInvalidCommand.WithData("kind", kind)
	}

	res, err := h(ctx, player, villageID, payload, entity.Millis(now))
	code := "OK"
	if err != nil {
		code = string(errx.CodeOf(err))
	}
	e.metrics.commands.WithLabelValues(string(kind), code).Inc()
	if err != nil {
		e.reportCommandError(ctx, kind, err)
		return nil, err
	}
	e.notify()
	return &CommandResult{
		CommandID:  uuid.NewString(),
		Kind:       kind,
		VillageID:  villageID,
		ItemID:     res.ItemID,
		ArmyID:     res.ArmyID,
		CompleteAt: res.CompleteAt,
		IssuedAt:   entity.Millis(now),
		Village:    res.Village,
	}, nil
}

func (e *Engine) handleBuild(ctx context.Context, player entity.PlayerID, villageID entity.VillageID, p command.Payload, now time.Time) (*command.Result, error) {
	req, ok := p.(command.BuildPayload)
	if !ok {
		return nil, entity.ErrInvalidCommand
	}
	return e.processor.StartConstruction(ctx, player, villageID, req.Building, now)
}

func (e *Engine) handleTrain(ctx context.Context, player entity.PlayerID, villageID entity.VillageID, p command.Payload, now time.Time) (*command.Result, error) {
	req, ok := p.(command.TrainPayload)
	if !ok {
		return nil, entity.ErrInvalidCommand
	}
	return e.processor.StartTraining(ctx, player, villageID, req.Unit, req.Count, now)
}

func (e *Engine) handleDispatch(ctx context.Context, player entity.PlayerID, villageID entity.VillageID, p command.Payload, now time.Time) (*command.Result, error) {
	req, ok := p.(command.DispatchPayload)
	if !ok {
		return nil, entity.ErrInvalidCommand
	}
	return e.processor.DispatchArmy(ctx, player, villageID, req, now)
}

func (e *Engine) handleRecall(ctx context.Context, player entity.PlayerID, villageID entity.VillageID, p command.Payload, now time.Time) (*command.Result, error) {
	req, ok := p.(command.RecallPayload)
	if !ok {
		return nil, entity.ErrInvalidCommand
	}
	return e.processor.RecallSupport(ctx, player, villageID, req, now)
}

func (e *Engine) reportCommandError(ctx context.Context, kind command.Kind, err error) {
	fields := []zap.Field{zap.String("kind", string(kind))}
	if xe, ok := errx.As(err); ok && xe.IsBiz() {
		logx.ReportBizWithLoggerContext(ctx, e.log, logx.NewBizLog("engine.command", xe.CodeText(), xe.Msg()), fields...)
		return
	}
	logx.ReportSysErrorWithLoggerContext(ctx, e.log, logx.NewSysLog("engine.command", err), fields...)
}

// notify 唤醒驱动循环，新事件可能早于当前等待时长。
func (e *Engine) notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) Store() store.Store {
	return e.store
}

func (e *Engine) Clock() *clock.Clock {
	return e.clock
}

func (e *Engine) WorldID() entity.WorldID {
	return e.worldID
}
