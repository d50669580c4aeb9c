// Package spotter drives the voice-command state machine against the
// token stream on the bus and hands completed commands to dispatch.
package spotter

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/spotterlabs/talkspot/internal/bus"
	"github.com/spotterlabs/talkspot/internal/command"
	"github.com/spotterlabs/talkspot/internal/config"
	"github.com/spotterlabs/talkspot/internal/dispatch"
	"github.com/spotterlabs/talkspot/internal/eventstore"
	"github.com/spotterlabs/talkspot/internal/protocol"
	"github.com/spotterlabs/talkspot/internal/spot"
)

// idleTick is how often the run loop checks the session deadline when no
// tokens arrive.
const idleTick = time.Second

type Service struct {
	cfg        config.SpotterConfig
	machine    *command.Machine
	bus        *bus.Client
	store      *eventstore.Store
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	sub        *nats.Subscription
	tokens     chan command.Token
	clock      func() time.Time
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewService(parent context.Context, cfg config.Config, busClient *bus.Client, store *eventstore.Store, dispatcher *dispatch.Dispatcher, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:        cfg.Spotter,
		machine:    command.NewMachine(machineOptions(cfg.Parser)),
		bus:        busClient,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "spotter")),
		tokens:     make(chan command.Token, 256),
		clock:      time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func machineOptions(cfg config.ParserConfig) command.Options {
	return command.Options{
		WakePhrase:        cfg.WakePhrase,
		WakeAliases:       cfg.WakeAliases,
		IdleTimeout:       time.Duration(cfg.IdleTimeoutSec) * time.Second,
		MaxIdleWords:      cfg.MaxIdleWords,
		CallKeywords:      cfg.CallKeywords,
		ParkKeywords:      cfg.ParkKeywords,
		SummitKeywords:    cfg.SummitKeywords,
		FrequencyKeywords: cfg.FrequencyKeywords,
		EndKeywords:       cfg.EndKeywords,
	}
}

func (s *Service) Start() error {
	// One wildcard subscription covers partial and final tokens; NATS
	// preserves publish order per connection, which the state machine
	// relies on.
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectTokenPrefix+".>", s.handleToken)
	if err != nil {
		return err
	}
	s.sub = sub

	s.wg.Add(1)
	go s.run()
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.sub != nil
}

func (s *Service) handleToken(msg *nats.Msg) {
	var tok protocol.TranscriptToken
	if err := json.Unmarshal(msg.Data, &tok); err != nil {
		s.logger.Warn("failed to decode transcript token", slogError(err))
		return
	}
	if tok.Text == "" {
		return
	}
	ts := tok.Timestamp
	if ts.IsZero() {
		ts = s.clock()
	}
	if s.ctx.Err() != nil {
		return
	}
	select {
	case s.tokens <- command.Token{Text: tok.Text, Final: tok.Final, Timestamp: ts}:
	default:
		// A full queue means the machine is hopelessly behind the
		// transcriber; dropping the token beats blocking the bus callback.
		s.logger.Warn("token queue full, dropping token", slog.String("text", tok.Text))
	}
}

func (s *Service) run() {
	defer s.wg.Done()

	var state command.State
	ticker := time.NewTicker(idleTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case tok := <-s.tokens:
			var res command.Result
			state, res = s.machine.Advance(state, tok)
			s.handleResult(res)
		case <-ticker.C:
			var res command.Result
			state, res = s.machine.CheckIdle(state, s.clock())
			s.handleResult(res)
		}
	}
}

// handleResult publishes and records whatever a transition produced.
// Session attribution comes from the result itself: each event names its
// owning session, and a terminal transition names the session it closed,
// because the returned state is already idle by then.
func (s *Service) handleResult(res command.Result) {
	for _, evt := range res.Events {
		s.emitEvent(evt)
	}
	if res.Abandoned {
		s.logger.Info("session abandoned", slog.String("session_id", res.SessionID))
		s.publishEvent(protocol.SubjectCommandAbandon, protocol.SpotEvent{
			SessionID: res.SessionID,
			Type:      "abandoned",
			Timestamp: s.clock().UTC(),
		})
	}
	if res.Command != nil {
		s.completeCommand(*res.Command)
	}
}

func (s *Service) emitEvent(evt command.Event) {
	switch evt.Type {
	case command.EventWakeDetected:
		s.logger.Info("wake phrase detected", slog.String("session_id", evt.SessionID))
		if err := s.store.AppendSession(s.ctx, evt.SessionID); err != nil {
			s.logger.Warn("failed to record session", slogError(err))
		}
		s.publishEvent(protocol.SubjectWakeDetected, protocol.SpotEvent{
			SessionID: evt.SessionID,
			Type:      string(evt.Type),
			Timestamp: s.clock().UTC(),
		})
	case command.EventFieldCaptured:
		s.logger.Info("field captured",
			slog.String("session_id", evt.SessionID),
			slog.String("field", string(evt.Field)),
			slog.String("value", evt.Value))
		s.publishEvent(protocol.SubjectFieldCaptured, protocol.SpotEvent{
			SessionID: evt.SessionID,
			Type:      string(evt.Type),
			Field:     string(evt.Field),
			Value:     evt.Value,
			Timestamp: s.clock().UTC(),
		})
	}
}

func (s *Service) completeCommand(cmd command.SpotCommand) {
	rec, err := spot.Build(cmd, s.cfg.DefaultMode, s.clock().UTC())
	if err != nil {
		s.logger.Error("completed command failed to build record", slogError(err))
		return
	}
	s.logger.Info("spot command completed",
		slog.String("session_id", cmd.SessionID),
		slog.String("callsign", rec.Callsign),
		slog.Float64("frequency_khz", rec.FrequencyKHz))

	// The session row must exist before any timeline append; the events
	// table enforces it.
	if err := s.store.AppendSession(s.ctx, cmd.SessionID); err != nil {
		s.logger.Warn("failed to record session", slogError(err))
	}
	s.publishEvent(protocol.SubjectCommandComplete, protocol.SpotEvent{
		SessionID: cmd.SessionID,
		Type:      "completed",
		Field:     string(command.FieldCallsign),
		Value:     rec.Callsign,
		Timestamp: rec.CreatedAt,
	})
	if err := s.persistSpot(rec); err != nil {
		s.logger.Warn("failed to persist spot", slogError(err))
	}

	// Delivery runs detached from the run loop so a slow destination
	// never stalls token processing. Close still waits for it.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		report := s.dispatcher.Dispatch(context.Background(), rec)
		s.reportDelivery(rec, report)
	}()
}

func (s *Service) persistSpot(rec spot.Record) error {
	sp := eventstore.Spot{
		ID:           rec.ID,
		SessionID:    rec.SessionID,
		Callsign:     rec.Callsign,
		FrequencyKHz: rec.FrequencyKHz,
		Mode:         rec.Mode,
		CreatedAt:    rec.CreatedAt,
	}
	if rec.Ref != nil {
		sp.Reference = rec.Ref.Code
	}
	return s.store.AppendSpot(s.ctx, sp)
}

func (s *Service) reportDelivery(rec spot.Record, report dispatch.Report) {
	out := protocol.DeliveryReport{
		SpotID:    report.SpotID,
		Callsign:  rec.Callsign,
		Timestamp: s.clock().UTC(),
	}
	for _, del := range report.Deliveries {
		out.Outcomes = append(out.Outcomes, protocol.DeliveryOutcome{
			Destination: del.Destination.String(),
			Outcome:     del.Outcome.String(),
			Reason:      del.Reason,
		})
	}
	if err := s.bus.PublishJSON(protocol.SubjectDeliveryReport, out); err != nil {
		s.logger.Warn("failed to publish delivery report", slogError(err))
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return
	}
	if err := s.store.AppendEvent(context.Background(), eventstore.Event{
		SessionID: rec.SessionID,
		Type:      "delivery",
		Payload:   payload,
	}); err != nil {
		s.logger.Warn("failed to record delivery report", slogError(err))
	}
}

func (s *Service) publishEvent(subject string, evt protocol.SpotEvent) {
	if err := s.bus.PublishJSON(subject, evt); err != nil {
		s.logger.Warn("failed to publish spot event", slog.String("subject", subject), slogError(err))
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if evt.SessionID == "" {
		return
	}
	if err := s.store.AppendEvent(s.ctx, eventstore.Event{
		SessionID: evt.SessionID,
		Type:      evt.Type,
		Payload:   payload,
	}); err != nil {
		s.logger.Warn("failed to record spot event", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
