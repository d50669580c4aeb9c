package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spotterlabs/talkspot/internal/phonetic"
)

// Phase is the coarse position of the session in the capture protocol.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitCallsign
	PhaseAwaitRefOrFrequency
	PhaseAwaitFrequency
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitCallsign:
		return "await_callsign"
	case PhaseAwaitRefOrFrequency:
		return "await_ref_or_frequency"
	case PhaseAwaitFrequency:
		return "await_frequency"
	default:
		return "unknown"
	}
}

// Options configures the state machine vocabulary and timing.
type Options struct {
	WakePhrase        string
	WakeAliases       []string
	IdleTimeout       time.Duration
	MaxIdleWords      int
	CallKeywords      []string
	ParkKeywords      []string
	SummitKeywords    []string
	FrequencyKeywords []string
	EndKeywords       []string
}

// DefaultOptions mirrors the stock talk-spotter protocol, including the
// common mishearings of the wake phrase.
func DefaultOptions() Options {
	return Options{
		WakePhrase: "talk spotter",
		WakeAliases: []string{
			"talk sport",
			"talk spot",
			"top spot",
			"hot spot",
			"hawks potter",
			"talk potter",
			"talks potter",
			"talks spotter",
			"talk spotted",
		},
		IdleTimeout:       30 * time.Second,
		MaxIdleWords:      20,
		CallKeywords:      []string{"call"},
		ParkKeywords:      []string{"parks", "pota"},
		SummitKeywords:    []string{"summits", "sota"},
		FrequencyKeywords: []string{"frequency"},
		EndKeywords:       []string{"end"},
	}
}

type keywordKind int

const (
	kwCall keywordKind = iota
	kwParks
	kwSummits
	kwFrequency
	kwEnd
)

// State is the single in-flight parse state. It is a plain value: Advance
// and CheckIdle take and return it, so the driver owns the one live
// instance and tests can replay transitions against a simulated clock.
type State struct {
	Phase        Phase
	SessionID    string
	StartedAt    time.Time
	Callsign     string
	Ref          *ActivationRef
	FrequencyKHz float64
	Cursor       Field
	LastActivity time.Time
	Deadline     time.Time

	cursorOrg     Org
	window        []string
	idleWords     int
	recentFinal   []string
	recentPartial []string
}

// Machine holds the compiled vocabulary. It carries no session state.
type Machine struct {
	opts     Options
	wake     [][]string
	wakeMax  int
	keywords map[string]keywordKind
	newID    func() string
}

func NewMachine(opts Options) *Machine {
	def := DefaultOptions()
	if strings.TrimSpace(opts.WakePhrase) == "" {
		opts.WakePhrase = def.WakePhrase
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = def.IdleTimeout
	}
	if opts.CallKeywords == nil {
		opts.CallKeywords = def.CallKeywords
	}
	if opts.ParkKeywords == nil {
		opts.ParkKeywords = def.ParkKeywords
	}
	if opts.SummitKeywords == nil {
		opts.SummitKeywords = def.SummitKeywords
	}
	if opts.FrequencyKeywords == nil {
		opts.FrequencyKeywords = def.FrequencyKeywords
	}
	if opts.EndKeywords == nil {
		opts.EndKeywords = def.EndKeywords
	}

	m := &Machine{
		opts:     opts,
		keywords: make(map[string]keywordKind),
		newID:    uuid.NewString,
	}
	for _, phrase := range append([]string{opts.WakePhrase}, opts.WakeAliases...) {
		words := strings.Fields(strings.ToLower(phrase))
		if len(words) == 0 {
			continue
		}
		m.wake = append(m.wake, words)
		if len(words) > m.wakeMax {
			m.wakeMax = len(words)
		}
	}
	register := func(words []string, kind keywordKind) {
		for _, w := range words {
			m.keywords[phonetic.Normalize(w)] = kind
		}
	}
	register(opts.CallKeywords, kwCall)
	register(opts.ParkKeywords, kwParks)
	register(opts.SummitKeywords, kwSummits)
	register(opts.FrequencyKeywords, kwFrequency)
	register(opts.EndKeywords, kwEnd)
	return m
}

// IdleTimeout reports the configured idle deadline duration.
func (m *Machine) IdleTimeout() time.Duration {
	return m.opts.IdleTimeout
}

// Advance consumes one token and returns the successor state plus whatever
// the transition produced. Decode failures never fault: the field is left
// unset and the session keeps listening.
func (m *Machine) Advance(s State, tok Token) (State, Result) {
	var res Result
	for _, raw := range strings.Fields(tok.Text) {
		w := phonetic.Normalize(raw)
		if w == "" {
			continue
		}
		if m.sawWake(&s, w, tok.Final) {
			// A repeated wake phrase unconditionally discards the
			// previous session, unless there is nothing to discard.
			if !sessionFresh(s) {
				s = m.restart(s, tok.Timestamp)
				res.Events = append(res.Events, Event{SessionID: s.SessionID, Type: EventWakeDetected})
			}
			continue
		}
		if !tok.Final || s.Phase == PhaseIdle {
			continue
		}
		if kind, ok := m.keywords[w]; ok {
			m.captureWindow(&s, &res)
			s.idleWords = 0
			switch kind {
			case kwCall:
				s.Cursor = FieldCallsign
			case kwParks:
				s.Cursor, s.cursorOrg = FieldReference, OrgPOTA
			case kwSummits:
				s.Cursor, s.cursorOrg = FieldReference, OrgSOTA
			case kwFrequency:
				s.Cursor = FieldFrequency
			case kwEnd:
				s.Cursor = FieldNone
				if cmd := m.complete(s); cmd != nil {
					res.Command = cmd
					res.SessionID = s.SessionID
					s = idle(s)
					continue
				}
				// Mandatory fields missing: stay open until they are
				// re-spoken or the idle deadline decides.
			}
			s.Phase = phaseFor(s)
			continue
		}
		if s.Cursor != FieldNone {
			s.window = append(s.window, w)
			if advances(s.Cursor, w) {
				s.idleWords = 0
			} else {
				s.idleWords++
			}
		} else {
			s.idleWords++
		}
		if m.opts.MaxIdleWords > 0 && s.idleWords > m.opts.MaxIdleWords {
			s = m.finish(s, &res)
		}
	}
	if s.Phase != PhaseIdle {
		s.LastActivity = tok.Timestamp
		s.Deadline = tok.Timestamp.Add(m.opts.IdleTimeout)
	}
	return s, res
}

// CheckIdle applies the idle deadline. With both mandatory fields present
// the session auto-completes; otherwise it is abandoned. A normal
// terminal transition, not an error.
func (m *Machine) CheckIdle(s State, now time.Time) (State, Result) {
	var res Result
	if s.Phase == PhaseIdle || s.Deadline.IsZero() || now.Before(s.Deadline) {
		return s, res
	}
	s = m.finish(s, &res)
	return s, res
}

func (m *Machine) sawWake(s *State, w string, final bool) bool {
	if final {
		s.recentPartial = nil
		s.recentFinal = pushWord(s.recentFinal, w, m.wakeMax)
		return m.matchWake(s.recentFinal)
	}
	s.recentPartial = pushWord(s.recentPartial, w, m.wakeMax)
	return m.matchWake(s.recentPartial)
}

func (m *Machine) matchWake(buf []string) bool {
	for _, seq := range m.wake {
		if len(buf) < len(seq) {
			continue
		}
		tail := buf[len(buf)-len(seq):]
		match := true
		for i := range seq {
			if tail[i] != seq[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// sessionFresh reports whether a wake restart would be a no-op: the
// session just started and holds no fields. Keeps re-sent partial
// hypotheses of the wake phrase from churning out new sessions.
func sessionFresh(s State) bool {
	return s.Phase == PhaseAwaitCallsign &&
		s.Callsign == "" && s.Ref == nil && s.FrequencyKHz == 0 &&
		s.Cursor == FieldNone && len(s.window) == 0
}

func (m *Machine) restart(s State, ts time.Time) State {
	return State{
		Phase:         PhaseAwaitCallsign,
		SessionID:     m.newID(),
		StartedAt:     ts,
		LastActivity:  ts,
		Deadline:      ts.Add(m.opts.IdleTimeout),
		recentFinal:   s.recentFinal,
		recentPartial: s.recentPartial,
	}
}

// captureWindow runs the decoder for the current cursor over the buffered
// window. Success overwrites any earlier value for the field; failure
// leaves the previous value alone. The window is consumed either way.
func (m *Machine) captureWindow(s *State, res *Result) {
	window := s.window
	s.window = nil
	if len(window) == 0 {
		return
	}
	switch s.Cursor {
	case FieldCallsign:
		if v, ok := decodeCallsign(window); ok {
			s.Callsign = v
			res.Events = append(res.Events, Event{SessionID: s.SessionID, Type: EventFieldCaptured, Field: FieldCallsign, Value: v})
		}
	case FieldReference:
		if v, ok := decodeReference(window); ok {
			s.Ref = &ActivationRef{Org: s.cursorOrg, Code: v}
			res.Events = append(res.Events, Event{SessionID: s.SessionID, Type: EventFieldCaptured, Field: FieldReference, Value: v})
		}
	case FieldFrequency:
		if v, ok := decodeFrequency(window); ok {
			s.FrequencyKHz = v
			res.Events = append(res.Events, Event{
				SessionID: s.SessionID,
				Type:      EventFieldCaptured,
				Field:     FieldFrequency,
				Value:     strconv.FormatFloat(v, 'f', -1, 64),
			})
		}
	}
}

func (m *Machine) complete(s State) *SpotCommand {
	if s.Callsign == "" || s.FrequencyKHz <= 0 {
		return nil
	}
	cmd := &SpotCommand{
		SessionID:    s.SessionID,
		Callsign:     s.Callsign,
		FrequencyKHz: s.FrequencyKHz,
		StartedAt:    s.StartedAt,
	}
	if s.Ref != nil {
		ref := *s.Ref
		cmd.Ref = &ref
	}
	return cmd
}

// finish is the shared auto-finalize path for the idle deadline and the
// word budget: complete if the mandatory fields are there, abandon if not.
func (m *Machine) finish(s State, res *Result) State {
	m.captureWindow(&s, res)
	res.SessionID = s.SessionID
	if cmd := m.complete(s); cmd != nil {
		res.Command = cmd
	} else {
		res.Abandoned = true
	}
	return idle(s)
}

func idle(s State) State {
	return State{
		Phase:         PhaseIdle,
		recentFinal:   s.recentFinal,
		recentPartial: s.recentPartial,
	}
}

func phaseFor(s State) Phase {
	switch {
	case s.Callsign == "":
		return PhaseAwaitCallsign
	case s.FrequencyKHz <= 0 && s.Ref == nil:
		return PhaseAwaitRefOrFrequency
	default:
		return PhaseAwaitFrequency
	}
}

func advances(cursor Field, w string) bool {
	if _, ok := literalChar(w); ok {
		return true
	}
	switch cursor {
	case FieldCallsign:
		if _, ok := phonetic.LookupLetter(w); ok {
			return true
		}
		_, ok := phonetic.LookupDigit(w)
		return ok
	case FieldReference:
		if _, ok := phonetic.LookupLetter(w); ok {
			return true
		}
		if _, ok := phonetic.LookupDigit(w); ok {
			return true
		}
		_, ok := phonetic.LookupSymbol(w)
		return ok
	case FieldFrequency:
		if _, ok := phonetic.LookupNumber(w); ok {
			return true
		}
		return phonetic.IsDecimalMarker(w) || isDigits(w)
	}
	return false
}

func pushWord(buf []string, w string, max int) []string {
	buf = append(buf, w)
	if max > 0 && len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	return buf
}
