package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"filippo.io/age"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/keyderiv"
	"github.com/roach88/enclave/internal/policy"
	"github.com/roach88/enclave/internal/store"
	"github.com/roach88/enclave/internal/testutil"
	"github.com/roach88/enclave/internal/vault"
)

// TransportVar is bound in every scenario to a fresh transport key, for
// key.derive steps.
const TransportVar = "transport"

// Harness executes one scenario against its own vault.
type Harness struct {
	store  *store.Store
	vault  *vault.Vault
	vars   map[string]string
	logger *slog.Logger
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger for step and vault logs. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation, with a
// stepping clock and sequential operation IDs. An error is returned only
// when the scenario cannot be executed at all: a failing setup step, a bad
// argument, or an infrastructure failure. Expectation and assertion
// failures are reported in the Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	kdf, err := keyderiv.NewLocal(bytes.Repeat([]byte{0x5c}, keyderiv.MasterKeySize))
	if err != nil {
		return nil, err
	}
	v, err := vault.New(st, kdf,
		vault.WithLimits(scenario.limits()),
		vault.WithClock(testutil.NewClock()),
		vault.WithOpIDs(testutil.NewSequentialOpIDs(scenario.Name)),
		vault.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, err
	}

	transport, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, err
	}

	h := &Harness{
		store:  st,
		vault:  v,
		vars:   map[string]string{TransportVar: transport.Recipient().String()},
		logger: cfg.logger,
	}

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Setup {
		ev, err := h.perform(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("setup step %d (%s): %w", i, step.Op, err)
		}
		result.AddTrace(ev)
		if ev.Code != CodeOK {
			return nil, fmt.Errorf("setup step %d (%s): failed with %s", i, step.Op, ev.Code)
		}
	}

	for i, step := range scenario.Flow {
		ev, err := h.perform(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("flow step %d (%s): %w", i, step.Op, err)
		}
		result.AddTrace(ev)
		for _, msg := range checkExpect(step, ev) {
			result.AddError(fmt.Sprintf("flow step %d (%s as %q): %s", i, step.Op, step.As, msg))
		}
	}

	for _, msg := range h.evaluate(ctx, result.Trace, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (s *Scenario) limits() policy.Limits {
	l := policy.DefaultLimits()
	if o := s.Limits; o != nil {
		if o.MaxOwners > 0 {
			l.MaxOwners = o.MaxOwners
		}
		if o.MaxItemsPerOwner > 0 {
			l.MaxItemsPerOwner = o.MaxItemsPerOwner
		}
		if o.MaxPayloadChars > 0 {
			l.MaxPayloadChars = o.MaxPayloadChars
		}
		if o.MaxGrantees > 0 {
			l.MaxGrantees = o.MaxGrantees
		}
	}
	return l
}

// perform runs one step. Coded vault errors become the event's code;
// anything else aborts the scenario.
func (h *Harness) perform(ctx context.Context, step Step) (TraceEvent, error) {
	ev := TraceEvent{As: step.As, Op: step.Op, Args: step.Args, Code: CodeOK}

	a, err := h.substitute(step.Args)
	if err != nil {
		return ev, err
	}
	out, err := operations[step.Op](ctx, h.vault, step.As, a)
	if err != nil {
		code := entity.CodeOf(err)
		if code == "" {
			return ev, err
		}
		ev.Code = string(code)
		h.logger.Info("step refused", "op", step.Op, "as", step.As, "code", code)
		return ev, nil
	}

	if ev.Result, err = normalize(out.result); err != nil {
		return ev, err
	}
	if step.Save != "" {
		for k, val := range out.binds {
			if k == "" {
				h.vars[step.Save] = val
			} else {
				h.vars[step.Save+"."+k] = val
			}
		}
	}
	h.logger.Info("step completed", "op", step.Op, "as", step.As)
	return ev, nil
}

// substitute replaces $name string arguments with bound values.
func (h *Harness) substitute(in map[string]any) (args, error) {
	out := make(args, len(in))
	for k, v := range in {
		s, ok := v.(string)
		if !ok || !strings.HasPrefix(s, "$") {
			out[k] = v
			continue
		}
		bound, ok := h.vars[strings.TrimPrefix(s, "$")]
		if !ok {
			return nil, fmt.Errorf("argument %q: %s is not bound", k, s)
		}
		out[k] = bound
	}
	return out, nil
}

func checkExpect(step Step, ev TraceEvent) []string {
	want := CodeOK
	if step.Expect != nil {
		want = step.Expect.Code
	}
	if ev.Code != want {
		return []string{fmt.Sprintf("expected %s, got %s", want, ev.Code)}
	}
	if step.Expect == nil || ev.Code != CodeOK || len(step.Expect.Result) == 0 {
		return nil
	}
	expected, err := normalize(step.Expect.Result)
	if err != nil {
		return []string{fmt.Sprintf("expected result: %v", err)}
	}
	if !matchSubset(ev.Result, expected) {
		return []string{fmt.Sprintf("result %v does not match %v", ev.Result, step.Expect.Result)}
	}
	return nil
}

// normalize converts v to the generic form encoding/json decodes into, so
// results and YAML expectations compare with the same types.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
