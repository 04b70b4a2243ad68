package jobs

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/enclave/internal/entity"
)

//go:embed settings.cue
var settingsSchema string

// Validator checks job settings against the embedded CUE schema.
// A cue.Context is not safe for concurrent use, so checks are serialized.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator compiles the settings schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(settingsSchema, cue.Filename("settings.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile settings schema: %w", err)
	}
	schema := v.LookupPath(cue.ParsePath("#Settings"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("lookup #Settings: %w", err)
	}
	return &Validator{ctx: ctx, schema: schema}, nil
}

// Validate returns INVALID_ARGUMENT describing every violation in s.
func (v *Validator) Validate(s entity.JobSettings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	val := v.ctx.CompileBytes(data)
	if err := val.Err(); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if err := v.schema.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return entity.InvalidArgument("invalid job settings: " + errors.Details(err, nil))
	}
	return nil
}
