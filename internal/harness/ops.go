package harness

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/jobs"
	"github.com/roach88/enclave/internal/vault"
)

// outcome is what a successful operation reports: the traced result and
// the string values a save name binds.
type outcome struct {
	result any
	binds  map[string]string
}

type opFunc func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error)

// lists maps final_state list names to operations.
var lists = map[string]string{
	"notes":     "note.list",
	"passports": "passport.list",
	"memories":  "memory.list",
	"tokens":    "token.list",
	"jobs":      "job.list",
}

var operations = map[string]opFunc{
	"whoami": func(_ context.Context, v *vault.Vault, caller string, _ args) (outcome, error) {
		return outcome{result: map[string]string{"principal": v.WhoAmI(caller)}}, nil
	},

	// Notes
	"note.create": func(ctx context.Context, v *vault.Vault, caller string, _ args) (outcome, error) {
		id, err := v.CreateNote(ctx, caller)
		return created(id), err
	},
	"note.list": func(ctx context.Context, v *vault.Vault, caller string, _ args) (outcome, error) {
		notes, err := v.GetNotes(ctx, caller)
		return outcome{result: notes}, err
	},
	"note.update": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		id, err := a.id("id")
		if err != nil {
			return outcome{}, err
		}
		return outcome{}, v.UpdateNote(ctx, caller, id, a.optStr("text"))
	},
	"note.delete": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		id, err := a.id("id")
		if err != nil {
			return outcome{}, err
		}
		return outcome{}, v.DeleteNote(ctx, caller, id)
	},
	"note.share": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		id, err := a.id("id")
		if err != nil {
			return outcome{}, err
		}
		return outcome{}, v.AddGrantee(ctx, caller, id, a.optStr("grantee"))
	},
	"note.unshare": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		id, err := a.id("id")
		if err != nil {
			return outcome{}, err
		}
		return outcome{}, v.RemoveGrantee(ctx, caller, id, a.optStr("grantee"))
	},

	// Keys. Derived keys are encrypted to a fresh transport key, so only
	// their presence is traced.
	"key.verification": func(ctx context.Context, v *vault.Vault, caller string, _ args) (outcome, error) {
		key, err := v.VerificationKey(ctx, caller)
		return outcome{result: map[string]string{"verification_key": key}}, err
	},
	"key.derive": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		id, err := a.id("id")
		if err != nil {
			return outcome{}, err
		}
		out, err := v.DeriveNoteKey(ctx, caller, id, []byte(a.optStr("transport_key")))
		return outcome{result: map[string]bool{"derived": out != ""}}, err
	},

	// Passports
	"passport.create": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		caps, err := a.strings("capabilities")
		if err != nil {
			return outcome{}, err
		}
		id, err := v.CreatePassport(ctx, caller, a.optStr("name"), a.optStr("type"), caps, a.optStr("spec"))
		return created(id), err
	},
	"passport.get": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		id, err := a.id("id")
		if err != nil {
			return outcome{}, err
		}
		p, err := v.GetPassport(ctx, caller, id)
		if p == nil {
			return outcome{result: map[string]bool{"found": false}}, err
		}
		return outcome{result: p}, err
	},
	"passport.list": func(ctx context.Context, v *vault.Vault, caller string, _ args) (outcome, error) {
		ps, err := v.ListMyPassports(ctx, caller)
		return outcome{result: ps}, err
	},
	"passport.update_spec": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		id, err := a.id("id")
		if err != nil {
			return outcome{}, err
		}
		return outcome{}, v.UpdatePassportSpec(ctx, caller, id, a.optStr("spec"))
	},
	"passport.set_endpoints": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		id, err := a.id("id")
		if err != nil {
			return outcome{}, err
		}
		endpoints, err := a.strings("endpoints")
		if err != nil {
			return outcome{}, err
		}
		return outcome{}, v.SetPassportEndpoints(ctx, caller, id, endpoints)
	},
	"passport.set_active": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		id, err := a.id("id")
		if err != nil {
			return outcome{}, err
		}
		active, err := a.boolean("active")
		if err != nil {
			return outcome{}, err
		}
		return outcome{}, v.SetPassportActive(ctx, caller, id, active)
	},
	"passport.delete": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		id, err := a.id("id")
		if err != nil {
			return outcome{}, err
		}
		return outcome{}, v.DeletePassport(ctx, caller, id)
	},

	// Memories
	"memory.add": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		pid, err := a.id("passport")
		if err != nil {
			return outcome{}, err
		}
		importance, err := a.integer("importance")
		if err != nil {
			return outcome{}, err
		}
		id, err := v.AddMemory(ctx, caller, pid, a.optStr("kind"), a.optStr("content"), importance)
		return created(id), err
	},
	"memory.list": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		pid, err := a.id("passport")
		if err != nil {
			return outcome{}, err
		}
		ms, err := v.ListMemories(ctx, caller, pid, a.optStr("kind"))
		return outcome{result: ms}, err
	},
	"memory.delete": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		id, err := a.id("id")
		if err != nil {
			return outcome{}, err
		}
		return outcome{}, v.DeleteMemory(ctx, caller, id)
	},

	// Tokens. Secrets are random: bound for later steps, never traced.
	"token.create": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		pid, err := a.id("passport")
		if err != nil {
			return outcome{}, err
		}
		perms, err := a.strings("permissions")
		if err != nil {
			return outcome{}, err
		}
		tok, secret, err := v.CreateToken(ctx, caller, pid, a.optStr("name"), perms, nil)
		if err != nil {
			return outcome{}, err
		}
		out := created(tok.ID)
		out.binds["secret"] = secret
		return out, nil
	},
	"token.list": func(ctx context.Context, v *vault.Vault, caller string, _ args) (outcome, error) {
		ts, err := v.ListMyTokens(ctx, caller)
		return outcome{result: redactTokens(ts)}, err
	},
	"token.revoke": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		id, err := a.id("id")
		if err != nil {
			return outcome{}, err
		}
		return outcome{}, v.RevokeToken(ctx, caller, id)
	},
	"token.verify": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		id, err := a.id("id")
		if err != nil {
			return outcome{}, err
		}
		tok, err := v.VerifyToken(ctx, caller, id, a.optStr("secret"), a.optStr("permission"))
		if err != nil {
			return outcome{}, err
		}
		return outcome{result: redactTokens([]entity.Token{*tok})[0]}, nil
	},

	// Jobs
	"job.create": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		dataset, err := a.id("dataset")
		if err != nil {
			return outcome{}, err
		}
		records, err := a.integer("num_records")
		if err != nil {
			return outcome{}, err
		}
		settings := entity.JobSettings{
			DatasetID:    dataset,
			NumRecords:   records,
			PrivacyLevel: a.optStr("privacy_level"),
			CustomPrompt: a.optStr("custom_prompt"),
		}
		for key, dst := range map[string]*bool{
			"preserve_correlations": &settings.PreserveCorrelations,
			"hipaa_compliant":       &settings.HIPAACompliant,
			"medical_mode":          &settings.MedicalMode,
		} {
			if *dst, err = a.boolean(key); err != nil {
				return outcome{}, err
			}
		}
		key, err := v.CreateJob(ctx, caller, settings)
		if err != nil {
			return outcome{}, err
		}
		return outcome{result: map[string]string{"job_id": key}, binds: map[string]string{"": key}}, nil
	},
	"job.get": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		job, err := v.GetJob(ctx, caller, a.optStr("id"))
		return outcome{result: job}, err
	},
	"job.list": func(ctx context.Context, v *vault.Vault, caller string, _ args) (outcome, error) {
		js, err := v.ListMyJobs(ctx, caller)
		return outcome{result: js}, err
	},
	"job.advance": func(ctx context.Context, v *vault.Vault, caller string, a args) (outcome, error) {
		progress, err := a.integer("progress")
		if err != nil {
			return outcome{}, err
		}
		u := jobs.Update{
			Progress: progress,
			Status:   entity.JobStatus(a.optStr("status")),
			Error:    a.optStr("error"),
		}
		job, err := v.AdvanceJob(ctx, caller, a.optStr("id"), u, a.optStr("result"))
		if err != nil {
			return outcome{}, err
		}
		out := outcome{result: job, binds: map[string]string{}}
		if job.ResultNoteID != nil {
			out.binds["result"] = job.ResultNoteID.String()
		}
		return out, nil
	},
}

// Operations returns the names of all scenario operations, sorted.
func Operations() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func created(id entity.ID) outcome {
	return outcome{
		result: map[string]entity.ID{"id": id},
		binds:  map[string]string{"": id.String()},
	}
}

// redactTokens drops fingerprints from traced tokens.
func redactTokens(ts []entity.Token) []entity.Token {
	out := make([]entity.Token, len(ts))
	for i, t := range ts {
		t.Fingerprint = ""
		out[i] = t
	}
	return out
}

// args are a step's arguments after variable substitution.
type args map[string]any

func (a args) optStr(key string) string {
	switch v := a[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (a args) id(key string) (entity.ID, error) {
	raw := a.optStr(key)
	if raw == "" {
		return entity.ID{}, fmt.Errorf("argument %q is required", key)
	}
	return entity.ParseID(raw)
}

func (a args) integer(key string) (int, error) {
	switch v := a[key].(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("argument %q must be an integer, got %T", key, v)
	}
}

func (a args) boolean(key string) (bool, error) {
	switch v := a[key].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, fmt.Errorf("argument %q must be a boolean, got %T", key, v)
	}
}

func (a args) strings(key string) ([]string, error) {
	switch v := a[key].(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]string, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("argument %q[%d] must be a string, got %T", key, i, e)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("argument %q must be a list, got %T", key, v)
	}
}
