// Copyright 2026 The Hookwise Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Epiphytic/hookwise/internal/approval"
	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/Epiphytic/hookwise/internal/policy"
	"github.com/Epiphytic/hookwise/internal/scope"
	"github.com/Epiphytic/hookwise/internal/session"
	"github.com/Epiphytic/hookwise/internal/store"
	"github.com/Epiphytic/hookwise/internal/supervisor"
)

// call is one request as it moves through the tiers.
type call struct {
	req     Request
	session session.Session
	role    *policy.Role

	// command and text are sanitized. text is what similarity tiers, the
	// supervisor and the human see.
	command string
	text    string

	verdict    policy.PathVerdict
	normalized []string
	key        decision.Key
	redactions int
}

// escalation is why a call reached the human tier.
type escalation struct {
	reason   string
	rec      *approval.Recommendation
	reprompt bool
}

// Evaluate runs the cascade for req. It always returns a usable Result; a
// non-nil error means the request itself was malformed and the result is a
// fail-closed deny.
func (e *Engine) Evaluate(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := e.evaluate(ctx, req)
	e.metrics.RecordDecision(res.Decision, res.Tier, time.Since(start))
	e.metrics.AddRedactions(res.Redactions)
	return res, err
}

func (e *Engine) evaluate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Tool) == "" {
		res := Result{Decision: decision.Deny, Tier: decision.TierUnknown, Rule: "request:invalid", Reason: "request has no tool name"}
		return res, errors.New("engine: request has no tool name")
	}
	doc := e.cfg.Document()

	sess, err := e.registry.WaitForRegistration(ctx, req.Session, doc.Timeouts.Registration.Duration)
	if err != nil {
		e.logger.Info("engine: unregistered session", "session", req.Session, "tool", req.Tool, "error", err)
		return Result{
			Decision: decision.Deny,
			Tier:     decision.TierUnregistered,
			Rule:     "session:unregistered",
			Reason:   fmt.Sprintf("session is not registered, run `hookwise register` (%v)", err),
		}, nil
	}
	if sess.Disabled {
		return Result{
			Decision: decision.Allow,
			Tier:     decision.TierDisabled,
			Rule:     "session:disabled",
			Reason:   "hookwise is disabled for this session",
		}, nil
	}
	role, ok := e.cfg.Role(sess.Role)
	if !ok {
		return Result{
			Decision: decision.Deny,
			Tier:     decision.TierPathPolicy,
			Rule:     "role:unknown",
			Reason:   fmt.Sprintf("session role %q is not defined", sess.Role),
		}, nil
	}

	c := e.prepare(req, sess, role)
	res := e.cascade(ctx, c)
	res.Key = c.key
	res.Redactions = c.redactions

	e.logger.Debug("engine: decision",
		"session", req.Session,
		"role", sess.Role,
		"tool", req.Tool,
		"key", c.key.Short(),
		"decision", res.Decision,
		"tier", res.Tier,
		"rule", res.Rule,
	)
	return res, nil
}

// prepare sanitizes the input and derives the paths, text and key.
func (e *Engine) prepare(req Request, sess session.Session, role *policy.Role) *call {
	c := &call{req: req, session: sess, role: role}

	clean, findings := e.sanitizer.SanitizeInput(req.Input)
	c.redactions = len(findings)
	c.command = policy.Command(clean)

	if c.verdict = e.cfg.EvaluatePaths(role, req.Tool, req.Input, req.Cwd); len(c.verdict.Paths) > 0 {
		c.normalized = e.cfg.NormalizePaths(c.verdict.Paths)
	}

	if c.verdict.Kind == policy.KindShell && c.command != "" {
		c.text = c.command
	} else if data, err := json.Marshal(clean); err == nil {
		c.text = string(data)
	}

	var subject string
	switch c.verdict.Kind {
	case policy.KindWrite, policy.KindRead:
		subject = e.cfg.Subject(c.verdict.Paths)
	}
	if subject == "" {
		subject = strings.Join(store.Tokenize(c.text), " ")
	}
	c.key = decision.Key{
		Role:    sess.Role,
		Tool:    req.Tool,
		Subject: e.sanitizer.Sanitize(subject).Text,
		Scope:   e.project,
	}
	return c
}

func (e *Engine) cascade(ctx context.Context, c *call) Result {
	if res, esc, done := e.pathTier(c); done {
		return res
	} else if esc != nil {
		return e.human(ctx, c, *esc)
	}

	if rec, ok := e.store.Lookup(c.key); ok {
		if rec.Decision == decision.Ask {
			return e.human(ctx, c, escalation{
				reason:   "previous decision for this request was ask",
				reprompt: true,
			})
		}
		rule := rec.Rule
		if rule == "" {
			rule = "cache:" + c.key.Short()
		}
		return Result{
			Decision:   rec.Decision,
			Tier:       decision.TierExactCache,
			Rule:       rule,
			Reason:     fmt.Sprintf("cached %s decision: %s", rec.Tier, rec.Reason),
			Confidence: rec.Confidence,
		}
	}

	if res, ok := e.tokenTier(c); ok {
		e.remember(c, res)
		return res
	}
	if res, ok := e.embeddingTier(c); ok {
		e.remember(c, res)
		return res
	}

	res, esc := e.supervise(ctx, c)
	if esc != nil {
		return e.human(ctx, c, *esc)
	}
	e.remember(c, res)
	return res
}

// pathTier runs the path policy and the scope merge. It returns a terminal
// result, an escalation for an override ask, or neither.
func (e *Engine) pathTier(c *call) (Result, *escalation, bool) {
	pv := c.verdict
	if pv.Sensitive {
		return Result{
			Decision: decision.Ask,
			Tier:     decision.TierPathPolicy,
			Rule:     pv.Rule,
			Reason:   "sensitive path requires human approval",
		}, nil, true
	}

	subject := scope.Subject{
		Role:    c.session.Role,
		Tool:    c.req.Tool,
		Command: c.command,
		Paths:   append(append([]string(nil), pv.Paths...), c.normalized...),
	}
	merged := e.declarations().Evaluate(subject, pv.Decision)

	var res Result
	switch {
	case merged.Decision == decision.None:
		return Result{}, nil, false
	case merged.Rule != nil:
		res = Result{
			Decision: merged.Decision,
			Tier:     decision.TierOverride,
			Rule:     fmt.Sprintf("override:%s:%s", merged.Level, merged.Rule.Describe()),
			Reason:   merged.Rule.Note,
		}
		if res.Reason == "" {
			res.Reason = fmt.Sprintf("%s override", merged.Level)
		}
	default:
		res = Result{
			Decision: merged.Decision,
			Tier:     decision.TierPathPolicy,
			Rule:     pv.Rule,
			Reason:   fmt.Sprintf("role %s: %s", c.role.Name, pv.Rule),
		}
	}

	if res.Decision == decision.Ask {
		return Result{}, &escalation{reason: res.Rule, reprompt: true}, false
	}
	e.remember(c, res)
	return res, nil, true
}

// tokenTier allows when the best token-similar cached key was allowed and no
// similar key was denied or asked.
func (e *Engine) tokenTier(c *call) (Result, bool) {
	sim := e.cfg.Document().Similarity
	cands := e.store.Similar(c.key, c.text, sim.JaccardMinTokens, sim.JaccardThreshold)
	if len(cands) == 0 {
		return Result{}, false
	}
	for _, cand := range cands {
		if cand.Decision != decision.Allow {
			e.logger.Debug("engine: token similarity abstains",
				"key", c.key.Short(), "neighbor", cand.Digest[:12], "neighbor_decision", cand.Decision)
			return Result{}, false
		}
	}
	best := cands[0]
	return Result{
		Decision:   decision.Allow,
		Tier:       decision.TierTokenSimilarity,
		Rule:       "similar:" + best.Digest[:12],
		Reason:     fmt.Sprintf("%.2f token similarity to an allowed request (%d shared tokens)", best.Score, best.Shared),
		Confidence: best.Score,
	}, true
}

// embeddingTier allows when the nearest vector neighbor is close enough and
// was allowed.
func (e *Engine) embeddingTier(c *call) (Result, bool) {
	if e.embedder == nil {
		return Result{}, false
	}
	near := e.store.Nearest(c.key, c.text, e.embedder, 1)
	if len(near) == 0 {
		return Result{}, false
	}
	best := near[0]
	if best.Score < e.cfg.Document().Similarity.EmbeddingThreshold || best.Decision != decision.Allow {
		return Result{}, false
	}
	return Result{
		Decision:   decision.Allow,
		Tier:       decision.TierEmbeddingSimilarity,
		Rule:       "nearest:" + best.Digest[:12],
		Reason:     fmt.Sprintf("%.2f embedding similarity to an allowed request", best.Score),
		Confidence: best.Score,
	}, true
}

// supervise asks the supervisor. Failures, asks and low-confidence verdicts
// come back as an escalation.
func (e *Engine) supervise(ctx context.Context, c *call) (Result, *escalation) {
	doc := e.cfg.Document()
	if t := doc.Timeouts.Supervisor.Duration; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	started := time.Now()
	v, err := e.supervisor.Evaluate(ctx, supervisor.Request{
		Session:         c.req.Session,
		Role:            c.session.Role,
		RoleDescription: c.role.Description,
		Tool:            c.req.Tool,
		Input:           c.text,
		Paths:           c.normalized,
		Cwd:             c.req.Cwd,
		Task:            c.session.Task,
	})
	e.metrics.RecordSupervisor(v, err, time.Since(started))
	if err != nil {
		level := e.logger.Warn
		if errors.Is(err, supervisor.ErrUnavailable) {
			level = e.logger.Debug
		}
		level("engine: supervisor failed, escalating", "key", c.key.Short(), "error", err)
		return Result{}, &escalation{reason: fmt.Sprintf("supervisor: %v", err)}
	}

	rec := &approval.Recommendation{
		Decision:   v.Decision,
		Confidence: v.Confidence,
		Reason:     v.Reason,
		Source:     decision.TierSupervisor,
	}
	switch {
	case v.Decision == decision.Ask:
		return Result{}, &escalation{reason: "supervisor asked for a human", rec: rec}
	case v.Confidence < doc.Confidence.Supervisor:
		return Result{}, &escalation{
			reason: fmt.Sprintf("supervisor confidence %.2f below %.2f", v.Confidence, doc.Confidence.Supervisor),
			rec:    rec,
		}
	}
	return Result{
		Decision:   v.Decision,
		Tier:       decision.TierSupervisor,
		Rule:       "supervisor",
		Reason:     v.Reason,
		Confidence: v.Confidence,
	}, nil
}

// remember writes a terminal decision back to the store. A failed write is
// logged; the decision still stands.
func (e *Engine) remember(c *call, res Result) {
	if !res.Decision.Decisive() {
		return
	}
	_, err := e.store.Write(store.Record{
		Key:        c.key,
		Decision:   res.Decision,
		Tier:       res.Tier,
		Rule:       res.Rule,
		Reason:     res.Reason,
		Confidence: res.Confidence,
		Session:    c.req.Session,
		Text:       c.text,
		Timestamp:  e.now().UTC(),
	})
	if err != nil {
		e.logger.Warn("engine: persist decision", "key", c.key.Short(), "tier", res.Tier, "error", err)
	}
}
