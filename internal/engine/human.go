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
	"errors"
	"fmt"
	"time"

	"github.com/Epiphytic/hookwise/internal/approval"
	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/Epiphytic/hookwise/internal/notify"
	"github.com/Epiphytic/hookwise/internal/policy"
	"github.com/Epiphytic/hookwise/internal/scope"
)

// human queues c for an operator and waits. Anything short of an answer
// denies.
func (e *Engine) human(ctx context.Context, c *call, esc escalation) Result {
	if e.queue == nil {
		return Result{
			Decision: decision.Deny,
			Tier:     decision.TierHuman,
			Rule:     "human:unavailable",
			Reason:   "no approval queue configured (" + esc.reason + ")",
		}
	}
	timeout := e.cfg.Document().Timeouts.Human.Duration
	now := e.now()
	req := approval.PendingRequest{
		Session:        c.req.Session,
		Role:           c.session.Role,
		Tool:           c.req.Tool,
		Input:          c.text,
		Paths:          c.normalized,
		Cwd:            c.req.Cwd,
		Reason:         esc.reason,
		Recommendation: esc.rec,
		Reprompt:       esc.reprompt,
		QueuedAt:       now,
	}
	if timeout > 0 {
		req.ExpiresAt = now.Add(timeout)
	}
	pending, err := e.queue.Enqueue(req)
	if err != nil {
		e.logger.Warn("engine: enqueue approval", "key", c.key.Short(), "error", err)
		return Result{
			Decision: decision.Deny,
			Tier:     decision.TierHuman,
			Rule:     "human:unavailable",
			Reason:   fmt.Sprintf("could not queue for approval: %v", err),
		}
	}
	e.logger.Info("engine: waiting for approval",
		"id", pending.ID, "session", c.req.Session, "tool", c.req.Tool, "reason", esc.reason)

	sent := e.announce(ctx, pending)

	e.metrics.HumanWaiting(1)
	resp, err := e.queue.Wait(ctx, pending.ID, timeout)
	e.metrics.HumanWaiting(-1)
	<-sent
	if err != nil {
		reason := fmt.Sprintf("no answer within %s", timeout)
		if !errors.Is(err, approval.ErrExpired) {
			reason = fmt.Sprintf("approval wait ended: %v", err)
		}
		return Result{
			Decision:  decision.Deny,
			Tier:      decision.TierHuman,
			Rule:      "human:expired",
			Reason:    reason,
			PendingID: pending.ID,
		}
	}

	verb := "approved"
	if resp.Decision == decision.Deny {
		verb = "denied"
	}
	by := resp.RespondedBy
	if by == "" {
		by = "operator"
	}
	res := Result{
		Decision:  resp.Decision,
		Tier:      decision.TierHuman,
		Rule:      "human:" + by,
		Reason:    fmt.Sprintf("%s by %s", verb, by),
		PendingID: pending.ID,
	}

	if resp.AddRule {
		if err := e.addRules(c, resp); err != nil {
			e.logger.Warn("engine: add override rule", "id", pending.ID, "scope", resp.Scope, "error", err)
		} else {
			res.Reason += fmt.Sprintf(", rule added at %s scope", resp.Scope)
		}
	}

	switch {
	case esc.reprompt:
		// The stored ask stays; the answer covers this call only.
	case resp.AlwaysAsk:
		stored := res
		stored.Decision = decision.Ask
		stored.Reason = fmt.Sprintf("%s by %s, always ask", verb, by)
		e.remember(c, stored)
	default:
		e.remember(c, res)
	}
	return res
}

// addRules records the human's answer as override rules. Shell calls get a
// generalized command pattern; file calls get one rule per path; anything
// else gets a rule on the tool alone.
func (e *Engine) addRules(c *call, resp approval.HumanResponse) error {
	if e.rules == nil {
		return errors.New("engine: no override writer configured")
	}
	level, err := scope.ParseLevel(resp.Scope)
	if err != nil {
		return err
	}
	base := scope.Rule{
		Role:      c.session.Role,
		Tool:      c.req.Tool,
		Decision:  resp.Decision,
		Note:      "added from an approval response",
		CreatedBy: resp.RespondedBy,
		CreatedAt: e.now().UTC(),
	}

	var rules []scope.Rule
	switch {
	case c.verdict.Kind == policy.KindShell && c.command != "":
		r := base
		r.Command = scope.GeneralizeCommand(c.command)
		rules = append(rules, r)
	case len(c.verdict.Paths) > 0:
		for _, p := range c.verdict.Paths {
			r := base
			r.Path = p
			rules = append(rules, r)
		}
	default:
		rules = append(rules, base)
	}

	for _, r := range rules {
		if err := e.rules.AppendRule(level, r); err != nil {
			return fmt.Errorf("engine: append %s rule: %w", level, err)
		}
		e.addDeclaration(level, r)
	}
	return nil
}

const notifyTimeout = 5 * time.Second

// announce posts the first waiter's request to the notifier in the
// background. The returned channel closes when delivery is done.
func (e *Engine) announce(ctx context.Context, p approval.PendingRequest) <-chan struct{} {
	done := make(chan struct{})
	if e.notifier == nil || p.Waiters > 1 {
		close(done)
		return done
	}
	ev := notify.Event{
		ID:        p.ID,
		Session:   p.Session,
		Role:      p.Role,
		Tool:      p.Tool,
		Input:     p.Input,
		Reason:    p.Reason,
		QueuedAt:  p.QueuedAt,
		ExpiresAt: p.ExpiresAt,
	}
	if r := p.Recommendation; r != nil {
		ev.Suggested = fmt.Sprintf("%s (%s, %.2f)", r.Decision, r.Source, r.Confidence)
	}
	go func() {
		defer close(done)
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := e.notifier.Notify(nctx, ev); err != nil {
			e.logger.Warn("engine: approval notification failed", "id", p.ID, "error", err)
		}
	}()
	return done
}
