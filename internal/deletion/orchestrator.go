package deletion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/localdeck/steward/internal/core/domain"
	"github.com/localdeck/steward/internal/infra/store"
	"github.com/localdeck/steward/internal/metrics"
	"github.com/localdeck/steward/internal/retry"
)

// Orchestrator removes a user account and everything it owns, in strict
// order: dependent records, owned business listings, the profile row, and
// the auth identity last. Every step before the identity is best-effort;
// failures are collected into the result instead of aborting the run, and
// zero-row deletes are successes, so a crashed run can simply be re-run.
type Orchestrator struct {
	store    store.Store
	identity store.IdentityStore
	ex       *retry.Executor
	log      *slog.Logger
}

func NewOrchestrator(s store.Store, identity store.IdentityStore, ex *retry.Executor, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		store:    s,
		identity: identity,
		ex:       ex,
		log:      log.With("component", "deletion"),
	}
}

// Run executes the plan. The returned result always carries per-entity
// counts; Success flips false only when the identity step fails, because
// that is the one step that cannot be compensated and must be retried by
// running the plan again.
func (o *Orchestrator) Run(ctx context.Context, plan domain.DeletionPlan) domain.DeletionResult {
	res := domain.NewDeletionResult(plan.UserID)
	log := o.log.With("user_id", plan.UserID)
	log.Info("account deletion started",
		"policy", plan.Policy,
		"scoped_businesses", len(plan.BusinessIDs))

	o.deleteDependents(ctx, plan.UserID, res)
	o.deleteBusinesses(ctx, plan, res)
	o.deleteProfile(ctx, plan.UserID, res)

	if err := o.deleteIdentity(ctx, plan.UserID); err != nil {
		res.Fail("identity", plan.UserID, err)
		metrics.DeletionRuns.WithLabelValues("failed").Inc()
		log.Error("account deletion failed at identity step", "error", err)
	} else {
		res.Success = true
		outcome := "ok"
		if len(res.Failures) > 0 {
			outcome = "partial"
		}
		metrics.DeletionRuns.WithLabelValues(outcome).Inc()
		log.Info("account deletion finished",
			"counts", res.Counts,
			"failures", len(res.Failures))
	}

	res.FinishedAt = time.Now().UTC()
	return *res
}

func (o *Orchestrator) deleteDependents(ctx context.Context, userID string, res *domain.DeletionResult) {
	for _, dep := range dependents {
		n, err := o.store.Delete(ctx, dep.Table, store.Where(store.Eq(dep.Column, userID)))
		if err != nil {
			metrics.DeletionFailures.WithLabelValues(dep.Entity).Inc()
			res.Fail(dep.Entity, "", err)
			o.log.Warn("dependent delete failed",
				"user_id", userID,
				"entity", dep.Entity,
				"error", err)
			continue
		}
		res.Add(dep.Entity, int(n))
		metrics.DeletionRows.WithLabelValues(dep.Entity).Add(float64(n))
		if n > 0 {
			o.log.Info("dependent records deleted",
				"user_id", userID,
				"entity", dep.Entity,
				"count", n)
		}
	}
}

// deleteBusinesses handles owned listings per the plan's policy. Under
// PolicyHardDelete with a BusinessIDs subset, only listed businesses are
// hard-deleted; every other owned listing is still tombstoned so nothing
// stays attached to a dead account.
func (o *Orchestrator) deleteBusinesses(ctx context.Context, plan domain.DeletionPlan, res *domain.DeletionResult) {
	owned, err := o.listOwned(ctx, plan.UserID)
	if err != nil {
		metrics.DeletionFailures.WithLabelValues("businesses").Inc()
		res.Fail("businesses", "", err)
		o.log.Warn("owned listings not loaded", "user_id", plan.UserID, "error", err)
		return
	}
	if len(owned) == 0 {
		return
	}

	hardScope := make(map[string]bool, len(owned))
	if plan.Policy == domain.PolicyHardDelete {
		if len(plan.BusinessIDs) == 0 {
			for _, b := range owned {
				hardScope[b.ID] = true
			}
		} else {
			for _, id := range plan.BusinessIDs {
				hardScope[id] = true
			}
		}
	}

	for _, b := range owned {
		if hardScope[b.ID] {
			o.hardDeleteBusiness(ctx, b, res)
		} else {
			o.softDeleteBusiness(ctx, b, res)
		}
	}
}

// hardDeleteBusiness deletes one listing and re-reads it to prove absence.
// Any failure, of the delete or of the verification, falls back to a
// compensating soft delete: the listing must never be reported deleted while
// still fetchable, and never left attached to a dead account.
func (o *Orchestrator) hardDeleteBusiness(ctx context.Context, b domain.Business, res *domain.DeletionResult) {
	err := o.removeAndVerify(ctx, b.ID)
	if err == nil {
		res.Add("businesses_hard_deleted", 1)
		metrics.DeletionRows.WithLabelValues("businesses").Inc()
		return
	}

	metrics.DeletionFailures.WithLabelValues("businesses").Inc()
	o.log.Warn("hard delete failed, compensating with soft delete",
		"business_id", b.ID,
		"error", err)

	if softErr := o.tombstone(ctx, b); softErr != nil {
		res.Fail("businesses", b.ID,
			fmt.Errorf("hard delete: %v; compensating soft delete: %w", err, softErr))
		o.log.Error("compensating soft delete failed, listing left attached",
			"business_id", b.ID,
			"error", softErr)
		return
	}
	res.FailCompensated("businesses", b.ID, err)
	res.Add("businesses_soft_deleted", 1)
	metrics.DeletionCompensations.Inc()
}

// softDeleteBusiness tombstones one listing and counts it; a failure is
// recorded in the result but never aborts the run.
func (o *Orchestrator) softDeleteBusiness(ctx context.Context, b domain.Business, res *domain.DeletionResult) {
	if err := o.tombstone(ctx, b); err != nil {
		metrics.DeletionFailures.WithLabelValues("businesses").Inc()
		res.Fail("businesses", b.ID, err)
		o.log.Warn("soft delete failed, listing left attached",
			"business_id", b.ID,
			"error", err)
		return
	}
	res.Add("businesses_soft_deleted", 1)
	metrics.DeletionRows.WithLabelValues("businesses").Inc()
}

// removeAndVerify deletes the row and re-reads it by id. The only accepted
// proof of absence is the store answering "no rows" for the read.
func (o *Orchestrator) removeAndVerify(ctx context.Context, id string) error {
	if _, err := o.store.Delete(ctx, TableBusinesses, store.ByID(id)); err != nil {
		return err
	}

	_, err := o.store.SelectOne(ctx, TableBusinesses, store.ByID(id))
	if errors.Is(err, domain.ErrNoRows) {
		return nil
	}
	if err != nil {
		return retry.Recode(retry.CodeVerificationFailed,
			fmt.Errorf("verify delete of business %s: %w", id, err))
	}
	return retry.NewError(retry.CodeVerificationFailed,
		fmt.Sprintf("business %s still present after delete", id), false)
}

// tombstone marks the listing owner-deleted and detaches the owner.
// owner_email stays on the row so the listing can be reattached later.
func (o *Orchestrator) tombstone(ctx context.Context, b domain.Business) error {
	if b.HasBadge(domain.BadgeOwnerDeleted) && b.OwnerID == "" {
		return nil
	}
	// A zero-row update means the row vanished since listing; nothing is
	// left attached, so that counts as done.
	_, err := o.store.Update(ctx, TableBusinesses, store.ByID(b.ID), store.Row{
		"badges":     b.BadgesWith(domain.BadgeOwnerDeleted),
		"owner_id":   nil,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("soft delete business %s: %w", b.ID, err)
	}
	return nil
}

func (o *Orchestrator) deleteProfile(ctx context.Context, userID string, res *domain.DeletionResult) {
	n, err := o.store.Delete(ctx, TableProfiles, store.ByID(userID))
	if err != nil {
		metrics.DeletionFailures.WithLabelValues("profiles").Inc()
		res.Fail("profiles", userID, err)
		o.log.Warn("profile delete failed", "user_id", userID, "error", err)
		return
	}
	res.Add("profiles", int(n))
	metrics.DeletionRows.WithLabelValues("profiles").Add(float64(n))
}

// deleteIdentity removes the auth identity through the executor, last. This
// is the point of no return: on failure the run is reported failed so the
// whole plan can be retried, which every earlier step tolerates.
func (o *Orchestrator) deleteIdentity(ctx context.Context, userID string) error {
	_, err := o.ex.Do(ctx, "identity.delete", func(ctx context.Context) (any, error) {
		return nil, o.identity.DeleteUser(ctx, userID)
	})
	if err != nil {
		metrics.DeletionFailures.WithLabelValues("identity").Inc()
		return retry.Recode(retry.CodeIdentityDeleteFailed, err)
	}
	return nil
}

func (o *Orchestrator) listOwned(ctx context.Context, userID string) ([]domain.Business, error) {
	rows, err := o.store.Select(ctx, TableBusinesses, store.Where(store.Eq("owner_id", userID)))
	if err != nil {
		return nil, fmt.Errorf("list owned businesses: %w", err)
	}
	out := make([]domain.Business, 0, len(rows))
	for _, row := range rows {
		out = append(out, businessFromRow(row))
	}
	return out, nil
}

func businessFromRow(row store.Row) domain.Business {
	return domain.Business{
		ID:         row.String("id"),
		Name:       row.String("name"),
		OwnerID:    row.String("owner_id"),
		OwnerEmail: row.String("owner_email"),
		Badges:     row.StringSlice("badges"),
		CreatedAt:  row.Time("created_at"),
		UpdatedAt:  row.Time("updated_at"),
	}
}
