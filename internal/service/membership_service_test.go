package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileRebuildsIndexFromApprovedRecords(t *testing.T) {
	f := newFixture(t)
	f.student(t, "s1")
	f.student(t, "s2")
	f.instructor(t, "i1")

	f.approved(t, "s1", "i1")
	_, err := f.relationships.SendRequest(f.ctx, "s2", "i1")
	require.NoError(t, err)

	// рассинхронизация: лишний и потерянный контрагент
	require.NoError(t, f.membershipRepo.Replace(f.ctx, "s2", []string{"i1"}))
	require.NoError(t, f.membershipRepo.Remove(f.ctx, "i1", "s1"))

	report, err := f.membership.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.UsersChecked)
	assert.Equal(t, 2, report.UsersFixed)

	assert.Equal(t, []string{"i1"}, f.counterparts(t, "s1"))
	assert.Equal(t, []string{"s1"}, f.counterparts(t, "i1"))
	assert.Empty(t, f.counterparts(t, "s2"))

	report, err = f.membership.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.UsersFixed)
}

func TestLinkAndUnlinkAreIdempotent(t *testing.T) {
	f := newFixture(t)
	f.student(t, "s1")
	f.instructor(t, "i1")

	rel := f.approved(t, "s1", "i1")
	require.NoError(t, f.membership.Link(f.ctx, rel.Pair()))
	assert.Equal(t, []string{"i1"}, f.counterparts(t, "s1"))

	require.NoError(t, f.membership.Unlink(f.ctx, rel.Pair()))
	require.NoError(t, f.membership.Unlink(f.ctx, rel.Pair()))
	assert.Empty(t, f.counterparts(t, "i1"))
}
