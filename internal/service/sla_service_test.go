package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

func TestSLAForTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openTicket("urgent", domain.TicketPriorityUrgent)
	f.advance(90 * time.Minute)

	entry, err := f.sla.ForTicket(ctx, "urgent")
	require.NoError(t, err)
	assert.True(t, entry.Clock.ResponseBreached)
	assert.False(t, entry.Clock.ResolutionBreached)
	assert.Equal(t, baseTime.Add(4*time.Hour), entry.Clock.Resolution)
	assert.Equal(t, 150*time.Minute, entry.Remaining)

	_, err = f.sla.ForTicket(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestSLAReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.resolvedTicket(t, "done")
	f.openTicket("late", domain.TicketPriorityUrgent)
	f.advance(5 * time.Hour)

	report, err := f.sla.Report(ctx, repository.TicketFilter{})
	require.NoError(t, err)
	require.Len(t, report.Tickets, 2)
	assert.Equal(t, 1, report.Breached)
	assert.InDelta(t, 100.0, report.ComplianceRate, 0.001)
	assert.Equal(t, "done", report.Tickets[0].Ticket.ID)
	assert.Zero(t, report.Tickets[0].Remaining)
	assert.Negative(t, int64(report.Tickets[1].Remaining))

	open, err := f.sla.Report(ctx, repository.TicketFilter{Statuses: []domain.TicketStatus{domain.TicketStatusOpen}})
	require.NoError(t, err)
	require.Len(t, open.Tickets, 1)
	assert.Zero(t, open.ComplianceRate, "nothing resolved")
}
