package cron

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/domain/notification"
)

// Refresher is anything that can reload notifications from the API
type Refresher interface {
	Refresh(ctx context.Context) error
}

// InboxJobs keeps a client inbox converging with the server between
// realtime arrivals.
type InboxJobs struct {
	inbox    Refresher
	interval time.Duration
}

func NewInboxJobs(inbox Refresher, interval time.Duration) *InboxJobs {
	return &InboxJobs{inbox: inbox, interval: interval}
}

func (j *InboxJobs) RegisterJobs(scheduler *Scheduler) {
	// the inbox refreshes itself on creation
	scheduler.AddJob("refresh_notifications", j.interval, j.RefreshInbox, WithoutInitialRun())
}

func (j *InboxJobs) RefreshInbox(ctx context.Context) error {
	return j.inbox.Refresh(ctx)
}

// RecipientLister reports who is currently listening for realtime events
type RecipientLister interface {
	ActiveRecipients() []string
}

type demoTemplate struct {
	kind       notification.Kind
	entityType string
	title      string
	body       string
}

var demoTemplates = []demoTemplate{
	{notification.KindNewRisk, "risk_alert", "New risk alert", "Corrosion finding reported on RA-%04d"},
	{notification.KindAuditScheduled, "audit", "Audit scheduled", "Continuing airworthiness audit #%d planned"},
	{notification.KindMaintenanceDue, "maintenance_task", "Maintenance due", "Task card %d reaches its limit within 10 flight hours"},
	{notification.KindDirectivePublished, "airworthiness_directive", "Airworthiness directive published", "AD %d applies to registered aircraft"},
	{notification.KindDocumentUpdated, "document", "Document updated", "Revision %d of the maintenance programme uploaded"},
	{notification.KindAircraftStatusChanged, "aircraft", "Aircraft status changed", "Aircraft %d returned to service"},
	{notification.KindAuditCompleted, "audit", "Audit completed", "Audit #%d closed with no findings"},
	{notification.KindRiskResolved, "risk_alert", "Risk resolved", "Risk alert RA-%04d closed"},
}

// DemoJobs queues sample notifications for every connected recipient of
// the development backend.
type DemoJobs struct {
	svc        notification.Service
	recipients RecipientLister
	interval   time.Duration
	counter    atomic.Int64
}

func NewDemoJobs(svc notification.Service, recipients RecipientLister, interval time.Duration) *DemoJobs {
	return &DemoJobs{svc: svc, recipients: recipients, interval: interval}
}

func (j *DemoJobs) RegisterJobs(scheduler *Scheduler) {
	scheduler.AddJob("emit_demo_notifications", j.interval, j.EmitDemoNotifications, WithoutInitialRun())
}

func (j *DemoJobs) EmitDemoNotifications(ctx context.Context) error {
	recipients := j.recipients.ActiveRecipients()
	sort.Strings(recipients)

	for _, recipientID := range recipients {
		n := j.counter.Add(1)
		tpl := demoTemplates[int(n-1)%len(demoTemplates)]
		req := notification.CreateNotificationRequest{
			RecipientID: recipientID,
			Kind:        tpl.kind,
			Title:       tpl.title,
			Body:        fmt.Sprintf(tpl.body, n),
			EntityType:  tpl.entityType,
			EntityID:    fmt.Sprintf("%d", n),
		}
		if err := j.svc.QueueNotification(ctx, req); err != nil {
			return fmt.Errorf("queue demo notification for %s: %w", recipientID, err)
		}
	}
	return nil
}
